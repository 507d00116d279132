package arbor

import (
	"fmt"
)

// TransactionEntry is one command of a transaction with the node it is
// buffered against.
type TransactionEntry struct {
	Node    NodeID
	Follow  FollowType
	Command Command
}

// Transaction is an ordered batch of commands from one client.
type Transaction struct {
	entries []TransactionEntry

	// Timestamp is the client's frame time in nanoseconds. Commands that
	// follow a surface wait until a buffer at least this new is consumed.
	Timestamp uint64
	Pid       int32
	// Index orders transactions from the same client.
	Index     uint64
	UniRender bool
}

// NewTransaction returns an empty transaction for pid.
func NewTransaction(pid int32, timestamp uint64) *Transaction {
	return &Transaction{Pid: pid, Timestamp: timestamp}
}

// AddCommand appends cmd, buffered against node according to follow.
func (t *Transaction) AddCommand(cmd Command, node NodeID, follow FollowType) {
	if cmd == nil {
		return
	}
	t.entries = append(t.entries, TransactionEntry{Node: node, Follow: follow, Command: cmd})
}

// Entries returns the commands in order. The slice must not be modified.
func (t *Transaction) Entries() []TransactionEntry { return t.entries }

// Commands returns only the commands, in order.
func (t *Transaction) Commands() []Command {
	out := make([]Command, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.Command
	}
	return out
}

// Len returns the number of commands.
func (t *Transaction) Len() int { return len(t.entries) }

// IsEmpty reports whether the transaction carries no commands.
func (t *Transaction) IsEmpty() bool { return len(t.entries) == 0 }

// Process runs every command against ctx in order, ignoring buffering.
func (t *Transaction) Process(ctx *Context) {
	for _, e := range t.entries {
		e.Command.Process(ctx)
	}
}

// minEntrySize is the encoded size of an entry header without payload.
const minEntrySize = 8 + 1 + 2 + 2

// Marshal encodes the transaction in its wire form.
func (t *Transaction) Marshal() []byte {
	p := NewParcel(nil)
	p.WriteInt32(int32(len(t.entries)))
	for _, e := range t.entries {
		writeNodeID(p, e.Node)
		p.WriteUint8(uint8(e.Follow))
		p.WriteUint16(uint16(e.Command.Type()))
		p.WriteUint16(e.Command.SubType())
		e.Command.marshal(p)
	}
	p.WriteUint64(t.Timestamp)
	p.WriteInt32(t.Pid)
	p.WriteUint64(t.Index)
	p.WriteBool(t.UniRender)
	return p.Bytes()
}

// UnmarshalTransaction decodes a transaction. Truncated or corrupt input
// yields an error wrapping ErrMalformedTransaction, and an unregistered
// command yields one wrapping ErrUnknownCommand.
func UnmarshalTransaction(data []byte) (*Transaction, error) {
	p := NewParcel(data)
	count := p.ReadInt32()
	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("command count: %w", ErrMalformedTransaction)
	}
	if count < 0 || int(count) > p.Remaining()/minEntrySize {
		return nil, fmt.Errorf("command count %d for %d bytes: %w", count, p.Remaining(), ErrMalformedTransaction)
	}
	t := &Transaction{entries: make([]TransactionEntry, 0, count)}
	for i := range int(count) {
		node := readNodeID(p)
		follow := FollowType(p.ReadUint8())
		typ := CommandType(p.ReadUint16())
		sub := p.ReadUint16()
		if err := p.Err(); err != nil {
			return nil, fmt.Errorf("command %d header: %w", i, ErrMalformedTransaction)
		}
		if follow > FollowToSelf {
			return nil, fmt.Errorf("command %d follow type %d: %w", i, follow, ErrMalformedTransaction)
		}
		cmd, err := decodeCommand(p, typ, sub)
		if err != nil {
			return nil, fmt.Errorf("command %d: %w", i, err)
		}
		t.entries = append(t.entries, TransactionEntry{Node: node, Follow: follow, Command: cmd})
	}
	t.Timestamp = p.ReadUint64()
	t.Pid = p.ReadInt32()
	t.Index = p.ReadUint64()
	t.UniRender = p.ReadBool()
	if err := p.Err(); err != nil {
		return nil, fmt.Errorf("transaction trailer: %w", ErrMalformedTransaction)
	}
	return t, nil
}
