package arbor

import (
	"errors"
	"fmt"
)

// DisplayError is an integer status code returned by the hardware device
// layer. Codes are surfaced to callers unchanged and never retried by the
// callee.
type DisplayError int32

const (
	DisplaySuccess    DisplayError = 0
	DisplayFailure    DisplayError = -1
	DisplayFdErr      DisplayError = -2
	DisplayParamErr   DisplayError = -3
	DisplayNullPtr    DisplayError = -4
	DisplayNotSupport DisplayError = -5
	DisplayNoMemory   DisplayError = -6
	DisplaySysBusy    DisplayError = -7
	DisplayNotPermit  DisplayError = -8
)

var displayErrorNames = map[DisplayError]string{
	DisplaySuccess:    "success",
	DisplayFailure:    "failure",
	DisplayFdErr:      "bad fence descriptor",
	DisplayParamErr:   "invalid parameter",
	DisplayNullPtr:    "null device function",
	DisplayNotSupport: "not supported",
	DisplayNoMemory:   "out of memory",
	DisplaySysBusy:    "system busy",
	DisplayNotPermit:  "not permitted",
}

func (e DisplayError) Error() string {
	if name, ok := displayErrorNames[e]; ok {
		return fmt.Sprintf("display: %s (%d)", name, int32(e))
	}
	return fmt.Sprintf("display: error %d", int32(e))
}

// Err returns nil for DisplaySuccess and e otherwise, so call sites can use
// the usual `if err := ...; err != nil` shape.
func (e DisplayError) Err() error {
	if e == DisplaySuccess {
		return nil
	}
	return e
}

var (
	// ErrMalformedTransaction is returned when transaction bytes cannot be
	// decoded. The whole transaction is discarded.
	ErrMalformedTransaction = errors.New("arbor: malformed transaction")

	// ErrUnknownCommand is returned for an unregistered (type, subtype) pair.
	ErrUnknownCommand = errors.New("arbor: unknown command")

	// ErrNoBuffer is returned by a BufferQueue with nothing to acquire.
	ErrNoBuffer = errors.New("arbor: no buffer available")

	// ErrBufferNotOwned is returned when releasing a buffer the queue did not
	// hand out.
	ErrBufferNotOwned = errors.New("arbor: buffer not owned by queue")

	// ErrDeviceNotInit is returned when the hardware device failed to
	// initialize; the hardware path stays disabled afterwards.
	ErrDeviceNotInit = errors.New("arbor: display device not initialized")

	// ErrNodeNotFound is returned when a request names a node that is not in
	// the node map.
	ErrNodeNotFound = errors.New("arbor: node not found")

	// ErrEmptyCapture is returned when the captured node has no area.
	ErrEmptyCapture = errors.New("arbor: nothing to capture")

	// ErrStopped is returned by operations on a stopped loop or thread.
	ErrStopped = errors.New("arbor: stopped")
)
