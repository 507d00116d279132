package arbor

import (
	"fmt"
	"slices"
	"weak"
)

// ModifierType identifies what a modifier changes. Types below
// ModifierCustom set a single property; types above it carry a draw command
// list painted in a fixed phase. Values are part of the wire format.
type ModifierType uint16

const (
	ModifierInvalid ModifierType = iota
	ModifierBounds
	ModifierFrame
	ModifierPositionZ
	ModifierPivot
	ModifierRotation
	ModifierScale
	ModifierTranslate
	ModifierAlpha
	ModifierAlphaOffscreen
	ModifierVisible
	ModifierClipToBounds
	ModifierClipToFrame
	ModifierCornerRadius
	ModifierBackgroundColor
	ModifierForegroundColor
	ModifierBorderColor
	ModifierBorderWidth
	ModifierShadowColor
	ModifierShadowOffsetX
	ModifierShadowOffsetY
	ModifierShadowRadius
	ModifierShadowElevation
	ModifierFilter
	ModifierBackgroundFilter
	ModifierPixelStretch
	ModifierFrameGravity

	ModifierCustom

	ModifierBackgroundStyle
	ModifierContentStyle
	ModifierForegroundStyle
	ModifierOverlayStyle
	ModifierGeometryTransform

	modifierTypeCount
)

// IsDrawCmd reports whether the type carries a draw command list.
func (t ModifierType) IsDrawCmd() bool {
	return t > ModifierCustom && t < modifierTypeCount
}

func (t ModifierType) valid() bool {
	return t > ModifierInvalid && t < modifierTypeCount && t != ModifierCustom
}

func (t ModifierType) String() string {
	if t < modifierTypeCount {
		if info := modifierTable[t]; info.name != "" {
			return info.name
		}
	}
	return fmt.Sprintf("ModifierType(%d)", uint16(t))
}

// drawPhase indexes per-phase draw command lists.
func (t ModifierType) drawPhase() int {
	return int(t - ModifierBackgroundStyle)
}

const drawPhaseCount = int(modifierTypeCount - ModifierBackgroundStyle)

// valueKind says which PropertyValue field a modifier type uses.
type valueKind uint8

const (
	kindNone valueKind = iota
	kindFloat
	kindBool
	kindVec2
	kindRect
	kindColor
	kindInsets
	kindDrawCmds
)

// PropertyValue holds a modifier's value. Only the field matching the
// modifier type is used.
type PropertyValue struct {
	Float  float64
	Bool   bool
	Vec    Vec2
	Rect   Rect
	Color  Color
	Insets Insets
	Cmds   *DrawCmdList
}

func FloatValue(v float64) PropertyValue { return PropertyValue{Float: v} }
func BoolValue(v bool) PropertyValue { return PropertyValue{Bool: v} }
func Vec2Value(x, y float64) PropertyValue { return PropertyValue{Vec: Vec2{x, y}} }
func RectValue(r Rect) PropertyValue { return PropertyValue{Rect: r} }
func ColorValue(c Color) PropertyValue { return PropertyValue{Color: c} }
func InsetsValue(i Insets) PropertyValue { return PropertyValue{Insets: i} }
func DrawCmdsValue(l *DrawCmdList) PropertyValue { return PropertyValue{Cmds: l} }

// components flattens an animatable value.
func (v *PropertyValue) components(k valueKind) []float64 {
	switch k {
	case kindFloat:
		return []float64{v.Float}
	case kindVec2:
		return []float64{v.Vec.X, v.Vec.Y}
	case kindRect:
		return []float64{v.Rect.X, v.Rect.Y, v.Rect.Width, v.Rect.Height}
	case kindColor:
		return []float64{v.Color.R, v.Color.G, v.Color.B, v.Color.A}
	case kindInsets:
		return []float64{v.Insets.Left, v.Insets.Top, v.Insets.Right, v.Insets.Bottom}
	}
	return nil
}

// setComponents is the inverse of components.
func (v *PropertyValue) setComponents(k valueKind, c []float64) {
	switch k {
	case kindFloat:
		v.Float = c[0]
	case kindVec2:
		v.Vec = Vec2{c[0], c[1]}
	case kindRect:
		v.Rect = Rect{c[0], c[1], c[2], c[3]}
	case kindColor:
		v.Color = Color{c[0], c[1], c[2], c[3]}
	case kindInsets:
		v.Insets = Insets{c[0], c[1], c[2], c[3]}
	}
}

func (v *PropertyValue) marshal(p *Parcel, k valueKind) {
	switch k {
	case kindFloat:
		p.WriteFloat64(v.Float)
	case kindBool:
		p.WriteBool(v.Bool)
	case kindVec2:
		p.WriteFloat64(v.Vec.X)
		p.WriteFloat64(v.Vec.Y)
	case kindRect:
		p.WriteRect(v.Rect)
	case kindColor:
		p.WriteColor(v.Color)
	case kindInsets:
		p.WriteFloat64(v.Insets.Left)
		p.WriteFloat64(v.Insets.Top)
		p.WriteFloat64(v.Insets.Right)
		p.WriteFloat64(v.Insets.Bottom)
	case kindDrawCmds:
		if v.Cmds == nil {
			p.WriteBool(false)
			return
		}
		p.WriteBool(true)
		v.Cmds.Marshal(p)
	}
}

func unmarshalValue(p *Parcel, k valueKind) (PropertyValue, error) {
	var v PropertyValue
	switch k {
	case kindFloat:
		v.Float = p.ReadFloat64()
	case kindBool:
		v.Bool = p.ReadBool()
	case kindVec2:
		v.Vec = Vec2{p.ReadFloat64(), p.ReadFloat64()}
	case kindRect:
		v.Rect = p.ReadRect()
	case kindColor:
		v.Color = p.ReadColor()
	case kindInsets:
		v.Insets = Insets{p.ReadFloat64(), p.ReadFloat64(), p.ReadFloat64(), p.ReadFloat64()}
	case kindDrawCmds:
		if p.ReadBool() {
			l, err := UnmarshalDrawCmdList(p)
			if err != nil {
				return v, err
			}
			v.Cmds = l
		}
	}
	return v, p.Err()
}

// modifierInfo is one row of the dispatch table.
type modifierInfo struct {
	name  string
	kind  valueKind
	apply func(p *Properties, v *PropertyValue)
}

func shadowOf(p *Properties) *Shadow {
	if p.shadow == nil {
		p.shadow = &Shadow{}
	}
	p.SetDirty()
	return p.shadow
}

func filterOf(radius float64) *Filter {
	if radius <= 0 {
		return nil
	}
	return &Filter{Radius: radius}
}

var modifierTable = [modifierTypeCount]modifierInfo{
	ModifierBounds:          {"Bounds", kindRect, func(p *Properties, v *PropertyValue) { p.SetBounds(v.Rect) }},
	ModifierFrame:           {"Frame", kindRect, func(p *Properties, v *PropertyValue) { p.SetFrame(v.Rect) }},
	ModifierPositionZ:       {"PositionZ", kindFloat, func(p *Properties, v *PropertyValue) { p.SetPositionZ(v.Float) }},
	ModifierPivot:           {"Pivot", kindVec2, func(p *Properties, v *PropertyValue) { p.SetPivot(v.Vec.X, v.Vec.Y) }},
	ModifierRotation:        {"Rotation", kindFloat, func(p *Properties, v *PropertyValue) { p.SetRotation(v.Float) }},
	ModifierScale:           {"Scale", kindVec2, func(p *Properties, v *PropertyValue) { p.SetScale(v.Vec.X, v.Vec.Y) }},
	ModifierTranslate:       {"Translate", kindVec2, func(p *Properties, v *PropertyValue) { p.SetTranslate(v.Vec.X, v.Vec.Y) }},
	ModifierAlpha:           {"Alpha", kindFloat, func(p *Properties, v *PropertyValue) { p.SetAlpha(v.Float) }},
	ModifierAlphaOffscreen:  {"AlphaOffscreen", kindBool, func(p *Properties, v *PropertyValue) { p.SetAlphaOffscreen(v.Bool) }},
	ModifierVisible:         {"Visible", kindBool, func(p *Properties, v *PropertyValue) { p.SetVisible(v.Bool) }},
	ModifierClipToBounds:    {"ClipToBounds", kindBool, func(p *Properties, v *PropertyValue) { p.SetClipToBounds(v.Bool) }},
	ModifierClipToFrame:     {"ClipToFrame", kindBool, func(p *Properties, v *PropertyValue) { p.SetClipToFrame(v.Bool) }},
	ModifierCornerRadius:    {"CornerRadius", kindFloat, func(p *Properties, v *PropertyValue) { p.SetCornerRadius(v.Float) }},
	ModifierBackgroundColor: {"BackgroundColor", kindColor, func(p *Properties, v *PropertyValue) { p.SetBackgroundColor(v.Color) }},
	ModifierForegroundColor: {"ForegroundColor", kindColor, func(p *Properties, v *PropertyValue) { p.SetForegroundColor(v.Color) }},
	ModifierBorderColor: {"BorderColor", kindColor, func(p *Properties, v *PropertyValue) {
		_, w := p.Border()
		p.SetBorder(v.Color, w)
	}},
	ModifierBorderWidth: {"BorderWidth", kindFloat, func(p *Properties, v *PropertyValue) {
		c, _ := p.Border()
		p.SetBorder(c, v.Float)
	}},
	ModifierShadowColor:     {"ShadowColor", kindColor, func(p *Properties, v *PropertyValue) { shadowOf(p).Color = v.Color }},
	ModifierShadowOffsetX:   {"ShadowOffsetX", kindFloat, func(p *Properties, v *PropertyValue) { shadowOf(p).OffsetX = v.Float }},
	ModifierShadowOffsetY:   {"ShadowOffsetY", kindFloat, func(p *Properties, v *PropertyValue) { shadowOf(p).OffsetY = v.Float }},
	ModifierShadowRadius:    {"ShadowRadius", kindFloat, func(p *Properties, v *PropertyValue) { shadowOf(p).Radius = v.Float }},
	ModifierShadowElevation: {"ShadowElevation", kindFloat, func(p *Properties, v *PropertyValue) { shadowOf(p).Elevation = v.Float }},
	ModifierFilter:          {"Filter", kindFloat, func(p *Properties, v *PropertyValue) { p.SetFilter(filterOf(v.Float)) }},
	ModifierBackgroundFilter: {"BackgroundFilter", kindFloat, func(p *Properties, v *PropertyValue) {
		p.SetBackgroundFilter(filterOf(v.Float))
	}},
	ModifierPixelStretch: {"PixelStretch", kindInsets, func(p *Properties, v *PropertyValue) { p.SetPixelStretch(v.Insets) }},
	ModifierFrameGravity: {"FrameGravity", kindFloat, func(p *Properties, v *PropertyValue) {
		p.SetFrameGravity(Gravity(v.Float))
	}},

	ModifierCustom: {name: "Custom"},

	ModifierBackgroundStyle:   {name: "BackgroundStyle", kind: kindDrawCmds},
	ModifierContentStyle:      {name: "ContentStyle", kind: kindDrawCmds},
	ModifierForegroundStyle:   {name: "ForegroundStyle", kind: kindDrawCmds},
	ModifierOverlayStyle:      {name: "OverlayStyle", kind: kindDrawCmds},
	ModifierGeometryTransform: {name: "GeometryTransform", kind: kindDrawCmds},
}

// Modifier is a typed mutation owned by a render node. Property modifiers
// write one value into the node's Properties when applied; draw command
// modifiers carry a list painted in their phase.
type Modifier struct {
	id    PropertyID
	typ   ModifierType
	value PropertyValue
	owner weak.Pointer[RenderNode]
}

// NewModifier returns a modifier of type typ. It panics on an invalid type,
// which can only come from a programming error; decoded types are validated
// by the command codec first.
func NewModifier(id PropertyID, typ ModifierType, v PropertyValue) *Modifier {
	if !typ.valid() {
		panic(fmt.Sprintf("arbor: invalid modifier type %d", uint16(typ)))
	}
	return &Modifier{id: id, typ: typ, value: v}
}

func (m *Modifier) ID() PropertyID       { return m.id }
func (m *Modifier) Type() ModifierType   { return m.typ }
func (m *Modifier) Value() PropertyValue { return m.value }

// SetValue replaces the modifier's value.
func (m *Modifier) SetValue(v PropertyValue) { m.value = v }

func (m *Modifier) kind() valueKind { return modifierTable[m.typ].kind }

// markOwnerDirty dirties the node the modifier was added to, if it is still
// alive.
func (m *Modifier) markOwnerDirty() {
	if n := m.owner.Value(); n != nil {
		n.SetDirty()
	}
}

// Animatable reports whether the value can be interpolated.
func (m *Modifier) Animatable() bool {
	switch m.kind() {
	case kindFloat, kindVec2, kindRect, kindColor, kindInsets:
		return true
	}
	return false
}

// Apply writes the modifier's value into p. Draw command modifiers are a
// no-op here; they are painted by the node.
func (m *Modifier) Apply(p *Properties) {
	if fn := modifierTable[m.typ].apply; fn != nil {
		fn(p, &m.value)
	}
}

// modifierSet is the modifier storage of one node.
type modifierSet struct {
	boundsModifier *Modifier
	frameModifier  *Modifier
	props          map[PropertyID]*Modifier
	drawCmds       [drawPhaseCount][]*Modifier
}

// add stores m. The first bounds or frame modifier owns the slot; later ones
// alias it under their own id.
func (s *modifierSet) add(m *Modifier) {
	if s.props == nil {
		s.props = make(map[PropertyID]*Modifier)
	}
	switch {
	case m.typ == ModifierBounds:
		if s.boundsModifier == nil {
			s.boundsModifier = m
		}
		s.props[m.id] = s.boundsModifier
	case m.typ == ModifierFrame:
		if s.frameModifier == nil {
			s.frameModifier = m
		}
		s.props[m.id] = s.frameModifier
	case m.typ < ModifierCustom:
		s.props[m.id] = m
	default:
		ph := m.typ.drawPhase()
		s.drawCmds[ph] = append(s.drawCmds[ph], m)
	}
}

// remove erases id. It reports whether anything was removed and whether an
// overlay modifier was among them.
func (s *modifierSet) remove(id PropertyID) (removed, overlay bool) {
	if m, ok := s.props[id]; ok {
		delete(s.props, id)
		s.releaseSlot(m)
		return true, false
	}
	for ph := range s.drawCmds {
		list := s.drawCmds[ph]
		n := len(list)
		list = slices.DeleteFunc(list, func(m *Modifier) bool { return m.id == id })
		if len(list) != n {
			s.drawCmds[ph] = list
			removed = true
			if ModifierType(ph)+ModifierBackgroundStyle == ModifierOverlayStyle {
				overlay = true
			}
		}
	}
	return removed, overlay
}

// releaseSlot frees the bounds or frame slot once no id aliases it.
func (s *modifierSet) releaseSlot(m *Modifier) {
	if m != s.boundsModifier && m != s.frameModifier {
		return
	}
	for _, other := range s.props {
		if other == m {
			return
		}
	}
	if m == s.boundsModifier {
		s.boundsModifier = nil
	} else {
		s.frameModifier = nil
	}
}

// get returns the modifier stored under id.
func (s *modifierSet) get(id PropertyID) *Modifier {
	if m, ok := s.props[id]; ok {
		return m
	}
	for ph := range s.drawCmds {
		for _, m := range s.drawCmds[ph] {
			if m.id == id {
				return m
			}
		}
	}
	return nil
}

// filterByPid removes every modifier owned by pid and reports whether any
// was removed.
func (s *modifierSet) filterByPid(pid int32) bool {
	removed := false
	for id, m := range s.props {
		if id.Pid == pid {
			delete(s.props, id)
			s.releaseSlot(m)
			removed = true
		}
	}
	for ph := range s.drawCmds {
		n := len(s.drawCmds[ph])
		s.drawCmds[ph] = slices.DeleteFunc(s.drawCmds[ph], func(m *Modifier) bool { return m.id.Pid == pid })
		if len(s.drawCmds[ph]) != n {
			removed = true
		}
	}
	return removed
}

// apply resets p and applies every property modifier in property-id order,
// then recomputes the overlay bounds.
func (s *modifierSet) apply(p *Properties) {
	p.Reset()
	ids := make([]PropertyID, 0, len(s.props))
	for id := range s.props {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b PropertyID) int {
		switch {
		case a.less(b):
			return -1
		case b.less(a):
			return 1
		}
		return 0
	})
	for _, id := range ids {
		s.props[id].Apply(p)
	}
	s.updateOverlayBounds(p)
}

// updateOverlayBounds unions the bounds of every draw command modifier
// except geometry transforms, whose matrix would otherwise feed back into
// its own bounds.
func (s *modifierSet) updateOverlayBounds(p *Properties) {
	var r Rect
	for ph := range s.drawCmds {
		if ModifierType(ph)+ModifierBackgroundStyle == ModifierGeometryTransform {
			continue
		}
		for _, m := range s.drawCmds[ph] {
			r = r.Join(m.value.Cmds.Bounds())
		}
	}
	p.SetOverlayBounds(r.RoundOut())
}

// phase returns the draw command modifiers of type t in insertion order.
func (s *modifierSet) phase(t ModifierType) []*Modifier {
	if !t.IsDrawCmd() {
		return nil
	}
	return s.drawCmds[t.drawPhase()]
}

// len returns the number of stored modifiers, counting aliases.
func (s *modifierSet) len() int {
	n := len(s.props)
	for ph := range s.drawCmds {
		n += len(s.drawCmds[ph])
	}
	return n
}
