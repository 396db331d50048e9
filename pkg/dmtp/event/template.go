package event

import (
	"sync"

	"github.com/opendmtp/dmtp-go/pkg/dmtp/packet"
)

// FieldDef is one entry of a field template: which semantic field,
// whether it is encoded high-resolution, which slot index within an
// array field it targets, and how many bytes it occupies on the wire
// (§3 "Field template").
type FieldDef struct {
	ID     FieldID
	HiRes  bool
	Index  int
	Length int
}

// Template binds a packet type to the ordered field layout used to
// encode/decode its payload.
type Template struct {
	PacketType byte
	Fields     []FieldDef
}

// StandardResolutionFields is the built-in low-resolution fixed-event
// template (packet type 0x30), grounded on the reference FixedFields_30
// table.
var StandardResolutionFields = []FieldDef{
	{ID: FieldStatusCode, Length: 2},
	{ID: FieldTimestamp, Length: 4},
	{ID: FieldGPSPoint, Length: 6},
	{ID: FieldSpeed, Length: 1},
	{ID: FieldHeading, Length: 1},
	{ID: FieldAltitude, Length: 2},
	{ID: FieldDistance, Length: 3},
	{ID: FieldSequence, Length: 1},
}

// HighResolutionFields is the built-in high-resolution fixed-event
// template (packet type 0x31), grounded on the reference FixedFields_31
// table.
var HighResolutionFields = []FieldDef{
	{ID: FieldStatusCode, HiRes: true, Length: 2},
	{ID: FieldTimestamp, HiRes: true, Length: 4},
	{ID: FieldGPSPoint, HiRes: true, Length: 8},
	{ID: FieldSpeed, HiRes: true, Length: 2},
	{ID: FieldHeading, HiRes: true, Length: 2},
	{ID: FieldAltitude, HiRes: true, Length: 3},
	{ID: FieldDistance, HiRes: true, Length: 3},
	{ID: FieldSequence, Length: 1},
}

// MaxCustomTemplates is the number of runtime-registrable custom
// templates, matching the reference CustomEventTable size.
const MaxCustomTemplates = 5

// Registry maps packet types to field templates: the two built-in fixed
// templates plus up to MaxCustomTemplates runtime-registered ones
// (§3 "Field template").
type Registry struct {
	mutex  sync.RWMutex
	fixed  map[byte]*Template
	custom [MaxCustomTemplates]*Template
}

// NewRegistry returns a Registry preloaded with the two built-in fixed
// templates.
func NewRegistry() *Registry {
	r := &Registry{
		fixed: map[byte]*Template{
			packet.TypeClientFixedFmtStd:  {PacketType: packet.TypeClientFixedFmtStd, Fields: StandardResolutionFields},
			packet.TypeClientFixedFmtHigh: {PacketType: packet.TypeClientFixedFmtHigh, Fields: HighResolutionFields},
		},
	}
	return r
}

// Lookup returns the template registered for typ, or nil if none is.
func (r *Registry) Lookup(typ byte) *Template {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	if t, ok := r.fixed[typ]; ok {
		return t
	}
	for _, t := range r.custom {
		if t != nil && t.PacketType == typ {
			return t
		}
	}
	return nil
}

// AddCustom registers t in the first free custom slot. It reports false
// if no slot remains (§3 "up to a fixed number (≈5) of custom templates
// may be registered at runtime").
func (r *Registry) AddCustom(t *Template) bool {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for i, slot := range r.custom {
		if slot == nil {
			r.custom[i] = t
			return true
		}
	}
	return false
}

// RemoveCustom clears any custom template registered for typ.
func (r *Registry) RemoveCustom(typ byte) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for i, slot := range r.custom {
		if slot != nil && slot.PacketType == typ {
			r.custom[i] = nil
		}
	}
}
