package slot

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Type determines how a slot's readings are interpreted.
type Type string

const (
	TypeValue   Type = "value"
	TypeStatus  Type = "status"
	TypeControl Type = "control"
	TypeCamera  Type = "camera"
)

// DefaultIcon is assigned when a slot is created without one.
const DefaultIcon = "📟"

// DefaultMaxSlots is the slot number upper bound when none is configured.
const DefaultMaxSlots = 20

// IsValid reports whether t is one of the four known slot types.
func (t Type) IsValid() bool {
	switch t {
	case TypeValue, TypeStatus, TypeControl, TypeCamera:
		return true
	}
	return false
}

// DeletePolicy selects what SoftDelete does with a slot's readings, camera
// image and alerts.
type DeletePolicy string

const (
	// PolicyCascade hard-deletes dependent rows in the same transaction.
	PolicyCascade DeletePolicy = "cascade"

	// PolicyRetainHistory leaves dependent rows in place. They become
	// visible again if the number is reused.
	PolicyRetainHistory DeletePolicy = "retain_history"
)

// Slot is a configured endpoint addressed by number.
type Slot struct {
	ID           int64     `json:"id"`
	SlotNumber   int       `json:"slot_number"`
	Type         Type      `json:"type"`
	Name         string    `json:"name"`
	Unit         string    `json:"unit"`
	Icon         string    `json:"icon"`
	Location     string    `json:"location"`
	StreamURL    string    `json:"stream_url"`
	ThresholdMin *float64  `json:"threshold_min"`
	ThresholdMax *float64  `json:"threshold_max"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DeepCopy returns a copy that shares no pointers with s.
func (s *Slot) DeepCopy() *Slot {
	if s == nil {
		return nil
	}
	c := *s
	c.ThresholdMin = copyFloat(s.ThresholdMin)
	c.ThresholdMax = copyFloat(s.ThresholdMax)
	return &c
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// OptionalString is a tri-state update field. When decoded from JSON an
// absent key leaves Set false, null sets Null, and a string sets Value.
type OptionalString struct {
	Set   bool
	Null  bool
	Value string
}

// UnmarshalJSON is only invoked when the key is present.
func (o *OptionalString) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		o.Value = ""
		return nil
	}
	o.Null = false
	return json.Unmarshal(data, &o.Value)
}

// SetString returns an OptionalString carrying v.
func SetString(v string) OptionalString {
	return OptionalString{Set: true, Value: v}
}

// OptionalFloat is the numeric counterpart of OptionalString.
type OptionalFloat struct {
	Set   bool
	Null  bool
	Value float64
}

// UnmarshalJSON is only invoked when the key is present.
func (o *OptionalFloat) UnmarshalJSON(data []byte) error {
	o.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		o.Null = true
		o.Value = 0
		return nil
	}
	o.Null = false
	if err := json.Unmarshal(data, &o.Value); err != nil {
		return fmt.Errorf("threshold must be a number or null: %w", err)
	}
	return nil
}

// SetFloat returns an OptionalFloat carrying v.
func SetFloat(v float64) OptionalFloat {
	return OptionalFloat{Set: true, Value: v}
}

// ClearFloat returns an OptionalFloat that clears the field.
func ClearFloat() OptionalFloat {
	return OptionalFloat{Set: true, Null: true}
}

// Update is a partial modification of a slot. Type and slot number are not
// part of it; both are fixed at creation.
type Update struct {
	Name         OptionalString `json:"name"`
	Unit         OptionalString `json:"unit"`
	Icon         OptionalString `json:"icon"`
	Location     OptionalString `json:"location"`
	StreamURL    OptionalString `json:"stream_url"`
	ThresholdMin OptionalFloat  `json:"threshold_min"`
	ThresholdMax OptionalFloat  `json:"threshold_max"`
}

// IsEmpty reports whether the update carries no fields.
func (u Update) IsEmpty() bool {
	return !u.Name.Set && !u.Unit.Set && !u.Icon.Set && !u.Location.Set &&
		!u.StreamURL.Set && !u.ThresholdMin.Set && !u.ThresholdMax.Set
}

// apply writes the present fields of u onto s.
func (u Update) apply(s *Slot) {
	applyString(&s.Name, u.Name)
	applyString(&s.Unit, u.Unit)
	applyString(&s.Location, u.Location)
	applyString(&s.StreamURL, u.StreamURL)
	applyString(&s.Icon, u.Icon)
	if s.Icon == "" {
		s.Icon = DefaultIcon
	}
	applyFloat(&s.ThresholdMin, u.ThresholdMin)
	applyFloat(&s.ThresholdMax, u.ThresholdMax)
}

func applyString(dst *string, o OptionalString) {
	if o.Set {
		*dst = o.Value
	}
}

func applyFloat(dst **float64, o OptionalFloat) {
	switch {
	case !o.Set:
	case o.Null:
		*dst = nil
	default:
		v := o.Value
		*dst = &v
	}
}
