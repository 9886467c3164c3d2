package tev

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// EventType identifies the kind of a trace event.
type EventType string

const (
	// TypeBegin marks the start of a duration span.
	TypeBegin EventType = "begin"

	// TypeEnd marks the end of a duration span.
	TypeEnd EventType = "end"

	// TypeInstant marks a point in time with no duration.
	TypeInstant EventType = "instant"

	// TypeCount samples one or two named counter values.
	TypeCount EventType = "count"
)

var (
	// ErrBadEvent signals a malformed event rejected at the call site.
	ErrBadEvent = errors.New("invalid event")

	// ErrBadCategory signals an invalid category name rejected at the call
	// site.
	ErrBadCategory = errors.New("invalid category")
)

// Value is the payload of a count event: either a single number, or exactly
// two named series values. When Series is non-nil, Number is ignored.
type Value struct {
	Number float64
	Series map[string]float64
}

func (v Value) isZero() bool {
	return v.Number == 0 && v.Series == nil
}

// Event is a single trace event. Name and Type are required. ID is an
// optional correlation token linking e.g. a begin to its end; zero means
// absent. Args may carry up to two name/value pairs for begin, end, and
// instant events. Value is meaningful only for count events; Args and Value
// are mutually exclusive by type. A zero Timestamp means capture time.
type Event struct {
	Type       EventType
	Name       string
	ID         uint64
	Categories []string
	Args       map[string]any
	Value      Value
	Timestamp  time.Time
}

// Validate checks the event against the rules above, returning an error
// wrapping [ErrBadEvent] or [ErrBadCategory] when it is malformed.
func (ev *Event) Validate() error {
	switch ev.Type {
	case TypeBegin, TypeEnd, TypeInstant:
		if !ev.Value.isZero() {
			return fmt.Errorf("%w: %s event carries a count value", ErrBadEvent, ev.Type)
		}
		if len(ev.Args) > 2 {
			return fmt.Errorf("%w: %s event carries %d args, max 2", ErrBadEvent, ev.Type, len(ev.Args))
		}

	case TypeCount:
		if len(ev.Args) > 0 {
			return fmt.Errorf("%w: count event carries args", ErrBadEvent)
		}
		if ev.Value.Series != nil && len(ev.Value.Series) != 2 {
			return fmt.Errorf("%w: count series must have exactly 2 entries, have %d", ErrBadEvent, len(ev.Value.Series))
		}

	case "":
		return fmt.Errorf("%w: missing event type", ErrBadEvent)

	default:
		return fmt.Errorf("%w: unknown event type %q", ErrBadEvent, ev.Type)
	}

	if ev.Name == "" {
		return fmt.Errorf("%w: missing name", ErrBadEvent)
	}

	for _, c := range ev.Categories {
		if c == "" {
			return fmt.Errorf("%w: empty category name", ErrBadCategory)
		}
	}

	return nil
}

type jsonEvent struct {
	Type       EventType          `json:"type"`
	Name       string             `json:"name"`
	ID         uint64             `json:"id,omitempty"`
	Categories []string           `json:"categories,omitempty"`
	Args       map[string]any     `json:"args,omitempty"`
	Value      *float64           `json:"value,omitempty"`
	Series     map[string]float64 `json:"series,omitempty"`
	Timestamp  time.Time          `json:"timestamp"`
}

// MarshalJSON implements json.Marshaler.
func (ev *Event) MarshalJSON() ([]byte, error) {
	out := jsonEvent{
		Type:       ev.Type,
		Name:       ev.Name,
		ID:         ev.ID,
		Categories: ev.Categories,
		Args:       ev.Args,
		Series:     ev.Value.Series,
		Timestamp:  ev.Timestamp,
	}
	if ev.Type == TypeCount && ev.Value.Series == nil {
		n := ev.Value.Number
		out.Value = &n
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (ev *Event) UnmarshalJSON(data []byte) error {
	var in jsonEvent
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	ev.Type = in.Type
	ev.Name = in.Name
	ev.ID = in.ID
	ev.Categories = in.Categories
	ev.Args = in.Args
	ev.Value = Value{Series: in.Series}
	if in.Value != nil {
		ev.Value.Number = *in.Value
	}
	ev.Timestamp = in.Timestamp
	return nil
}

// String returns a short human-readable form of the event.
func (ev *Event) String() string {
	return fmt.Sprintf("%s %q [%s]", ev.Type, ev.Name, strings.Join(ev.Categories, ","))
}

// normalizeCategories validates and de-duplicates a category set, preserving
// first-appearance order. Empty names are rejected.
func normalizeCategories(categories []string) ([]string, error) {
	out := make([]string, 0, len(categories))
	for _, c := range categories {
		if c == "" {
			return nil, fmt.Errorf("%w: empty category name", ErrBadCategory)
		}
		var dup bool
		for _, have := range out {
			if have == c {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return out, nil
}
