package event

import (
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/text/unicode/norm"
)

// wireTimeFormat is ISO-8601 with millisecond precision and an explicit
// UTC designator. All timestamps on the wire use this shape.
const wireTimeFormat = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t in the wire timestamp format.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(wireTimeFormat)
}

// ParseTimestamp parses an ISO-8601 timestamp. Accepts any RFC 3339
// offset, normalizing to UTC.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

// wireEvent is the flat JSON shape shared by all variants. Optional
// fields are omitted when empty; which fields are meaningful depends
// on the type tag.
type wireEvent struct {
	Type      Type        `json:"type"`
	Timestamp string      `json:"timestamp"`
	ClientID  string      `json:"clientId,omitempty"`
	SproutID  string      `json:"sproutId,omitempty"`
	TwigID    string      `json:"twigId,omitempty"`
	TwigLabel string      `json:"twigLabel,omitempty"`
	LeafID    string      `json:"leafId,omitempty"`
	Title     string      `json:"title,omitempty"`
	Name      string      `json:"name,omitempty"`
	Season    Season      `json:"season,omitempty"`
	Env       Environment `json:"environment,omitempty"`
	SoilCost  *float64    `json:"soilCost,omitempty"`
	Blooms    *wireBlooms `json:"blooms,omitempty"`
	Content   string      `json:"content,omitempty"`
	Prompt    string      `json:"prompt,omitempty"`
	Result    *int        `json:"result,omitempty"`
	Capacity  *float64    `json:"capacityGained,omitempty"`
	Returned  *float64    `json:"soilReturned,omitempty"`
}

type wireBlooms struct {
	Wither   string `json:"wither,omitempty"`
	Budding  string `json:"budding,omitempty"`
	Flourish string `json:"flourish,omitempty"`
}

// MarshalJSON renders the event in the flat wire shape.
func (e Event) MarshalJSON() ([]byte, error) {
	w := wireEvent{
		Type:      e.Type,
		Timestamp: FormatTimestamp(e.Timestamp),
		ClientID:  e.ClientID,
	}

	switch p := e.Payload.(type) {
	case nil:
		// Unknown variant: envelope only.
	case SproutPlanted:
		w.SproutID = p.SproutID
		w.TwigID = p.TwigID
		w.Title = p.Title
		w.Season = p.Season
		w.Env = p.Environment
		cost := p.SoilCost
		w.SoilCost = &cost
		w.LeafID = p.LeafID
		if p.Blooms != nil {
			w.Blooms = &wireBlooms{
				Wither:   p.Blooms.Wither,
				Budding:  p.Blooms.Budding,
				Flourish: p.Blooms.Flourish,
			}
		}
	case SproutWatered:
		w.SproutID = p.SproutID
		w.Content = p.Content
		w.Prompt = p.Prompt
	case SproutHarvested:
		w.SproutID = p.SproutID
		result := p.Result
		w.Result = &result
		gained := p.CapacityGained
		w.Capacity = &gained
	case SproutUprooted:
		w.SproutID = p.SproutID
		returned := p.SoilReturned
		w.Returned = &returned
	case LeafCreated:
		w.LeafID = p.LeafID
		w.TwigID = p.TwigID
		w.Name = p.Name
	case SunShone:
		w.TwigID = p.TwigID
		w.TwigLabel = p.TwigLabel
		w.Content = p.Content
		w.Prompt = p.Prompt
	default:
		return nil, fmt.Errorf("marshal event: unknown payload type %T", e.Payload)
	}

	return json.Marshal(w)
}

// UnmarshalJSON decodes the flat wire shape into a typed payload.
//
// Decoding is deliberately tolerant: an unknown type tag yields an
// Event with a nil Payload, and an unparseable timestamp yields the
// zero time. Derivation treats both as inert rather than failing the
// whole log.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("unmarshal event: %w", err)
	}

	e.Type = w.Type
	e.ClientID = w.ClientID
	if ts, err := ParseTimestamp(w.Timestamp); err == nil {
		e.Timestamp = ts
	} else {
		e.Timestamp = time.Time{}
	}

	switch w.Type {
	case TypeSproutPlanted:
		p := SproutPlanted{
			SproutID:    w.SproutID,
			TwigID:      w.TwigID,
			Title:       nfc(w.Title),
			Season:      w.Season,
			Environment: w.Env,
			LeafID:      w.LeafID,
		}
		if w.SoilCost != nil {
			p.SoilCost = *w.SoilCost
		}
		if w.Blooms != nil {
			p.Blooms = &BloomThresholds{
				Wither:   nfc(w.Blooms.Wither),
				Budding:  nfc(w.Blooms.Budding),
				Flourish: nfc(w.Blooms.Flourish),
			}
		}
		e.Payload = p
	case TypeSproutWatered:
		e.Payload = SproutWatered{
			SproutID: w.SproutID,
			Content:  nfc(w.Content),
			Prompt:   nfc(w.Prompt),
		}
	case TypeSproutHarvested:
		p := SproutHarvested{SproutID: w.SproutID}
		if w.Result != nil {
			p.Result = *w.Result
		}
		if w.Capacity != nil {
			p.CapacityGained = *w.Capacity
		}
		e.Payload = p
	case TypeSproutUprooted:
		p := SproutUprooted{SproutID: w.SproutID}
		if w.Returned != nil {
			p.SoilReturned = *w.Returned
		}
		e.Payload = p
	case TypeLeafCreated:
		e.Payload = LeafCreated{
			LeafID: w.LeafID,
			TwigID: w.TwigID,
			Name:   nfc(w.Name),
		}
	case TypeSunShone:
		e.Payload = SunShone{
			TwigID:    w.TwigID,
			TwigLabel: nfc(w.TwigLabel),
			Content:   nfc(w.Content),
			Prompt:    nfc(w.Prompt),
		}
	default:
		e.Payload = nil
	}

	return nil
}

// nfc normalizes free-text fields to NFC at the wire boundary so that
// value-equality of snapshots is stable across platforms that emit
// decomposed Unicode.
func nfc(s string) string {
	return norm.NFC.String(s)
}
