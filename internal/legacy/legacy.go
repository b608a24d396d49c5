// Package legacy converts the superseded tree-of-nodes document format
// (_version 1-3) into an equivalent event sequence.
//
// Migration is one-shot and round-trip verifiable: migrating a tree
// and deriving the resulting events reproduces every stored field of
// the tree. Client idempotency keys are derived deterministically from
// the stored identifiers, so re-importing the same legacy document a
// second time deduplicates to a no-op.
package legacy

import (
	"fmt"
	"sort"
	"time"

	"github.com/roach88/grove/internal/event"
)

// Document is the legacy tree-of-nodes representation: a mapping of
// twig id to node plus a separate chronological reflection log.
type Document struct {
	Version     int             `json:"_version"`
	Nodes       map[string]Node `json:"nodes"`
	Reflections []Reflection    `json:"reflections,omitempty"`
}

// Node is one twig slot in the legacy tree.
type Node struct {
	Label   string   `json:"label"`
	Note    string   `json:"note,omitempty"`
	Sprouts []Sprout `json:"sprouts,omitempty"`
	Leaves  []Leaf   `json:"leaves,omitempty"`
}

// Sprout is a stored goal in the legacy tree, terminal state included.
type Sprout struct {
	ID             string       `json:"id"`
	Title          string       `json:"title"`
	Season         string       `json:"season"`
	Environment    string       `json:"environment"`
	SoilCost       float64      `json:"soilCost"`
	LeafID         string       `json:"leafId,omitempty"`
	State          string       `json:"state"`
	PlantedAt      string       `json:"plantedAt"`
	Blooms         *Blooms      `json:"blooms,omitempty"`
	WaterEntries   []WaterEntry `json:"waterEntries,omitempty"`
	Result         int          `json:"result,omitempty"`
	CapacityGained float64      `json:"capacityGained,omitempty"`
	HarvestedAt    string       `json:"harvestedAt,omitempty"`
	SoilReturned   float64      `json:"soilReturned,omitempty"`
	UprootedAt     string       `json:"uprootedAt,omitempty"`
}

// Blooms are the legacy outcome threshold strings.
type Blooms struct {
	Wither   string `json:"wither,omitempty"`
	Budding  string `json:"budding,omitempty"`
	Flourish string `json:"flourish,omitempty"`
}

// WaterEntry is one stored check-in.
type WaterEntry struct {
	Timestamp string `json:"timestamp"`
	Content   string `json:"content"`
	Prompt    string `json:"prompt,omitempty"`
}

// Leaf is a stored grouping.
type Leaf struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// Reflection is one entry of the legacy chronological reflection log.
type Reflection struct {
	Timestamp string `json:"timestamp"`
	TwigID    string `json:"twigId"`
	TwigLabel string `json:"twigLabel"`
	Content   string `json:"content"`
	Prompt    string `json:"prompt,omitempty"`
}

// Migrate converts a legacy document into an equivalent event
// sequence. Nodes are visited in sorted twig-id order so the output is
// deterministic for a given document.
func Migrate(doc Document) []event.Event {
	var events []event.Event

	twigIDs := make([]string, 0, len(doc.Nodes))
	for id := range doc.Nodes {
		twigIDs = append(twigIDs, id)
	}
	sort.Strings(twigIDs)

	for _, twigID := range twigIDs {
		node := doc.Nodes[twigID]

		for _, leaf := range node.Leaves {
			events = append(events, event.Event{
				Type:      event.TypeLeafCreated,
				Timestamp: parseTime(leaf.CreatedAt),
				ClientID:  legacyKey("leaf", leaf.ID),
				Payload: event.LeafCreated{
					LeafID: leaf.ID,
					TwigID: twigID,
					Name:   leaf.Name,
				},
			})
		}

		for _, sp := range node.Sprouts {
			events = append(events, migrateSprout(twigID, sp)...)
		}
	}

	for i, refl := range doc.Reflections {
		events = append(events, event.Event{
			Type:      event.TypeSunShone,
			Timestamp: parseTime(refl.Timestamp),
			ClientID:  legacyKey("sun", fmt.Sprintf("%d", i)),
			Payload: event.SunShone{
				TwigID:    refl.TwigID,
				TwigLabel: refl.TwigLabel,
				Content:   refl.Content,
				Prompt:    refl.Prompt,
			},
		})
	}

	return events
}

// migrateSprout emits the planting event, one watering event per
// stored entry in order, and a terminal event if the stored state
// warrants one.
func migrateSprout(twigID string, sp Sprout) []event.Event {
	plantedAt := parseTime(sp.PlantedAt)

	planted := event.SproutPlanted{
		SproutID:    sp.ID,
		TwigID:      twigID,
		Title:       sp.Title,
		Season:      TranslateSeason(event.Season(sp.Season)),
		Environment: event.Environment(sp.Environment),
		SoilCost:    sp.SoilCost,
		LeafID:      sp.LeafID,
	}
	if sp.Blooms != nil {
		planted.Blooms = &event.BloomThresholds{
			Wither:   sp.Blooms.Wither,
			Budding:  sp.Blooms.Budding,
			Flourish: sp.Blooms.Flourish,
		}
	}

	events := []event.Event{{
		Type:      event.TypeSproutPlanted,
		Timestamp: plantedAt,
		ClientID:  legacyKey("planted", sp.ID),
		Payload:   planted,
	}}

	for i, w := range sp.WaterEntries {
		events = append(events, event.Event{
			Type:      event.TypeSproutWatered,
			Timestamp: parseTime(w.Timestamp),
			ClientID:  legacyKey("watered", fmt.Sprintf("%s-%d", sp.ID, i)),
			Payload: event.SproutWatered{
				SproutID: sp.ID,
				Content:  w.Content,
				Prompt:   w.Prompt,
			},
		})
	}

	switch sp.State {
	case "completed":
		events = append(events, event.Event{
			Type:      event.TypeSproutHarvested,
			Timestamp: fallbackTime(sp.HarvestedAt, plantedAt),
			ClientID:  legacyKey("harvested", sp.ID),
			Payload: event.SproutHarvested{
				SproutID:       sp.ID,
				Result:         sp.Result,
				CapacityGained: sp.CapacityGained,
			},
		})
	case "uprooted":
		events = append(events, event.Event{
			Type:      event.TypeSproutUprooted,
			Timestamp: fallbackTime(sp.UprootedAt, plantedAt),
			ClientID:  legacyKey("uprooted", sp.ID),
			Payload: event.SproutUprooted{
				SproutID:     sp.ID,
				SoilReturned: sp.SoilReturned,
			},
		})
	}

	return events
}

// TranslateSeason maps retired season values to their replacements.
// The 1w season was folded into 2w when seasons were rebalanced; it
// must be translated, never dropped.
func TranslateSeason(s event.Season) event.Season {
	if s == event.LegacySeasonOneWeek {
		return event.SeasonTwoWeeks
	}
	return s
}

// legacyKey builds a deterministic idempotency key from stored
// identifiers, keeping repeat migrations of the same document inert.
func legacyKey(kind, id string) string {
	return fmt.Sprintf("legacy:%s:%s", kind, id)
}

func parseTime(s string) time.Time {
	t, err := event.ParseTimestamp(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func fallbackTime(s string, fallback time.Time) time.Time {
	if t, err := event.ParseTimestamp(s); err == nil {
		return t
	}
	return fallback
}
