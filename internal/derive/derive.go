// Package derive folds an event log into a Snapshot.
//
// Derive is a pure function: the same events and reference instant
// always produce a value-equal Snapshot, regardless of the order the
// events arrive in. Events are sorted by timestamp (stable, so ties
// keep their original sequence position) and folded one at a time.
// Entries that reference a sprout or leaf that was never created, or
// that carry malformed identifiers, are silently skipped; derivation
// is total over any log, including partially corrupt ones.
package derive

import (
	"sort"
	"time"

	"github.com/roach88/grove/internal/economy"
	"github.com/roach88/grove/internal/event"
	"github.com/roach88/grove/internal/window"
)

// Derive folds events into a Snapshot as of the reference instant now.
// The input slice is not mutated.
func Derive(events []event.Event, now time.Time) *Snapshot {
	ordered := sortByTimestamp(events)

	snap := &Snapshot{
		Sprouts:    make(map[string]*Sprout),
		Leaves:     make(map[string]*Leaf),
		SunEntries: []SunEntry{},
	}

	var (
		seen          = make(map[string]bool) // clientId dedup
		capacityGains float64
		sunCount      int
	)

	for _, ev := range ordered {
		if ev.ClientID != "" {
			if seen[ev.ClientID] {
				continue
			}
			seen[ev.ClientID] = true
		}

		switch p := ev.Payload.(type) {
		case event.SproutPlanted:
			applyPlanted(snap, ev.Timestamp, p)
		case event.SproutWatered:
			if applyWatered(snap, ev.Timestamp, p) {
				capacityGains += economy.WaterRecovery
			}
		case event.SproutHarvested:
			if applyHarvested(snap, ev.Timestamp, p) {
				capacityGains += p.CapacityGained
			}
		case event.SproutUprooted:
			applyUprooted(snap, ev.Timestamp, p)
		case event.LeafCreated:
			applyLeafCreated(snap, ev.Timestamp, p)
		case event.SunShone:
			if applySunShone(snap, ev.Timestamp, p) {
				capacityGains += economy.SunRecovery
				if window.InWeekWindow(now, ev.Timestamp) {
					sunCount++
				}
			}
		default:
			// Unknown variant: contributes nothing.
		}
	}

	// Water usage counts applied check-ins inside the current day
	// window; orphaned watering events never became entries and so
	// never consume allowance.
	waterCount := 0
	for _, sp := range snap.Sprouts {
		for _, w := range sp.WaterEntries {
			if window.InDayWindow(now, w.Timestamp) {
				waterCount++
			}
		}
	}

	snap.SoilCapacity = economy.ClampCapacity(economy.BaselineCapacity + capacityGains)
	snap.SoilAvailable = clampAvailable(snap)
	snap.WaterAvailable = floorZero(economy.WaterPerDay - waterCount)
	snap.SunAvailable = floorZero(economy.SunPerWeek - sunCount)

	buildIndexes(snap)
	return snap
}

// WaterAvailable computes the remaining daily check-in allowance
// without materializing a full snapshot.
func WaterAvailable(events []event.Event, now time.Time) int {
	return Derive(events, now).WaterAvailable
}

// SunAvailable computes the remaining weekly reflection allowance
// without materializing a full snapshot.
func SunAvailable(events []event.Event, now time.Time) int {
	return Derive(events, now).SunAvailable
}

// sortByTimestamp returns a copy of events ordered by timestamp
// ascending. The sort is stable: equal timestamps keep their original
// sequence position, so the fold is deterministic for any input.
func sortByTimestamp(events []event.Event) []event.Event {
	ordered := make([]event.Event, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp.Before(ordered[j].Timestamp)
	})
	return ordered
}

func applyPlanted(snap *Snapshot, at time.Time, p event.SproutPlanted) {
	if p.SproutID == "" || !event.ValidTwigID(p.TwigID) {
		return
	}
	if !event.ValidSeasons[p.Season] || !event.ValidEnvironments[p.Environment] {
		return
	}

	sp, exists := snap.Sprouts[p.SproutID]
	if !exists {
		sp = &Sprout{
			ID:           p.SproutID,
			State:        StateActive,
			WaterEntries: []WaterEntry{},
		}
		snap.Sprouts[p.SproutID] = sp
	}

	// Full overwrite of planted fields; lifecycle fields (state, water
	// entries, harvest outcome) are left alone. This is idempotent
	// resend semantics, not a merge.
	sp.TwigID = p.TwigID
	sp.Title = p.Title
	sp.Season = p.Season
	sp.Environment = p.Environment
	sp.SoilCost = p.SoilCost
	sp.LeafID = p.LeafID
	sp.Blooms = p.Blooms
	sp.PlantedAt = at
}

func applyWatered(snap *Snapshot, at time.Time, p event.SproutWatered) bool {
	sp, ok := snap.Sprouts[p.SproutID]
	if !ok {
		return false
	}
	sp.WaterEntries = append(sp.WaterEntries, WaterEntry{
		Timestamp: at,
		Content:   p.Content,
		Prompt:    p.Prompt,
	})
	return true
}

func applyHarvested(snap *Snapshot, at time.Time, p event.SproutHarvested) bool {
	sp, ok := snap.Sprouts[p.SproutID]
	if !ok || sp.State.Terminal() {
		return false
	}
	sp.State = StateCompleted
	sp.Result = p.Result
	sp.CapacityGained = p.CapacityGained
	sp.HarvestedAt = at
	return true
}

func applyUprooted(snap *Snapshot, at time.Time, p event.SproutUprooted) {
	sp, ok := snap.Sprouts[p.SproutID]
	if !ok || sp.State.Terminal() {
		return
	}
	sp.State = StateUprooted
	sp.SoilReturned = p.SoilReturned
	sp.UprootedAt = at
}

func applyLeafCreated(snap *Snapshot, at time.Time, p event.LeafCreated) {
	if p.LeafID == "" || !event.ValidTwigID(p.TwigID) {
		return
	}
	if _, exists := snap.Leaves[p.LeafID]; exists {
		// Leaves are immutable once created.
		return
	}
	snap.Leaves[p.LeafID] = &Leaf{
		ID:        p.LeafID,
		TwigID:    p.TwigID,
		Name:      p.Name,
		CreatedAt: at,
	}
}

func applySunShone(snap *Snapshot, at time.Time, p event.SunShone) bool {
	if !event.ValidTwigID(p.TwigID) {
		return false
	}
	snap.SunEntries = append(snap.SunEntries, SunEntry{
		Timestamp: at,
		TwigID:    p.TwigID,
		TwigLabel: p.TwigLabel,
		Content:   p.Content,
		Prompt:    p.Prompt,
	})
	return true
}

// clampAvailable computes capacity minus all soil still spent, bounded
// to [0, capacity]. Active sprouts hold their full cost; uprooted
// sprouts hold the unrefunded remainder; harvested sprouts hold none.
func clampAvailable(snap *Snapshot) float64 {
	spent := 0.0
	for _, sp := range snap.Sprouts {
		switch sp.State {
		case StateActive:
			spent += sp.SoilCost
		case StateUprooted:
			remainder := sp.SoilCost - sp.SoilReturned
			if remainder > 0 {
				spent += remainder
			}
		}
	}

	available := snap.SoilCapacity - spent
	if available < 0 {
		return 0
	}
	if available > snap.SoilCapacity {
		return snap.SoilCapacity
	}
	return available
}

func floorZero(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// buildIndexes projects the entity maps into the four lookup indexes
// in a single pass. Index slices are sorted so that two value-equal
// snapshots compare equal regardless of map iteration order.
func buildIndexes(snap *Snapshot) {
	snap.ActiveSproutsByTwig = make(map[string][]string)
	snap.SproutsByTwig = make(map[string][]string)
	snap.SproutsByLeaf = make(map[string][]string)
	snap.LeavesByTwig = make(map[string][]string)

	for id, sp := range snap.Sprouts {
		snap.SproutsByTwig[sp.TwigID] = append(snap.SproutsByTwig[sp.TwigID], id)
		if sp.State == StateActive {
			snap.ActiveSproutsByTwig[sp.TwigID] = append(snap.ActiveSproutsByTwig[sp.TwigID], id)
		}
		if sp.LeafID != "" {
			snap.SproutsByLeaf[sp.LeafID] = append(snap.SproutsByLeaf[sp.LeafID], id)
		}
	}
	for id, leaf := range snap.Leaves {
		snap.LeavesByTwig[leaf.TwigID] = append(snap.LeavesByTwig[leaf.TwigID], id)
	}

	for _, idx := range []map[string][]string{
		snap.ActiveSproutsByTwig,
		snap.SproutsByTwig,
		snap.SproutsByLeaf,
		snap.LeavesByTwig,
	} {
		for _, ids := range idx {
			sort.Strings(ids)
		}
	}
}
