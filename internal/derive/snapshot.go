package derive

import (
	"time"

	"github.com/roach88/grove/internal/event"
)

// SproutState is the lifecycle state of a derived sprout.
type SproutState string

const (
	StateActive    SproutState = "active"
	StateCompleted SproutState = "completed"
	StateUprooted  SproutState = "uprooted"
)

// Terminal reports whether the state admits no further transitions.
func (s SproutState) Terminal() bool {
	return s == StateCompleted || s == StateUprooted
}

// WaterEntry is one progress check-in on a sprout.
type WaterEntry struct {
	Timestamp time.Time
	Content   string
	Prompt    string
}

// Sprout is the derived view of one goal. Planted fields are
// overwritten wholesale if the planting event is re-observed; lifecycle
// fields only ever move forward.
type Sprout struct {
	ID          string
	TwigID      string
	Title       string
	Season      event.Season
	Environment event.Environment
	SoilCost    float64
	LeafID      string
	Blooms      *event.BloomThresholds
	PlantedAt   time.Time

	State        SproutState
	WaterEntries []WaterEntry

	// Harvest outcome; meaningful only in StateCompleted.
	Result         int
	CapacityGained float64
	HarvestedAt    time.Time

	// Uproot refund; meaningful only in StateUprooted.
	SoilReturned float64
	UprootedAt   time.Time
}

// Leaf is a named grouping of sprouts. Immutable once created.
type Leaf struct {
	ID        string
	TwigID    string
	Name      string
	CreatedAt time.Time
}

// SunEntry is one weekly reflection with its twig context preserved.
type SunEntry struct {
	Timestamp time.Time
	TwigID    string
	TwigLabel string
	Content   string
	Prompt    string
}

// Snapshot is the full derived state of a log at a reference instant.
// It carries no independent state and is safe to discard and recompute
// at any time.
type Snapshot struct {
	SoilCapacity  float64
	SoilAvailable float64

	// Windowed action allowances remaining at the reference instant.
	WaterAvailable int
	SunAvailable   int

	Sprouts    map[string]*Sprout
	Leaves     map[string]*Leaf
	SunEntries []SunEntry

	// Indexes are pure projections of the entity maps, rebuilt on
	// every derivation. Slices are sorted for deterministic equality.
	ActiveSproutsByTwig map[string][]string
	SproutsByTwig       map[string][]string
	SproutsByLeaf       map[string][]string
	LeavesByTwig        map[string][]string
}

// ActiveCount returns the number of sprouts still in StateActive.
func (s *Snapshot) ActiveCount() int {
	n := 0
	for _, sp := range s.Sprouts {
		if sp.State == StateActive {
			n++
		}
	}
	return n
}
