package event

import (
	"regexp"
	"time"
)

// Type discriminates event variants on the wire.
type Type string

const (
	TypeSproutPlanted   Type = "sprout_planted"
	TypeSproutWatered   Type = "sprout_watered"
	TypeSproutHarvested Type = "sprout_harvested"
	TypeSproutUprooted  Type = "sprout_uprooted"
	TypeLeafCreated     Type = "leaf_created"
	TypeSunShone        Type = "sun_shone"
)

// Season is the committed duration of a sprout.
type Season string

const (
	SeasonTwoWeeks    Season = "2w"
	SeasonOneMonth    Season = "1m"
	SeasonThreeMonths Season = "3m"
	SeasonSixMonths   Season = "6m"
	SeasonOneYear     Season = "1y"

	// LegacySeasonOneWeek appears only in pre-v4 documents and is
	// translated to SeasonTwoWeeks during migration.
	LegacySeasonOneWeek Season = "1w"
)

// ValidSeasons defines the seasons accepted in current-format events.
var ValidSeasons = map[Season]bool{
	SeasonTwoWeeks:    true,
	SeasonOneMonth:    true,
	SeasonThreeMonths: true,
	SeasonSixMonths:   true,
	SeasonOneYear:     true,
}

// Environment is the difficulty rating of a sprout's conditions.
type Environment string

const (
	EnvFertile Environment = "fertile"
	EnvFirm    Environment = "firm"
	EnvBarren  Environment = "barren"
)

// ValidEnvironments defines the accepted environment values.
var ValidEnvironments = map[Environment]bool{
	EnvFertile: true,
	EnvFirm:    true,
	EnvBarren:  true,
}

// twigIDPattern matches the fixed 8-branch x 8-twig grid.
// Any other shape is unknown and ignored by derivation.
var twigIDPattern = regexp.MustCompile(`^branch-[1-8]-twig-[1-8]$`)

// ValidTwigID reports whether id names a slot in the 8x8 twig grid.
func ValidTwigID(id string) bool {
	return twigIDPattern.MatchString(id)
}

// Event is the only persisted unit. Immutable once appended.
//
// Timestamp is always UTC on the wire (ISO-8601 with explicit Z).
// ClientID is a client-assigned idempotency key; empty means the event
// predates key assignment and is deduplicated by value instead.
type Event struct {
	Type      Type
	Timestamp time.Time
	ClientID  string
	Payload   Payload
}

// Payload is the closed set of event variants. Exactly one concrete
// type exists per Type tag; an Event with a nil Payload carries an
// unknown variant and contributes nothing to derivation.
type Payload interface {
	Kind() Type
}

// SproutPlanted creates a sprout. Re-observing it for an existing
// sproutId is a full overwrite of all planted fields, not a merge.
type SproutPlanted struct {
	SproutID    string
	TwigID      string
	Title       string
	Season      Season
	Environment Environment
	SoilCost    float64
	LeafID      string // optional
	Blooms      *BloomThresholds
}

// BloomThresholds are the optional outcome descriptions set at planting.
type BloomThresholds struct {
	Wither   string
	Budding  string
	Flourish string
}

// SproutWatered appends a progress check-in to an active sprout.
type SproutWatered struct {
	SproutID string
	Content  string
	Prompt   string // optional
}

// SproutHarvested completes a sprout with a 1-5 outcome rating.
// CapacityGained is already diminishing-returns-adjusted at append time.
type SproutHarvested struct {
	SproutID       string
	Result         int
	CapacityGained float64
}

// SproutUprooted abandons a sprout, partially refunding its soil cost.
type SproutUprooted struct {
	SproutID     string
	SoilReturned float64
}

// LeafCreated creates a named grouping; leaves are immutable once created.
type LeafCreated struct {
	LeafID string
	TwigID string
	Name   string
}

// SunShone records a weekly reflection against a twig. The
// (TwigID, TwigLabel) context pair survives storage round trips unchanged.
type SunShone struct {
	TwigID    string
	TwigLabel string
	Content   string
	Prompt    string // optional
}

func (SproutPlanted) Kind() Type   { return TypeSproutPlanted }
func (SproutWatered) Kind() Type   { return TypeSproutWatered }
func (SproutHarvested) Kind() Type { return TypeSproutHarvested }
func (SproutUprooted) Kind() Type  { return TypeSproutUprooted }
func (LeafCreated) Kind() Type     { return TypeLeafCreated }
func (SunShone) Kind() Type        { return TypeSunShone }

// New stamps a payload into an Event with a fresh idempotency key.
func New(at time.Time, p Payload) Event {
	return Event{
		Type:      p.Kind(),
		Timestamp: at.UTC(),
		ClientID:  NewClientID(),
		Payload:   p,
	}
}
