package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFormatTimestamp tests the fixed wire shape: millisecond
// precision, explicit Z.
func TestFormatTimestamp(t *testing.T) {
	at := time.Date(2025, 1, 13, 6, 0, 0, 123_000_000, time.UTC)
	assert.Equal(t, "2025-01-13T06:00:00.123Z", FormatTimestamp(at))

	// Non-UTC inputs are normalized.
	loc := time.FixedZone("UTC+2", 2*3600)
	assert.Equal(t, "2025-01-13T06:00:00.000Z",
		FormatTimestamp(time.Date(2025, 1, 13, 8, 0, 0, 0, loc)))
}

// TestParseTimestamp tests offset handling and error reporting.
func TestParseTimestamp(t *testing.T) {
	ts, err := ParseTimestamp("2025-01-13T08:00:00.000+02:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 1, 13, 6, 0, 0, 0, time.UTC), ts)

	_, err = ParseTimestamp("yesterday")
	require.Error(t, err)
}

// TestEvent_RoundTrip tests that every payload variant survives a
// marshal/unmarshal cycle unchanged.
func TestEvent_RoundTrip(t *testing.T) {
	at := time.Date(2025, 3, 1, 12, 30, 0, 0, time.UTC)

	payloads := []Payload{
		SproutPlanted{
			SproutID:    "sp-1",
			TwigID:      "branch-2-twig-3",
			Title:       "Run a 10k",
			Season:      SeasonThreeMonths,
			Environment: EnvFirm,
			SoilCost:    4,
			LeafID:      "leaf-1",
			Blooms: &BloomThresholds{
				Wither:   "never trained",
				Budding:  "finished",
				Flourish: "under an hour",
			},
		},
		SproutWatered{SproutID: "sp-1", Content: "5k today", Prompt: "how did it go?"},
		SproutHarvested{SproutID: "sp-1", Result: 4, CapacityGained: 1.8},
		SproutUprooted{SproutID: "sp-1", SoilReturned: 2},
		LeafCreated{LeafID: "leaf-1", TwigID: "branch-2-twig-3", Name: "Fitness"},
		SunShone{TwigID: "branch-1-twig-1", TwigLabel: "Health", Content: "steady week", Prompt: "reflect"},
	}

	for _, p := range payloads {
		t.Run(string(p.Kind()), func(t *testing.T) {
			in := New(at, p)

			data, err := json.Marshal(in)
			require.NoError(t, err)

			var out Event
			require.NoError(t, json.Unmarshal(data, &out))

			assert.Equal(t, in.Type, out.Type)
			assert.Equal(t, in.ClientID, out.ClientID)
			assert.True(t, in.Timestamp.Equal(out.Timestamp))
			assert.Equal(t, in.Payload, out.Payload)
		})
	}
}

// TestEvent_RoundTrip_ZeroValues tests that meaningful zero values
// (result, soilCost) are carried explicitly, not dropped by omitempty.
func TestEvent_RoundTrip_ZeroValues(t *testing.T) {
	in := New(time.Now(), SproutUprooted{SproutID: "sp-1", SoilReturned: 0})

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"soilReturned":0`)

	var out Event
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.Payload, out.Payload)
}

// TestEvent_UnmarshalUnknownType tests tolerant decoding: an
// unrecognized type tag yields an inert event, not an error.
func TestEvent_UnmarshalUnknownType(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"type":"moon_rose","timestamp":"2025-01-13T06:00:00.000Z"}`), &ev)
	require.NoError(t, err)

	assert.Equal(t, Type("moon_rose"), ev.Type)
	assert.Nil(t, ev.Payload)
}

// TestEvent_UnmarshalBadTimestamp tests that a malformed timestamp
// decodes to the zero time rather than failing the log.
func TestEvent_UnmarshalBadTimestamp(t *testing.T) {
	var ev Event
	err := json.Unmarshal([]byte(`{"type":"sprout_watered","timestamp":"not-a-time","sproutId":"sp-1","content":"x"}`), &ev)
	require.NoError(t, err)

	assert.True(t, ev.Timestamp.IsZero())
	assert.Equal(t, SproutWatered{SproutID: "sp-1", Content: "x"}, ev.Payload)
}

// TestEvent_UnmarshalNormalizesUnicode tests NFC normalization of free
// text at the wire boundary.
func TestEvent_UnmarshalNormalizesUnicode(t *testing.T) {
	// "café" with a decomposed e + combining acute accent.
	decomposed := "café"
	composed := "café"

	data := []byte(`{"type":"sprout_watered","timestamp":"2025-01-13T06:00:00.000Z","sproutId":"sp-1","content":"` + decomposed + `"}`)

	var ev Event
	require.NoError(t, json.Unmarshal(data, &ev))

	p, ok := ev.Payload.(SproutWatered)
	require.True(t, ok)
	assert.Equal(t, composed, p.Content)
}

// TestEvent_MarshalUnknownPayloadEnvelope tests that an event carrying
// no payload still marshals its envelope.
func TestEvent_MarshalUnknownPayloadEnvelope(t *testing.T) {
	ev := Event{Type: "moon_rose", Timestamp: time.Date(2025, 1, 13, 6, 0, 0, 0, time.UTC)}

	data, err := json.Marshal(ev)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"moon_rose","timestamp":"2025-01-13T06:00:00.000Z"}`, string(data))
}

// TestValidTwigID tests the fixed 8x8 grid pattern.
func TestValidTwigID(t *testing.T) {
	valid := []string{"branch-1-twig-1", "branch-8-twig-8", "branch-4-twig-7"}
	for _, id := range valid {
		assert.True(t, ValidTwigID(id), id)
	}

	invalid := []string{
		"",
		"branch-0-twig-1",
		"branch-9-twig-1",
		"branch-1-twig-9",
		"branch-1-twig-10",
		"twig-1-branch-1",
		"branch-1-twig-1 ",
		"Branch-1-twig-1",
	}
	for _, id := range invalid {
		assert.False(t, ValidTwigID(id), id)
	}
}

// TestNew tests event stamping: fresh key, UTC timestamp, type tag from
// the payload.
func TestNew(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	at := time.Date(2025, 6, 1, 20, 0, 0, 0, loc)

	ev := New(at, LeafCreated{LeafID: "leaf-1", TwigID: "branch-1-twig-1", Name: "Reading"})

	assert.Equal(t, TypeLeafCreated, ev.Type)
	assert.Equal(t, time.UTC, ev.Timestamp.Location())
	assert.NotEmpty(t, ev.ClientID)

	other := New(at, LeafCreated{LeafID: "leaf-1", TwigID: "branch-1-twig-1", Name: "Reading"})
	assert.NotEqual(t, ev.ClientID, other.ClientID)
}
