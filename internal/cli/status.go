package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/grove/internal/derive"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show derived state: resources, active sprouts, sync",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			snap := ws.store.Snapshot()
			meta := ws.engine.Metadata()

			if rootOpts.Format == "json" {
				return printJSON(statusView(snap, string(meta.Display())))
			}

			fmt.Print(renderStatus(snap, string(meta.Display())))
			return nil
		},
	}
	return cmd
}

func statusView(snap *derive.Snapshot, display string) map[string]any {
	return map[string]any{
		"soilCapacity":   snap.SoilCapacity,
		"soilAvailable":  snap.SoilAvailable,
		"waterAvailable": snap.WaterAvailable,
		"sunAvailable":   snap.SunAvailable,
		"activeSprouts":  snap.ActiveCount(),
		"sprouts":        snap.Sprouts,
		"leaves":         snap.Leaves,
		"syncStatus":     display,
	}
}

func renderStatus(snap *derive.Snapshot, display string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "soil  %.1f / %.1f\n", snap.SoilAvailable, snap.SoilCapacity)
	fmt.Fprintf(&b, "water %d   sun %d\n", snap.WaterAvailable, snap.SunAvailable)
	fmt.Fprintf(&b, "sync  %s\n", display)

	ids := make([]string, 0, len(snap.Sprouts))
	for id := range snap.Sprouts {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	active := 0
	for _, id := range ids {
		sp := snap.Sprouts[id]
		if sp.State != derive.StateActive {
			continue
		}
		active++
		fmt.Fprintf(&b, "  [%s] %s (%s, %s, %d check-ins)\n",
			sp.TwigID, sp.Title, sp.Season, sp.Environment, len(sp.WaterEntries))
	}
	if active == 0 {
		b.WriteString("  no active sprouts\n")
	}

	return b.String()
}

func printJSON(data any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}
