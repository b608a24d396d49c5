package cli

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/grove/internal/derive"
	"github.com/roach88/grove/internal/economy"
	"github.com/roach88/grove/internal/event"
)

// NewPlantCommand creates the plant command.
func NewPlantCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		twigID   string
		season   string
		env      string
		leafID   string
		wither   string
		budding  string
		flourish string
	)

	cmd := &cobra.Command{
		Use:   "plant <title>",
		Short: "Plant a new sprout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !event.ValidTwigID(twigID) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid twig id %q", twigID), nil)
			}
			if !event.ValidSeasons[event.Season(season)] {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid season %q", season), nil)
			}
			if !event.ValidEnvironments[event.Environment(env)] {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid environment %q", env), nil)
			}

			cost, _ := economy.SoilCost(event.Season(season), event.Environment(env))

			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			snap := ws.store.Snapshot()
			if snap.SoilAvailable < cost {
				return WrapExitError(ExitFailure,
					fmt.Sprintf("not enough soil: need %.1f, have %.1f", cost, snap.SoilAvailable), nil)
			}

			payload := event.SproutPlanted{
				SproutID:    uuid.Must(uuid.NewV7()).String(),
				TwigID:      twigID,
				Title:       args[0],
				Season:      event.Season(season),
				Environment: event.Environment(env),
				SoilCost:    cost,
				LeafID:      leafID,
			}
			if wither != "" || budding != "" || flourish != "" {
				payload.Blooms = &event.BloomThresholds{Wither: wither, Budding: budding, Flourish: flourish}
			}

			ws.engine.Append(event.New(time.Now(), payload))
			return printResult(rootOpts,
				map[string]any{"sproutId": payload.SproutID, "soilCost": cost},
				fmt.Sprintf("planted %q (%s, %s) for %.1f soil\nsprout id: %s",
					args[0], season, env, cost, payload.SproutID))
		},
	}

	cmd.Flags().StringVar(&twigID, "twig", "", "twig id (branch-N-twig-N)")
	cmd.Flags().StringVar(&season, "season", string(event.SeasonTwoWeeks), "season (2w|1m|3m|6m|1y)")
	cmd.Flags().StringVar(&env, "environment", string(event.EnvFirm), "environment (fertile|firm|barren)")
	cmd.Flags().StringVar(&leafID, "leaf", "", "leaf id to group under")
	cmd.Flags().StringVar(&wither, "wither", "", "wither bloom threshold")
	cmd.Flags().StringVar(&budding, "budding", "", "budding bloom threshold")
	cmd.Flags().StringVar(&flourish, "flourish", "", "flourish bloom threshold")
	_ = cmd.MarkFlagRequired("twig")

	return cmd
}

// NewWaterCommand creates the water command.
func NewWaterCommand(rootOpts *RootOptions) *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "water <sprout-id> <content>",
		Short: "Record a progress check-in on a sprout",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			snap := ws.store.Snapshot()
			sp, ok := snap.Sprouts[args[0]]
			if !ok {
				return WrapExitError(ExitFailure, fmt.Sprintf("no sprout %q", args[0]), nil)
			}
			if sp.State != derive.StateActive {
				return WrapExitError(ExitFailure, fmt.Sprintf("sprout %q is %s", args[0], sp.State), nil)
			}
			if snap.WaterAvailable == 0 {
				return WrapExitError(ExitFailure, "no water left today", nil)
			}

			ws.engine.Append(event.New(time.Now(), event.SproutWatered{
				SproutID: args[0],
				Content:  args[1],
				Prompt:   prompt,
			}))
			return printResult(rootOpts,
				map[string]any{"sproutId": args[0], "waterRemaining": snap.WaterAvailable - 1},
				fmt.Sprintf("watered %q (%d left today)", sp.Title, snap.WaterAvailable-1))
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt this check-in answers")
	return cmd
}

// NewHarvestCommand creates the harvest command.
func NewHarvestCommand(rootOpts *RootOptions) *cobra.Command {
	var result int

	cmd := &cobra.Command{
		Use:   "harvest <sprout-id>",
		Short: "Complete a sprout with a 1-5 outcome rating",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if result < 1 || result > 5 {
				return WrapExitError(ExitCommandError, fmt.Sprintf("result must be 1-5, got %d", result), nil)
			}

			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			snap := ws.store.Snapshot()
			sp, ok := snap.Sprouts[args[0]]
			if !ok {
				return WrapExitError(ExitFailure, fmt.Sprintf("no sprout %q", args[0]), nil)
			}
			if sp.State != derive.StateActive {
				return WrapExitError(ExitFailure, fmt.Sprintf("sprout %q is already %s", args[0], sp.State), nil)
			}

			// The reward is diminishing-returns-adjusted at append time
			// and carried on the event itself.
			gained := economy.CapacityReward(sp.Season, sp.Environment, result, snap.SoilCapacity)

			ws.engine.Append(event.New(time.Now(), event.SproutHarvested{
				SproutID:       args[0],
				Result:         result,
				CapacityGained: gained,
			}))
			return printResult(rootOpts,
				map[string]any{"sproutId": args[0], "result": result, "capacityGained": gained},
				fmt.Sprintf("harvested %q with result %d (+%.2f capacity)", sp.Title, result, gained))
		},
	}

	cmd.Flags().IntVar(&result, "result", 0, "outcome rating 1-5")
	_ = cmd.MarkFlagRequired("result")
	return cmd
}

// NewUprootCommand creates the uproot command.
func NewUprootCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "uproot <sprout-id>",
		Short: "Abandon a sprout, partially refunding its soil",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			snap := ws.store.Snapshot()
			sp, ok := snap.Sprouts[args[0]]
			if !ok {
				return WrapExitError(ExitFailure, fmt.Sprintf("no sprout %q", args[0]), nil)
			}
			if sp.State != derive.StateActive {
				return WrapExitError(ExitFailure, fmt.Sprintf("sprout %q is already %s", args[0], sp.State), nil)
			}

			returned := sp.SoilCost * economy.UprootRefundFraction

			ws.engine.Append(event.New(time.Now(), event.SproutUprooted{
				SproutID:     args[0],
				SoilReturned: returned,
			}))
			return printResult(rootOpts,
				map[string]any{"sproutId": args[0], "soilReturned": returned},
				fmt.Sprintf("uprooted %q (%.1f soil returned)", sp.Title, returned))
		},
	}

	return cmd
}

// NewLeafCommand creates the leaf command.
func NewLeafCommand(rootOpts *RootOptions) *cobra.Command {
	var twigID string

	cmd := &cobra.Command{
		Use:   "leaf <name>",
		Short: "Create a leaf (a named grouping of sprouts)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !event.ValidTwigID(twigID) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid twig id %q", twigID), nil)
			}

			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			leafID := uuid.Must(uuid.NewV7()).String()
			ws.engine.Append(event.New(time.Now(), event.LeafCreated{
				LeafID: leafID,
				TwigID: twigID,
				Name:   args[0],
			}))
			return printResult(rootOpts,
				map[string]any{"leafId": leafID},
				fmt.Sprintf("created leaf %q\nleaf id: %s", args[0], leafID))
		},
	}

	cmd.Flags().StringVar(&twigID, "twig", "", "twig id (branch-N-twig-N)")
	_ = cmd.MarkFlagRequired("twig")
	return cmd
}

// NewSunCommand creates the sun command.
func NewSunCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		twigID    string
		twigLabel string
		prompt    string
	)

	cmd := &cobra.Command{
		Use:   "sun <content>",
		Short: "Record a weekly reflection against a twig",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !event.ValidTwigID(twigID) {
				return WrapExitError(ExitCommandError, fmt.Sprintf("invalid twig id %q", twigID), nil)
			}

			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			snap := ws.store.Snapshot()
			if snap.SunAvailable == 0 {
				return WrapExitError(ExitFailure, "no sun left this week", nil)
			}

			ws.engine.Append(event.New(time.Now(), event.SunShone{
				TwigID:    twigID,
				TwigLabel: twigLabel,
				Content:   args[0],
				Prompt:    prompt,
			}))
			return printResult(rootOpts,
				map[string]any{"twigId": twigID},
				"reflection recorded")
		},
	}

	cmd.Flags().StringVar(&twigID, "twig", "", "twig id (branch-N-twig-N)")
	cmd.Flags().StringVar(&twigLabel, "label", "", "display label for the twig")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt this reflection answers")
	_ = cmd.MarkFlagRequired("twig")
	return cmd
}
