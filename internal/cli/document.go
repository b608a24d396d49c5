package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/grove/internal/eventlog"
	"github.com/roach88/grove/internal/legacy"
)

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the full event log as a v4 document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			data, err := eventlog.EncodeDocument(ws.store.ExportAll(), time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode document", err)
			}

			if out == "" || out == "-" {
				fmt.Println(string(data))
				return nil
			}
			if err := os.WriteFile(out, data, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write document", err)
			}
			return printResult(rootOpts,
				map[string]any{"path": out, "events": ws.store.Len()},
				fmt.Sprintf("exported %d events to %s", ws.store.Len(), out))
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default stdout)")
	return cmd
}

// NewImportCommand creates the import command. Documents of any
// supported version are accepted; legacy trees are migrated before the
// log is replaced.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <document.json>",
		Short: "Replace the event log from an exported document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read document", err)
			}

			events, err := eventlog.DecodeDocument(data)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to decode document", err)
			}

			ws, err := openWorkspace(rootOpts)
			if err != nil {
				return err
			}
			defer ws.Close()

			if err := ws.engine.ReplaceLog(events); err != nil {
				return WrapExitError(ExitFailure, "failed to replace log", err)
			}
			return printResult(rootOpts,
				map[string]any{"events": len(events)},
				fmt.Sprintf("imported %d events", len(events)))
		},
	}
	return cmd
}

// NewMigrateCommand creates the migrate command: one-shot conversion
// of a legacy tree document into a v4 event document, without touching
// the local log.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "migrate <legacy.json>",
		Short: "Convert a legacy tree document to a v4 event document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read document", err)
			}

			var doc legacy.Document
			if err := json.Unmarshal(data, &doc); err != nil {
				return WrapExitError(ExitCommandError, "failed to parse legacy document", err)
			}
			if doc.Version < 1 || doc.Version >= eventlog.DocumentVersion {
				return WrapExitError(ExitCommandError,
					fmt.Sprintf("not a legacy document (version %d)", doc.Version), nil)
			}

			events := legacy.Migrate(doc)
			encoded, err := eventlog.EncodeDocument(events, time.Now())
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to encode document", err)
			}

			if out == "" || out == "-" {
				fmt.Println(string(encoded))
				return nil
			}
			if err := os.WriteFile(out, encoded, 0o644); err != nil {
				return WrapExitError(ExitCommandError, "failed to write document", err)
			}
			return printResult(rootOpts,
				map[string]any{"path": out, "events": len(events)},
				fmt.Sprintf("migrated %d events to %s", len(events), out))
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "", "output path (default stdout)")
	return cmd
}
