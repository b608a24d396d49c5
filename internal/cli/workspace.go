package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/roach88/grove/internal/eventlog"
	"github.com/roach88/grove/internal/syncer"
)

// workspace bundles the store, pending set, and sync engine a command
// operates on. Close releases everything that was opened.
type workspace struct {
	cfg     Config
	store   *eventlog.Store
	pending *syncer.PendingSet
	remote  *syncer.SQLiteRemote
	engine  *syncer.Engine
}

// openWorkspace builds a workspace from config plus flag overrides.
// Persistence failures inside the store are logged, never fatal: the
// log keeps working in memory.
func openWorkspace(opts *RootOptions) (*workspace, error) {
	cfg, err := LoadConfig(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
		cfg.Pending = opts.Database + ".pending"
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Database), 0o755); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to create database directory", err)
	}

	store, err := eventlog.Open(cfg.Database,
		eventlog.WithPersistErrorHandler(func(err error) {
			slog.Warn("event log persistence failed", "error", err)
		}),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open event log", err)
	}

	pending, err := syncer.OpenPendingSet(cfg.Pending)
	if err != nil {
		store.Close()
		return nil, WrapExitError(ExitCommandError, "failed to open pending set", err)
	}

	ws := &workspace{cfg: cfg, store: store, pending: pending}

	var remote syncer.Remote
	if cfg.Remote != "" {
		ws.remote, err = syncer.OpenSQLiteRemote(cfg.Remote)
		if err != nil {
			ws.Close()
			return nil, WrapExitError(ExitCommandError, "failed to open remote", err)
		}
		remote = ws.remote
	}

	ws.engine = syncer.NewEngine(store, remote, pending, cfg.User)
	return ws, nil
}

func (w *workspace) Close() {
	if w.remote != nil {
		if err := w.remote.Close(); err != nil {
			slog.Warn("closing remote", "error", err)
		}
	}
	if err := w.pending.Close(); err != nil {
		slog.Warn("closing pending set", "error", err)
	}
	if err := w.store.Close(); err != nil {
		slog.Warn("closing event log", "error", err)
	}
}

// printResult renders a command result in the configured format.
func printResult(opts *RootOptions, data any, text string) error {
	if opts.Format == "json" {
		return printJSON(data)
	}
	fmt.Println(text)
	return nil
}
