// Package app wires configuration, the decrypt engine, the query layer and
// both cache-backed engines into one application object.
package app

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/lumarchive/chatscope/internal/analytics"
	"github.com/lumarchive/chatscope/internal/config"
	"github.com/lumarchive/chatscope/internal/logging"
	"github.com/lumarchive/chatscope/internal/report"
	"github.com/lumarchive/chatscope/internal/store"
	"github.com/lumarchive/chatscope/internal/wxcrypt"
)

// App owns the shared read-only store handle and the engines built on it.
// Caches are explicitly constructed here and threaded through constructors;
// there is no ambient global cache state.
type App struct {
	Config    *config.Config
	Handle    *wxcrypt.StoreHandle
	Store     *store.ChatStore
	Analytics *analytics.Engine
	Reports   *report.Generator

	watcher      *store.Watcher
	storeChanged atomic.Bool
}

// Open validates the configuration, opens the store per the configured mode
// and builds the engines. The returned App must be closed.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := wxcrypt.ParseKey(cfg.Key)
	if err != nil {
		return nil, err
	}

	workDir, err := cfg.Paths().WorkDir()
	if err != nil {
		return nil, err
	}
	handle, err := wxcrypt.OpenStore(ctx, wxcrypt.OpenOptions{
		Root:      cfg.RootPath,
		Key:       key,
		AccountID: cfg.AccountID,
		Mode:      cfg.StoreMode(),
		WorkDir:   workDir,
	})
	if err != nil {
		return nil, err
	}

	dataDir, err := cfg.Paths().AppDir()
	if err != nil {
		handle.Close()
		return nil, err
	}
	analyticsCache, err := analytics.NewCache(dataDir)
	if err != nil {
		handle.Close()
		return nil, err
	}
	reportCache, err := report.NewCache(dataDir)
	if err != nil {
		handle.Close()
		return nil, err
	}

	chatStore := store.New(handle)
	app := &App{
		Config:    cfg,
		Handle:    handle,
		Store:     chatStore,
		Analytics: analytics.NewEngine(chatStore, analyticsCache),
		Reports:   report.NewGenerator(chatStore, reportCache),
	}

	// Watch the live file so staleness can be surfaced without a rescan.
	watcher, err := store.WatchFile(handle.SourcePath(), func() {
		app.storeChanged.Store(true)
	})
	if err != nil {
		logging.Log.Warn("store watcher unavailable", "err", err)
	} else {
		app.watcher = watcher
	}

	return app, nil
}

// StoreChanged reports whether the live store file changed since the handle
// was opened.
func (a *App) StoreChanged() bool { return a.storeChanged.Load() }

// Close tears down the report worker, the watcher and the store handle.
func (a *App) Close() error {
	if a.Reports != nil {
		a.Reports.CancelCurrent()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	if a.Handle != nil {
		if err := a.Handle.Close(); err != nil {
			return fmt.Errorf("close store: %w", err)
		}
	}
	return nil
}
