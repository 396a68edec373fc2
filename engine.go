// Package scangate assembles the guard terminal's validation engine: secure
// secret storage, the encrypted offline credential cache, session management,
// scan history, and the server-backed validator with offline fallback.
package scangate

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/nubewired/scangate/internal/config"
	"github.com/nubewired/scangate/internal/encstore"
	"github.com/nubewired/scangate/internal/history"
	"github.com/nubewired/scangate/internal/logging"
	"github.com/nubewired/scangate/internal/netmon"
	"github.com/nubewired/scangate/internal/offline"
	"github.com/nubewired/scangate/internal/securestore"
	"github.com/nubewired/scangate/internal/session"
	"github.com/nubewired/scangate/internal/validator"
)

// Engine is the composition root for a terminal process. Construct exactly
// one per process with NewEngine and Close it on shutdown.
type Engine struct {
	Session   *session.Manager
	Cache     *offline.Cache
	History   history.Repository
	Validator *validator.Service
	Monitor   *netmon.Monitor

	db *sql.DB
}

// NewEngine wires the engine from cfg. deviceSecret is the per-device secret
// protecting the file-backed secret store; it must be stable across restarts
// or every stored secret becomes unreadable.
func NewEngine(ctx context.Context, cfg *config.Config, deviceSecret []byte, log logging.Logger) (*Engine, error) {
	secrets, err := securestore.NewFileStore(filepath.Join(cfg.DataDir, "secrets"), deviceSecret)
	if err != nil {
		return nil, fmt.Errorf("init secret store: %w", err)
	}

	blobs, err := encstore.New(filepath.Join(cfg.DataDir, "blobs"), secrets)
	if err != nil {
		return nil, fmt.Errorf("init blob store: %w", err)
	}

	cache, err := offline.NewCache(blobs, cfg.DataDir, log)
	if err != nil {
		return nil, fmt.Errorf("init offline cache: %w", err)
	}

	sess := session.NewManager(secrets, cache, log)

	db, err := history.InitDatabase(ctx, cfg.HistoryDBPath)
	if err != nil {
		return nil, err
	}
	hist := history.NewSQLiteRepository(db)

	client := validator.NewClient(cfg.APIBaseURL, cfg.RequestTimeout, sess, log)

	return &Engine{
		Session:   sess,
		Cache:     cache,
		History:   hist,
		Validator: validator.NewService(client, cache, hist, log),
		Monitor:   netmon.NewMonitor(cfg.APIBaseURL, cfg.OnlineCheckInterval, log, nil),
		db:        db,
	}, nil
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	return e.db.Close()
}
