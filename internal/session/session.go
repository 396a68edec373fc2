// Package session manages the guard terminal's authenticated session: the
// scanner JWT, guard identity, assigned site, and the request-signing key,
// all held in the secure secret store. Logout also wipes the offline cache:
// a cache surviving into another session is worse than no cache.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nubewired/scangate/internal/common"
	"github.com/nubewired/scangate/internal/logging"
	"github.com/nubewired/scangate/internal/securestore"
)

// Secret-store keys for session material.
const (
	tokenKey        = "scanner_jwt_token"
	guardNameKey    = "scanner_guard_name"
	scannerIDKey    = "scanner_scanner_id"
	assignedSiteKey = "scanner_assigned_site"
	signingKeyKey   = "hmac_signing_key"
)

// AssignedSite is the site this terminal is provisioned for.
type AssignedSite struct {
	SiteID   string `json:"site_id"`
	SiteCode string `json:"site_code"`
	SiteName string `json:"site_name"`
}

// Login carries everything the backend returns on a successful guard login.
type Login struct {
	Token      string
	GuardName  string
	ScannerID  string
	SigningKey []byte
	Site       *AssignedSite
}

// State is the restored session view.
type State struct {
	GuardName string
	ScannerID string
	Site      *AssignedSite
}

// offlineCache is the slice of the offline engine the session layer needs.
type offlineCache interface {
	ClearAll(ctx context.Context) error
}

type Manager struct {
	mu      sync.Mutex
	secrets securestore.Store
	cache   offlineCache
	log     logging.Logger
	clock   func() time.Time
}

func NewManager(secrets securestore.Store, cache offlineCache, log logging.Logger) *Manager {
	return &Manager{secrets: secrets, cache: cache, log: log, clock: time.Now}
}

// SaveLogin persists the session material delivered at login.
func (m *Manager) SaveLogin(ctx context.Context, login Login) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.secrets.Set(tokenKey, []byte(login.Token)); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	if err := m.secrets.Set(guardNameKey, []byte(login.GuardName)); err != nil {
		return fmt.Errorf("save guard name: %w", err)
	}
	if err := m.secrets.Set(scannerIDKey, []byte(login.ScannerID)); err != nil {
		return fmt.Errorf("save scanner id: %w", err)
	}
	if len(login.SigningKey) > 0 {
		if err := m.secrets.Set(signingKeyKey, login.SigningKey); err != nil {
			return fmt.Errorf("save signing key: %w", err)
		}
	}
	if login.Site != nil {
		if err := m.saveSite(login.Site); err != nil {
			return err
		}
	}

	m.log.Info(ctx, "session saved", "scanner_id", login.ScannerID)
	return nil
}

// Restore loads a previously saved session. It returns common.ErrNoSession
// when none is stored, and wipes everything and returns
// common.ErrTokenExpired when the stored scanner token has expired
// (scanner tokens are long-lived, typically 30 days).
func (m *Manager) Restore(ctx context.Context) (*State, error) {
	m.mu.Lock()
	token, err := m.secrets.Get(tokenKey)
	m.mu.Unlock()
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNoSession
		}
		return nil, fmt.Errorf("load token: %w", err)
	}
	if len(token) == 0 {
		return nil, common.ErrNoSession
	}

	if m.tokenExpired(string(token)) {
		m.log.Warn(ctx, "stored scanner token expired, clearing session")
		if err := m.Logout(ctx); err != nil {
			return nil, err
		}
		return nil, common.ErrTokenExpired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	state := &State{}
	if v, err := m.secrets.Get(guardNameKey); err == nil {
		state.GuardName = string(v)
	}
	if v, err := m.secrets.Get(scannerIDKey); err == nil {
		state.ScannerID = string(v)
	}
	if v, err := m.secrets.Get(assignedSiteKey); err == nil {
		var site AssignedSite
		if err := json.Unmarshal(v, &site); err == nil {
			state.Site = &site
		}
	}
	return state, nil
}

// Token returns the stored scanner JWT, or common.ErrNoSession.
func (m *Manager) Token() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.secrets.Get(tokenKey)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrNoSession
		}
		return "", err
	}
	return string(v), nil
}

// SigningKey returns the request-signing key, or nil before login. The
// signer treats a nil key as "leave the request unsigned".
func (m *Manager) SigningKey() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, err := m.secrets.Get(signingKeyKey)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return v, nil
}

// SaveAssignedSite records the site selected for this terminal.
func (m *Manager) SaveAssignedSite(ctx context.Context, site AssignedSite) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveSite(&site)
}

// Logout destroys all session material and the offline cache.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	for _, key := range []string{tokenKey, guardNameKey, scannerIDKey, assignedSiteKey, signingKeyKey} {
		if err := m.secrets.Delete(key); err != nil {
			m.mu.Unlock()
			return fmt.Errorf("delete %s: %w", key, err)
		}
	}
	m.mu.Unlock()

	if err := m.cache.ClearAll(ctx); err != nil {
		return fmt.Errorf("clear offline cache: %w", err)
	}

	m.log.Info(ctx, "session cleared")
	return nil
}

func (m *Manager) saveSite(site *AssignedSite) error {
	data, err := json.Marshal(site)
	if err != nil {
		return fmt.Errorf("marshal site: %w", err)
	}
	if err := m.secrets.Set(assignedSiteKey, data); err != nil {
		return fmt.Errorf("save site: %w", err)
	}
	return nil
}

// tokenExpired reads the exp claim without verifying the signature: the
// terminal never holds the server's JWT secret, it only needs to know
// whether a re-login is due. An unparseable token counts as expired.
func (m *Manager) tokenExpired(token string) bool {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return m.clock().After(exp.Time)
}
