package session

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubewired/scangate/internal/common"
	"github.com/nubewired/scangate/internal/logging"
	"github.com/nubewired/scangate/internal/securestore"
)

type fakeCache struct {
	cleared int
}

func (f *fakeCache) ClearAll(ctx context.Context) error {
	f.cleared++
	return nil
}

func newManager(t *testing.T) (*Manager, *fakeCache, securestore.Store) {
	t.Helper()
	secrets := securestore.NewMemoryStore()
	cache := &fakeCache{}
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError})))
	return NewManager(secrets, cache, log), cache, secrets
}

func signedToken(t *testing.T, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
	})
	s, err := token.SignedString([]byte("server-side-secret"))
	require.NoError(t, err)
	return s
}

func testLogin(t *testing.T) Login {
	return Login{
		Token:      signedToken(t, 30*24*time.Hour),
		GuardName:  "Pat Jones",
		ScannerID:  "sc-01",
		SigningKey: []byte("signing-key"),
		Site:       &AssignedSite{SiteID: "s-1", SiteCode: "HQ1", SiteName: "Headquarters"},
	}
}

func TestSaveLoginAndRestore(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveLogin(ctx, testLogin(t)))

	state, err := m.Restore(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pat Jones", state.GuardName)
	assert.Equal(t, "sc-01", state.ScannerID)
	require.NotNil(t, state.Site)
	assert.Equal(t, "HQ1", state.Site.SiteCode)

	token, err := m.Token()
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	key, err := m.SigningKey()
	require.NoError(t, err)
	assert.Equal(t, []byte("signing-key"), key)
}

func TestRestore_NoSession(t *testing.T) {
	m, _, _ := newManager(t)

	_, err := m.Restore(context.Background())
	require.ErrorIs(t, err, common.ErrNoSession)
}

func TestRestore_ExpiredTokenWipesSession(t *testing.T) {
	m, cache, _ := newManager(t)
	ctx := context.Background()

	login := testLogin(t)
	login.Token = signedToken(t, -time.Hour)
	require.NoError(t, m.SaveLogin(ctx, login))

	_, err := m.Restore(ctx)
	require.ErrorIs(t, err, common.ErrTokenExpired)
	assert.Equal(t, 1, cache.cleared)

	_, err = m.Token()
	require.ErrorIs(t, err, common.ErrNoSession)
}

func TestRestore_GarbageTokenCountsAsExpired(t *testing.T) {
	m, _, secrets := newManager(t)
	ctx := context.Background()

	require.NoError(t, secrets.Set("scanner_jwt_token", []byte("not-a-jwt")))

	_, err := m.Restore(ctx)
	require.ErrorIs(t, err, common.ErrTokenExpired)
}

func TestSigningKey_NilBeforeLogin(t *testing.T) {
	m, _, _ := newManager(t)

	key, err := m.SigningKey()
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestLogout_DestroysEverything(t *testing.T) {
	m, cache, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveLogin(ctx, testLogin(t)))
	require.NoError(t, m.Logout(ctx))

	assert.Equal(t, 1, cache.cleared)

	_, err := m.Token()
	require.ErrorIs(t, err, common.ErrNoSession)

	key, err := m.SigningKey()
	require.NoError(t, err)
	assert.Nil(t, key)
}

func TestSaveAssignedSite_Overwrites(t *testing.T) {
	m, _, _ := newManager(t)
	ctx := context.Background()

	require.NoError(t, m.SaveLogin(ctx, testLogin(t)))
	require.NoError(t, m.SaveAssignedSite(ctx, AssignedSite{SiteID: "s-2", SiteCode: "WH2", SiteName: "Warehouse"}))

	state, err := m.Restore(ctx)
	require.NoError(t, err)
	require.NotNil(t, state.Site)
	assert.Equal(t, "WH2", state.Site.SiteCode)
}
