package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmark/authd/internal/common"
	"github.com/shelfmark/authd/internal/cryptox"
	"github.com/shelfmark/authd/internal/server/models"
)

func buildSessionService(t *testing.T) (*SessionService, *fakeRepoManager, func()) {
	t.Helper()
	db, mock := newMockDB(t)
	rm := newFakeRepoManager()
	svc := NewSessionService(db, rm, newTestCodec(t), testConfig(), discardLogger())
	return svc, rm, func() { expectTx(mock) }
}

func TestIssue_PersistsDigestOnly(t *testing.T) {
	svc, rm, nextTx := buildSessionService(t)
	ctx := context.Background()

	nextTx()
	pair, err := svc.Issue(ctx, "user-1", nil)
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.True(t, pair.RefreshExpiresAt.After(pair.AccessExpiresAt))

	require.Len(t, rm.tokens.recs, 1)
	rec := rm.tokens.recs[0]
	assert.Equal(t, "user-1", rec.PrincipalID)
	assert.Equal(t, cryptox.DigestToken(pair.RefreshToken), rec.TokenHash)
	assert.NotEqual(t, pair.RefreshToken, rec.TokenHash)
	assert.Equal(t, models.PlatformUnknown, rec.Platform)
	assert.False(t, rec.Revoked)
}

func TestIssue_DeviceSupersession(t *testing.T) {
	svc, rm, nextTx := buildSessionService(t)
	ctx := context.Background()
	device := &DeviceInfo{ID: "dev-1", Name: "Kitchen iPad", Platform: "ios"}

	nextTx()
	first, err := svc.Issue(ctx, "user-1", device)
	require.NoError(t, err)

	nextTx()
	second, err := svc.Issue(ctx, "user-1", device)
	require.NoError(t, err)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)

	now := time.Now()
	assert.Equal(t, 1, rm.tokens.activeCount(now), "exactly one active record per (principal, device)")
	require.Len(t, rm.tokens.recs, 2, "superseded records are kept, not deleted")
	assert.True(t, rm.tokens.recs[0].Revoked)
	require.NotNil(t, rm.tokens.recs[0].RevokedAt)
	assert.False(t, rm.tokens.recs[1].Revoked)
	assert.Equal(t, models.PlatformIOS, rm.tokens.recs[1].Platform)
}

func TestIssue_DifferentDevicesCoexist(t *testing.T) {
	svc, rm, nextTx := buildSessionService(t)
	ctx := context.Background()

	nextTx()
	_, err := svc.Issue(ctx, "user-1", &DeviceInfo{ID: "dev-1", Platform: "ios"})
	require.NoError(t, err)
	nextTx()
	_, err = svc.Issue(ctx, "user-1", &DeviceInfo{ID: "dev-2", Platform: "android"})
	require.NoError(t, err)

	assert.Equal(t, 2, rm.tokens.activeCount(time.Now()))
}

func TestIssuePlatformToken(t *testing.T) {
	svc, _, _ := buildSessionService(t)

	signed, expiresAt, err := svc.IssuePlatformToken(context.Background(), "user-7")
	require.NoError(t, err)
	assert.True(t, expiresAt.After(time.Now()))

	claims, err := svc.codec.Decode(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-7", claims.PrincipalID())
	// Subject carries "{principal}|{session}", session non-empty.
	require.Contains(t, claims.Subject, "|")
	assert.Greater(t, len(claims.Subject), len("user-7|"))
}

func TestRefresh_Success(t *testing.T) {
	svc, rm, nextTx := buildSessionService(t)
	ctx := context.Background()

	nextTx()
	pair, err := svc.Issue(ctx, "user-1", nil)
	require.NoError(t, err)

	grant, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, grant.AccessToken)

	claims, err := svc.codec.Decode(grant.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.PrincipalID())

	require.NotNil(t, rm.tokens.recs[0].LastUsedAt, "refresh updates last used time")

	// A refresh token is reusable until revoked or expired.
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.NoError(t, err)
}

func TestRefresh_UnknownToken(t *testing.T) {
	svc, _, _ := buildSessionService(t)

	_, err := svc.Refresh(context.Background(), "never-issued")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestRefresh_RevokedToken(t *testing.T) {
	svc, rm, nextTx := buildSessionService(t)
	ctx := context.Background()

	nextTx()
	pair, err := svc.Issue(ctx, "user-1", nil)
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, rm.tokens.recs[0].ID, "user-1"))

	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)
}

func TestRefresh_ExpiredToken(t *testing.T) {
	svc, _, nextTx := buildSessionService(t)
	ctx := context.Background()

	nextTx()
	pair, err := svc.Issue(ctx, "user-1", nil)
	require.NoError(t, err)

	svc.now = func() time.Time { return time.Now().Add(31 * 24 * time.Hour) }
	_, err = svc.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, common.ErrRefreshTokenExpired)
}

func TestRefresh_RepositoryError(t *testing.T) {
	svc, rm, _ := buildSessionService(t)
	rm.tokens.findErr = errors.New("connection reset")

	_, err := svc.Refresh(context.Background(), "whatever")
	assert.ErrorIs(t, err, common.ErrorInternal)
}

func TestRevoke_OwnershipAndIdempotency(t *testing.T) {
	svc, rm, nextTx := buildSessionService(t)
	ctx := context.Background()

	nextTx()
	_, err := svc.Issue(ctx, "user-1", nil)
	require.NoError(t, err)
	id := rm.tokens.recs[0].ID

	assert.ErrorIs(t, svc.Revoke(ctx, "missing-id", "user-1"), common.ErrorNotFound)
	assert.ErrorIs(t, svc.Revoke(ctx, id, "user-2"), common.ErrorUnauthorized)

	require.NoError(t, svc.Revoke(ctx, id, "user-1"))
	require.NotNil(t, rm.tokens.recs[0].RevokedAt)
	firstRevokedAt := *rm.tokens.recs[0].RevokedAt

	// Second revoke is a no-op and keeps the original revocation time.
	require.NoError(t, svc.Revoke(ctx, id, "user-1"))
	assert.Equal(t, firstRevokedAt, *rm.tokens.recs[0].RevokedAt)
}

func TestRevokeAll(t *testing.T) {
	svc, rm, nextTx := buildSessionService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		nextTx()
		_, err := svc.Issue(ctx, "user-1", nil)
		require.NoError(t, err)
	}
	nextTx()
	_, err := svc.Issue(ctx, "user-2", nil)
	require.NoError(t, err)

	n, err := svc.RevokeAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, 1, rm.tokens.activeCount(time.Now()), "other principals untouched")

	// Nothing left to revoke.
	n, err = svc.RevokeAll(ctx, "user-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListActive(t *testing.T) {
	svc, rm, nextTx := buildSessionService(t)
	ctx := context.Background()

	nextTx()
	_, err := svc.Issue(ctx, "user-1", &DeviceInfo{ID: "dev-1", Name: "Phone", Platform: "android"})
	require.NoError(t, err)
	nextTx()
	_, err = svc.Issue(ctx, "user-1", &DeviceInfo{ID: "dev-2", Name: "Tablet", Platform: "ios"})
	require.NoError(t, err)
	require.NoError(t, svc.Revoke(ctx, rm.tokens.recs[1].ID, "user-1"))

	sessions, err := svc.ListActive(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "dev-1", sessions[0].DeviceID)
	assert.Equal(t, "Phone", sessions[0].DeviceName)
	assert.Equal(t, models.PlatformAndroid, sessions[0].Platform)

	other, err := svc.ListActive(ctx, "user-2")
	require.NoError(t, err)
	assert.Empty(t, other)
}

// TestLifecycle_DeviceSupersessionEndToEnd walks the full device story:
// refresh works while current, supersession revokes the old session, and
// the stale refresh token reports revoked (not unknown) afterwards.
func TestLifecycle_DeviceSupersessionEndToEnd(t *testing.T) {
	svc, _, nextTx := buildSessionService(t)
	ctx := context.Background()
	device := &DeviceInfo{ID: "dev-1", Platform: "ios"}

	nextTx()
	pair1, err := svc.Issue(ctx, "user-1", device)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair1.RefreshToken)
	require.NoError(t, err)

	nextTx()
	pair2, err := svc.Issue(ctx, "user-1", device)
	require.NoError(t, err)

	_, err = svc.Refresh(ctx, pair1.RefreshToken)
	assert.ErrorIs(t, err, common.ErrTokenRevoked)

	_, err = svc.Refresh(ctx, pair2.RefreshToken)
	assert.NoError(t, err)

	sessions, err := svc.ListActive(ctx, "user-1")
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
}
