package accounts

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/inboxglance/internal/secrets"
)

func newTestBox(t *testing.T) *secrets.Box {
	t.Helper()
	key, err := secrets.GenerateKey()
	require.NoError(t, err)
	box, err := secrets.New(key)
	require.NoError(t, err)
	return box
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.db")
	box := newTestBox(t)

	s, err := NewSQLiteStore(path, box)
	require.NoError(t, err)
	_, err = s.UpsertIfAbsent(ctx, testAccount("a@example.com", "a1"))
	require.NoError(t, err)
	_, err = s.UpsertIfAbsent(ctx, testAccount("b@example.com", "b1"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	// Reopening must not re-run the first migration.
	s, err = NewSQLiteStore(path, box)
	require.NoError(t, err)
	defer s.Close()

	accts, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, emails(accts))
	assert.Equal(t, "b1", accts[1].Token.AccessToken)

	var version int
	require.NoError(t, s.db.Get(&version, "SELECT MAX(version) FROM schema_version"))
	assert.Equal(t, len(migrations), version)
}

func TestSQLiteStore_EncryptsTokens(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(":memory:", newTestBox(t))
	require.NoError(t, err)
	defer s.Close()

	_, err = s.UpsertIfAbsent(ctx, testAccount("a@example.com", "secret-access"))
	require.NoError(t, err)

	var raw string
	require.NoError(t, s.db.Get(&raw, "SELECT token FROM accounts WHERE email = ?", "a@example.com"))
	assert.True(t, strings.HasPrefix(raw, "v1:"))
	assert.NotContains(t, raw, "secret-access")

	accts, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret-access", accts[0].Token.AccessToken)
}

func TestSQLiteStore_PlaintextWithoutKey(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.UpsertIfAbsent(ctx, testAccount("a@example.com", "plain-access"))
	require.NoError(t, err)

	var raw string
	require.NoError(t, s.db.Get(&raw, "SELECT token FROM accounts"))
	assert.Contains(t, raw, "plain-access")
}

func TestSQLiteStore_SealedRowsNeedKey(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "accounts.db")

	s, err := NewSQLiteStore(path, newTestBox(t))
	require.NoError(t, err)
	_, err = s.UpsertIfAbsent(ctx, testAccount("a@example.com", "a1"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(path, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.List(ctx)
	assert.ErrorIs(t, err, secrets.ErrKeyRequired)
}

func TestSQLiteStore_NilMessagesStoredAsEmpty(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(":memory:", nil)
	require.NoError(t, err)
	defer s.Close()

	acct := testAccount("a@example.com", "a1")
	acct.Messages = nil
	_, err = s.UpsertIfAbsent(ctx, acct)
	require.NoError(t, err)

	accts, err := s.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, accts[0].Messages)
	assert.Empty(t, accts[0].Messages)
}
