package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"intake-relay/models"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return map[string]Store{
		"file":  NewFileStore(filepath.Join(t.TempDir(), "nested", "session.toml")),
		"redis": NewRedisStore(rdb, "test:"),
	}
}

func TestStoreRoundTrip(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := st.Load(ctx)
			assert.ErrorIs(t, err, ErrNoSession)

			require.NoError(t, st.Save(ctx, models.Session{SessionID: "ABC123", Role: models.RoleStaff}))
			got, err := st.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, models.Session{SessionID: "ABC123", Role: models.RoleStaff}, got)

			require.NoError(t, st.Clear(ctx))
			_, err = st.Load(ctx)
			assert.ErrorIs(t, err, ErrNoSession)

			require.NoError(t, st.Clear(ctx))
		})
	}
}

func TestLoginValidates(t *testing.T) {
	for name, st := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			_, err := Login(ctx, st, "   ", models.RolePatient)
			assert.ErrorIs(t, err, ErrEmptySessionID)

			_, err = Login(ctx, st, "ABC123", models.Role("doctor"))
			assert.ErrorIs(t, err, ErrInvalidRole)

			got, err := Login(ctx, st, "  ABC123 ", models.RolePatient)
			require.NoError(t, err)
			assert.Equal(t, "ABC123", got.SessionID)

			loaded, err := st.Load(ctx)
			require.NoError(t, err)
			assert.Equal(t, got, loaded)
		})
	}
}

func TestFileStoreLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	st := NewFileStore(path)
	require.NoError(t, st.Save(context.Background(), models.Session{SessionID: "ABC123", Role: models.RolePatient}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ABC123")
	assert.Contains(t, string(data), KeySessionID)
	assert.Contains(t, string(data), KeyRole)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.toml")
	require.NoError(t, os.WriteFile(path, []byte("not = [valid"), 0o600))

	_, err := NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrNoSession)
}

func TestRedisStoreUsesPlainKeys(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	st := NewRedisStore(rdb, "")
	require.NoError(t, st.Save(context.Background(), models.Session{SessionID: "ABC123", Role: models.RoleStaff}))

	got, err := mr.Get(KeySessionID)
	require.NoError(t, err)
	assert.Equal(t, "ABC123", got)
	got, err = mr.Get(KeyRole)
	require.NoError(t, err)
	assert.Equal(t, "staff", got)
	assert.Zero(t, mr.TTL(KeyRole))
}

func TestNewRedisStoreFromURL(t *testing.T) {
	mr := miniredis.RunT(t)

	st, err := NewRedisStoreFromURL(context.Background(), "redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	_, err = NewRedisStoreFromURL(context.Background(), "::not a url", "")
	require.Error(t, err)
}
