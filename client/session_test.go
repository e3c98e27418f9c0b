package client_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roadlog/fleet-auth/client"
	"github.com/roadlog/fleet-auth/users"
)

func TestFileStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	store := client.NewFileStore(path)

	// Missing file reads as an anonymous session.
	session, err := store.Load()
	require.NoError(t, err)
	require.False(t, session.Authenticated)

	saved := client.Session{
		User:          &users.User{ID: "user-1", Email: "admin@example.com", Role: users.RoleAdmin},
		AccessToken:   "access-1",
		RefreshToken:  "refresh-1",
		Authenticated: true,
	}
	require.NoError(t, store.Save(saved))

	// A new store over the same path sees the persisted session.
	loaded, err := client.NewFileStore(path).Load()
	require.NoError(t, err)
	require.Equal(t, saved, loaded)

	require.NoError(t, store.Clear())
	session, err = store.Load()
	require.NoError(t, err)
	require.False(t, session.Authenticated)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	session, err := client.NewFileStore(path).Load()
	require.NoError(t, err)
	require.False(t, session.Authenticated)
}
