package session_test

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minotaur-dev/minotaur/pkg/session"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

func withStateHome(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_STATE_HOME", dir)
	_ = os.MkdirAll(dir, 0o755)
}

func TestNewSession(t *testing.T) {
	s := session.New("test-session", "/project", []string{"bash"}, types.SessionStarting)
	assert.Equal(t, "test-session", s.Name)
	assert.Equal(t, types.SessionStarting, s.Status)
	assert.Empty(t, s.ContainerID)
	assert.NotEmpty(t, s.ID)
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	withStateHome(t)
	s := session.New("roundtrip", "/project", []string{"bash"}, types.SessionRunning)

	require.NoError(t, session.Save(s))
	loaded, ok, err := session.Load("roundtrip")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, s.Name, loaded.Name)
	assert.Equal(t, s.Status, loaded.Status)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	withStateHome(t)
	_, ok, err := session.Load("does-not-exist")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerUpdateStatusAndSetContainerID(t *testing.T) {
	withStateHome(t)
	manager, err := session.NewManager()
	require.NoError(t, err)

	s := session.New("managed", "/project", []string{"bash"}, types.SessionStarting)
	require.NoError(t, manager.Create(s))

	require.NoError(t, manager.UpdateStatus("managed", types.SessionRunning))
	loaded, ok, err := manager.Get("managed")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.SessionRunning, loaded.Status)

	require.NoError(t, manager.SetContainerID("managed", "abc123"))
	loaded, _, _ = manager.Get("managed")
	assert.Equal(t, "abc123", loaded.ContainerID)
}

func TestManagerUpdateStatusMissingSessionErrors(t *testing.T) {
	withStateHome(t)
	manager, err := session.NewManager()
	require.NoError(t, err)

	err = manager.UpdateStatus("ghost", types.SessionRunning)
	assert.Error(t, err)
}

func TestManagerFindByContainer(t *testing.T) {
	withStateHome(t)
	manager, err := session.NewManager()
	require.NoError(t, err)

	s := session.New("findme", "/project", []string{"bash"}, types.SessionRunning)
	s.ContainerID = "container-xyz"
	require.NoError(t, manager.Create(s))

	found, ok, err := manager.FindByContainer("container-xyz")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "findme", found.Name)

	_, ok, err = manager.FindByContainer("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestManagerCleanupRemovesOldTerminalSessions(t *testing.T) {
	withStateHome(t)
	manager, err := session.NewManager()
	require.NoError(t, err)

	old := session.New("old-stopped", "/project", nil, types.SessionStopped)
	old.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, session.Save(old))

	fresh := session.New("fresh-running", "/project", nil, types.SessionRunning)
	require.NoError(t, session.Save(fresh))

	cleaned, err := manager.Cleanup(24)
	require.NoError(t, err)
	assert.Equal(t, 1, cleaned)

	_, ok, _ := manager.Get("old-stopped")
	assert.False(t, ok)
	_, ok, _ = manager.Get("fresh-running")
	assert.True(t, ok)
}

func TestManagerCleanupDisabledWhenZero(t *testing.T) {
	withStateHome(t)
	manager, err := session.NewManager()
	require.NoError(t, err)

	old := session.New("old-stopped", "/project", nil, types.SessionStopped)
	old.UpdatedAt = time.Now().UTC().Add(-1000 * time.Hour)
	require.NoError(t, session.Save(old))

	cleaned, err := manager.Cleanup(0)
	require.NoError(t, err)
	assert.Equal(t, 0, cleaned)
}

func TestListAllSortedNewestFirst(t *testing.T) {
	withStateHome(t)

	first := session.New("first", "/project", nil, types.SessionRunning)
	first.CreatedAt = time.Now().UTC().Add(-1 * time.Hour)
	require.NoError(t, session.Save(first))

	second := session.New("second", "/project", nil, types.SessionRunning)
	second.CreatedAt = time.Now().UTC()
	require.NoError(t, session.Save(second))

	all, err := session.ListAll()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Name)
	assert.Equal(t, "first", all[1].Name)
}
