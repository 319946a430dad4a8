// Package session persists sandbox run records, one JSON file per
// session name, under minotaur's state directory.
package session

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/minotaur-dev/minotaur/pkg/config"
	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

// New builds a fresh session record in the given status, with a random
// ID and created/updated timestamps set to now.
func New(name, projectDir string, command []string, status types.SessionStatus) types.Session {
	now := time.Now().UTC()
	return types.Session{
		ID:          uuid.NewString(),
		Name:        name,
		ProjectDir:  projectDir,
		Command:     command,
		Status:      status,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func filePath(name string) (string, error) {
	dir, err := config.SessionsDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".json"), nil
}

// Manager handles session CRUD and time-based cleanup.
type Manager struct{}

// NewManager ensures minotaur's state directories exist and returns a
// Manager ready to use.
func NewManager() (*Manager, error) {
	if err := config.EnsureStateDirs(); err != nil {
		return nil, err
	}
	return &Manager{}, nil
}

// Create persists a new session record. Session names are not locked
// against concurrent writers; callers are expected to check Get first.
func (m *Manager) Create(s types.Session) error {
	if err := Save(s); err != nil {
		return err
	}
	log.Debug().Str("session", s.Name).Msg("created session")
	return nil
}

// Get loads a session by name, returning (zero value, false, nil) if it
// does not exist.
func (m *Manager) Get(name string) (types.Session, bool, error) {
	return Load(name)
}

// List returns every persisted session, newest first.
func (m *Manager) List() ([]types.Session, error) {
	return ListAll()
}

// UpdateStatus transitions a session to a new status.
func (m *Manager) UpdateStatus(name string, status types.SessionStatus) error {
	s, ok, err := Load(name)
	if err != nil {
		return err
	}
	if !ok {
		return minoerrors.SessionNotFound(name)
	}
	s.Status = status
	s.UpdatedAt = time.Now().UTC()
	if err := Save(s); err != nil {
		return err
	}
	log.Debug().Str("session", name).Str("status", string(status)).Msg("updated session status")
	return nil
}

// SetContainerID records the container ID once a session's container
// has started.
func (m *Manager) SetContainerID(name, containerID string) error {
	s, ok, err := Load(name)
	if err != nil {
		return err
	}
	if !ok {
		return minoerrors.SessionNotFound(name)
	}
	s.ContainerID = containerID
	s.UpdatedAt = time.Now().UTC()
	return Save(s)
}

// Delete removes a session's record.
func (m *Manager) Delete(name string) error {
	s, ok, err := Load(name)
	if err != nil {
		return err
	}
	if !ok {
		return minoerrors.SessionNotFound(name)
	}
	if err := remove(s); err != nil {
		return err
	}
	log.Debug().Str("session", name).Msg("deleted session")
	return nil
}

// FindByContainer returns the session whose ContainerID matches, if any.
func (m *Manager) FindByContainer(containerID string) (types.Session, bool, error) {
	sessions, err := ListAll()
	if err != nil {
		return types.Session{}, false, err
	}
	for _, s := range sessions {
		if s.ContainerID == containerID {
			return s, true, nil
		}
	}
	return types.Session{}, false, nil
}

// Cleanup deletes stopped/failed sessions whose UpdatedAt is older than
// maxAgeHours, returning the number removed. maxAgeHours == 0 disables
// cleanup entirely.
func (m *Manager) Cleanup(maxAgeHours uint32) (int, error) {
	if maxAgeHours == 0 {
		return 0, nil
	}

	cutoff := time.Now().UTC().Add(-time.Duration(maxAgeHours) * time.Hour)
	sessions, err := ListAll()
	if err != nil {
		return 0, err
	}

	cleaned := 0
	for _, s := range sessions {
		terminal := s.Status == types.SessionStopped || s.Status == types.SessionFailed
		if terminal && s.UpdatedAt.Before(cutoff) {
			if err := remove(s); err != nil {
				log.Warn().Err(err).Str("session", s.Name).Msg("failed to clean up session")
				continue
			}
			log.Debug().Str("session", s.Name).Msg("cleaned up session")
			cleaned++
		}
	}
	return cleaned, nil
}

// Load reads a session by name from its JSON file.
func Load(name string) (types.Session, bool, error) {
	path, err := filePath(name)
	if err != nil {
		return types.Session{}, false, err
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return types.Session{}, false, nil
	}
	if err != nil {
		return types.Session{}, false, minoerrors.IO("reading session file "+path, err)
	}

	var s types.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return types.Session{}, false, minoerrors.Serialization("parsing session file "+path, err)
	}
	return s, true, nil
}

// Save writes a session record to its JSON file, creating the sessions
// directory if necessary.
func Save(s types.Session) error {
	path, err := filePath(s.Name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return minoerrors.IO("creating sessions directory", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return minoerrors.Serialization("encoding session "+s.Name, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return minoerrors.IO("writing session file "+path, err)
	}
	return nil
}

func remove(s types.Session) error {
	path, err := filePath(s.Name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return minoerrors.IO("deleting session file "+path, err)
	}
	return nil
}

// ListAll returns every persisted session, newest first. Entries that
// fail to parse are skipped rather than aborting the whole listing.
func ListAll() ([]types.Session, error) {
	dir, err := config.SessionsDir()
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, minoerrors.IO("reading sessions directory", err)
	}

	var sessions []types.Session
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		var s types.Session
		if err := json.Unmarshal(data, &s); err != nil {
			continue
		}
		sessions = append(sessions, s)
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}
