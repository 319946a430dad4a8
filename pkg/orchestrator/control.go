package orchestrator

import (
	"context"

	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

// Stop stops and removes the session's container and marks the session
// record Stopped. A session with no recorded container ID (one that
// failed before it ever started a container) is simply marked Stopped.
func (o *Orchestrator) Stop(ctx context.Context, name string) error {
	s, ok, err := o.Sessions.Get(name)
	if err != nil {
		return err
	}
	if !ok {
		return minoerrors.SessionNotFound(name)
	}

	if s.ContainerID != "" {
		if err := o.Runtime.Stop(ctx, s.ContainerID); err != nil {
			return err
		}
	}

	if err := o.Sessions.UpdateStatus(name, types.SessionStopped); err != nil {
		return err
	}
	o.Audit.Record("session.stopped", map[string]string{"name": name})
	return nil
}

// Logs returns the trailing `lines` of output from a session's container.
func (o *Orchestrator) Logs(ctx context.Context, name string, lines int) (string, error) {
	s, ok, err := o.Sessions.Get(name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", minoerrors.SessionNotFound(name)
	}
	return o.Runtime.Logs(ctx, s.ContainerID, lines)
}

// LogsFollow streams a session's container output until cancelled.
func (o *Orchestrator) LogsFollow(ctx context.Context, name string) error {
	s, ok, err := o.Sessions.Get(name)
	if err != nil {
		return err
	}
	if !ok {
		return minoerrors.SessionNotFound(name)
	}
	return o.Runtime.LogsFollow(ctx, s.ContainerID)
}

// Attach connects the caller's terminal to a running session's container.
func (o *Orchestrator) Attach(ctx context.Context, name string) (int, error) {
	s, ok, err := o.Sessions.Get(name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, minoerrors.SessionNotFound(name)
	}
	return o.Runtime.Attach(ctx, s.ContainerID)
}

// List returns every persisted session, newest first.
func (o *Orchestrator) List() ([]types.Session, error) {
	return o.Sessions.List()
}

// CleanupSessions removes terminal sessions older than the configured
// auto-cleanup window.
func (o *Orchestrator) CleanupSessions() (int, error) {
	return o.Sessions.Cleanup(uint32(o.Config.Session.AutoCleanupHours))
}
