// Package audit writes an append-only JSON-lines record of security
// relevant events. It is on by default, since an audit trail for a
// sandbox tool should be opt-out rather than opt-in, and it never lets a
// logging failure propagate into the caller's primary workflow.
package audit

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog/log"

	"github.com/minotaur-dev/minotaur/pkg/config"
)

// maxAuditLogBytes bounds the size of the live audit log before it is
// rotated into a gzipped sibling. An always-on audit trail on a long-lived
// workstation would otherwise grow unbounded.
const maxAuditLogBytes = 10 * 1024 * 1024

// Log appends JSON-lines audit events to a file.
type Log struct {
	enabled bool
	path    string
}

// New builds a Log from the audit_log config flag, writing to
// minotaur's default state-directory audit file.
func New(enabled bool) (*Log, error) {
	path, err := config.AuditLogPath()
	if err != nil {
		return nil, err
	}
	return &Log{enabled: enabled, path: path}, nil
}

// WithPath builds a Log that writes to an explicit path, bypassing the
// default state directory. Used by tests.
func WithPath(enabled bool, path string) *Log {
	return &Log{enabled: enabled, path: path}
}

type entry struct {
	Timestamp string      `json:"timestamp"`
	Event     string      `json:"event"`
	Data      interface{} `json:"data"`
}

// Record appends a single audit event as a JSON line. Failures are
// logged and swallowed rather than returned: audit logging must never
// block or crash the caller.
func (l *Log) Record(event string, data interface{}) {
	if l == nil || !l.enabled {
		return
	}

	e := entry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Event:     event,
		Data:      data,
	}

	line, err := json.Marshal(e)
	if err != nil {
		log.Warn().Err(err).Msg("failed to serialize audit event")
		return
	}
	line = append(line, '\n')

	if err := l.append(line); err != nil {
		log.Warn().Err(err).Msg("failed to write audit log")
	}
}

func (l *Log) append(line []byte) error {
	if dir := filepath.Dir(l.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	if err := l.rotateIfOversize(); err != nil {
		log.Warn().Err(err).Msg("failed to rotate audit log")
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.Write(line)
	return err
}

// rotateIfOversize gzips the current log to "<path>.1.gz" (replacing any
// prior rotation) and truncates the live file, once it crosses
// maxAuditLogBytes. A rotation failure is non-fatal: the caller keeps
// appending to the existing file.
func (l *Log) rotateIfOversize() error {
	info, err := os.Stat(l.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size() < maxAuditLogBytes {
		return nil
	}

	src, err := os.Open(l.path)
	if err != nil {
		return err
	}
	defer src.Close()

	rotatedPath := l.path + ".1.gz"
	dst, err := os.OpenFile(rotatedPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(dst)
	_, copyErr := io.Copy(gz, src)
	closeErr := gz.Close()
	dst.Close()
	if copyErr != nil {
		return copyErr
	}
	if closeErr != nil {
		return closeErr
	}

	return os.Truncate(l.path, 0)
}
