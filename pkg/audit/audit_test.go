package audit_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minotaur-dev/minotaur/pkg/audit"
)

func TestRecordWritesJSONLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := audit.WithPath(true, path)

	log.Record("session.created", map[string]string{"name": "test-session"})

	content, err := os.ReadFile(path)
	require.NoError(t, err)

	var parsed map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(string(content))), &parsed))
	assert.Equal(t, "session.created", parsed["event"])
	assert.NotEmpty(t, parsed["timestamp"])
	data := parsed["data"].(map[string]interface{})
	assert.Equal(t, "test-session", data["name"])
}

func TestRecordAppendsMultipleLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := audit.WithPath(true, path)

	log.Record("event.one", map[string]string{})
	log.Record("event.two", map[string]string{})

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(content)), "\n")
	assert.Len(t, lines, 2)
}

func TestRecordSkipsWhenDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.log")
	log := audit.WithPath(false, path)

	log.Record("should.not.appear", map[string]string{})

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestRecordOnNilLogIsNoop(t *testing.T) {
	var log *audit.Log
	assert.NotPanics(t, func() {
		log.Record("noop", nil)
	})
}
