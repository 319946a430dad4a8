package runtime_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minotaur-dev/minotaur/pkg/runtime"
)

func TestStreamOutputCollectsBothStreams(t *testing.T) {
	stdout := strings.NewReader("out1\nout2\n")
	stderr := strings.NewReader("err1\n")

	var mu sync.Mutex
	var seen []string
	lines := runtime.StreamOutput(stdout, stderr, func(line string) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, line)
	})

	require.Len(t, lines, 3)
	assert.Len(t, seen, 3)
	assert.Contains(t, lines, "out1")
	assert.Contains(t, lines, "out2")
	assert.Contains(t, lines, "err1")
}

func TestBuildErrorOutputCapsTail(t *testing.T) {
	stdout := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		stdout = append(stdout, "line")
	}
	combined := runtime.BuildErrorOutput(stdout, nil)
	assert.Equal(t, runtime.BuildErrorTailLines, len(strings.Split(combined, "\n")))
}
