package runtime_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/minotaur-dev/minotaur/pkg/runtime"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

func indexOf(args []string, s string) int {
	for i, a := range args {
		if a == s {
			return i
		}
	}
	return -1
}

func TestPushArgsCapDropBeforeCapAdd(t *testing.T) {
	config := types.ContainerConfig{
		Image:   "alpine",
		Workdir: "/workspace",
		Network: "bridge",
		CapDrop: []string{"ALL"},
		CapAdd:  []string{"NET_ADMIN"},
	}
	args := runtime.PushArgs(nil, config, []string{"echo", "hi"})

	dropIdx := indexOf(args, "--cap-drop")
	addIdx := indexOf(args, "--cap-add")
	assert.Greater(t, addIdx, dropIdx)
}

func TestPushArgsAutoRemove(t *testing.T) {
	config := types.ContainerConfig{Image: "alpine", AutoRemove: true}
	args := runtime.PushArgs(nil, config, []string{"true"})
	assert.Equal(t, "--rm", args[0])

	config.AutoRemove = false
	args = runtime.PushArgs(nil, config, []string{"true"})
	assert.NotContains(t, args, "--rm")
}

func TestPushArgsNoPidsLimitWhenZero(t *testing.T) {
	config := types.ContainerConfig{Image: "alpine", PidsLimit: 0}
	args := runtime.PushArgs(nil, config, []string{"true"})
	assert.NotContains(t, args, "--pids-limit")

	config.PidsLimit = 256
	args = runtime.PushArgs(nil, config, []string{"true"})
	idx := indexOf(args, "--pids-limit")
	assert.GreaterOrEqual(t, idx, 0)
	assert.Equal(t, "256", args[idx+1])
}

func TestPushArgsOrderImageThenCommandLast(t *testing.T) {
	config := types.ContainerConfig{
		Image:   "alpine",
		Workdir: "/workspace",
		Network: "bridge",
		Volumes: []string{"minotaur-cache-npm-abc:/cache"},
		Env:     map[string]string{"FOO": "bar"},
	}
	args := runtime.PushArgs(nil, config, []string{"npm", "install"})

	joined := strings.Join(args, " ")
	imgIdx := indexOf(args, "alpine")
	assert.GreaterOrEqual(t, imgIdx, 0)
	assert.Equal(t, []string{"npm", "install"}, args[imgIdx+1:])
	assert.Contains(t, joined, "-v minotaur-cache-npm-abc:/cache")
	assert.Contains(t, joined, "-e FOO=bar")
}
