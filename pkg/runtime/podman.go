package runtime

import (
	"fmt"
	"sort"

	"github.com/minotaur-dev/minotaur/pkg/types"
)

// PushArgs appends config's container creation flags and command to args,
// in the exact order podman expects: --rm when AutoRemove is set,
// working directory, network, capability drops before adds, security
// options, an optional pids-limit, volumes, env, the image, then the
// command. Detach and interactive/tty flags are not added here; callers
// put them in args beforehand. cap-drop must precede cap-add: podman
// applies flags in argument order, and a later --cap-add must win over an
// earlier --cap-drop of the same capability.
func PushArgs(args []string, config types.ContainerConfig, command []string) []string {
	if config.AutoRemove {
		args = append(args, "--rm")
	}

	args = append(args, "-w", config.Workdir)
	args = append(args, "--network", config.Network)

	for _, c := range config.CapDrop {
		args = append(args, "--cap-drop", c)
	}
	for _, c := range config.CapAdd {
		args = append(args, "--cap-add", c)
	}

	for _, s := range config.SecurityOpt {
		args = append(args, "--security-opt", s)
	}

	if config.PidsLimit > 0 {
		args = append(args, "--pids-limit", fmt.Sprintf("%d", config.PidsLimit))
	}

	for _, v := range config.Volumes {
		args = append(args, "-v", v)
	}

	envKeys := make([]string, 0, len(config.Env))
	for k := range config.Env {
		envKeys = append(envKeys, k)
	}
	sort.Strings(envKeys)
	for _, k := range envKeys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", k, config.Env[k]))
	}

	args = append(args, config.Image)
	args = append(args, command...)

	return args
}
