package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/creack/pty"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

// DirectRuntime drives a local rootless podman installation directly,
// with no VM layer. This is the Linux backend.
type DirectRuntime struct {
	PodmanPath string
}

// NewDirectRuntime constructs a DirectRuntime using "podman" on PATH.
func NewDirectRuntime() *DirectRuntime {
	return &DirectRuntime{PodmanPath: "podman"}
}

func (r *DirectRuntime) podman() string {
	if r.PodmanPath != "" {
		return r.PodmanPath
	}
	return "podman"
}

func (r *DirectRuntime) exec(ctx context.Context, args ...string) ([]byte, []byte, error) {
	log.Debug().Strs("args", args).Msg("executing podman")
	cmd := exec.CommandContext(ctx, r.podman(), args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return nil, nil, minoerrors.CommandFailed("podman "+strings.Join(args, " "), err)
		}
	}
	return []byte(stdout.String()), []byte(stderr.String()), nil
}

func (r *DirectRuntime) execOK(ctx context.Context, args ...string) bool {
	cmd := exec.CommandContext(ctx, r.podman(), args...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	return cmd.Run() == nil
}

func (r *DirectRuntime) podmanInstalled(ctx context.Context) bool {
	_, err := exec.LookPath(r.podman())
	if err != nil {
		return false
	}
	return r.execOK(ctx, "--version")
}

func (r *DirectRuntime) rootlessConfigured(ctx context.Context) (bool, error) {
	stdout, _, err := r.exec(ctx, "info", "--format", "{{.Host.Security.Rootless}}")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(string(stdout)) == "true", nil
}

func (r *DirectRuntime) IsAvailable(ctx context.Context) (bool, error) {
	if !r.podmanInstalled(ctx) {
		return false, nil
	}
	return r.rootlessConfigured(ctx)
}

func (r *DirectRuntime) EnsureReady(ctx context.Context) error {
	if !r.podmanInstalled(ctx) {
		return minoerrors.RuntimeNotFound("podman")
	}
	ok, err := r.rootlessConfigured(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return minoerrors.RootlessSetupIncomplete("run: podman system migrate")
	}
	return nil
}

func (r *DirectRuntime) imageExists(ctx context.Context, image string) bool {
	return r.execOK(ctx, "image", "exists", image)
}

func (r *DirectRuntime) pull(ctx context.Context, image string) error {
	_, stderr, err := r.exec(ctx, "pull", image)
	if err != nil {
		return err
	}
	if !r.imageExists(ctx, image) {
		return minoerrors.ImagePullFailed(image, strings.TrimSpace(string(stderr)))
	}
	return nil
}

func (r *DirectRuntime) Run(ctx context.Context, config types.ContainerConfig, command []string) (string, error) {
	if !r.imageExists(ctx, config.Image) {
		if err := r.pull(ctx, config.Image); err != nil {
			return "", err
		}
	}

	args := []string{"run", "-d"}
	if config.Interactive {
		args = append(args, "-i")
	}
	if config.TTY {
		args = append(args, "-t")
	}
	args = PushArgs(args, config, command)

	stdout, stderr, err := r.exec(ctx, args...)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(stderr)) != "" && strings.TrimSpace(string(stdout)) == "" {
		return "", minoerrors.ContainerStart(strings.TrimSpace(string(stderr)))
	}
	containerID := strings.TrimSpace(string(stdout))
	shortID := containerID
	if len(shortID) > 12 {
		shortID = shortID[:12]
	}
	log.Info().Str("container_id", shortID).Msg("container started")
	return containerID, nil
}

// Attach allocates a real pseudo-terminal for the attach subprocess so an
// agent driving podman through us sees the same line discipline (raw mode,
// window size, signal delivery) it would get attaching to podman by hand.
func (r *DirectRuntime) Attach(ctx context.Context, containerID string) (int, error) {
	cmd := exec.CommandContext(ctx, r.podman(), "attach", containerID)
	return attachViaPTY(cmd, "podman attach "+containerID)
}

func (r *DirectRuntime) Stop(ctx context.Context, containerID string) error {
	_, stderr, err := r.exec(ctx, "stop", containerID)
	if err != nil {
		return err
	}
	if !r.execOK(ctx, "container", "exists", containerID) {
		return nil
	}
	_ = stderr
	return nil
}

func (r *DirectRuntime) Kill(ctx context.Context, containerID string) error {
	_, stderr, err := r.exec(ctx, "kill", containerID)
	if err != nil {
		return err
	}
	if strings.Contains(string(stderr), "no such container") {
		return nil
	}
	return nil
}

func (r *DirectRuntime) Remove(ctx context.Context, containerID string) error {
	_, stderr, err := r.exec(ctx, "rm", "-f", containerID)
	if err != nil {
		return err
	}
	if strings.Contains(string(stderr), "no such container") {
		return nil
	}
	return nil
}

func (r *DirectRuntime) Logs(ctx context.Context, containerID string, lines int) (string, error) {
	tail := "all"
	if lines > 0 {
		tail = strconv.Itoa(lines)
	}
	stdout, _, err := r.exec(ctx, "logs", "--tail", tail, containerID)
	if err != nil {
		return "", err
	}
	return string(stdout), nil
}

func (r *DirectRuntime) LogsFollow(ctx context.Context, containerID string) error {
	cmd := exec.CommandContext(ctx, r.podman(), "logs", "-f", containerID)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

func (r *DirectRuntime) RuntimeName() string { return "Direct rootless podman" }

func (r *DirectRuntime) ImageExists(ctx context.Context, tag string) (bool, error) {
	return r.execOK(ctx, "image", "exists", tag), nil
}

func (r *DirectRuntime) BuildImage(ctx context.Context, buildDir, tag string) error {
	cmd := exec.CommandContext(ctx, r.podman(), "build", "-t", tag, buildDir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return minoerrors.ImageBuildFailed(tag, strings.TrimSpace(lastLines(string(output), BuildErrorTailLines)))
	}
	return nil
}

func (r *DirectRuntime) ImageRemove(ctx context.Context, tag string) error {
	_, stderr, err := r.exec(ctx, "rmi", "-f", tag)
	if err != nil {
		return err
	}
	if strings.Contains(string(stderr), "no such image") {
		return nil
	}
	return nil
}

func (r *DirectRuntime) ImageListPrefixed(ctx context.Context, prefix string) ([]string, error) {
	stdout, _, err := r.exec(ctx, "images", "--format", "{{.Repository}}:{{.Tag}}")
	if err != nil {
		return nil, err
	}
	var result []string
	for _, line := range strings.Split(strings.TrimSpace(string(stdout)), "\n") {
		if strings.HasPrefix(line, prefix) {
			result = append(result, line)
		}
	}
	return result, nil
}

func (r *DirectRuntime) VolumeCreate(ctx context.Context, name string, labels map[string]string) error {
	args := []string{"volume", "create"}
	for k, v := range labels {
		args = append(args, "--label", fmt.Sprintf("%s=%s", k, v))
	}
	args = append(args, name)

	_, stderr, err := r.exec(ctx, args...)
	if err != nil {
		return err
	}
	if !r.execOK(ctx, "volume", "exists", name) {
		return minoerrors.VolumeCreateFailed(name, strings.TrimSpace(string(stderr)))
	}
	return nil
}

func (r *DirectRuntime) VolumeExists(ctx context.Context, name string) (bool, error) {
	return r.execOK(ctx, "volume", "exists", name), nil
}

func (r *DirectRuntime) VolumeRemove(ctx context.Context, name string) error {
	_, stderr, err := r.exec(ctx, "volume", "rm", "-f", name)
	if err != nil {
		return err
	}
	if strings.Contains(string(stderr), "no such volume") {
		return nil
	}
	return nil
}

type podmanVolumeJSON struct {
	Name       string            `json:"Name"`
	Labels     map[string]string `json:"Labels"`
	Mountpoint string            `json:"Mountpoint"`
	CreatedAt  string            `json:"CreatedAt"`
}

func (r *DirectRuntime) VolumeList(ctx context.Context, prefix string) ([]types.VolumeInfo, error) {
	stdout, stderr, err := r.exec(ctx, "volume", "ls", "--format", "json")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(stdout)) == "" {
		return nil, nil
	}

	var raw []podmanVolumeJSON
	if jsonErr := json.Unmarshal(stdout, &raw); jsonErr != nil {
		return nil, minoerrors.Serialization("parsing podman volume ls output: "+strings.TrimSpace(string(stderr)), jsonErr)
	}

	var result []types.VolumeInfo
	for _, v := range raw {
		if !strings.HasPrefix(v.Name, prefix) {
			continue
		}
		result = append(result, types.VolumeInfo{
			Name:       v.Name,
			Labels:     v.Labels,
			Mountpoint: v.Mountpoint,
			CreatedAt:  v.CreatedAt,
		})
	}
	return result, nil
}

func (r *DirectRuntime) VolumeInspect(ctx context.Context, name string) (*types.VolumeInfo, error) {
	stdout, stderr, err := r.exec(ctx, "volume", "inspect", name, "--format", "json")
	if err != nil {
		return nil, err
	}
	if strings.Contains(string(stderr), "no such volume") {
		return nil, nil
	}

	var raw []podmanVolumeJSON
	if jsonErr := json.Unmarshal(stdout, &raw); jsonErr != nil {
		return nil, minoerrors.Serialization("parsing podman volume inspect output", jsonErr)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	v := raw[0]
	return &types.VolumeInfo{
		Name:       name,
		Labels:     v.Labels,
		Mountpoint: v.Mountpoint,
		CreatedAt:  v.CreatedAt,
	}, nil
}

type podmanDiskUsageVolume struct {
	VolumeName string `json:"VolumeName"`
	Size       int64  `json:"Size"`
}

type podmanDiskUsage struct {
	Volumes []podmanDiskUsageVolume `json:"Volumes"`
}

func (r *DirectRuntime) VolumeDiskUsage(ctx context.Context, prefix string) (map[string]int64, error) {
	stdout, _, err := r.exec(ctx, "system", "df", "-v", "--format", "json")
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(string(stdout)) == "" {
		return map[string]int64{}, nil
	}

	var df podmanDiskUsage
	if jsonErr := json.Unmarshal(stdout, &df); jsonErr != nil {
		return nil, minoerrors.Serialization("parsing podman system df output", jsonErr)
	}

	sizes := map[string]int64{}
	for _, v := range df.Volumes {
		if strings.HasPrefix(v.VolumeName, prefix) {
			sizes[v.VolumeName] = v.Size
		}
	}
	return sizes, nil
}

// attachViaPTY runs cmd with its controlling terminal allocated through a
// real pty, puts the host terminal into raw mode for the duration, and
// bridges stdin/stdout through the pty master. label is used in the error
// returned if cmd never starts.
func attachViaPTY(cmd *exec.Cmd, label string) (int, error) {
	ptmx, err := pty.Start(cmd)
	if err != nil {
		return -1, minoerrors.CommandFailed(label, err)
	}
	defer ptmx.Close()

	_ = pty.InheritSize(os.Stdin, ptmx)
	winch := make(chan os.Signal, 1)
	signal.Notify(winch, syscall.SIGWINCH)
	defer signal.Stop(winch)
	go func() {
		for range winch {
			_ = pty.InheritSize(os.Stdin, ptmx)
		}
	}()

	if stdinFd := int(os.Stdin.Fd()); term.IsTerminal(stdinFd) {
		if oldState, err := term.MakeRaw(stdinFd); err == nil {
			defer term.Restore(stdinFd, oldState)
		}
	}

	go func() { _, _ = io.Copy(ptmx, os.Stdin) }()
	go func() { _, _ = io.Copy(os.Stdout, ptmx) }()

	err = cmd.Wait()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	if err != nil {
		return -1, minoerrors.CommandFailed(label, err)
	}
	return 0, nil
}

func lastLines(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) <= n {
		return s
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}

var _ Runtime = (*DirectRuntime)(nil)
