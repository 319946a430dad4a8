//go:build darwin

// Package embedded manages the Lima microVM that backs minotaur's
// VM-tunnelled runtime on macOS. Podman itself runs inside the VM; the
// host only ever talks to it through `limactl shell` subprocesses, the
// same way a developer would drive it by hand.
package embedded

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lima-vm/lima/pkg/instance"
	"github.com/lima-vm/lima/pkg/limayaml"
	"github.com/lima-vm/lima/pkg/store"
	"github.com/rs/zerolog"
)

const (
	// InstanceName is the name of the Lima VM instance minotaur manages.
	InstanceName = "minotaur"
)

// VMManager manages the Lima VM instance that hosts podman for the
// VM-tunnelled runtime.
type VMManager struct {
	instanceName string
	instance     *store.Instance
	dataDir      string
	logger       zerolog.Logger
}

// NewVMManager creates a new Lima VM manager rooted at dataDir, which is
// bind-mounted writable into the VM so its contents are visible on both
// sides.
func NewVMManager(dataDir string) (*VMManager, error) {
	logger := zerolog.New(os.Stdout).With().
		Str("component", "lima-vm").
		Timestamp().
		Logger()

	return &VMManager{
		instanceName: InstanceName,
		dataDir:      dataDir,
		logger:       logger,
	}, nil
}

// Start starts the Lima VM, creating the instance first if necessary.
func (vm *VMManager) Start(ctx context.Context) error {
	vm.logger.Info().Msg("starting microVM")

	if !vm.isLimaInstalled() {
		return fmt.Errorf("lima is not installed; install with: brew install lima")
	}

	inst, err := store.Inspect(vm.instanceName)
	if err == nil {
		vm.instance = inst
		if inst.Status == store.StatusRunning {
			vm.logger.Info().Msg("microVM already running")
			return nil
		}
		vm.logger.Info().Msg("starting existing microVM instance")
		if err := instance.Start(ctx, inst, "", false); err != nil {
			return fmt.Errorf("failed to start microVM instance: %w", err)
		}
		return vm.waitForReady(ctx)
	}

	vm.logger.Info().Msg("creating new microVM instance")
	if err := vm.createInstance(ctx); err != nil {
		return fmt.Errorf("failed to create microVM instance: %w", err)
	}

	inst, err = store.Inspect(vm.instanceName)
	if err != nil {
		return fmt.Errorf("failed to inspect created instance: %w", err)
	}
	vm.instance = inst

	if err := instance.Start(ctx, inst, "", false); err != nil {
		return fmt.Errorf("failed to start microVM instance: %w", err)
	}

	if err := vm.waitForReady(ctx); err != nil {
		return fmt.Errorf("microVM failed to become ready: %w", err)
	}

	vm.logger.Info().Msg("microVM started")
	return nil
}

// Stop stops the Lima VM, attempting a graceful shutdown first.
func (vm *VMManager) Stop(ctx context.Context) error {
	if vm.instance == nil {
		return nil
	}

	vm.logger.Info().Msg("stopping microVM")
	if err := instance.StopGracefully(ctx, vm.instance, false); err != nil {
		vm.logger.Warn().Msgf("graceful stop failed: %v, forcing stop", err)
		instance.StopForcibly(vm.instance)
	}
	vm.logger.Info().Msg("microVM stopped")
	return nil
}

// IsRunning reports whether the managed instance currently exists and is
// in the running state.
func (vm *VMManager) IsRunning() bool {
	inst, err := store.Inspect(vm.instanceName)
	if err != nil {
		return false
	}
	return inst.Status == store.StatusRunning
}

// Exec runs args as a command inside the VM via `limactl shell`,
// returning combined stdout/stderr and a non-nil error if limactl fails
// to launch or the command exits non-zero. This is the
// only channel the VM-tunnelled runtime uses to reach podman: no socket,
// no client library.
func (vm *VMManager) Exec(ctx context.Context, args ...string) ([]byte, error) {
	full := append([]string{"shell", vm.instanceName, "--"}, args...)
	cmd := exec.CommandContext(ctx, "limactl", full...)
	return cmd.CombinedOutput()
}

// EnsurePodman verifies podman is installed inside the VM, installing it
// via the guest distro's package manager if not.
func (vm *VMManager) EnsurePodman(ctx context.Context) error {
	if out, err := vm.Exec(ctx, "which", "podman"); err == nil && strings.TrimSpace(string(out)) != "" {
		return nil
	}

	vm.logger.Info().Msg("installing podman inside microVM")
	for _, attempt := range [][]string{
		{"sudo", "apk", "add", "podman"},
		{"sudo", "apt-get", "install", "-y", "podman"},
		{"sudo", "dnf", "install", "-y", "podman"},
	} {
		if _, err := vm.Exec(ctx, attempt...); err == nil {
			return nil
		}
	}
	return fmt.Errorf("failed to install podman in microVM: no supported package manager succeeded")
}

func (vm *VMManager) createInstance(ctx context.Context) error {
	config := vm.createLimaConfig()

	configYAML, err := limayaml.Marshal(&config, false)
	if err != nil {
		return fmt.Errorf("failed to marshal microVM config: %w", err)
	}

	_, err = instance.Create(ctx, vm.instanceName, configYAML, false)
	if err != nil {
		return fmt.Errorf("failed to create instance: %w", err)
	}
	return nil
}

func (vm *VMManager) createLimaConfig() limayaml.LimaYAML {
	arch := limayaml.AARCH64
	if runtime.GOARCH == "amd64" {
		arch = limayaml.X8664
	}

	cpus := 2
	memory := "2GiB"
	disk := "20GiB"

	return limayaml.LimaYAML{
		Arch:   &arch,
		CPUs:   &cpus,
		Memory: &memory,
		Disk:   &disk,

		Images: []limayaml.Image{
			{
				File: limayaml.File{
					Location: "https://dl-cdn.alpinelinux.org/alpine/v3.19/releases/cloud/alpine-virt-3.19.0-aarch64.iso",
					Arch:     limayaml.AARCH64,
				},
			},
			{
				File: limayaml.File{
					Location: "https://dl-cdn.alpinelinux.org/alpine/v3.19/releases/cloud/alpine-virt-3.19.0-x86_64.iso",
					Arch:     limayaml.X8664,
				},
			},
		},

		Mounts: []limayaml.Mount{
			{
				Location: vm.dataDir,
				Writable: ptrBool(true),
			},
		},

		Provision: []limayaml.Provision{
			{
				Mode:   limayaml.ProvisionModeSystem,
				Script: "#!/bin/sh\nset -eux -o pipefail\nif ! command -v podman > /dev/null; then\n  apk add podman\nfi",
			},
		},

		Message: "minotaur microVM ready",
	}
}

func (vm *VMManager) waitForReady(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for microVM to become ready")
		case <-ticker.C:
			inst, err := store.Inspect(vm.instanceName)
			if err != nil {
				vm.logger.Debug().Msgf("failed to inspect instance: %v", err)
				continue
			}
			if inst.Status == store.StatusRunning {
				vm.logger.Info().Msg("microVM is running")
				return nil
			}
		}
	}
}

func (vm *VMManager) isLimaInstalled() bool {
	_, err := exec.LookPath("limactl")
	return err == nil
}

func ptrBool(b bool) *bool { return &b }

// DataDirMountPoint returns where dataDir is mounted inside the VM. Lima
// mounts a host path at the same absolute path inside the guest, so this
// is a pass-through today but isolates the convention for callers.
func DataDirMountPoint(dataDir string) string {
	return filepath.Clean(dataDir)
}
