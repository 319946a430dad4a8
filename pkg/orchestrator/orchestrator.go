// Package orchestrator wires together lockfile detection, cache volume
// planning, layer resolution, image composition, credential gathering,
// network policy resolution, and the runtime abstraction into the single
// `run` pipeline that materialises a sandbox session.
package orchestrator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/minotaur-dev/minotaur/pkg/audit"
	"github.com/minotaur-dev/minotaur/pkg/config"
	"github.com/minotaur-dev/minotaur/pkg/creds"
	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/layer"
	"github.com/minotaur-dev/minotaur/pkg/lockfile"
	"github.com/minotaur-dev/minotaur/pkg/metrics"
	"github.com/minotaur-dev/minotaur/pkg/network"
	"github.com/minotaur-dev/minotaur/pkg/runtime"
	"github.com/minotaur-dev/minotaur/pkg/session"
	"github.com/minotaur-dev/minotaur/pkg/types"
	"github.com/minotaur-dev/minotaur/pkg/volume"
)

// RunOptions bundles every CLI/config input the run pipeline needs.
type RunOptions struct {
	Name       string
	ProjectDir string
	Command    []string

	Image  string // overrides config.Container.Image when non-empty
	Layers []string

	EnvOverrides    map[string]string
	VolumeOverrides []string

	AWS        bool
	GCP        bool
	Azure      bool
	GitHub     bool
	AllClouds  bool
	SSHAgent   bool

	NetworkMode       string // "" lets config/default decide
	NetworkAllowRules []string

	NoCache    bool
	CacheFresh bool

	Detach bool
}

// Orchestrator holds the long-lived collaborators a run invocation needs.
type Orchestrator struct {
	Runtime   runtime.Runtime
	Config    config.Config
	Sessions  *session.Manager
	Audit     *audit.Log
	CredCache *creds.Cache
}

// New assembles an Orchestrator for the current platform: detects and
// readies the appropriate runtime backend, loads configuration, and opens
// the session store, credential cache, and audit log.
func New(ctx context.Context, dataDir string) (*Orchestrator, error) {
	rt, err := runtime.New(dataDir)
	if err != nil {
		return nil, err
	}
	if err := rt.EnsureReady(ctx); err != nil {
		return nil, err
	}

	mgr, err := config.New()
	if err != nil {
		return nil, err
	}
	cfg, err := mgr.Load()
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewManager()
	if err != nil {
		return nil, err
	}

	cache, err := creds.NewCache()
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.New(cfg.General.AuditLog)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{Runtime: rt, Config: cfg, Sessions: sessions, Audit: auditLog, CredCache: cache}, nil
}

// Run executes the full sandbox materialisation pipeline: resolve the
// project directory and effective config, plan the dependency cache,
// compose the toolchain image, resolve network policy, gather
// credentials, assemble the container invocation, persist a session
// record, and start the container.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (types.Session, error) {
	projectDir, err := resolveProjectDir(opts.ProjectDir)
	if err != nil {
		return types.Session{}, err
	}

	cfg, err := config.MergeProjectOverride(o.Config, projectDir)
	if err != nil {
		return types.Session{}, err
	}

	name := opts.Name
	if name == "" {
		name = filepath.Base(projectDir)
	}

	if existing, ok, err := o.Sessions.Get(name); err != nil {
		return types.Session{}, err
	} else if ok && existing.Status == types.SessionRunning {
		return types.Session{}, minoerrors.SessionExists(name)
	}

	mounts, lockfiles, err := o.planCache(ctx, projectDir, opts)
	if err != nil {
		return types.Session{}, err
	}

	image := cfg.Container.Image
	if opts.Image != "" {
		image = opts.Image
	}

	composed, err := o.composeImage(ctx, image, opts.Layers, projectDir)
	if err != nil {
		return types.Session{}, err
	}

	netMode, warning, err := o.resolveNetwork(cfg, opts)
	if err != nil {
		return types.Session{}, err
	}
	if warning != "" {
		log.Warn().Msg(warning)
	}

	env, providers, err := o.gatherCredentials(ctx, cfg, opts)
	if err != nil {
		return types.Session{}, err
	}
	for _, info := range lockfiles {
		for k, v := range info.Ecosystem.CacheEnvVars() {
			env[k] = v
		}
	}
	for k, v := range composed.Env {
		env[k] = v
	}
	for k, v := range opts.EnvOverrides {
		env[k] = v
	}

	containerCfg := buildContainerConfig(composed.ImageTag, cfg, mounts, opts, env, netMode)

	command := opts.Command
	if len(command) == 0 {
		command = []string{cfg.Session.Shell}
	}
	if netMode.Kind == types.NetworkAllow {
		command = wrapWithNetworkPolicy(netMode.Rules, command)
	}

	s := session.New(name, projectDir, opts.Command, types.SessionStarting)
	s.CloudProviders = providers
	if err := o.Sessions.Create(s); err != nil {
		return types.Session{}, err
	}
	o.Audit.Record("session.created", map[string]interface{}{
		"name":         name,
		"project_dir":  projectDir,
		"ecosystems":   ecosystemNames(lockfiles),
		"capabilities": runtime.NormalizeCapabilities(containerCfg.CapAdd),
	})

	stop := metrics.ObserveStage("container_start")
	containerID, err := o.Runtime.Run(ctx, containerCfg, command)
	stop()
	if err != nil {
		_ = o.Sessions.UpdateStatus(name, types.SessionFailed)
		o.Audit.Record("session.failed", map[string]string{"name": name, "reason": err.Error()})
		return types.Session{}, err
	}

	if err := o.Sessions.SetContainerID(name, containerID); err != nil {
		return types.Session{}, err
	}
	if err := o.Sessions.UpdateStatus(name, types.SessionRunning); err != nil {
		return types.Session{}, err
	}
	metrics.SessionsStartedTotal.WithLabelValues(o.Runtime.RuntimeName()).Inc()
	o.Audit.Record("session.started", map[string]string{"name": name, "container_id": containerID})

	s, _, err = o.Sessions.Get(name)
	return s, err
}

func ecosystemNames(lockfiles []types.LockfileInfo) []string {
	names := make([]string, len(lockfiles))
	for i, l := range lockfiles {
		names[i] = string(l.Ecosystem)
	}
	return names
}

func resolveProjectDir(dir string) (string, error) {
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", minoerrors.IO("resolving current directory", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", minoerrors.IO("resolving project directory "+dir, err)
	}
	return abs, nil
}

func (o *Orchestrator) planCache(ctx context.Context, projectDir string, opts RunOptions) ([]types.CacheMount, []types.LockfileInfo, error) {
	defer metrics.ObserveStage("lockfile_detect")()

	lockfiles, err := lockfile.Detect(projectDir)
	if err != nil {
		return nil, nil, err
	}

	if !o.Config.Cache.Enabled || opts.NoCache {
		return nil, lockfiles, nil
	}

	states := make(map[string]types.CacheState)
	for _, info := range lockfiles {
		volName := info.VolumeName("minotaur")
		if opts.CacheFresh {
			metrics.RecordCacheHit("volume", false)
			continue
		}
		exists, err := o.Runtime.VolumeExists(ctx, volName)
		if err != nil {
			return nil, nil, err
		}
		if !exists {
			metrics.RecordCacheHit("volume", false)
			if err := o.Runtime.VolumeCreate(ctx, volName, volume.Labels(volume.FromLockfile(info, types.CacheStateBuilding))); err != nil {
				return nil, nil, err
			}
			continue
		}
		metrics.RecordCacheHit("volume", true)
		v, err := o.Runtime.VolumeInspect(ctx, volName)
		if err != nil {
			return nil, nil, err
		}
		if v != nil {
			decoded, ok := volume.FromLabels(volName, v.Labels)
			if ok {
				states[volName] = decoded.State
			}
		}
	}

	return volume.PlanMounts(lockfiles, states), lockfiles, nil
}

func (o *Orchestrator) composeImage(ctx context.Context, baseImage string, layerNames []string, projectDir string) (types.ComposedImageResult, error) {
	defer metrics.ObserveStage("image_compose")()

	if len(layerNames) == 0 {
		return types.ComposedImageResult{ImageTag: baseImage, Env: map[string]string{}, WasCached: true}, nil
	}

	resolved, err := layer.Resolve(layerNames, projectDir)
	if err != nil {
		return types.ComposedImageResult{}, err
	}

	composer := layer.NewComposer(o.Runtime)
	result, err := composer.Compose(ctx, baseImage, resolved)
	if err != nil {
		return types.ComposedImageResult{}, err
	}
	metrics.RecordCacheHit("image", result.WasCached)
	if !result.WasCached {
		metrics.ImagesComposedTotal.Inc()
	}
	return result, nil
}

func (o *Orchestrator) resolveNetwork(cfg config.Config, opts RunOptions) (types.NetworkMode, string, error) {
	defer metrics.ObserveStage("network_resolve")()
	return network.Resolve(network.ResolveInput{
		CLIMode:       opts.NetworkMode,
		CLIAllowRules: opts.NetworkAllowRules,
		ConfigMode:    cfg.Container.Network,
	})
}

func (o *Orchestrator) gatherCredentials(ctx context.Context, cfg config.Config, opts RunOptions) (map[string]string, []string, error) {
	defer metrics.ObserveStage("credential_fetch")()

	env := map[string]string{}
	var providers []string

	wantAWS := opts.AWS || opts.AllClouds
	wantGCP := opts.GCP || opts.AllClouds
	wantAzure := opts.Azure || opts.AllClouds
	wantGitHub := opts.GitHub || opts.AllClouds

	if wantAWS {
		timer := metrics.NewTimer()
		c, err := creds.AWSSessionToken(ctx, cfg.Credentials.AWS, o.CredCache)
		timer.ObserveDurationVec(metrics.CredentialFetchDuration, "aws")
		if err != nil {
			return nil, nil, err
		}
		env["AWS_ACCESS_KEY_ID"] = c.AccessKeyID
		env["AWS_SECRET_ACCESS_KEY"] = c.SecretAccessKey
		env["AWS_SESSION_TOKEN"] = c.SessionToken
		providers = append(providers, "aws")
	}

	if wantGCP {
		timer := metrics.NewTimer()
		token, err := creds.GCPAccessToken(ctx, cfg.Credentials.GCP, o.CredCache)
		timer.ObserveDurationVec(metrics.CredentialFetchDuration, "gcp")
		if err != nil {
			return nil, nil, err
		}
		env["CLOUDSDK_AUTH_ACCESS_TOKEN"] = token
		providers = append(providers, "gcp")
	}

	if wantAzure {
		timer := metrics.NewTimer()
		token, err := creds.AzureAccessToken(ctx, cfg.Credentials.Azure, o.CredCache)
		timer.ObserveDurationVec(metrics.CredentialFetchDuration, "azure")
		if err != nil {
			return nil, nil, err
		}
		env["AZURE_ACCESS_TOKEN"] = token
		providers = append(providers, "azure")
	}

	if wantGitHub {
		timer := metrics.NewTimer()
		token, err := creds.GitHubToken(ctx, cfg.Credentials.GitHub)
		timer.ObserveDurationVec(metrics.CredentialFetchDuration, "github")
		if err != nil {
			return nil, nil, err
		}
		env["GH_TOKEN"] = token
		env["GITHUB_TOKEN"] = token
		providers = append(providers, "github")
	}

	return env, providers, nil
}

func buildContainerConfig(image string, cfg config.Config, mounts []types.CacheMount, opts RunOptions, env map[string]string, netMode types.NetworkMode) types.ContainerConfig {
	volumes := append([]string{}, cfg.Container.Volumes...)
	for _, m := range mounts {
		volumes = append(volumes, m.VolumeArg())
	}
	volumes = append(volumes, opts.VolumeOverrides...)
	if opts.SSHAgent {
		if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
			volumes = append(volumes, fmt.Sprintf("%s:/run/ssh-agent.sock", sock))
			env["SSH_AUTH_SOCK"] = "/run/ssh-agent.sock"
		}
	}

	cc := types.ContainerConfig{
		Image:       image,
		Workdir:     cfg.Container.Workdir,
		Volumes:     volumes,
		Env:         env,
		Network:     netMode.ToPodmanNetwork(),
		Interactive: !opts.Detach,
		TTY:         !opts.Detach,
		AutoRemove:  true,
	}
	if netMode.RequiresCapNetAdmin() {
		cc.CapAdd = append(cc.CapAdd, "NET_ADMIN")
	}
	return cc
}

func wrapWithNetworkPolicy(rules []types.NetworkRule, command []string) []string {
	script := network.GenerateIptablesWrapper(rules, command)
	return []string{"/bin/sh", "-c", script}
}
