package layer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/rs/zerolog/log"

	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/runtime"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

// Composer builds toolchain images by layering install scripts onto a
// base image, going through the runtime abstraction for every podman
// operation so image composition works identically on DirectRuntime and
// VMTunnelRuntime. The resulting tag is content-addressed: the same base
// image plus the same set of layers always produces the same tag,
// letting a rebuild short-circuit to a cache hit.
type Composer struct {
	Runtime runtime.Runtime
	// BuildRoot is the directory under which per-build scratch
	// directories are created; defaults to ~/.local/share/minotaur/builds.
	BuildRoot string
}

// NewComposer constructs a Composer that builds images through rt.
func NewComposer(rt runtime.Runtime) *Composer {
	return &Composer{Runtime: rt}
}

func (c *Composer) buildRoot() (string, error) {
	if c.BuildRoot != "" {
		return c.BuildRoot, nil
	}
	home, err := homedir.Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "share", "minotaur", "builds"), nil
}

// ComputeImageTag derives the content-addressed tag for baseImage composed
// with layers. Layers are sorted by name before hashing so mount order
// never affects the tag, but the manifest's own Dockerfile generation
// still honours the caller's original layer order.
func ComputeImageTag(baseImage string, layers []types.ResolvedLayer) (string, error) {
	sorted := make([]types.ResolvedLayer, len(layers))
	copy(sorted, layers)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Manifest.Name < sorted[j].Manifest.Name
	})

	h := sha256.New()
	h.Write([]byte(baseImage))
	for _, l := range sorted {
		h.Write([]byte(l.Manifest.Name))
		content, err := Content(l)
		if err != nil {
			return "", err
		}
		h.Write(content)
		h.Write([]byte(l.Manifest.Version))
	}

	sum := h.Sum(nil)
	return fmt.Sprintf("minotaur-composed-%s", hex.EncodeToString(sum[:6])), nil
}

// MergeEnv flattens every layer's environment variables into one map.
// Flat keys follow last-layer-wins semantics (later layers in the caller's
// order override earlier ones). PATH prepend directories are instead
// accumulated across all layers, first-seen order deduplicated, then
// written as a single PATH entry that prepends to the existing PATH.
func MergeEnv(layers []types.ResolvedLayer) map[string]string {
	env := map[string]string{}
	var pathDirs []string
	seen := map[string]bool{}

	for _, l := range layers {
		for k, v := range l.Manifest.Env {
			env[k] = v
		}
		for _, dir := range l.Manifest.PathPrepend {
			if !seen[dir] {
				seen[dir] = true
				pathDirs = append(pathDirs, dir)
			}
		}
	}

	if len(pathDirs) > 0 {
		env["PATH"] = strings.Join(pathDirs, ":") + ":${PATH}"
	}

	return env
}

// dockerfileQuote quotes a value for a Dockerfile ENV instruction when it
// contains characters that require it: a variable reference (`$`),
// whitespace, a quote, or a backslash.
func dockerfileQuote(value string) string {
	if !strings.ContainsAny(value, "$ \t\"'\\") {
		return value
	}
	escaped := strings.ReplaceAll(value, "\\", "\\\\")
	escaped = strings.ReplaceAll(escaped, "\"", "\\\"")
	return `"` + escaped + `"`
}

// GenerateDockerfile renders the Dockerfile for baseImage composed with
// layers in the caller's original (user-specified) order, followed by a
// sorted block of merged ENV instructions.
func GenerateDockerfile(baseImage string, layers []types.ResolvedLayer, env map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "FROM %s\n\n", baseImage)

	for _, l := range layers {
		name := l.Manifest.Name
		fmt.Fprintf(&b, "# Layer: %s\n", name)
		b.WriteString("USER root\n")
		fmt.Fprintf(&b, "COPY install-%s.sh /tmp/install-%s.sh\n", name, name)
		fmt.Fprintf(&b, "RUN chmod +x /tmp/install-%s.sh && /tmp/install-%s.sh && rm /tmp/install-%s.sh\n\n", name, name, name)
	}

	b.WriteString("USER developer\n\n")

	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "ENV %s=%s\n", k, dockerfileQuote(env[k]))
	}

	b.WriteString("\nWORKDIR /workspace\n")
	b.WriteString(`CMD ["/bin/zsh"]` + "\n")

	return b.String()
}

// Compose produces a composed image for baseImage plus layers, building it
// through the runtime if it doesn't already exist. When the image already
// exists, Compose returns immediately with WasCached true. On both paths
// the returned Env map is empty: the environment is baked into the image
// as ENV instructions, so it must not be re-injected at container-run time.
func (c *Composer) Compose(ctx context.Context, baseImage string, layers []types.ResolvedLayer) (types.ComposedImageResult, error) {
	tag, err := ComputeImageTag(baseImage, layers)
	if err != nil {
		return types.ComposedImageResult{}, err
	}

	exists, err := c.Runtime.ImageExists(ctx, tag)
	if err != nil {
		return types.ComposedImageResult{}, err
	}
	if exists {
		log.Debug().Str("tag", tag).Msg("composed image cache hit")
		return types.ComposedImageResult{ImageTag: tag, Env: map[string]string{}, WasCached: true}, nil
	}

	buildDir, err := c.prepareBuildDir(baseImage, layers)
	if err != nil {
		return types.ComposedImageResult{}, err
	}
	defer os.RemoveAll(buildDir)

	if err := c.Runtime.BuildImage(ctx, buildDir, tag); err != nil {
		return types.ComposedImageResult{}, err
	}

	return types.ComposedImageResult{ImageTag: tag, Env: map[string]string{}, WasCached: false}, nil
}

func (c *Composer) prepareBuildDir(baseImage string, layers []types.ResolvedLayer) (string, error) {
	root, err := c.buildRoot()
	if err != nil {
		return "", minoerrors.IO("resolving build root", err)
	}
	dir := filepath.Join(root, uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", minoerrors.IO("creating build directory "+dir, err)
	}

	for _, l := range layers {
		content, err := Content(l)
		if err != nil {
			return "", err
		}
		scriptPath := filepath.Join(dir, "install-"+l.Manifest.Name+".sh")
		if err := os.WriteFile(scriptPath, content, 0o755); err != nil {
			return "", minoerrors.IO("writing install script "+scriptPath, err)
		}
	}

	dockerfile := GenerateDockerfile(baseImage, layers, MergeEnv(layers))
	if err := os.WriteFile(filepath.Join(dir, "Dockerfile"), []byte(dockerfile), 0o644); err != nil {
		return "", minoerrors.IO("writing Dockerfile", err)
	}

	return dir, nil
}
