// Package layer resolves named toolchain layers to a manifest and install
// script, then composes them onto a base image into a single content
// addressed container image.
package layer

import (
	"embed"
	"os"
	"path/filepath"

	"github.com/minotaur-dev/minotaur/pkg/config"
	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

//go:embed images/rust/layer.toml images/rust/install.sh
//go:embed images/typescript/layer.toml images/typescript/install.sh
var builtinFS embed.FS

var builtinAliases = map[string]string{
	"rust":       "rust",
	"cargo":      "rust",
	"typescript": "typescript",
	"ts":         "typescript",
	"node":       "typescript",
}

// Resolve resolves a list of layer names against the three-tier chain:
// project-local `.minotaur/layers/<name>/`, user-global
// `<user-config>/minotaur/layers/<name>/`, then built-in embedded layers.
// The first match per name wins.
func Resolve(names []string, projectDir string) ([]types.ResolvedLayer, error) {
	resolved := make([]types.ResolvedLayer, 0, len(names))
	for _, name := range names {
		r, err := resolveSingle(name, projectDir)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, r)
	}
	return resolved, nil
}

func resolveSingle(name, projectDir string) (types.ResolvedLayer, error) {
	projectDirPath := filepath.Join(projectDir, ".minotaur", "layers", name)
	if r, ok, err := tryResolveFromDir(projectDirPath, types.LayerSourceProjectLocal); err != nil {
		return types.ResolvedLayer{}, err
	} else if ok {
		return r, nil
	}

	var userDirPath string
	if configDir, err := config.UserConfigDir(); err == nil {
		userDirPath = filepath.Join(configDir, "minotaur", "layers", name)
		if r, ok, err := tryResolveFromDir(userDirPath, types.LayerSourceUserGlobal); err != nil {
			return types.ResolvedLayer{}, err
		} else if ok {
			return r, nil
		}
	}

	if r, ok, err := resolveBuiltin(name); err != nil {
		return types.ResolvedLayer{}, err
	} else if ok {
		return r, nil
	}

	searched := []string{projectDirPath}
	if userDirPath != "" {
		searched = append(searched, userDirPath)
	}
	searched = append(searched, "built-in layers")
	return types.ResolvedLayer{}, minoerrors.LayerNotFound(name, searched)
}

// tryResolveFromDir attempts to resolve a layer from an on-disk directory.
// It returns (zero, false, nil) when the directory has no manifest at all
// (a miss, not an error) and an error when the manifest exists but the
// install script does not.
func tryResolveFromDir(dir string, source types.LayerSource) (types.ResolvedLayer, bool, error) {
	manifestPath := filepath.Join(dir, "layer.toml")
	scriptPath := filepath.Join(dir, "install.sh")

	manifestBytes, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return types.ResolvedLayer{}, false, nil
		}
		return types.ResolvedLayer{}, false, minoerrors.IO("reading layer manifest "+manifestPath, err)
	}

	if _, err := os.Stat(scriptPath); err != nil {
		return types.ResolvedLayer{}, false, minoerrors.LayerScriptMissing(filepath.Base(dir), dir)
	}

	manifest, err := ParseManifest(manifestBytes)
	if err != nil {
		return types.ResolvedLayer{}, false, err
	}

	return types.ResolvedLayer{
		Manifest:   manifest,
		ScriptPath: scriptPath,
		Source:     source,
	}, true, nil
}

func resolveBuiltin(name string) (types.ResolvedLayer, bool, error) {
	canonical, ok := builtinAliases[name]
	if !ok {
		return types.ResolvedLayer{}, false, nil
	}

	manifestBytes, err := builtinFS.ReadFile("images/" + canonical + "/layer.toml")
	if err != nil {
		return types.ResolvedLayer{}, false, minoerrors.IO("reading embedded layer manifest for "+canonical, err)
	}
	scriptBytes, err := builtinFS.ReadFile("images/" + canonical + "/install.sh")
	if err != nil {
		return types.ResolvedLayer{}, false, minoerrors.IO("reading embedded install script for "+canonical, err)
	}

	manifest, err := ParseManifest(manifestBytes)
	if err != nil {
		return types.ResolvedLayer{}, false, err
	}

	return types.ResolvedLayer{
		Manifest:      manifest,
		ScriptContent: scriptBytes,
		Source:        types.LayerSourceBuiltIn,
	}, true, nil
}

// Content returns the install script bytes for a resolved layer, reading
// from disk for project-local/user-global layers or returning the
// embedded bytes directly for built-ins.
func Content(r types.ResolvedLayer) ([]byte, error) {
	if r.ScriptContent != nil {
		return r.ScriptContent, nil
	}
	content, err := os.ReadFile(r.ScriptPath)
	if err != nil {
		return nil, minoerrors.IO("reading install script "+r.ScriptPath, err)
	}
	return content, nil
}
