// Package lockfile detects package-manager lockfiles in a project directory
// and derives a short, deterministic content hash from each one. The hash
// feeds cache volume naming: identical lockfile contents always resolve to
// the same volume, regardless of when or where the sandbox runs.
package lockfile

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

// hashFileContents returns the first 12 hex characters (6 bytes) of the
// SHA-256 digest of path's contents. This is a naming identifier, not a
// security digest: collisions are tolerable and would only cause an
// unrelated cache volume to be reused.
func hashFileContents(path string) (string, error) {
	contents, err := os.ReadFile(path)
	if err != nil {
		return "", minoerrors.LockfileReadFailed(path, err)
	}
	sum := sha256.Sum256(contents)
	return hex.EncodeToString(sum[:6]), nil
}

// Detect scans projectDir for known lockfile patterns in the fixed
// ecosystem order defined by types.Ecosystems, taking at most one match
// per ecosystem (the first pattern in that ecosystem's list that exists).
func Detect(projectDir string) ([]types.LockfileInfo, error) {
	var found []types.LockfileInfo

	for _, eco := range types.Ecosystems {
		for _, pattern := range eco.LockfilePatterns() {
			path := filepath.Join(projectDir, pattern)
			info, err := os.Stat(path)
			if err != nil || info.IsDir() {
				continue
			}

			hash, err := hashFileContents(path)
			if err != nil {
				return nil, err
			}

			log.Debug().Str("ecosystem", string(eco)).Str("path", path).Msg("detected lockfile")
			found = append(found, types.LockfileInfo{
				Ecosystem: eco,
				Path:      path,
				Hash:      hash,
			})
			break
		}
	}

	log.Debug().Int("count", len(found)).Msg("lockfile detection complete")
	return found, nil
}
