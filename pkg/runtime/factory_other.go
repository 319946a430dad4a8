//go:build !darwin

package runtime

import minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"

func newMacRuntime(dataDir string) (Runtime, error) {
	return nil, minoerrors.UnsupportedPlatform("darwin runtime requested on a non-darwin build")
}
