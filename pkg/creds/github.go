package creds

import (
	"context"
	"os/exec"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/minotaur-dev/minotaur/pkg/config"
	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
)

// GitHubToken fetches an auth token from the gh CLI. GitHub tokens are
// not cached: `gh auth token` already reads from the CLI's own keyring
// and is cheap to call every time.
func GitHubToken(ctx context.Context, cfg config.GithubConfig) (string, error) {
	log.Debug().Msg("getting GitHub token from gh CLI")

	args := []string{"auth", "token"}
	if cfg.Host != "" && cfg.Host != "github.com" {
		args = append(args, "--hostname", cfg.Host)
	}

	out, stderr, err := runGh(ctx, args...)
	if err != nil {
		if strings.Contains(stderr, "not logged in") || strings.Contains(stderr, "gh auth login") {
			return "", minoerrors.CredentialNotAuthenticated("github", "run: gh auth login")
		}
		return "", minoerrors.User("gh auth token failed: " + stderr)
	}

	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", minoerrors.CredentialNotAuthenticated("github", "run: gh auth login")
	}
	return token, nil
}

// GitHubIsAuthenticated reports whether the gh CLI has an active login
// for cfg.Host.
func GitHubIsAuthenticated(ctx context.Context, cfg config.GithubConfig) bool {
	args := []string{"auth", "status"}
	if cfg.Host != "" && cfg.Host != "github.com" {
		args = append(args, "--hostname", cfg.Host)
	}
	cmd := exec.CommandContext(ctx, "gh", args...)
	return cmd.Run() == nil
}

// GitHubUser returns the authenticated gh CLI user's login, or empty if
// the call fails.
func GitHubUser(ctx context.Context, cfg config.GithubConfig) (string, error) {
	args := []string{"api", "user", "--jq", ".login"}
	if cfg.Host != "" && cfg.Host != "github.com" {
		args = append(args, "--hostname", cfg.Host)
	}
	cmd := exec.CommandContext(ctx, "gh", args...)
	out, err := cmd.Output()
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(string(out)), nil
}

func runGh(ctx context.Context, args ...string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, "gh", args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return nil, "", minoerrors.CommandFailed("gh "+strings.Join(args, " "), err)
		}
		return []byte(stdout.String()), stderr.String(), err
	}
	return []byte(stdout.String()), stderr.String(), nil
}
