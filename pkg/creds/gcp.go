package creds

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minotaur-dev/minotaur/pkg/config"
	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
)

const gcpCacheKey = "gcp-token"

// GCPAccessToken gets the effective gcloud access token, using the
// cache when valid. Tokens are cached for 55 minutes since gcloud
// issues them with a 1 hour lifetime.
func GCPAccessToken(ctx context.Context, cfg config.GCPConfig, cache *Cache) (string, error) {
	if cached, ok, err := cache.Get(gcpCacheKey); err != nil {
		return "", err
	} else if ok {
		log.Debug().Msg("using cached GCP access token")
		return cached.Value, nil
	}

	token, err := gcpAccessTokenInternal(ctx, cfg)
	if err != nil {
		return "", err
	}

	expiresAt := time.Now().UTC().Add(55 * time.Minute)
	if err := cache.Set(gcpCacheKey, cachedValue("gcp", token, expiresAt)); err != nil {
		return "", err
	}
	return token, nil
}

func gcpAccessTokenInternal(ctx context.Context, cfg config.GCPConfig) (string, error) {
	log.Info().Msg("requesting GCP access token")

	args := []string{"auth", "print-access-token"}
	if cfg.ServiceAccount != "" {
		args = append(args, "--impersonate-service-account", cfg.ServiceAccount)
	}

	out, stderr, err := runGcloud(ctx, args...)
	if err != nil {
		if strings.Contains(stderr, "not logged in") || strings.Contains(stderr, "no active account") {
			return "", minoerrors.CredentialNotAuthenticated("gcp", "run: gcloud auth login")
		}
		return "", minoerrors.CredentialError("gcp", stderr)
	}

	token := strings.TrimSpace(string(out))
	if token == "" {
		return "", minoerrors.CredentialError("gcp", "empty token returned")
	}
	return token, nil
}

// GCPIsAuthenticated reports whether gcloud has an active account.
func GCPIsAuthenticated(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "gcloud", "auth", "print-identity-token")
	return cmd.Run() == nil
}

// GCPProject returns the gcloud CLI's configured default project, or
// empty if unset.
func GCPProject(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "gcloud", "config", "get-value", "project")
	out, err := cmd.Output()
	if err != nil {
		return "", nil
	}
	project := strings.TrimSpace(string(out))
	if project == "" || project == "(unset)" {
		return "", nil
	}
	return project, nil
}

func runGcloud(ctx context.Context, args ...string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, "gcloud", args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return nil, "", minoerrors.CommandFailed("gcloud "+strings.Join(args, " "), err)
		}
		return []byte(stdout.String()), stderr.String(), err
	}
	return []byte(stdout.String()), stderr.String(), nil
}
