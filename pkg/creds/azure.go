package creds

import (
	"context"
	"encoding/json"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minotaur-dev/minotaur/pkg/config"
	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
)

const azureCacheKey = "azure-token"

type azureTokenResponse struct {
	AccessToken string `json:"accessToken"`
	ExpiresOn   string `json:"expiresOn"`
}

// AzureAccessToken gets an Azure access token via the az CLI, using the
// cache when valid.
func AzureAccessToken(ctx context.Context, cfg config.AzureConfig, cache *Cache) (string, error) {
	if cached, ok, err := cache.Get(azureCacheKey); err != nil {
		return "", err
	} else if ok {
		log.Debug().Msg("using cached Azure access token")
		return cached.Value, nil
	}

	token, expiresAt, err := azureAccessTokenInternal(ctx, cfg)
	if err != nil {
		return "", err
	}

	if err := cache.Set(azureCacheKey, cachedValue("azure", token, expiresAt)); err != nil {
		return "", err
	}
	return token, nil
}

func azureAccessTokenInternal(ctx context.Context, cfg config.AzureConfig) (string, time.Time, error) {
	log.Debug().Msg("requesting Azure access token")

	args := []string{"account", "get-access-token", "--output", "json"}
	if cfg.Subscription != "" {
		args = append(args, "--subscription", cfg.Subscription)
	}
	if cfg.Tenant != "" {
		args = append(args, "--tenant", cfg.Tenant)
	}

	out, stderr, err := runAz(ctx, args...)
	if err != nil {
		if strings.Contains(stderr, "az login") || strings.Contains(stderr, "not logged in") {
			return "", time.Time{}, minoerrors.CredentialNotAuthenticated("azure", "run: az login")
		}
		return "", time.Time{}, minoerrors.CredentialError("azure", stderr)
	}

	var resp azureTokenResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return "", time.Time{}, minoerrors.CredentialError("azure", "failed to parse response: "+err.Error())
	}

	expiresAt, err := time.Parse(time.RFC3339, resp.ExpiresOn)
	if err != nil {
		expiresAt = time.Now().UTC().Add(time.Hour)
	}
	return resp.AccessToken, expiresAt, nil
}

// AzureIsAuthenticated reports whether the az CLI has an active login.
func AzureIsAuthenticated(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "az", "account", "show")
	return cmd.Run() == nil
}

// AzureSubscription returns the az CLI's active subscription ID, or
// empty if none is set.
func AzureSubscription(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "az", "account", "show", "--query", "id", "-o", "tsv")
	out, err := cmd.Output()
	if err != nil {
		return "", nil
	}
	return strings.TrimSpace(string(out)), nil
}

func runAz(ctx context.Context, args ...string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, "az", args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return nil, "", minoerrors.CommandFailed("az "+strings.Join(args, " "), err)
		}
		return []byte(stdout.String()), stderr.String(), err
	}
	return []byte(stdout.String()), stderr.String(), nil
}
