package creds

import (
	"context"
	"encoding/json"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minotaur-dev/minotaur/pkg/config"
	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
)

const awsCacheKey = "aws-session"

// AWSSessionCredentials are the three values a sandbox container needs
// to act as the caller's AWS identity.
type AWSSessionCredentials struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ExpiresAt       *time.Time
}

type serializableAWSCreds struct {
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
	SessionToken    string `json:"session_token"`
}

type stsCredentials struct {
	AccessKeyID     string `json:"AccessKeyId"`
	SecretAccessKey string `json:"SecretAccessKey"`
	SessionToken    string `json:"SessionToken"`
	Expiration      string `json:"Expiration"`
}

type stsResponse struct {
	Credentials stsCredentials `json:"Credentials"`
}

// AWSSessionToken obtains AWS session credentials, using the cache when
// valid and falling back to `aws sts get-session-token` or
// `aws sts assume-role` (when RoleARN is set) via the AWS CLI.
func AWSSessionToken(ctx context.Context, cfg config.AWSConfig, cache *Cache) (AWSSessionCredentials, error) {
	if cached, ok, err := cache.Get(awsCacheKey); err != nil {
		return AWSSessionCredentials{}, err
	} else if ok {
		log.Debug().Msg("using cached AWS credentials")
		var parsed serializableAWSCreds
		if err := json.Unmarshal([]byte(cached.Value), &parsed); err != nil {
			return AWSSessionCredentials{}, minoerrors.Serialization("parsing cached AWS credentials", err)
		}
		expiresAt := cached.ExpiresAt
		return AWSSessionCredentials{
			AccessKeyID:     parsed.AccessKeyID,
			SecretAccessKey: parsed.SecretAccessKey,
			SessionToken:    parsed.SessionToken,
			ExpiresAt:       &expiresAt,
		}, nil
	}

	var creds AWSSessionCredentials
	var err error
	if cfg.RoleARN != "" {
		creds, err = awsAssumeRole(ctx, cfg)
	} else {
		creds, err = awsGetSessionToken(ctx, cfg)
	}
	if err != nil {
		return AWSSessionCredentials{}, err
	}

	if creds.ExpiresAt != nil {
		payload, err := json.Marshal(serializableAWSCreds{
			AccessKeyID:     creds.AccessKeyID,
			SecretAccessKey: creds.SecretAccessKey,
			SessionToken:    creds.SessionToken,
		})
		if err != nil {
			return AWSSessionCredentials{}, minoerrors.Serialization("encoding AWS credentials", err)
		}
		if err := cache.Set(awsCacheKey, cachedValue("aws", string(payload), *creds.ExpiresAt)); err != nil {
			return AWSSessionCredentials{}, err
		}
	}

	return creds, nil
}

func awsGetSessionToken(ctx context.Context, cfg config.AWSConfig) (AWSSessionCredentials, error) {
	log.Debug().Msg("requesting AWS session token via CLI")

	args := []string{"sts", "get-session-token",
		"--duration-seconds", strconv.Itoa(cfg.SessionDurationSecs),
		"--output", "json"}
	if cfg.Profile != "" {
		args = append(args, "--profile", cfg.Profile)
	}
	if cfg.Region != "" {
		args = append(args, "--region", cfg.Region)
	}

	out, stderr, err := runAWS(ctx, args...)
	if err != nil {
		if strings.Contains(stderr, "Unable to locate credentials") || strings.Contains(stderr, "not configured") {
			return AWSSessionCredentials{}, minoerrors.CredentialNotConfigured("aws", "run: aws configure")
		}
		return AWSSessionCredentials{}, minoerrors.CredentialError("aws", stderr)
	}

	var resp stsResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return AWSSessionCredentials{}, minoerrors.CredentialError("aws", "failed to parse response: "+err.Error())
	}
	return awsCredsFromSTS(resp.Credentials), nil
}

func awsAssumeRole(ctx context.Context, cfg config.AWSConfig) (AWSSessionCredentials, error) {
	if cfg.RoleARN == "" {
		return AWSSessionCredentials{}, minoerrors.CredentialError("aws", "no role ARN configured")
	}

	log.Debug().Str("role_arn", cfg.RoleARN).Msg("assuming AWS role")

	args := []string{"sts", "assume-role",
		"--role-arn", cfg.RoleARN,
		"--role-session-name", "minotaur-session",
		"--duration-seconds", strconv.Itoa(cfg.SessionDurationSecs),
		"--output", "json"}
	if cfg.ExternalID != "" {
		args = append(args, "--external-id", cfg.ExternalID)
	}
	if cfg.Profile != "" {
		args = append(args, "--profile", cfg.Profile)
	}
	if cfg.Region != "" {
		args = append(args, "--region", cfg.Region)
	}

	out, stderr, err := runAWS(ctx, args...)
	if err != nil {
		return AWSSessionCredentials{}, minoerrors.CredentialError("aws", stderr)
	}

	var resp stsResponse
	if err := json.Unmarshal(out, &resp); err != nil {
		return AWSSessionCredentials{}, minoerrors.CredentialError("aws", "failed to parse response: "+err.Error())
	}
	return awsCredsFromSTS(resp.Credentials), nil
}

func awsCredsFromSTS(c stsCredentials) AWSSessionCredentials {
	creds := AWSSessionCredentials{
		AccessKeyID:     c.AccessKeyID,
		SecretAccessKey: c.SecretAccessKey,
		SessionToken:    c.SessionToken,
	}
	if t, err := time.Parse(time.RFC3339, c.Expiration); err == nil {
		creds.ExpiresAt = &t
	}
	return creds
}

// AWSIsConfigured reports whether the AWS CLI has usable credentials.
func AWSIsConfigured(ctx context.Context) bool {
	cmd := exec.CommandContext(ctx, "aws", "sts", "get-caller-identity")
	return cmd.Run() == nil
}

// runAWS runs the aws CLI and returns stdout/stderr. err is non-nil
// both when the binary fails to launch and when it exits non-zero;
// callers distinguish failure reasons by inspecting stderr.
func runAWS(ctx context.Context, args ...string) ([]byte, string, error) {
	cmd := exec.CommandContext(ctx, "aws", args...)
	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if err != nil {
		if _, isExit := err.(*exec.ExitError); !isExit {
			return nil, "", minoerrors.CommandFailed("aws "+strings.Join(args, " "), err)
		}
		return []byte(stdout.String()), stderr.String(), err
	}
	return []byte(stdout.String()), stderr.String(), nil
}
