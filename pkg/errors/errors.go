// Package errors defines the unified error taxonomy used across minotaur's
// sandbox materialisation pipeline. Every fallible operation returns a
// *Error so callers can branch on Kind, surface a Hint, and decide
// retryability without string matching.
package errors

import (
	"errors"
	"fmt"
)

// Kind groups errors by the subsystem that raised them.
type Kind string

const (
	KindEnvironment   Kind = "environment"
	KindConfiguration Kind = "configuration"
	KindCredential    Kind = "credential"
	KindSession       Kind = "session"
	KindContainer     Kind = "container"
	KindVolume        Kind = "volume"
	KindNetworkPolicy Kind = "network_policy"
	KindLayer         Kind = "layer"
	KindSerialization Kind = "serialization"
	KindIO            Kind = "io"
	KindCommand       Kind = "command"
	KindUser          Kind = "user"
)

// Error is minotaur's structured error type. It always carries a Kind and
// a human-readable Message, optionally a Hint (remediation string), a
// wrapped source error, and a Retryable flag.
type Error struct {
	Kind      Kind
	Message   string
	Hint      string
	Source    error
	Retryable bool
}

func (e *Error) Error() string {
	if e.Source != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Source)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Source }

// IsRetryable is advisory: true for conditions a caller may reasonably
// retry after a short pause (a VM or container still warming up, or a
// credential that merely needs refreshing).
func (e *Error) IsRetryable() bool { return e.Retryable }

func newf(kind Kind, hint string, source error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Hint: hint, Source: source}
}

// --- Environment ---

func RuntimeNotFound(name string) *Error {
	return newf(KindEnvironment, "install "+name, nil, "%s not found on PATH", name)
}

func VMNotRunning(vmName string) *Error {
	e := newf(KindEnvironment, fmt.Sprintf("run: limactl start %s", vmName), nil,
		"microVM %q is not running", vmName)
	e.Retryable = true
	return e
}

func VMStartFailed(reason string) *Error {
	e := newf(KindEnvironment, "", nil, "failed to start microVM: %s", reason)
	e.Retryable = true
	return e
}

func UnsupportedPlatform(os string) *Error {
	return newf(KindEnvironment, "", nil, "unsupported platform: %s (minotaur supports macOS and Linux)", os)
}

func RootlessSetupIncomplete(reason string) *Error {
	return newf(KindEnvironment, "", nil, "rootless container setup incomplete: %s", reason)
}

func CLINotFound(name, hint string) *Error {
	return newf(KindEnvironment, hint, nil, "required CLI not found: %s", name)
}

// --- Configuration ---

func ConfigInvalid(path, reason string) *Error {
	return newf(KindConfiguration, "", nil, "invalid configuration at %s: %s", path, reason)
}

func ConfigUnknownKey(path, key string) *Error {
	return newf(KindConfiguration, "", nil, "unknown configuration key %q in %s", key, path)
}

func ConfigPermission(path string, source error) *Error {
	return newf(KindConfiguration, "", source, "permission error reading %s", path)
}

// --- Credential ---

func CredentialNotConfigured(provider, hint string) *Error {
	return newf(KindCredential, hint, nil, "%s credentials not configured", provider)
}

func CredentialNotAuthenticated(provider, hint string) *Error {
	return newf(KindCredential, hint, nil, "%s not authenticated", provider)
}

func CredentialError(provider, detail string) *Error {
	return newf(KindCredential, "", nil, "%s credential error: %s", provider, detail)
}

func CredentialExpired(provider string) *Error {
	e := newf(KindCredential, fmt.Sprintf("refresh %s credentials", provider), nil,
		"%s credentials have expired", provider)
	e.Retryable = true
	return e
}

// --- Session ---

func SessionNotFound(name string) *Error {
	return newf(KindSession, "", nil, "session not found: %s", name)
}

func SessionExists(name string) *Error {
	return newf(KindSession, "", nil, "session already exists: %s", name)
}

func SessionPersist(reason string, source error) *Error {
	return newf(KindSession, "", source, "failed to persist session state: %s", reason)
}

// --- Container ---

func ContainerStart(reason string) *Error {
	e := newf(KindContainer, "", nil, "failed to start container: %s", reason)
	e.Retryable = true
	return e
}

func ContainerNotFound(id string) *Error {
	return newf(KindContainer, "", nil, "container not found: %s", id)
}

func ContainerExit(command string, code int) *Error {
	return newf(KindContainer, "", nil, "command %q exited with code %d", command, code)
}

func ImagePullFailed(image, reason string) *Error {
	return newf(KindContainer, "", nil, "image pull failed for %s: %s", image, reason)
}

func ImageBuildFailed(tag, reason string) *Error {
	return newf(KindContainer, "", nil, "image build failed for %s: %s", tag, reason)
}

// --- Volume ---

func VolumeCreateFailed(name, reason string) *Error {
	return newf(KindVolume, "", nil, "failed to create cache volume %s: %s", name, reason)
}

func VolumeNotFound(name string) *Error {
	return newf(KindVolume, "", nil, "cache volume not found: %s", name)
}

func LockfileReadFailed(path string, source error) *Error {
	return newf(KindVolume, "", source, "failed to read lockfile %s", path)
}

// --- Network policy ---

func NetworkPolicy(message string) *Error {
	return &Error{Kind: KindNetworkPolicy, Message: message}
}

// --- Layer ---

func LayerNotFound(name string, searched []string) *Error {
	return &Error{
		Kind:    KindLayer,
		Message: fmt.Sprintf("layer %q not found; searched: %v", name, searched),
	}
}

func LayerScriptMissing(name, dir string) *Error {
	return newf(KindLayer, "", nil,
		"layer %q has a manifest at %s but no install.sh — add one or remove the manifest", name, dir)
}

// --- Serialization ---

func Serialization(context string, source error) *Error {
	return newf(KindSerialization, "", source, "serialization error: %s", context)
}

// --- IO / Command ---

func IO(context string, source error) *Error {
	return newf(KindIO, "", source, "io error: %s", context)
}

func CommandFailed(command string, source error) *Error {
	return newf(KindCommand, "", source, "command failed: %s", command)
}

func CommandExecution(command, stderr string) *Error {
	return newf(KindCommand, "", nil, "command %q failed: %s", command, stderr)
}

// --- User / catch-all ---

func User(message string) *Error {
	return &Error{Kind: KindUser, Message: message}
}

// As is a thin re-export of errors.As so callers don't need two imports
// when narrowing a returned error to *Error.
func As(err error, target **Error) bool {
	return errors.As(err, target)
}
