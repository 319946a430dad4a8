package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/minotaur-dev/minotaur/pkg/errors"
)

func TestErrorDisplay(t *testing.T) {
	e := errors.SessionNotFound("dev")
	if e.Error() != "session not found: dev" {
		t.Fatalf("unexpected message: %q", e.Error())
	}

	wrapped := errors.CommandFailed("podman run", stderrors.New("exit status 1"))
	want := "command failed: podman run: exit status 1"
	if wrapped.Error() != want {
		t.Fatalf("got %q, want %q", wrapped.Error(), want)
	}
}

func TestErrorHint(t *testing.T) {
	e := errors.VMNotRunning("minotaur-vm")
	if e.Hint == "" {
		t.Fatal("expected a non-empty hint for a not-running VM")
	}

	plain := errors.SessionExists("dev")
	if plain.Hint != "" {
		t.Fatalf("expected no hint, got %q", plain.Hint)
	}
}

func TestErrorRetryable(t *testing.T) {
	retryable := []*errors.Error{
		errors.VMNotRunning("minotaur-vm"),
		errors.VMStartFailed("timed out waiting for sshd"),
		errors.ContainerStart("image not found"),
		errors.CredentialExpired("aws"),
	}
	for _, e := range retryable {
		if !e.IsRetryable() {
			t.Errorf("expected %q to be retryable", e.Error())
		}
	}

	notRetryable := []*errors.Error{
		errors.SessionNotFound("dev"),
		errors.LayerNotFound("python-dev", []string{"/proj/.minotaur/layers/python-dev"}),
		errors.User("refusing to run with an empty command"),
	}
	for _, e := range notRetryable {
		if e.IsRetryable() {
			t.Errorf("expected %q not to be retryable", e.Error())
		}
	}
}

func TestErrorUnwrapAndAs(t *testing.T) {
	source := stderrors.New("no such file or directory")
	wrapped := errors.LockfileReadFailed("/proj/package-lock.json", source)

	if !stderrors.Is(wrapped, source) {
		t.Fatal("expected errors.Is to find the wrapped source error")
	}

	var target *errors.Error
	if !errors.As(wrapped, &target) {
		t.Fatal("expected errors.As to narrow to *errors.Error")
	}
	if target.Kind != errors.KindVolume {
		t.Fatalf("expected KindVolume, got %v", target.Kind)
	}
}

func TestKindGrouping(t *testing.T) {
	cases := map[*errors.Error]errors.Kind{
		errors.RuntimeNotFound("podman"):                errors.KindEnvironment,
		errors.ConfigInvalid("/proj/.minotaur.toml", ""): errors.KindConfiguration,
		errors.CredentialNotConfigured("aws", ""):        errors.KindCredential,
		errors.ImagePullFailed("alpine", "timeout"):      errors.KindContainer,
		errors.VolumeNotFound("minotaur-cache-npm-abc"):  errors.KindVolume,
		errors.NetworkPolicy("conflicting network flags"): errors.KindNetworkPolicy,
		errors.LayerScriptMissing("rust", "/proj/.minotaur/layers/rust"): errors.KindLayer,
	}
	for e, want := range cases {
		if e.Kind != want {
			t.Errorf("got kind %v, want %v for %q", e.Kind, want, e.Error())
		}
	}
}
