package network_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/minotaur-dev/minotaur/pkg/network"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

func TestParseValidHostPort(t *testing.T) {
	r, err := network.ParseRule("api.example.com:443")
	require.NoError(t, err)
	assert.Equal(t, types.NetworkRule{Host: "api.example.com", Port: 443}, r)
}

func TestParseValidIPPort(t *testing.T) {
	r, err := network.ParseRule("10.0.0.1:8080")
	require.NoError(t, err)
	assert.Equal(t, types.NetworkRule{Host: "10.0.0.1", Port: 8080}, r)
}

func TestParseIPv6Bracketed(t *testing.T) {
	r, err := network.ParseRule("[::1]:443")
	require.NoError(t, err)
	assert.Equal(t, types.NetworkRule{Host: "::1", Port: 443}, r)
}

func TestParseIPv6FullBracketed(t *testing.T) {
	r, err := network.ParseRule("[2001:db8::1]:80")
	require.NoError(t, err)
	assert.Equal(t, types.NetworkRule{Host: "2001:db8::1", Port: 80}, r)
}

func TestParseTrimsWhitespace(t *testing.T) {
	r, err := network.ParseRule("  example.com:443  ")
	require.NoError(t, err)
	assert.Equal(t, "example.com", r.Host)
}

func TestParseRejectsEmptyHost(t *testing.T) {
	_, err := network.ParseRule(":443")
	assert.Error(t, err)
}

func TestParseRejectsBadPort(t *testing.T) {
	_, err := network.ParseRule("example.com:notaport")
	assert.Error(t, err)

	_, err = network.ParseRule("example.com:99999")
	assert.Error(t, err)

	_, err = network.ParseRule("example.com:0")
	assert.Error(t, err)
}

func TestParseRejectsMissingColon(t *testing.T) {
	_, err := network.ParseRule("example.com")
	assert.Error(t, err)
}

func TestResolveDefaultsToHost(t *testing.T) {
	mode, warning, err := network.Resolve(network.ResolveInput{})
	require.NoError(t, err)
	assert.Empty(t, warning)
	assert.Equal(t, types.NetworkHost, mode.Kind)
}

func TestResolveCLIAllowRulesBeatCLIMode(t *testing.T) {
	mode, _, err := network.Resolve(network.ResolveInput{
		CLIMode:       "bridge",
		CLIAllowRules: []string{"example.com:443"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.NetworkAllow, mode.Kind)
	assert.Len(t, mode.Rules, 1)
}

func TestResolveCLINoneConflictsWithCLIAllow(t *testing.T) {
	_, _, err := network.Resolve(network.ResolveInput{
		CLIMode:       "none",
		CLIAllowRules: []string{"example.com:443"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot combine")
}

func TestResolveCLIHostOverridesAllowWithWarning(t *testing.T) {
	mode, warning, err := network.Resolve(network.ResolveInput{
		CLIMode:       "host",
		CLIAllowRules: []string{"example.com:443"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.NetworkHost, mode.Kind)
	assert.NotEmpty(t, warning)
}

func TestResolveConfigNoneConflictsWithConfigAllow(t *testing.T) {
	_, _, err := network.Resolve(network.ResolveInput{
		ConfigMode:  "none",
		ConfigAllow: []string{"example.com:443"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config conflict")
}

func TestResolveCLIModeBeatsConfig(t *testing.T) {
	mode, _, err := network.Resolve(network.ResolveInput{
		CLIMode:    "none",
		ConfigMode: "bridge",
	})
	require.NoError(t, err)
	assert.Equal(t, types.NetworkNone, mode.Kind)
}

func TestToPodmanNetwork(t *testing.T) {
	assert.Equal(t, "host", types.NetworkMode{Kind: types.NetworkHost}.ToPodmanNetwork())
	assert.Equal(t, "none", types.NetworkMode{Kind: types.NetworkNone}.ToPodmanNetwork())
	assert.Equal(t, "bridge", types.NetworkMode{Kind: types.NetworkAllow}.ToPodmanNetwork())
}

func TestRequiresCapNetAdmin(t *testing.T) {
	assert.True(t, types.NetworkMode{Kind: types.NetworkAllow}.RequiresCapNetAdmin())
	assert.False(t, types.NetworkMode{Kind: types.NetworkBridge}.RequiresCapNetAdmin())
}

func TestShellEscape(t *testing.T) {
	assert.Equal(t, `'hello'`, network.ShellEscape("hello"))
	assert.Equal(t, `'it'\''s'`, network.ShellEscape("it's"))
}

func TestGenerateIptablesWrapperStructure(t *testing.T) {
	script := network.GenerateIptablesWrapper(
		[]types.NetworkRule{{Host: "api.example.com", Port: 443}},
		[]string{"npm", "install"},
	)

	assert.Contains(t, script, "set -e")
	assert.Contains(t, script, "iptables -P OUTPUT DROP")
	assert.Contains(t, script, "-o lo -j ACCEPT")
	assert.Contains(t, script, "--ctstate ESTABLISHED,RELATED -j ACCEPT")
	assert.Contains(t, script, "--dport 53 -j ACCEPT")
	assert.Contains(t, script, "-d 'api.example.com' -p tcp --dport 443 -j ACCEPT")
	assert.Contains(t, script, "exec 'npm' 'install'")
}
