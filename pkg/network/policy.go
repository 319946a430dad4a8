// Package network resolves a sandbox's egress network policy from CLI
// flags and configuration, and generates the in-container iptables
// bootstrap script that enforces an allowlist.
package network

import (
	"fmt"
	"strconv"
	"strings"

	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

// ParseRule parses a single "host:port" egress allowlist entry. IPv6
// addresses may be bracketed ("[::1]:443"); for a bare "host:port" the
// split happens on the last colon so hostnames are never mistaken for an
// address:port pair missing its port.
func ParseRule(s string) (types.NetworkRule, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.NetworkRule{}, minoerrors.User("network rule must not be empty")
	}

	var host, portStr string
	if strings.HasPrefix(s, "[") {
		end := strings.Index(s, "]")
		if end < 0 {
			return types.NetworkRule{}, minoerrors.User(fmt.Sprintf("invalid bracketed network rule: %q", s))
		}
		host = s[1:end]
		rest := s[end+1:]
		if !strings.HasPrefix(rest, ":") {
			return types.NetworkRule{}, minoerrors.User(fmt.Sprintf("network rule missing port: %q", s))
		}
		portStr = rest[1:]
	} else {
		idx := strings.LastIndex(s, ":")
		if idx < 0 {
			return types.NetworkRule{}, minoerrors.User(fmt.Sprintf("network rule must be host:port: %q", s))
		}
		host = s[:idx]
		portStr = s[idx+1:]
	}

	host = strings.TrimSpace(host)
	if host == "" {
		return types.NetworkRule{}, minoerrors.User(fmt.Sprintf("network rule has an empty host: %q", s))
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return types.NetworkRule{}, minoerrors.User(fmt.Sprintf("invalid port in network rule %q", s))
	}

	return types.NetworkRule{Host: host, Port: port}, nil
}

// ParseModeStr parses the bare --network mode string ("host", "none",
// "bridge"). It does not handle "allow": allow rules always arrive as a
// separate list from --network-allow.
func ParseModeStr(s string) (types.NetworkModeKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "host":
		return types.NetworkHost, nil
	case "none":
		return types.NetworkNone, nil
	case "bridge":
		return types.NetworkBridge, nil
	default:
		return "", minoerrors.User(fmt.Sprintf("unknown network mode: %q (expected host, none, or bridge)", s))
	}
}

// ResolveInput bundles the raw CLI and config network inputs handed to
// Resolve.
type ResolveInput struct {
	CLIMode        string // "" if --network was not passed
	CLIAllowRules  []string
	ConfigMode     string // "" if not set in config
	ConfigAllow    []string
}

// Resolve reconciles CLI flags and config file settings into a single
// NetworkMode, honouring precedence: CLI allow rules beat CLI mode, which
// beats config allow rules, which beats config mode. A bare default (no
// CLI or config input at all) resolves to Host.
//
// --network host combined with --network-allow silently wins as host
// (with a caller-surfaced warning) since an allowlist is meaningless once
// the container shares the host's network namespace. --network none
// combined with an allow list is an error.
func Resolve(in ResolveInput) (types.NetworkMode, string, error) {
	var warning string

	if len(in.CLIAllowRules) > 0 {
		rules, err := parseRules(in.CLIAllowRules)
		if err != nil {
			return types.NetworkMode{}, "", err
		}
		if in.CLIMode != "" {
			kind, err := ParseModeStr(in.CLIMode)
			if err != nil {
				return types.NetworkMode{}, "", err
			}
			switch kind {
			case types.NetworkNone:
				return types.NetworkMode{}, "", minoerrors.NetworkPolicy(
					fmt.Sprintf("cannot combine --network none with --network-allow (%d rules)", len(rules)))
			case types.NetworkHost:
				warning = "--network host makes --network-allow a no-op; ignoring the allowlist"
				return types.NetworkMode{Kind: types.NetworkHost}, warning, nil
			}
		}
		return types.NetworkMode{Kind: types.NetworkAllow, Rules: rules}, "", nil
	}

	if in.CLIMode != "" {
		kind, err := ParseModeStr(in.CLIMode)
		if err != nil {
			return types.NetworkMode{}, "", err
		}
		return types.NetworkMode{Kind: kind}, "", nil
	}

	if len(in.ConfigAllow) > 0 {
		rules, err := parseRules(in.ConfigAllow)
		if err != nil {
			return types.NetworkMode{}, "", err
		}
		if in.ConfigMode != "" {
			kind, err := ParseModeStr(in.ConfigMode)
			if err != nil {
				return types.NetworkMode{}, "", err
			}
			if kind == types.NetworkNone {
				return types.NetworkMode{}, "", minoerrors.NetworkPolicy(
					fmt.Sprintf("config conflict: network = %q with network_allow entries present", "none"))
			}
		}
		return types.NetworkMode{Kind: types.NetworkAllow, Rules: rules}, "", nil
	}

	if in.ConfigMode != "" {
		kind, err := ParseModeStr(in.ConfigMode)
		if err != nil {
			return types.NetworkMode{}, "", err
		}
		return types.NetworkMode{Kind: kind}, "", nil
	}

	return types.NetworkMode{Kind: types.NetworkHost}, "", nil
}

func parseRules(raw []string) ([]types.NetworkRule, error) {
	rules := make([]types.NetworkRule, 0, len(raw))
	for _, r := range raw {
		parsed, err := ParseRule(r)
		if err != nil {
			return nil, err
		}
		rules = append(rules, parsed)
	}
	return rules, nil
}

// ShellEscape wraps s in single quotes for POSIX /bin/sh, escaping any
// embedded single quote as '\''.
func ShellEscape(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// GenerateIptablesWrapper renders a /bin/sh script that installs a
// default-DROP egress policy, permits loopback and established/related
// connections, permits DNS, permits each allow rule, then execs the
// original command. It is used as the container's entrypoint wrapper
// whenever the resolved NetworkMode is Allow.
func GenerateIptablesWrapper(rules []types.NetworkRule, command []string) string {
	var b strings.Builder

	b.WriteString("#!/bin/sh\nset -e\n\n")
	b.WriteString("if ! command -v iptables >/dev/null 2>&1; then\n")
	b.WriteString("  echo 'minotaur: iptables not found in image; cannot enforce --network-allow' >&2\n")
	b.WriteString("  exit 1\nfi\n\n")

	b.WriteString("iptables -P OUTPUT DROP\n")
	b.WriteString("ip6tables -P OUTPUT DROP 2>/dev/null || true\n\n")

	b.WriteString("iptables -A OUTPUT -o lo -j ACCEPT\n")
	b.WriteString("ip6tables -A OUTPUT -o lo -j ACCEPT 2>/dev/null || true\n\n")

	b.WriteString("iptables -A OUTPUT -m conntrack --ctstate ESTABLISHED,RELATED -j ACCEPT\n")
	b.WriteString("ip6tables -A OUTPUT -m conntrack --ctstate ESTABLISHED,RELATED -j ACCEPT 2>/dev/null || true\n\n")

	b.WriteString("iptables -A OUTPUT -p udp --dport 53 -j ACCEPT\n")
	b.WriteString("iptables -A OUTPUT -p tcp --dport 53 -j ACCEPT\n")
	b.WriteString("ip6tables -A OUTPUT -p udp --dport 53 -j ACCEPT 2>/dev/null || true\n")
	b.WriteString("ip6tables -A OUTPUT -p tcp --dport 53 -j ACCEPT 2>/dev/null || true\n\n")

	for _, r := range rules {
		fmt.Fprintf(&b, "iptables -A OUTPUT -d %s -p tcp --dport %d -j ACCEPT\n", ShellEscape(r.Host), r.Port)
		fmt.Fprintf(&b, "ip6tables -A OUTPUT -d %s -p tcp --dport %d -j ACCEPT 2>/dev/null || true\n", ShellEscape(r.Host), r.Port)
	}

	b.WriteString("\nexec")
	for _, arg := range command {
		b.WriteString(" " + ShellEscape(arg))
	}
	b.WriteString("\n")

	return b.String()
}
