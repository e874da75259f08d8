package fetch

import (
	"fmt"
	"net"
	"net/url"
	"strings"

	"golang.org/x/net/idna"
)

// ValidateURL checks that raw is a plausible http(s) source URL and returns
// it with the host normalized to punycode ASCII. Loopback and private hosts
// are deliberately permitted: the relay is routinely pointed at internal
// media servers and its own test fixtures.
func ValidateURL(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidURL)
	}

	u, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("%w: scheme %q not allowed", ErrInvalidURL, u.Scheme)
	}
	u.Scheme = scheme

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	normalized, err := normalizeHost(host)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(normalized, port)
	} else if strings.Contains(normalized, ":") {
		// Bare IPv6 literal keeps its brackets.
		u.Host = "[" + normalized + "]"
	} else {
		u.Host = normalized
	}

	return u.String(), nil
}

// normalizeHost lowercases the host and converts IDN labels to ASCII so the
// transport never sees raw unicode hostnames.
func normalizeHost(host string) (string, error) {
	host = strings.TrimSuffix(host, ".")
	if host == "" {
		return "", fmt.Errorf("host is empty")
	}
	if ip := net.ParseIP(host); ip != nil {
		return strings.ToLower(ip.String()), nil
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", fmt.Errorf("invalid host %q: %v", host, err)
	}
	return strings.ToLower(ascii), nil
}
