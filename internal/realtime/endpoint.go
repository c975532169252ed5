package realtime

import (
	"fmt"
	"net/url"
	"strings"
)

// DefaultPath is the channel path when none is configured.
const DefaultPath = "/ws"

// BuildURL derives the WebSocket endpoint from an http(s) or ws(s) base URL.
// The base's path, query and fragment are replaced by path.
//
//	BuildURL("https://fleet.example.com/api", "/ws") // "wss://fleet.example.com/ws"
func BuildURL(base, path string) (string, error) {
	if strings.TrimSpace(base) == "" {
		return "", fmt.Errorf("%w: no base URL configured", ErrInvalidEndpoint)
	}

	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidEndpoint, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("%w: unsupported scheme %q in %q", ErrInvalidEndpoint, u.Scheme, base)
	}
	if u.Host == "" {
		return "", fmt.Errorf("%w: missing host in %q", ErrInvalidEndpoint, base)
	}

	if path == "" {
		path = DefaultPath
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	u.Path = path
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	u.User = nil

	return u.String(), nil
}
