package http

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Connectivity reports whether the remote side is reachable right now.
type Connectivity interface {
	IsOnline(ctx context.Context) (bool, error)
}

// ConnectivityFunc adapts a function to Connectivity.
type ConnectivityFunc func(ctx context.Context) (bool, error)

func (f ConnectivityFunc) IsOnline(ctx context.Context) (bool, error) {
	return f(ctx)
}

// HTTPConnectivity treats any HTTP answer from the target as online. Transport
// failures mean offline; a cancelled context is reported as an error.
type HTTPConnectivity struct {
	client *Client
	target func() string
}

func NewHTTPConnectivity(client *Client, target func() string) *HTTPConnectivity {
	return &HTTPConnectivity{client: client, target: target}
}

func (h *HTTPConnectivity) IsOnline(ctx context.Context) (bool, error) {
	url := h.target()
	if url == "" {
		return false, errors.New("no connectivity target configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, nil
	}
	resp.Body.Close()
	return true, nil
}

// NormalizeBaseURL trims whitespace, defaults the scheme to http:// and drops
// trailing slashes.
func NormalizeBaseURL(raw string) string {
	u := strings.TrimSpace(raw)
	if u == "" {
		return ""
	}
	lower := strings.ToLower(u)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
	case strings.HasPrefix(lower, "http:/"):
		u = "http://" + u[len("http:/"):]
	case strings.HasPrefix(lower, "https:/"):
		u = "https://" + u[len("https:/"):]
	default:
		u = "http://" + u
	}
	return strings.TrimRight(u, "/")
}

// JoinURL appends path to base with exactly one slash between them.
func JoinURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}
