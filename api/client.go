// Package api fetches shaders and scenes from a ShaderForge web service
// and turns them into local projects.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/mitchellh/go-homedir"
	"github.com/richinsley/shaderforge/logging"
)

const userAgent = "shaderforge (+https://github.com/richinsley/shaderforge)"

// maxBody bounds a response; shader documents are capped well below it.
const maxBody = 8 << 20

type headerTransport struct {
	Transport http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")
	return t.Transport.RoundTrip(req)
}

type Option func(*Client)

// WithHTTPClient replaces the default client. Its transport is wrapped to
// set the request headers.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		if c != nil {
			cl.http = c
		}
	}
}

// WithCache stores fetched documents under dir and serves them from there
// on later calls.
func WithCache(dir string) Option {
	return func(cl *Client) { cl.cacheDir = dir }
}

type Client struct {
	BaseURL  string
	http     *http.Client
	cacheDir string
}

// NewClient talks to the service rooted at baseURL, e.g.
// "http://localhost:5000".
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Transport: http.DefaultTransport},
	}
	for _, opt := range opts {
		opt(c)
	}
	inner := c.http.Transport
	if inner == nil {
		inner = http.DefaultTransport
	}
	wrapped := *c.http
	wrapped.Transport = &headerTransport{Transport: inner}
	c.http = &wrapped
	return c
}

// Scene fetches /api/scenes/{id}.
func (c *Client) Scene(ctx context.Context, id string) (*Scene, error) {
	var s Scene
	if err := c.getCached(ctx, "scenes", id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Shader fetches /api/shaders/{id}.
func (c *Client) Shader(ctx context.Context, id string) (*Shader, error) {
	var s Shader
	if err := c.getCached(ctx, "shaders", id, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PublicShaders lists /api/shaders/public. It is never cached.
func (c *Client) PublicShaders(ctx context.Context) ([]Shader, error) {
	var out []Shader
	body, err := c.get(ctx, "/api/shaders/public")
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fault.Wrap(err, ftag.With(ftag.Internal), fmsg.With("failed to decode shader list"))
	}
	return out, nil
}

func (c *Client) getCached(ctx context.Context, kind, id string, v any) error {
	if id == "" || strings.ContainsAny(id, "/\\") || id == "." || id == ".." {
		return fault.New(fmt.Sprintf("invalid %s id %q", strings.TrimSuffix(kind, "s"), id), ftag.With(ftag.InvalidArgument))
	}

	var cachePath string
	if c.cacheDir != "" {
		cachePath = filepath.Join(c.cacheDir, kind, id+".json")
		if data, err := os.ReadFile(cachePath); err == nil {
			if err := json.Unmarshal(data, v); err == nil {
				logging.With("api").Debug("cache hit", "path", cachePath)
				return nil
			}
			logging.With("api").Warn("ignoring unreadable cache entry", "path", cachePath)
		}
	}

	body, err := c.get(ctx, "/api/"+kind+"/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fault.Wrap(err, ftag.With(ftag.Internal), fmsg.With("failed to decode "+kind+" response"))
	}

	if cachePath != "" {
		if err := os.MkdirAll(filepath.Dir(cachePath), 0o755); err == nil {
			if err := os.WriteFile(cachePath, body, 0o644); err != nil {
				logging.With("api").Warn("failed to write cache", "path", cachePath, "error", err)
			}
		}
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	if c.BaseURL == "" {
		return nil, fault.New("no service URL configured", ftag.With(ftag.InvalidArgument))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return nil, fault.Wrap(err, ftag.With(ftag.InvalidArgument), fmsg.With("failed to create request"))
	}

	logging.With("api").Debug("GET", "url", req.URL.String())
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fault.Wrap(err, ftag.With(ftag.Internal), fmsg.With("request failed"))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fault.Wrap(err, ftag.With(ftag.Internal), fmsg.With("failed to read response body"))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fault.New(path+" not found", ftag.With(ftag.NotFound))
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, fault.New("bad response status: "+resp.Status, ftag.With(ftag.PermissionDenied))
	case resp.StatusCode != http.StatusOK:
		return nil, fault.New("bad response status: "+resp.Status, ftag.With(ftag.Internal))
	}
	return body, nil
}

// CacheDir is the per-user cache directory for subdir, created if needed.
func CacheDir(subdir string) (string, error) {
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("LOCALAPPDATA")
		if base == "" {
			return "", fmt.Errorf("LOCALAPPDATA environment variable not set")
		}
	case "darwin":
		home, err := homedir.Dir()
		if err != nil {
			return "", err
		}
		base = filepath.Join(home, "Library", "Caches")
	default:
		base = os.Getenv("XDG_CACHE_HOME")
		if base == "" {
			home, err := homedir.Dir()
			if err != nil {
				return "", err
			}
			base = filepath.Join(home, ".cache")
		}
	}

	dir := filepath.Join(base, "shaderforge", subdir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache directory at %s: %w", dir, err)
	}
	return dir, nil
}
