// Package mojang talks to the identity directory (name lookup and session
// profiles) and to the texture host that serves raw skin images.
package mojang

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

const (
	DefaultAPIURL     = "https://api.mojang.com"
	DefaultSessionURL = "https://sessionserver.mojang.com"

	// maxBodySize bounds every upstream response we read into memory.
	maxBodySize = 1 << 20
)

// ErrNotFound is returned when the directory has no profile for an id.
var ErrNotFound = errors.New("mojang: profile not found")

// StatusError is an unexpected upstream HTTP status.
type StatusError struct {
	URL  string
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("mojang: %s returned status %d", e.URL, e.Code)
}

// Config configures a Client. Zero values fall back to the public Mojang
// endpoints, http.DefaultClient and an unlimited rate.
type Config struct {
	APIURL     string
	SessionURL string
	UserAgent  string
	HTTPClient *http.Client
	// Limiter throttles directory calls. Texture downloads are not limited.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Client is safe for concurrent use.
type Client struct {
	apiURL     string
	sessionURL string
	userAgent  string
	http       *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

func NewClient(cfg Config) *Client {
	c := &Client{
		apiURL:     strings.TrimRight(cfg.APIURL, "/"),
		sessionURL: strings.TrimRight(cfg.SessionURL, "/"),
		userAgent:  cfg.UserAgent,
		http:       cfg.HTTPClient,
		limiter:    cfg.Limiter,
		logger:     cfg.Logger,
	}
	if c.apiURL == "" {
		c.apiURL = DefaultAPIURL
	}
	if c.sessionURL == "" {
		c.sessionURL = DefaultSessionURL
	}
	if c.http == nil {
		c.http = http.DefaultClient
	}
	if c.limiter == nil {
		c.limiter = rate.NewLimiter(rate.Inf, 0)
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

// LookupName resolves a display name to a stable id. It returns uuid.Nil
// and no error when the name is unknown.
func (c *Client) LookupName(ctx context.Context, name string) (uuid.UUID, error) {
	endpoint := c.apiURL + "/users/profiles/minecraft/" + url.PathEscape(name)

	body, err := c.get(ctx, "api", endpoint, true)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}

	var profile NameProfile
	if err := json.Unmarshal(body, &profile); err != nil {
		return uuid.Nil, fmt.Errorf("parse name profile: %w", err)
	}
	if profile.ID == "" {
		return uuid.Nil, nil
	}
	id, err := uuid.Parse(profile.ID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("parse profile id %q: %w", profile.ID, err)
	}
	return id, nil
}

// Profile fetches the session profile for id, including its signed
// properties.
func (c *Client) Profile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	endpoint := c.sessionURL + "/session/minecraft/profile/" + id.String()

	body, err := c.get(ctx, "session", endpoint, true)
	if err != nil {
		return nil, err
	}

	var profile Profile
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("parse profile: %w", err)
	}
	return &profile, nil
}

// Download fetches raw bytes from the texture host.
func (c *Client) Download(ctx context.Context, textureURL string) ([]byte, error) {
	return c.get(ctx, "textures", textureURL, false)
}

func (c *Client) get(ctx context.Context, host, endpoint string, limited bool) ([]byte, error) {
	if limited {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	metrics.GetOrCreateCounter(`upstream_requests_total{host="` + host + `"}`).Inc()

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.GetOrCreateCounter(`upstream_errors_total{host="` + host + `"}`).Inc()
		return nil, fmt.Errorf("request %s: %w", host, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("upstream request completed",
		"host", host,
		"url", endpoint,
		"status", resp.StatusCode,
		"duration", time.Since(start).String(),
	)

	switch {
	case resp.StatusCode == http.StatusNoContent, resp.StatusCode == http.StatusNotFound:
		return nil, ErrNotFound
	case resp.StatusCode != http.StatusOK:
		metrics.GetOrCreateCounter(`upstream_errors_total{host="` + host + `"}`).Inc()
		return nil, &StatusError{URL: endpoint, Code: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s response: %w", host, err)
	}
	return body, nil
}
