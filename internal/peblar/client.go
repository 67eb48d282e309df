// Package peblar implements the client for the local HTTP API of Peblar
// EV chargers. The charger uses a cookie-based session established with
// Login; every other call requires that session.
package peblar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

const defaultTimeout = 10 * time.Second

// Client talks to a single Peblar charger.
type Client struct {
	baseURL    string
	httpClient *http.Client
	loggedIn   bool
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. The client's cookie jar is
// still installed so the session cookie survives across calls.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a client for the charger at host. The session cookie jar is
// isolated per client so two chargers never share a login.
func New(host string, opts ...Option) (*Client, error) {
	c := &Client{
		baseURL: fmt.Sprintf("http://%s/api/wlac/v1", host),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	c.httpClient.Jar = jar

	return c, nil
}

// Login authenticates against the charger and stores the session cookie.
func (c *Client) Login(ctx context.Context, password string) error {
	body := map[string]string{"Password": password}
	if err := c.do(ctx, http.MethodPost, "/auth/login", body, nil); err != nil {
		return err
	}
	c.loggedIn = true
	return nil
}

// SystemInformation fetches the charger's identity. The result does not
// change during a session, so callers fetch it once at setup.
func (c *Client) SystemInformation(ctx context.Context) (*SystemInformation, error) {
	var info SystemInformation
	if err := c.doAuthed(ctx, http.MethodGet, "/system/info", nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// EnableRESTAPI switches on the charger's local REST API in the given access
// mode. Telemetry reads require at least ReadOnly; charge-limit writes
// require ReadWrite.
func (c *Client) EnableRESTAPI(ctx context.Context, mode AccessMode) error {
	body := map[string]any{
		"Enable":     true,
		"AccessMode": string(mode),
	}
	return c.doAuthed(ctx, http.MethodPut, "/config/api", body, nil)
}

// Meters fetches one telemetry sample via the local REST API.
func (c *Client) Meters(ctx context.Context) (*Meters, error) {
	var m Meters
	if err := c.doAuthed(ctx, http.MethodGet, "/meters", nil, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// UserConfiguration fetches the charger-level user settings.
func (c *Client) UserConfiguration(ctx context.Context) (*UserConfiguration, error) {
	var uc UserConfiguration
	if err := c.doAuthed(ctx, http.MethodGet, "/config/user", nil, &uc); err != nil {
		return nil, err
	}
	return &uc, nil
}

// SetSmartChargingMode writes the charging strategy. The mode is validated
// locally so a typo never reaches the charger.
func (c *Client) SetSmartChargingMode(ctx context.Context, mode SmartChargingMode) error {
	if !validSmartChargingMode(mode) {
		return fmt.Errorf("%w: %q", ErrInvalidSmartChargingMode, mode)
	}
	body := map[string]any{"SmartChargingMode": string(mode)}
	return c.doAuthed(ctx, http.MethodPatch, "/config/user", body, nil)
}

// SetForceSinglePhase toggles single-phase charging.
func (c *Client) SetForceSinglePhase(ctx context.Context, force bool) error {
	body := map[string]any{"ForceSinglePhaseAllowed": force}
	return c.doAuthed(ctx, http.MethodPatch, "/config/user", body, nil)
}

// SetChargeCurrentLimit writes the user-defined charge limit in amperes.
func (c *Client) SetChargeCurrentLimit(ctx context.Context, amps int64) error {
	body := map[string]any{"UserDefinedChargeLimitCurrent": amps}
	return c.doAuthed(ctx, http.MethodPatch, "/config/user", body, nil)
}

// Versions fetches the installed and available firmware versions.
func (c *Client) Versions(ctx context.Context) (*Versions, error) {
	var v Versions
	if err := c.doAuthed(ctx, http.MethodGet, "/system/software", nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Reboot asks the charger to restart. The session is invalidated by the
// reboot; callers must Login again afterwards.
func (c *Client) Reboot(ctx context.Context) error {
	if err := c.doAuthed(ctx, http.MethodPost, "/system/reboot", nil, nil); err != nil {
		return err
	}
	c.loggedIn = false
	return nil
}

func (c *Client) doAuthed(ctx context.Context, method, path string, body, out any) error {
	if !c.loggedIn {
		return ErrNotLoggedIn
	}
	return c.do(ctx, method, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reqBody = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &ConnError{err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		c.loggedIn = false
		return &AuthError{StatusCode: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(raw))}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", path, err)
		}
	}

	return nil
}
