package sessionclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// APIError is a non-2xx answer from the session API.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"error"`
	// Reason and LoginURL are set on 401 answers from protected routes.
	Reason   string `json:"reason"`
	LoginURL string `json:"login_url"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("session api: %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("session api: %d: %s", e.Status, e.Message)
}

// IsSessionExpired reports whether err says the session can no longer be used.
func IsSessionExpired(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case "TOKEN_EXPIRED", "TOKEN_BLACKLISTED":
		return true
	}
	return apiErr.Reason == ReasonSessionExpired
}

// HTTPBackend talks to the session API over HTTP.
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

var _ Backend = (*HTTPBackend)(nil)

// NewHTTPBackend returns a backend rooted at baseURL. A nil client gets a
// 10s timeout.
func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// LoginResult is the answer to Login.
type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	SessionID string    `json:"session_id"`
	Degraded  bool      `json:"degraded"`
	User      struct {
		ID        string `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Role      string `json:"role"`
	} `json:"user"`
	Client Policy `json:"client"`
}

// Policy is the lifecycle timing the server hands out at login.
type Policy struct {
	CheckIntervalSeconds    int64 `json:"check_interval_seconds"`
	WarningThresholdSeconds int64 `json:"warning_threshold_seconds"`
	RefreshThresholdSeconds int64 `json:"refresh_threshold_seconds"`
}

// Apply copies the server's timing into opts. Fields the server left out
// and fields already set in opts are kept.
func (p Policy) Apply(opts Options) Options {
	if opts.CheckInterval <= 0 && p.CheckIntervalSeconds > 0 {
		opts.CheckInterval = time.Duration(p.CheckIntervalSeconds) * time.Second
	}
	if opts.WarningThreshold <= 0 && p.WarningThresholdSeconds > 0 {
		opts.WarningThreshold = time.Duration(p.WarningThresholdSeconds) * time.Second
	}
	if opts.RefreshThreshold <= 0 && p.RefreshThresholdSeconds > 0 {
		opts.RefreshThreshold = time.Duration(p.RefreshThresholdSeconds) * time.Second
	}
	return opts
}

// Login starts a session and returns its token.
func (b *HTTPBackend) Login(ctx context.Context, userID, password string) (*LoginResult, error) {
	body, err := json.Marshal(map[string]string{"user_id": userID, "password": password})
	if err != nil {
		return nil, err
	}
	var out LoginResult
	if err := b.do(ctx, http.MethodPost, "/v1/session", "", body, http.StatusCreated, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges token for a fresh one. The server returns the same
// token when it is not yet close to expiry.
func (b *HTTPBackend) Refresh(ctx context.Context, token string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := b.do(ctx, http.MethodPost, "/v1/session/refresh", token, nil, http.StatusOK, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("session api: refresh returned no token")
	}
	return out.Token, nil
}

// Terminate revokes token and deletes its session.
func (b *HTTPBackend) Terminate(ctx context.Context, token string) error {
	return b.do(ctx, http.MethodDelete, "/v1/session", token, nil, http.StatusNoContent, nil)
}

func (b *HTTPBackend) do(ctx context.Context, method, path, token string, body []byte, want int, out any) error {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return fmt.Errorf("session api %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		apiErr := &APIError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if len(data) == 0 || json.Unmarshal(data, apiErr) != nil {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("session api %s %s: decode: %w", method, path, err)
	}
	return nil
}
