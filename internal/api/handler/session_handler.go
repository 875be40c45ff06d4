package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carddemo/auth-gateway/internal/api/middleware"
	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

// SessionHandler exposes the session lifecycle endpoints.
type SessionHandler struct {
	service ports.SessionService
	client  ClientPolicy
}

// ClientPolicy is the lifecycle timing handed to clients at login. Zero
// fields are omitted and the client keeps its own defaults.
type ClientPolicy struct {
	CheckInterval    time.Duration
	WarningThreshold time.Duration
	RefreshThreshold time.Duration
}

func NewSessionHandler(service ports.SessionService, client ClientPolicy) *SessionHandler {
	return &SessionHandler{service: service, client: client}
}

// --- Request / Response types ---

type loginRequest struct {
	UserID   string `json:"user_id" validate:"required,max=8"`
	Password string `json:"password" validate:"required,max=72"`
}

type principalResponse struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role"`
}

type tokenResponse struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
	SessionID string    `json:"session_id"`
}

type clientPolicyResponse struct {
	CheckIntervalSeconds    int64 `json:"check_interval_seconds,omitempty"`
	WarningThresholdSeconds int64 `json:"warning_threshold_seconds,omitempty"`
	RefreshThresholdSeconds int64 `json:"refresh_threshold_seconds,omitempty"`
}

type loginResponse struct {
	tokenResponse
	User     principalResponse    `json:"user"`
	Client   clientPolicyResponse `json:"client"`
	Degraded bool                 `json:"degraded,omitempty"`
}

type refreshResponse struct {
	tokenResponse
	Rotated  bool `json:"rotated"`
	Degraded bool `json:"degraded,omitempty"`
}

type sessionResponse struct {
	Subject          string     `json:"subject"`
	Role             string     `json:"role"`
	SessionID        string     `json:"session_id"`
	ExpiresAt        time.Time  `json:"expires_at"`
	RemainingSeconds int64      `json:"remaining_seconds"`
	StateAvailable   bool       `json:"state_available"`
	LastActivityAt   *time.Time `json:"last_activity_at,omitempty"`
}

type sessionKeyParam struct {
	Key string `validate:"required,sessionkey"`
}

type navigationRequest struct {
	Screen string `json:"screen" validate:"required,screen"`
}

type errorContextRequest struct {
	Code    string `json:"code" validate:"required,max=32"`
	Message string `json:"message" validate:"required,max=80"`
	Screen  string `json:"screen,omitempty" validate:"omitempty,screen"`
}

func newTokenResponse(t *domain.Token) tokenResponse {
	return tokenResponse{
		Token:     t.Raw,
		TokenType: "Bearer",
		ExpiresAt: t.ExpiresAt,
		ExpiresIn: int64(time.Until(t.ExpiresAt).Seconds()),
		SessionID: t.SessionID,
	}
}

// --- Handlers ---

// Login authenticates a user and starts a session.
//
// @Summary      Initialize session
// @Tags         session
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Credentials"
// @Success      201   {object}  loginResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      403   {object}  map[string]string
// @Router       /v1/session [post]
func (h *SessionHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	res, err := h.service.Login(c.Request().Context(), req.UserID, req.Password)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, loginResponse{
		tokenResponse: newTokenResponse(res.Token),
		User: principalResponse{
			ID:        res.Principal.ID,
			FirstName: res.Principal.FirstName,
			LastName:  res.Principal.LastName,
			Role:      string(res.Principal.Role),
		},
		Client: clientPolicyResponse{
			CheckIntervalSeconds:    int64(h.client.CheckInterval / time.Second),
			WarningThresholdSeconds: int64(h.client.WarningThreshold / time.Second),
			RefreshThresholdSeconds: int64(h.client.RefreshThreshold / time.Second),
		},
		Degraded: res.Degraded,
	})
}

// Validate reports the state of the caller's session.
//
// @Summary      Validate session
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  sessionResponse
// @Failure      401  {object}  map[string]string
// @Router       /v1/session [get]
func (h *SessionHandler) Validate(c echo.Context) error {
	raw, _ := middleware.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	view, err := h.service.Validate(c.Request().Context(), raw)
	if err != nil {
		return err
	}

	resp := sessionResponse{
		Subject:          view.Token.Subject,
		Role:             string(view.Token.Role),
		SessionID:        view.Token.SessionID,
		ExpiresAt:        view.Token.ExpiresAt,
		RemainingSeconds: int64(view.Remaining.Seconds()),
		StateAvailable:   view.StateAvailable,
	}
	if !view.LastActivityAt.IsZero() {
		resp.LastActivityAt = &view.LastActivityAt
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh rotates the caller's token when it is close to expiry.
//
// @Summary      Refresh session
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  refreshResponse
// @Failure      401  {object}  map[string]string
// @Router       /v1/session/refresh [post]
func (h *SessionHandler) Refresh(c echo.Context) error {
	raw, _ := middleware.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	res, err := h.service.Refresh(c.Request().Context(), raw)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, refreshResponse{
		tokenResponse: newTokenResponse(res.Token),
		Rotated:       res.Rotated,
		Degraded:      res.Degraded,
	})
}

// Terminate ends the caller's session. Expired tokens are accepted and
// repeated calls succeed.
//
// @Summary      Terminate session
// @Tags         session
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  map[string]string
// @Router       /v1/session [delete]
func (h *SessionHandler) Terminate(c echo.Context) error {
	raw, ok := middleware.BearerToken(c.Request().Header.Get(echo.HeaderAuthorization))
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	if err := h.service.Terminate(c.Request().Context(), raw); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// PutData stores a JSON value in the session's conversational state.
//
// @Summary      Store transient data
// @Tags         session
// @Accept       json
// @Security     BearerAuth
// @Param        key  path  string  true  "Data key"
// @Success      204
// @Failure      400  {object}  map[string]string
// @Failure      413  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /v1/session/data/{key} [put]
func (h *SessionHandler) PutData(c echo.Context) error {
	sc, err := sessionContext(c)
	if err != nil {
		return err
	}
	key := c.Param("key")
	if err := c.Validate(&sessionKeyParam{Key: key}); err != nil {
		return err
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, domain.MaxRecordBytes+1))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if len(body) > domain.MaxRecordBytes {
		return domain.ErrSessionTooLarge
	}
	if !json.Valid(body) {
		return echo.NewHTTPError(http.StatusBadRequest, "body must be a JSON value")
	}

	if err := h.service.PutTransient(c.Request().Context(), sc, key, body); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// GetData returns a value from the session's conversational state.
//
// @Summary      Retrieve transient data
// @Tags         session
// @Produce      json
// @Security     BearerAuth
// @Param        key  path  string  true  "Data key"
// @Success      200
// @Failure      404  {object}  map[string]string
// @Router       /v1/session/data/{key} [get]
func (h *SessionHandler) GetData(c echo.Context) error {
	sc, err := sessionContext(c)
	if err != nil {
		return err
	}
	key := c.Param("key")
	if err := c.Validate(&sessionKeyParam{Key: key}); err != nil {
		return err
	}

	value, err := h.service.GetTransient(c.Request().Context(), sc, key)
	if err != nil {
		return err
	}
	return c.JSONBlob(http.StatusOK, value)
}

// DeleteData removes a value from the session's conversational state.
//
// @Summary      Delete transient data
// @Tags         session
// @Security     BearerAuth
// @Param        key  path  string  true  "Data key"
// @Success      204
// @Router       /v1/session/data/{key} [delete]
func (h *SessionHandler) DeleteData(c echo.Context) error {
	sc, err := sessionContext(c)
	if err != nil {
		return err
	}
	key := c.Param("key")
	if err := c.Validate(&sessionKeyParam{Key: key}); err != nil {
		return err
	}

	if err := h.service.DeleteTransient(c.Request().Context(), sc, key); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// RecordNavigation appends a screen to the session's navigation history.
//
// @Summary      Record navigation
// @Tags         session
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  navigationRequest  true  "Screen visited"
// @Success      204
// @Router       /v1/session/navigation [post]
func (h *SessionHandler) RecordNavigation(c echo.Context) error {
	sc, err := sessionContext(c)
	if err != nil {
		return err
	}
	var req navigationRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	if err := h.service.RecordNavigation(c.Request().Context(), sc, req.Screen); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// SetError stores the error to show on the next screen.
//
// @Summary      Set error context
// @Tags         session
// @Accept       json
// @Security     BearerAuth
// @Param        body  body  errorContextRequest  true  "Error context"
// @Success      204
// @Router       /v1/session/error [put]
func (h *SessionHandler) SetError(c echo.Context) error {
	sc, err := sessionContext(c)
	if err != nil {
		return err
	}
	var req errorContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	ec := domain.ErrorContext{Code: req.Code, Message: req.Message, Screen: req.Screen}
	if err := h.service.SetErrorContext(c.Request().Context(), sc, ec); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// ClearError removes the stored error context.
//
// @Summary      Clear error context
// @Tags         session
// @Security     BearerAuth
// @Success      204
// @Router       /v1/session/error [delete]
func (h *SessionHandler) ClearError(c echo.Context) error {
	sc, err := sessionContext(c)
	if err != nil {
		return err
	}
	if err := h.service.ClearErrorContext(c.Request().Context(), sc); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
