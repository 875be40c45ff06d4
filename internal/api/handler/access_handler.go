package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

// AccessHandler answers authorization questions for front-end screens.
type AccessHandler struct {
	authz ports.AuthorizationService
}

func NewAccessHandler(authz ports.AuthorizationService) *AccessHandler {
	return &AccessHandler{authz: authz}
}

type accessParams struct {
	Kind string `validate:"required,max=32"`
	ID   string `validate:"required,max=64"`
}

type accessResponse struct {
	Kind       string `json:"kind"`
	ResourceID string `json:"resource_id"`
	Allowed    bool   `json:"allowed"`
	Reason     string `json:"reason"`
}

// Check reports whether the caller may access a resource.
//
// @Summary      Check resource access
// @Tags         access
// @Produce      json
// @Security     BearerAuth
// @Param        kind  path      string  true  "Resource kind, e.g. account or card"
// @Param        id    path      string  true  "Resource id"
// @Success      200   {object}  accessResponse
// @Failure      401   {object}  map[string]string
// @Router       /v1/access/{kind}/{id} [get]
func (h *AccessHandler) Check(c echo.Context) error {
	p := accessParams{Kind: c.Param("kind"), ID: c.Param("id")}
	if err := c.Validate(&p); err != nil {
		return err
	}
	sc, _ := domain.SecurityContextFrom(c.Request().Context())

	d := h.authz.CanAccessOwned(c.Request().Context(), sc, p.Kind, p.ID)
	return c.JSON(http.StatusOK, accessResponse{
		Kind:       p.Kind,
		ResourceID: p.ID,
		Allowed:    d.Allowed,
		Reason:     d.Reason,
	})
}

// AdminHandler exposes operator views over sessions.
type AdminHandler struct {
	sessions ports.SessionService
}

func NewAdminHandler(sessions ports.SessionService) *AdminHandler {
	return &AdminHandler{sessions: sessions}
}

type sessionRecordResponse struct {
	SessionID           string                     `json:"session_id"`
	SubjectID           string                     `json:"subject_id"`
	CreatedAt           time.Time                  `json:"created_at"`
	LastActivityAt      time.Time                  `json:"last_activity_at"`
	ExpiresAt           time.Time                  `json:"expires_at"`
	ConversationalState map[string]json.RawMessage `json:"conversational_state"`
	NavigationHistory   []domain.NavigationEntry   `json:"navigation_history"`
	ErrorContext        *domain.ErrorContext       `json:"error_context,omitempty"`
}

// InspectSession returns the stored session record.
//
// @Summary      Inspect session
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Session id"
// @Success      200  {object}  sessionRecordResponse
// @Failure      403  {object}  map[string]string
// @Failure      404  {object}  map[string]string
// @Router       /v1/admin/sessions/{id} [get]
func (h *AdminHandler) InspectSession(c echo.Context) error {
	rec, err := h.sessions.Inspect(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}

	state := make(map[string]json.RawMessage, len(rec.ConversationalState))
	for k, v := range rec.ConversationalState {
		state[k] = json.RawMessage(v)
	}
	nav := rec.NavigationHistory
	if nav == nil {
		nav = []domain.NavigationEntry{}
	}
	return c.JSON(http.StatusOK, sessionRecordResponse{
		SessionID:           rec.SessionID,
		SubjectID:           rec.SubjectID,
		CreatedAt:           rec.CreatedAt,
		LastActivityAt:      rec.LastActivityAt,
		ExpiresAt:           rec.ExpiresAt,
		ConversationalState: state,
		NavigationHistory:   nav,
		ErrorContext:        rec.ErrorContext,
	})
}
