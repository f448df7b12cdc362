package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/layer-3/clearview/core"
	"github.com/layer-3/clearview/service"
)

// SessionHandlers contains HTTP handlers for the session and balance views
type SessionHandlers struct {
	auth *service.Authenticator
	agg  *service.Aggregator
}

// NewSessionHandlers creates new session handlers
func NewSessionHandlers(auth *service.Authenticator, agg *service.Aggregator) *SessionHandlers {
	return &SessionHandlers{
		auth: auth,
		agg:  agg,
	}
}

// SessionResponse describes the session for the UI
type SessionResponse struct {
	Status     core.Status `json:"status"`
	Label      string      `json:"label"`
	Color      string      `json:"color"`
	InFlight   bool        `json:"in_flight"`
	Error      string      `json:"error,omitempty"`
	Wallet     string      `json:"wallet,omitempty"`
	SessionKey string      `json:"session_key,omitempty"`
	Degraded   bool        `json:"degraded,omitempty"`
}

// BalancesResponse describes the balance view for the UI
type BalancesResponse struct {
	Status    core.Status `json:"status"`
	Known     bool        `json:"known"`
	Headline  string      `json:"headline"`
	Rows      []core.Row  `json:"rows"`
	UpdatedAt *time.Time  `json:"updated_at,omitempty"`
}

// StatusLegendEntry describes how one status is displayed
type StatusLegendEntry struct {
	Status core.Status `json:"status"`
	Label  string      `json:"label"`
	Color  string      `json:"color"`
}

func (h *SessionHandlers) sessionResponse() SessionResponse {
	state := h.auth.State()
	resp := SessionResponse{
		Status:   state.Status,
		Label:    state.Status.Label(),
		Color:    state.Status.Color(),
		InFlight: state.Status.InFlight(),
		Error:    state.Error,
	}
	if state.Wallet != (common.Address{}) {
		resp.Wallet = state.Wallet.Hex()
	}
	if state.Session != nil {
		resp.SessionKey = state.Session.SessionKey.Address().Hex()
		resp.Degraded = state.Session.Degraded
	}
	return resp
}

// Session returns the current session status
func (h *SessionHandlers) Session(c *gin.Context) {
	c.JSON(http.StatusOK, h.sessionResponse())
}

// Statuses returns the label and color of every status
func (h *SessionHandlers) Statuses(c *gin.Context) {
	legend := make([]StatusLegendEntry, 0, len(core.Statuses))
	for _, s := range core.Statuses {
		legend = append(legend, StatusLegendEntry{Status: s, Label: s.Label(), Color: s.Color()})
	}
	c.JSON(http.StatusOK, legend)
}

// Connect runs or joins an authentication attempt
func (h *SessionHandlers) Connect(c *gin.Context) {
	err := h.auth.ConnectAndAuthenticate(c.Request.Context())
	if err != nil {
		statusCode := http.StatusInternalServerError

		// Map error kinds to status codes
		switch core.KindOf(err) {
		case core.KindPrecondition:
			statusCode = http.StatusPreconditionFailed
		case core.KindUserRejected:
			statusCode = http.StatusForbidden
		case core.KindRemoteRejected:
			statusCode = http.StatusUnauthorized
		case core.KindTransport:
			statusCode = http.StatusBadGateway
		default:
			if errors.Is(err, core.ErrAttemptAborted) {
				statusCode = http.StatusConflict
			}
		}

		c.JSON(statusCode, h.sessionResponse())
		return
	}

	c.JSON(http.StatusOK, h.sessionResponse())
}

// Disconnect ends the session; it always succeeds
func (h *SessionHandlers) Disconnect(c *gin.Context) {
	h.auth.Disconnect(c.Request.Context())
	c.JSON(http.StatusOK, h.sessionResponse())
}

// Balances returns the formatted balance view. ?expanded=true adds the
// wallet tier to the breakdown.
func (h *SessionHandlers) Balances(c *gin.Context) {
	expanded, _ := strconv.ParseBool(c.Query("expanded"))

	view := h.agg.View()
	resp := BalancesResponse{
		Status:   view.Status,
		Known:    view.Snapshot.Known(),
		Headline: view.Snapshot.Headline(),
		Rows:     view.Snapshot.Breakdown(expanded),
	}
	if resp.Known {
		at := view.Snapshot.UpdatedAt()
		resp.UpdatedAt = &at
	}
	c.JSON(http.StatusOK, resp)
}
