package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"voicelink/internal/callkit"
	"voicelink/internal/history"
	"voicelink/internal/orchestrator"
	"voicelink/internal/pushdec"
	"voicelink/pkg/logger"
)

// Handlers exposes the daemon's HTTP surface. Handlers stay thin: they
// translate HTTP to orchestrator commands and map errors to status codes.
type Handlers struct {
	Orch    *orchestrator.Orchestrator
	History *history.Service

	// Provider is set in headless provider mode and backs the debug
	// gesture endpoint.
	Provider *callkit.MemoryProvider
}

// maxPushBody bounds webhook bodies; push payloads are small JWS envelopes.
const maxPushBody = 64 << 10

// HandlePush ingests one push payload from the push gateway.
func (h *Handlers) HandlePush(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPushBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	switch err := h.Orch.HandlePush(c.Request.Context(), raw); {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
	case errors.Is(err, pushdec.ErrStalePayload):
		// Stale payloads are dropped by design; the gateway should not retry.
		c.JSON(http.StatusOK, gin.H{"status": "stale"})
	case errors.Is(err, pushdec.ErrMalformedPayload):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("push handling failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "push handling failed"})
	}
}

// HandleTokenPush ingests a device-token rotation from the push transport.
func (h *Handlers) HandleTokenPush(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxPushBody))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	if err := h.Orch.HandleTokenPush(c.Request.Context(), raw); err != nil {
		if errors.Is(err, pushdec.ErrMalformedPayload) {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		logger.FromGin(c).Error("token push failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token push failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

type placeCallRequest struct {
	From   string            `json:"from" binding:"required"`
	To     string            `json:"to" binding:"required"`
	Params map[string]string `json:"params"`
}

func (h *Handlers) PlaceCall(c *gin.Context) {
	var req placeCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	info, err := h.Orch.PlaceCall(c.Request.Context(), orchestrator.PlaceCallParams{
		From:   req.From,
		To:     req.To,
		Params: req.Params,
	})
	if err != nil {
		if errors.Is(err, callkit.ErrProviderRejected) {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call limit reached"})
			return
		}
		logger.FromGin(c).Error("place call failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "connect failed"})
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *Handlers) ListCalls(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"calls":       h.Orch.Calls(),
		"callInvites": h.Orch.Invites(),
	})
}

func (h *Handlers) Answer(c *gin.Context) {
	h.command(c, h.Orch.Answer)
}

func (h *Handlers) Reject(c *gin.Context) {
	h.command(c, h.Orch.Reject)
}

func (h *Handlers) Hangup(c *gin.Context) {
	h.command(c, h.Orch.Hangup)
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

func (h *Handlers) SetMuted(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Orch.SetMuted(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		h.commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) SetHeld(c *gin.Context) {
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Orch.SetHeld(c.Request.Context(), c.Param("id"), *req.Enabled); err != nil {
		h.commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type digitsRequest struct {
	Digits string `json:"digits" binding:"required"`
}

func (h *Handlers) SendDigits(c *gin.Context) {
	var req digitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Orch.SendDigits(c.Request.Context(), c.Param("id"), req.Digits); err != nil {
		h.commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) CallStats(c *gin.Context) {
	reports, err := h.Orch.CallStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"statsReports": reports})
}

type registerRequest struct {
	Token string `json:"token" binding:"required"`
}

func (h *Handlers) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.Orch.RegisterToken(c.Request.Context(), []byte(req.Token)); err != nil {
		logger.FromGin(c).Error("registration failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "registration failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "registered"})
}

func (h *Handlers) Unregister(c *gin.Context) {
	if err := h.Orch.UnregisterToken(c.Request.Context()); err != nil {
		logger.FromGin(c).Error("unregistration failed", "err", err)
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "unregistration failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "unregistered"})
}

func (h *Handlers) ListHistory(c *gin.Context) {
	limit := 50
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 500 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be 1..500"})
			return
		}
		limit = n
	}

	recs, err := h.History.Recent(c.Request.Context(), limit)
	if err != nil {
		logger.FromGin(c).Error("history query failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "history query failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

type providerActionRequest struct {
	Kind    string `json:"kind" binding:"required"`
	UUID    string `json:"uuid"`
	Enabled bool   `json:"enabled"`
}

// ProviderAction simulates a system-UI gesture against the in-process
// provider. Debug surface for headless deployments.
func (h *Handlers) ProviderAction(c *gin.Context) {
	if h.Provider == nil {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no in-process provider"})
		return
	}
	var req providerActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Kind {
	case "answer":
		h.Provider.Answer(req.UUID)
	case "end":
		h.Provider.End(req.UUID)
	case "mute":
		h.Provider.Mute(req.UUID, req.Enabled)
	case "hold":
		h.Provider.Hold(req.UUID, req.Enabled)
	case "reset":
		h.Provider.Reset()
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "unknown gesture kind"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

// command runs one identifier-addressed orchestrator command.
func (h *Handlers) command(c *gin.Context, fn func(ctx context.Context, id string) error) {
	if err := fn(c.Request.Context(), c.Param("id")); err != nil {
		h.commandError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handlers) commandError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrNoSuchCall):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "no such call"})
	case errors.Is(err, orchestrator.ErrAcceptFailed), errors.Is(err, orchestrator.ErrConnectFailed):
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		logger.FromGin(c).Error("command failed", "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "command failed"})
	}
}
