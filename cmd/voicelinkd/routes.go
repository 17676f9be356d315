package main

import (
	"github.com/gin-gonic/gin"

	"voicelink/internal/bridge"
	"voicelink/internal/httpapi"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of call logic. Handlers delegate to internal modules.
func registerRoutes(r *gin.Engine, h *httpapi.Handlers, hub *bridge.Hub) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Push gateway webhooks (public).
	// NOTE: payload authenticity rests on the JWS signature inside the body.
	r.POST("/webhooks/push", h.HandlePush)
	r.POST("/webhooks/push/token", h.HandleTokenPush)

	// Event stream for the application frontend.
	r.GET("/ws/events", func(c *gin.Context) {
		hub.HandleWS(c.Writer, c.Request)
	})

	v1 := r.Group("/v1")
	{
		calls := v1.Group("/calls")
		{
			calls.GET("", h.ListCalls)
			calls.POST("", h.PlaceCall)
			calls.POST("/:id/answer", h.Answer)
			calls.POST("/:id/reject", h.Reject)
			calls.POST("/:id/hangup", h.Hangup)
			calls.POST("/:id/mute", h.SetMuted)
			calls.POST("/:id/hold", h.SetHeld)
			calls.POST("/:id/digits", h.SendDigits)
			calls.GET("/:id/stats", h.CallStats)
		}

		v1.POST("/registration", h.Register)
		v1.DELETE("/registration", h.Unregister)

		v1.GET("/history", h.ListHistory)
	}

	// Debug surface for headless deployments: simulated system-UI gestures.
	r.POST("/debug/provider-action", h.ProviderAction)
}
