package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wearlink/coordinator/internal/api/handlers"
)

type Deps struct {
	WS       *handlers.WSHandler
	Callback *handlers.CallbackHandler
	Health   *handlers.HealthHandler
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	r.GET("/healthz", d.Health.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Device transport
	r.GET("/ws", d.WS.DeviceWS)

	// Provider webhooks
	r.POST("/callbacks/conversation", d.Callback.Conversation)
}
