package http

import (
	"github.com/gin-gonic/gin"
	"github.com/quillwire/devlink/ports"
	"github.com/quillwire/devlink/service"
)

// SetupRouter sets up the Gin router. The link endpoint is deliberately outside
// the authenticated group: its caller is a new device with no account
// credentials yet.
func SetupRouter(devices *service.DeviceService, accounts ports.AccountStore) *gin.Engine {
	router := gin.Default()

	handlers := NewDeviceHandlers(devices)

	v1 := router.Group("/v1/devices")
	{
		v1.PUT("/link", handlers.LinkDevice)
	}

	authenticated := v1.Group("", AccountAuthMiddleware(accounts))
	{
		authenticated.GET("", handlers.ListDevices)
		authenticated.DELETE("/:device_id", handlers.RemoveDevice)
		authenticated.GET("/provisioning/code", handlers.CreateLinkToken)
		authenticated.PUT("/capabilities", handlers.SetCapabilities)
		authenticated.PUT("/public_key", handlers.SetPublicKey)
	}

	return router
}
