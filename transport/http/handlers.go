package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/quillwire/devlink/core"
	"github.com/quillwire/devlink/service"
)

// DeviceHandlers contains the HTTP handlers for the device endpoints.
type DeviceHandlers struct {
	devices *service.DeviceService
}

// NewDeviceHandlers creates new device handlers.
func NewDeviceHandlers(devices *service.DeviceService) *DeviceHandlers {
	return &DeviceHandlers{devices: devices}
}

// ListDevices returns the authenticated account's device list.
func (h *DeviceHandlers) ListDevices(c *gin.Context) {
	account, _ := authenticatedDevice(c)

	c.JSON(http.StatusOK, gin.H{"devices": h.devices.ListDevices(account)})
}

// CreateLinkToken issues a signed device-linking token for the authenticated
// primary device.
func (h *DeviceHandlers) CreateLinkToken(c *gin.Context) {
	account, deviceID := authenticatedDevice(c)

	encoded, err := h.devices.IssueLinkToken(c.Request.Context(), account, deviceID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"verificationCode": encoded})
}

// LinkDevice consumes a link token and attaches a new device. The basic-auth
// password becomes the new device's credential; the request itself is otherwise
// unauthenticated.
func (h *DeviceHandlers) LinkDevice(c *gin.Context) {
	_, password, ok := c.Request.BasicAuth()
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "credentials required"})
		return
	}

	var request core.LinkDeviceRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request"})
		return
	}

	response, err := h.devices.LinkDevice(c.Request.Context(), password, request)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, response)
}

// RemoveDevice detaches a device from the authenticated account.
func (h *DeviceHandlers) RemoveDevice(c *gin.Context) {
	account, deviceID := authenticatedDevice(c)

	target, err := strconv.ParseUint(c.Param("device_id"), 10, 8)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid device id"})
		return
	}

	if err := h.devices.RemoveDevice(c.Request.Context(), account, deviceID, byte(target)); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SetCapabilities updates the authenticated device's capability flags.
func (h *DeviceHandlers) SetCapabilities(c *gin.Context) {
	account, deviceID := authenticatedDevice(c)

	var capabilities core.DeviceCapabilities
	if err := c.ShouldBindJSON(&capabilities); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request"})
		return
	}

	if err := h.devices.SetCapabilities(c.Request.Context(), account, deviceID, capabilities); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// SetPublicKey stores an authentication public key for the authenticated device.
func (h *DeviceHandlers) SetPublicKey(c *gin.Context) {
	account, deviceID := authenticatedDevice(c)

	var request struct {
		PublicKey []byte `json:"publicKey" binding:"required"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "invalid request"})
		return
	}

	if err := h.devices.SetPublicKey(c.Request.Context(), account, deviceID, request.PublicKey); err != nil {
		writeError(c, err)
		return
	}

	c.Status(http.StatusOK)
}

// writeError maps core errors to transport status codes.
func writeError(c *gin.Context, err error) {
	var limitErr *core.DeviceLimitError
	var rateErr *core.RateLimitError
	var unprocessable *core.UnprocessableError

	switch {
	case errors.Is(err, core.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})

	case errors.Is(err, core.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})

	case errors.Is(err, core.ErrCapabilityDowngrade):
		c.JSON(http.StatusConflict, gin.H{"error": "capability downgrade"})

	case errors.As(err, &limitErr):
		c.JSON(http.StatusLengthRequired, gin.H{
			"error":   "device limit exceeded",
			"current": limitErr.Current,
			"max":     limitErr.Max,
		})

	case errors.As(err, &unprocessable):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": unprocessable.Reason})

	case errors.As(err, &rateErr):
		if seconds := int(rateErr.RetryAfter.Seconds()); seconds > 0 {
			c.Header("Retry-After", strconv.Itoa(seconds))
		}
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})

	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
