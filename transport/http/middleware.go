package http

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/quillwire/devlink/core"
	"github.com/quillwire/devlink/ports"
	"golang.org/x/crypto/bcrypt"
)

const (
	contextAccount  = "account"
	contextDeviceID = "deviceID"
)

// AccountAuthMiddleware authenticates a device with basic auth. The username is
// "<aci>" or "<aci>.<deviceId>" (primary when omitted); the password is checked
// against the device's stored credential hash.
func AccountAuthMiddleware(accounts ports.AccountStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		username, password, ok := c.Request.BasicAuth()
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "credentials required"})
			return
		}

		aciPart, devicePart, hasDevice := strings.Cut(username, ".")

		aci, err := uuid.Parse(aciPart)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		deviceID := core.PrimaryDeviceID
		if hasDevice {
			parsed, err := strconv.ParseUint(devicePart, 10, 8)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
				return
			}
			deviceID = byte(parsed)
		}

		account, err := accounts.GetByAccountIdentifier(c.Request.Context(), aci)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		device := account.GetDevice(deviceID)
		if device == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		if bcrypt.CompareHashAndPassword(device.AuthCredentialHash, []byte(password)) != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}

		c.Set(contextAccount, account)
		c.Set(contextDeviceID, deviceID)

		c.Next()
	}
}

// authenticatedDevice returns the account and device id the middleware stored.
func authenticatedDevice(c *gin.Context) (*core.Account, byte) {
	account := c.MustGet(contextAccount).(*core.Account)
	deviceID := c.MustGet(contextDeviceID).(byte)
	return account, deviceID
}
