package auth

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handlers contains the auth HTTP handlers
type Handlers struct {
	service *Service
}

// NewHandlers creates a new Handlers instance
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// Login handles operator login
// POST /api/auth/token
func (h *Handlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "VALIDATION_ERROR",
			"message": err.Error(),
		})
		return
	}

	response, err := h.service.Login(req)
	if err != nil {
		var authErr AuthError
		if errors.As(err, &authErr) {
			status := http.StatusUnauthorized
			if authErr.Code == ErrLoginDisabled.Code {
				status = http.StatusServiceUnavailable
			}
			c.JSON(status, gin.H{
				"error":   authErr.Code,
				"message": authErr.Message,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "INTERNAL_ERROR",
			"message": "failed to login",
		})
		return
	}

	c.JSON(http.StatusOK, response)
}
