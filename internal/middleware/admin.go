package middleware

import (
	"ticketpay/internal/domain"

	"github.com/gin-gonic/gin"
)

// AdminRequired gates wallet administration. Use after AuthRequired.
func AdminRequired() gin.HandlerFunc {
	return RequireRole(domain.RoleAdmin)
}
