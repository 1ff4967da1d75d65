package routes

import (
	"errors"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"glrssign/internal/models"
)

type Middleware struct {
	server ServerInterface
}

func NewMiddleware(server ServerInterface) *Middleware {
	return &Middleware{server: server}
}

func (m *Middleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userIDRaw := session.Get("user_id")

		if userIDRaw == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}

		userID, ok := userIDRaw.(int)
		if !ok {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Invalid session data"})
			return
		}

		user, err := m.server.Directory().GetUser(userID)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User not found or database error"})
			return
		}

		c.Set("user", user) // Store user object in context
		c.Next()
	}
}

// TenantMiddleware checks the user holds an active membership in :tenantID
func (m *Middleware) TenantMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := currentUser(c)

		tenantID, err := uuid.Parse(c.Param("tenantID"))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid tenant ID"})
			return
		}

		dir := m.server.Directory()
		membership, err := dir.GetMembership(user.ID, tenantID)
		if err != nil {
			if errors.Is(err, models.ErrNotFound) {
				c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied to tenant"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to check tenant access"})
			return
		}
		if !membership.IsActive() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied to tenant"})
			return
		}

		tenant, err := dir.GetTenant(tenantID)
		if err != nil || !tenant.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Access denied to tenant"})
			return
		}

		c.Set("tenant", tenant)
		c.Set("membership", membership)
		c.Next()
	}
}

// RequireManager lets only members who may change agreements through.
func (m *Middleware) RequireManager() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !currentMembership(c).CanManageAgreements() {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *models.User {
	return c.MustGet("user").(*models.User)
}

func currentTenant(c *gin.Context) *models.Tenant {
	return c.MustGet("tenant").(*models.Tenant)
}

func currentMembership(c *gin.Context) *models.TenantMembership {
	return c.MustGet("membership").(*models.TenantMembership)
}
