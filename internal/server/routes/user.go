package routes

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
)

type UserRoutes struct {
	server ServerInterface
}

func NewUserRoutes(server ServerInterface) *UserRoutes {
	return &UserRoutes{server: server}
}

func (ur *UserRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(ur.server)

	// User routes
	r.GET("/user", middleware.AuthMiddleware(), ur.userHandler)
}

func (ur *UserRoutes) userHandler(c *gin.Context) {
	user := currentUser(c)

	tenants, err := ur.server.Directory().ActiveTenants(user.ID)
	if err != nil {
		log.Printf("failed to list tenants for user %d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch tenants"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":       user.ID,
		"email":         user.Email,
		"name":          user.Name,
		"avatar_url":    user.AvatarURL,
		"tenants":       tenants,
		"authenticated": true,
	})
}
