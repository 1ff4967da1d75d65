package routes

import "github.com/gin-gonic/gin"

// Register mounts every route group on r.
func Register(r *gin.Engine, server ServerInterface) {
	NewAuthRoutes(server).RegisterRoutes(r)
	NewUserRoutes(server).RegisterRoutes(r)
	NewTemplateRoutes(server).RegisterRoutes(r)
	NewAgreementRoutes(server).RegisterRoutes(r)
	NewNotificationRoutes(server).RegisterRoutes(r)
	NewSigningRoutes(server).RegisterRoutes(r)
}
