package routes

import (
	"log"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/markbates/goth/gothic"

	"glrssign/internal/agreement"
	"glrssign/internal/export"
	"glrssign/internal/models"
	"glrssign/internal/notify"
	"glrssign/internal/query"
)

type AuthRoutes struct {
	server ServerInterface
}

// ServerInterface is what the route groups need from the server.
type ServerInterface interface {
	Directory() Directory
	Templates() TemplateStore
	Agreements() *agreement.Service
	Queries() *query.Service
	Gateway() *notify.Gateway
	Exporter() *export.Exporter
	FrontendURL() string
}

// Directory resolves staff users, tenants and memberships.
type Directory interface {
	UpsertUser(u *models.User) (created bool, err error)
	GetUser(id int) (*models.User, error)
	ActiveTenants(userID int) ([]models.UserTenant, error)
	GetTenant(id uuid.UUID) (*models.Tenant, error)
	GetMembership(userID int, tenantID uuid.UUID) (*models.TenantMembership, error)
}

// TemplateStore is the read side of a tenant's templates.
type TemplateStore interface {
	Get(tenantID, id uuid.UUID) (*models.Template, error)
	ListActive(tenantID uuid.UUID) ([]models.Template, error)
}

func NewAuthRoutes(server ServerInterface) *AuthRoutes {
	return &AuthRoutes{server: server}
}

func (ar *AuthRoutes) RegisterRoutes(r *gin.Engine) {
	// OAuth routes
	r.GET("/auth/:provider", ar.authHandler)
	r.GET("/auth/:provider/callback", ar.authCallbackHandler)
	r.GET("/logout", ar.logoutHandler)
}

func (ar *AuthRoutes) authHandler(c *gin.Context) {
	provider := c.Param("provider")

	req := c.Request.Clone(c.Request.Context())
	req.URL.Path = "/auth/" + provider

	q := req.URL.Query()
	q.Add("provider", provider)
	req.URL.RawQuery = q.Encode()

	gothic.BeginAuthHandler(c.Writer, req)
}

func (ar *AuthRoutes) authCallbackHandler(c *gin.Context) {
	provider := c.Param("provider")

	req := c.Request.Clone(c.Request.Context())
	req.URL.Path = "/auth/" + provider + "/callback"

	q := req.URL.Query()
	q.Add("provider", provider)
	req.URL.RawQuery = q.Encode()

	gothUser, err := gothic.CompleteUserAuth(c.Writer, req)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := &models.User{
		Provider:   gothUser.Provider,
		ProviderID: gothUser.UserID,
		Email:      gothUser.Email,
		Name:       gothUser.Name,
		AvatarURL:  gothUser.AvatarURL,
	}

	created, err := ar.server.Directory().UpsertUser(user)
	if err != nil {
		log.Printf("failed to save user %s: %v", user.Email, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save user"})
		return
	}
	if created {
		log.Printf("new staff user %d (%s)", user.ID, user.Email)
	}

	session := sessions.Default(c)
	session.Set("user_id", user.ID)
	session.Set("email", user.Email)
	session.Save()

	c.Redirect(http.StatusTemporaryRedirect, ar.server.FrontendURL()+"/agreements")
}

func (ar *AuthRoutes) logoutHandler(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Save()

	c.Redirect(http.StatusFound, ar.server.FrontendURL()+"/")
}
