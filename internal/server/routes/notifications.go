package routes

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"glrssign/internal/agreement"
	"glrssign/internal/document"
)

// NotificationRoutes let staff re-send reminders and copy signing links.
type NotificationRoutes struct {
	server ServerInterface
}

func NewNotificationRoutes(server ServerInterface) *NotificationRoutes {
	return &NotificationRoutes{server: server}
}

func (nr *NotificationRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(nr.server)

	signers := r.Group("/tenants/:tenantID/agreements/:id/signers/:role")
	signers.Use(middleware.AuthMiddleware())
	signers.Use(middleware.TenantMiddleware())
	signers.Use(middleware.RequireManager())
	{
		signers.POST("/remind", nr.remindHandler)
		signers.GET("/link", nr.linkHandler)
	}
}

// loadSigner resolves :id and :role within the current tenant.
func (nr *NotificationRoutes) loadSigner(c *gin.Context) (*agreement.Agreement, *agreement.Signer, bool) {
	role, err := document.ParseRole(c.Param("role"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signer role"})
		return nil, nil, false
	}

	a, err := nr.server.Agreements().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	if a.TenantID != currentTenant(c).ID.String() {
		respondError(c, agreement.ErrNotFound)
		return nil, nil, false
	}

	signer, ok := a.Signer(role)
	if !ok {
		respondError(c, agreement.ErrUnknownSigner)
		return nil, nil, false
	}
	return a, signer, true
}

// remindHandler queues a reminder to a signer who still has to sign.
func (nr *NotificationRoutes) remindHandler(c *gin.Context) {
	a, signer, ok := nr.loadSigner(c)
	if !ok {
		return
	}

	now := nr.server.Agreements().Now()
	switch {
	case a.Status.IsTerminal():
		respondError(c, &agreement.AlreadyTerminalError{Status: a.Status})
		return
	case agreement.IsExpired(a, now):
		respondError(c, agreement.ErrExpired)
		return
	case signer.Status == agreement.SignerSigned:
		respondError(c, agreement.ErrAlreadySigned)
		return
	}

	if err := nr.server.Gateway().QueueReminder(c.Request.Context(), a, *signer); err != nil {
		respondError(c, err)
		return
	}
	log.Printf("agreement %s: reminder to %s queued by user %d", a.ID, signer.Role, currentUser(c).ID)
	c.JSON(http.StatusAccepted, gin.H{"message": "Reminder queued"})
}

// linkHandler returns the signer's link so staff can hand it over in person.
func (nr *NotificationRoutes) linkHandler(c *gin.Context) {
	_, signer, ok := nr.loadSigner(c)
	if !ok {
		return
	}

	link, err := nr.server.Gateway().LinkFor(*signer)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"role": signer.Role, "link": link})
}
