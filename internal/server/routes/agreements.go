package routes

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"glrssign/internal/agreement"
	"glrssign/internal/document"
	"glrssign/internal/models"
	"glrssign/internal/query"
)

type AgreementRoutes struct {
	server ServerInterface
}

func NewAgreementRoutes(server ServerInterface) *AgreementRoutes {
	return &AgreementRoutes{server: server}
}

func (ar *AgreementRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(ar.server)

	agreements := r.Group("/tenants/:tenantID/agreements")
	agreements.Use(middleware.AuthMiddleware())
	agreements.Use(middleware.TenantMiddleware())
	{
		agreements.GET("", ar.listAgreementsHandler)
		agreements.GET("/stream", ar.streamAgreementsHandler)
		agreements.GET("/:id", ar.getAgreementHandler)
		agreements.GET("/:id/export", ar.downloadExportHandler)

		manage := agreements.Group("")
		manage.Use(middleware.RequireManager())
		manage.POST("", ar.sendAgreementHandler)
		manage.POST("/:id/void", ar.voidAgreementHandler)
		manage.POST("/:id/prolong", ar.prolongAgreementHandler)
		manage.POST("/:id/fields", ar.submitFieldsHandler)
		manage.POST("/:id/sign", ar.signAgreementHandler)
		manage.POST("/:id/export", ar.exportAgreementHandler)
	}
}

type SendAgreementRequest struct {
	TemplateID    string                                           `json:"templateId" binding:"required"`
	DocumentTitle string                                           `json:"documentTitle"`
	Signers       map[document.SignerRole]agreement.SignerFormData `json:"signers" binding:"required"`
	ExpiresInDays int                                              `json:"expiresInDays"`
}

type OperationRequest struct {
	OperationID string `json:"operationId"`
}

type ProlongRequest struct {
	OperationID string    `json:"operationId"`
	ExpiresAt   time.Time `json:"expiresAt" binding:"required"`
}

type FieldsRequest struct {
	OperationID string         `json:"operationId"`
	Values      map[string]any `json:"values"`
}

type SignRequest struct {
	OperationID  string         `json:"operationId"`
	Values       map[string]any `json:"values"`
	SignedFields []string       `json:"signedFields"`
}

// parseFilter reads ?status= and ?limit=, answering 400 itself on bad input.
func parseFilter(c *gin.Context) (query.Filter, bool) {
	status, ok := agreement.ParseStatus(c.Query("status"))
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Unknown status %q", c.Query("status"))})
		return query.Filter{}, false
	}
	f := query.Filter{Status: status}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("Invalid limit %q", raw)})
			return query.Filter{}, false
		}
		f.Limit = limit
	}
	return f, true
}

func (ar *AgreementRoutes) listAgreementsHandler(c *gin.Context) {
	f, ok := parseFilter(c)
	if !ok {
		return
	}

	snap, err := ar.server.Queries().List(c.Request.Context(), currentTenant(c).ID.String(), f)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// streamAgreementsHandler pushes a fresh snapshot as server-sent events
// whenever the tenant's agreements change or time moves an effective status.
func (ar *AgreementRoutes) streamAgreementsHandler(c *gin.Context) {
	f, ok := parseFilter(c)
	if !ok {
		return
	}

	snaps := ar.server.Queries().Subscribe(c.Request.Context(), currentTenant(c).ID.String(), f)
	c.Stream(func(w io.Writer) bool {
		snap, ok := <-snaps
		if !ok {
			return false
		}
		c.SSEvent("snapshot", snap)
		return true
	})
}

// loadAgreement fetches :id and hides agreements of other tenants.
func (ar *AgreementRoutes) loadAgreement(c *gin.Context) (*agreement.Agreement, bool) {
	a, err := ar.server.Agreements().Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if a.TenantID != currentTenant(c).ID.String() {
		respondError(c, agreement.ErrNotFound)
		return nil, false
	}
	return a, true
}

func (ar *AgreementRoutes) respondOutcome(c *gin.Context, status int, out agreement.Outcome) {
	body := gin.H{
		"agreement": query.NewDetail(out.Agreement, ar.server.Agreements().Now()),
		"replayed":  out.Replayed,
	}
	if out.FollowUp != nil {
		body["warning"] = publicMessage(out.FollowUp)
	}
	c.JSON(status, body)
}

func (ar *AgreementRoutes) getAgreementHandler(c *gin.Context) {
	a, ok := ar.loadAgreement(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, query.NewDetail(a, ar.server.Agreements().Now()))
}

func (ar *AgreementRoutes) sendAgreementHandler(c *gin.Context) {
	user := currentUser(c)
	tenant := currentTenant(c)

	var req SendAgreementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	templateID, err := uuid.Parse(req.TemplateID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
		return
	}
	tpl, err := ar.server.Templates().Get(tenant.ID, templateID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch template"})
		return
	}
	if !tpl.IsActive {
		c.JSON(http.StatusConflict, gin.H{"error": "Template is no longer active"})
		return
	}

	title := req.DocumentTitle
	if title == "" {
		title = tpl.Name
	}
	ttl := tenant.AgreementTTL(0)
	if req.ExpiresInDays > 0 {
		ttl = time.Duration(req.ExpiresInDays) * 24 * time.Hour
	}

	out, err := ar.server.Agreements().Send(c.Request.Context(), agreement.DraftParams{
		TenantID:      tenant.ID.String(),
		TemplateID:    tpl.ID.String(),
		DocumentTitle: title,
		Blocks:        tpl.Blocks,
		Signers:       req.Signers,
		SentBy:        user.DisplayName(),
		TTL:           ttl,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ar.respondOutcome(c, http.StatusCreated, out)
}

func (ar *AgreementRoutes) voidAgreementHandler(c *gin.Context) {
	var req OperationRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	a, ok := ar.loadAgreement(c)
	if !ok {
		return
	}

	out, err := ar.server.Agreements().Void(c.Request.Context(), a.ID, req.OperationID, currentUser(c).DisplayName())
	if err != nil {
		respondError(c, err)
		return
	}
	ar.respondOutcome(c, http.StatusOK, out)
}

func (ar *AgreementRoutes) prolongAgreementHandler(c *gin.Context) {
	var req ProlongRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "expiresAt is required"})
		return
	}
	a, ok := ar.loadAgreement(c)
	if !ok {
		return
	}

	out, err := ar.server.Agreements().Prolong(c.Request.Context(), a.ID, req.OperationID, req.ExpiresAt.UTC(), currentUser(c).DisplayName())
	if err != nil {
		respondError(c, err)
		return
	}
	ar.respondOutcome(c, http.StatusOK, out)
}

// submitFieldsHandler saves GLRS field values without signing.
func (ar *AgreementRoutes) submitFieldsHandler(c *gin.Context) {
	var req FieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	a, ok := ar.loadAgreement(c)
	if !ok {
		return
	}

	out, err := ar.server.Agreements().SubmitFields(c.Request.Context(), a.ID, req.OperationID, document.RoleGLRS, req.Values)
	if err != nil {
		respondError(c, err)
		return
	}
	ar.respondOutcome(c, http.StatusOK, out)
}

// signAgreementHandler is the in-portal signature of the GLRS staff signer.
func (ar *AgreementRoutes) signAgreementHandler(c *gin.Context) {
	var req SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	a, ok := ar.loadAgreement(c)
	if !ok {
		return
	}

	out, err := ar.server.Agreements().Sign(c.Request.Context(), a.ID, req.OperationID, document.RoleGLRS, agreement.SignInput{
		Values:       req.Values,
		SignedFields: req.SignedFields,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	ar.respondOutcome(c, http.StatusOK, out)
}

func (ar *AgreementRoutes) exportAgreementHandler(c *gin.Context) {
	a, ok := ar.loadAgreement(c)
	if !ok {
		return
	}

	art, err := ar.server.Exporter().Export(c.Request.Context(), a)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"export": art})
}

func (ar *AgreementRoutes) downloadExportHandler(c *gin.Context) {
	a, ok := ar.loadAgreement(c)
	if !ok {
		return
	}

	data, _, err := ar.server.Exporter().Download(c.Request.Context(), a.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Printf("agreement %s export downloaded by user %d", a.ID, currentUser(c).ID)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", a.ID+"-signed.pdf"))
	c.Data(http.StatusOK, "application/pdf", data)
}
