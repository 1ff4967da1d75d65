package routes

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"glrssign/internal/agreement"
	"glrssign/internal/document"
	"glrssign/internal/models"
)

type TemplateRoutes struct {
	server ServerInterface
}

func NewTemplateRoutes(server ServerInterface) *TemplateRoutes {
	return &TemplateRoutes{server: server}
}

func (tr *TemplateRoutes) RegisterRoutes(r *gin.Engine) {
	middleware := NewMiddleware(tr.server)

	// Template routes - all require authentication and tenant context
	templates := r.Group("/tenants/:tenantID/templates")
	templates.Use(middleware.AuthMiddleware())
	templates.Use(middleware.TenantMiddleware())
	{
		templates.GET("", tr.listTemplatesHandler)
		templates.GET("/:templateID", tr.getTemplateHandler)
	}
}

// templateSummary is a template as listed on the send form.
type templateSummary struct {
	ID           uuid.UUID                   `json:"id"`
	Name         string                      `json:"name"`
	Description  string                      `json:"description"`
	Version      int                         `json:"version"`
	Roles        []document.SignerRole       `json:"roles"`
	DefaultOrder map[document.SignerRole]int `json:"defaultOrder"`
}

func summarize(t *models.Template) templateSummary {
	return templateSummary{
		ID:           t.ID,
		Name:         t.Name,
		Description:  t.Description,
		Version:      t.Version,
		Roles:        t.Roles(),
		DefaultOrder: agreement.ConventionalOrder(t.Blocks),
	}
}

func (tr *TemplateRoutes) listTemplatesHandler(c *gin.Context) {
	tenant := currentTenant(c)

	templates, err := tr.server.Templates().ListActive(tenant.ID)
	if err != nil {
		log.Printf("failed to list templates for tenant %s: %v", tenant.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch templates"})
		return
	}

	out := make([]templateSummary, 0, len(templates))
	for i := range templates {
		out = append(out, summarize(&templates[i]))
	}
	c.JSON(http.StatusOK, gin.H{"templates": out})
}

func (tr *TemplateRoutes) getTemplateHandler(c *gin.Context) {
	tenant := currentTenant(c)

	templateID, err := uuid.Parse(c.Param("templateID"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid template ID"})
		return
	}

	tpl, err := tr.server.Templates().Get(tenant.ID, templateID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch template"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"template": summarize(tpl),
		"blocks":   tpl.Blocks,
	})
}
