package models

import (
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"glrssign/internal/document"
)

// Template is a tenant's reusable document definition agreements are sent from
type Template struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID    uuid.UUID       `gorm:"type:uuid;not null" json:"tenantId"`
	Name        string          `gorm:"column:name;not null" json:"name"`
	Description string          `gorm:"column:description" json:"description"`
	Blocks      document.Blocks `gorm:"column:blocks;type:jsonb;not null" json:"blocks"`
	IsActive    bool            `gorm:"column:is_active;default:true" json:"isActive"`
	Version     int             `gorm:"column:version;default:1" json:"version"`
	CreatedBy   *int            `gorm:"column:created_by" json:"createdBy,omitempty"`
	Timestamps
}

// TableName specifies the table name for the Template model
func (Template) TableName() string {
	return "templates"
}

// Roles lists the signer roles this template asks for.
func (t *Template) Roles() []document.SignerRole {
	return t.Blocks.Roles()
}

// ToDefinition returns the template in its authored form.
func (t *Template) ToDefinition() document.Definition {
	return document.Definition{Name: t.Name, Description: t.Description, Blocks: t.Blocks}
}

// TemplateManager provides Django-like ORM methods for Template
type TemplateManager struct {
	db *gorm.DB
}

// NewTemplateManager creates a new TemplateManager instance
func NewTemplateManager(db *gorm.DB) *TemplateManager {
	return &TemplateManager{db: db}
}

// Get retrieves a template that belongs to tenantID
func (m *TemplateManager) Get(tenantID, id uuid.UUID) (*Template, error) {
	return GetObjectOr404[Template](m.db.Where("tenant_id = ?", tenantID), "id = ?", id)
}

// ListActive returns the tenant's active templates ordered by name
func (m *TemplateManager) ListActive(tenantID uuid.UUID) ([]Template, error) {
	var templates []Template
	err := m.db.Where("tenant_id = ? AND is_active = ?", tenantID, true).
		Order("name ASC").
		Find(&templates).Error
	return templates, err
}

// UpsertDefinition stores def under its name, bumping the version when a
// template of that name already exists. Agreements keep their own copy of
// the blocks, so existing agreements are unaffected.
func (m *TemplateManager) UpsertDefinition(tenantID uuid.UUID, def document.Definition, createdBy *int) (*Template, bool, error) {
	if err := def.Validate(); err != nil {
		return nil, false, err
	}
	name := strings.TrimSpace(def.Name)

	var existing Template
	err := m.db.Where("tenant_id = ? AND name = ?", tenantID, name).First(&existing).Error
	switch {
	case err == nil:
		existing.Description = def.Description
		existing.Blocks = def.Blocks
		existing.IsActive = true
		existing.Version++
		if err := m.db.Save(&existing).Error; err != nil {
			return nil, false, err
		}
		return &existing, false, nil
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, false, err
	}

	tpl := &Template{
		TenantID:    tenantID,
		Name:        name,
		Description: def.Description,
		Blocks:      def.Blocks,
		IsActive:    true,
		Version:     1,
		CreatedBy:   createdBy,
	}
	if err := m.db.Create(tpl).Error; err != nil {
		return nil, false, err
	}
	return tpl, true, nil
}

// Deactivate hides a template from the send form without deleting it
func (m *TemplateManager) Deactivate(tenantID, id uuid.UUID) error {
	res := m.db.Model(&Template{}).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Update("is_active", false)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
