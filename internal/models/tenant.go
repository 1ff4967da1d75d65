package models

import (
	"crypto/rand"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JSONB handles JSON data storage
type JSONB map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return "{}", nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONB) Scan(value interface{}) error {
	if value == nil {
		*j = make(map[string]interface{})
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		return errors.New("unsupported type for JSONB")
	}
}

// Tenant is a case-management organisation owning templates and agreements
type Tenant struct {
	ID          uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string    `gorm:"column:name;not null" json:"name"`
	Slug        string    `gorm:"column:slug;uniqueIndex;not null" json:"slug"`
	Description string    `gorm:"column:description" json:"description"`
	Settings    JSONB     `gorm:"column:settings;type:jsonb;default:'{}'" json:"settings"`
	IsActive    bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt   time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt   time.Time `gorm:"column:updated_at" json:"updated_at"`

	// Associations
	Memberships []TenantMembership `gorm:"foreignKey:TenantID" json:"memberships,omitempty"`
}

// TableName specifies the table name for the Tenant model
func (Tenant) TableName() string {
	return "tenants"
}

// BeforeCreate generates a unique slug if not provided
func (t *Tenant) BeforeCreate(tx *gorm.DB) error {
	if t.Slug == "" {
		for attempts := 0; attempts < 100; attempts++ {
			slug := generateSlug(6)
			var count int64
			tx.Model(&Tenant{}).Where("slug = ?", slug).Count(&count)
			if count == 0 {
				t.Slug = slug
				break
			}
		}
		if t.Slug == "" {
			return errors.New("could not generate unique slug")
		}
	}
	return nil
}

// generateSlug generates a random alphanumeric string of given length
func generateSlug(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, length)
	rand.Read(b)
	for i := range b {
		b[i] = charset[b[i]%byte(len(charset))]
	}
	return string(b)
}

// AgreementTTL returns the tenant's "agreement_ttl_days" setting, or fallback
// when it is unset or not a positive number.
func (t *Tenant) AgreementTTL(fallback time.Duration) time.Duration {
	raw, ok := t.Settings["agreement_ttl_days"]
	if !ok {
		return fallback
	}
	var days float64
	switch v := raw.(type) {
	case float64:
		days = v
	case int:
		days = float64(v)
	default:
		return fallback
	}
	if days <= 0 {
		return fallback
	}
	return time.Duration(days * float64(24*time.Hour))
}

// TenantManager provides Django-like ORM methods for Tenant
type TenantManager struct {
	db *gorm.DB
}

// NewTenantManager creates a new TenantManager instance
func NewTenantManager(db *gorm.DB) *TenantManager {
	return &TenantManager{db: db}
}

// Create creates a new tenant
func (m *TenantManager) Create(tenant *Tenant) error {
	return m.db.Create(tenant).Error
}

// Get retrieves a tenant by ID
func (m *TenantManager) Get(id uuid.UUID) (*Tenant, error) {
	return GetObjectOr404[Tenant](m.db, "id = ?", id)
}

// GetBySlug retrieves an active tenant by slug
func (m *TenantManager) GetBySlug(slug string) (*Tenant, error) {
	return GetObjectOr404[Tenant](m.db.Where("is_active = ?", true), "slug = ?", slug)
}

// AddMember adds a user to the tenant, reactivating an existing membership
func (m *TenantManager) AddMember(tenant *Tenant, user *User, role MembershipRole) (*TenantMembership, error) {
	if !role.Valid() {
		return nil, errors.New("invalid membership role")
	}
	var membership TenantMembership
	err := m.db.Where("tenant_id = ? AND user_id = ?", tenant.ID, user.ID).First(&membership).Error
	if err == nil {
		membership.Status = StatusActive
		membership.Role = role
		return &membership, m.db.Save(&membership).Error
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	membership = TenantMembership{
		TenantID: tenant.ID,
		UserID:   user.ID,
		Role:     role,
		Status:   StatusActive,
	}
	return &membership, m.db.Create(&membership).Error
}
