package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantMembership represents the relationship between staff users and tenants
type TenantMembership struct {
	ID        uuid.UUID        `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	TenantID  uuid.UUID        `gorm:"type:uuid;not null" json:"tenant_id"`
	UserID    int              `gorm:"not null" json:"user_id"`
	Role      MembershipRole   `gorm:"type:membership_role;not null;default:'staff'" json:"role"`
	Status    MembershipStatus `gorm:"type:membership_status;default:'active'" json:"status"`
	JoinedAt  time.Time        `gorm:"column:joined_at" json:"joined_at"`
	CreatedAt time.Time        `gorm:"column:created_at" json:"created_at"`
}

// TableName specifies the table name for the TenantMembership model
func (TenantMembership) TableName() string {
	return "tenant_memberships"
}

// BeforeCreate sets the joined_at timestamp if not set
func (tm *TenantMembership) BeforeCreate(tx *gorm.DB) error {
	if tm.JoinedAt.IsZero() {
		tm.JoinedAt = time.Now()
	}
	return nil
}

// MembershipManager provides Django-like ORM methods for TenantMembership
type MembershipManager struct {
	db *gorm.DB
}

// NewMembershipManager creates a new MembershipManager instance
func NewMembershipManager(db *gorm.DB) *MembershipManager {
	return &MembershipManager{db: db}
}

// GetByUserAndTenant retrieves a membership by user and tenant
func (m *MembershipManager) GetByUserAndTenant(userID int, tenantID uuid.UUID) (*TenantMembership, error) {
	var membership TenantMembership
	err := m.db.Where("user_id = ? AND tenant_id = ?", userID, tenantID).First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &membership, nil
}

// Suspend suspends the membership
func (m *MembershipManager) Suspend(membership *TenantMembership) error {
	membership.Status = StatusSuspended
	return m.db.Save(membership).Error
}

// IsActive checks if the membership is active
func (tm *TenantMembership) IsActive() bool {
	return tm.Status == StatusActive
}

// IsAdmin checks if the membership has the admin role
func (tm *TenantMembership) IsAdmin() bool {
	return tm.Role == RoleAdmin
}

// CanManageAgreements reports whether the member may send, sign, void or
// export agreements. Viewers only read.
func (tm *TenantMembership) CanManageAgreements() bool {
	return tm.IsActive() && (tm.Role == RoleAdmin || tm.Role == RoleStaff)
}
