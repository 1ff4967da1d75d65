package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// User is a GLRS staff member who signs in through an OAuth provider
type User struct {
	ID         int       `gorm:"primaryKey;column:id" json:"id"`
	Provider   string    `gorm:"column:provider;not null" json:"provider"`
	ProviderID string    `gorm:"column:provider_id;not null" json:"provider_id"`
	Email      string    `gorm:"column:email;uniqueIndex;not null" json:"email"`
	Name       string    `gorm:"column:name;not null" json:"name"`
	AvatarURL  string    `gorm:"column:avatar_url" json:"avatar_url"`
	CreatedAt  time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt  time.Time `gorm:"column:updated_at" json:"updated_at"`

	// Associations
	Memberships []TenantMembership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`
}

// TableName specifies the table name for the User model
func (User) TableName() string {
	return "users"
}

// DisplayName is what lands in audit entries and the sentBy field.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

// UserManager provides Django-like ORM methods for User
type UserManager struct {
	db *gorm.DB
}

// NewUserManager creates a new UserManager instance
func NewUserManager(db *gorm.DB) *UserManager {
	return &UserManager{db: db}
}

// UpsertFromProvider creates the user on first login and refreshes the
// profile fields on later ones.
func (m *UserManager) UpsertFromProvider(user *User) (created bool, err error) {
	result := m.db.Where("provider = ? AND provider_id = ?", user.Provider, user.ProviderID).
		Assign(User{
			Email:     user.Email,
			Name:      user.Name,
			AvatarURL: user.AvatarURL,
		}).
		FirstOrCreate(user)
	if result.Error != nil {
		return false, result.Error
	}
	return user.CreatedAt.Equal(user.UpdatedAt), nil
}

// Get retrieves a user by ID
func (m *UserManager) Get(id int) (*User, error) {
	return GetObjectOr404[User](m.db, id)
}

// GetByEmail retrieves a user by email
func (m *UserManager) GetByEmail(email string) (*User, error) {
	var user User
	err := m.db.Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ActiveTenants lists the active tenants the user holds an active membership in
func (m *UserManager) ActiveTenants(userID int) ([]UserTenant, error) {
	var tenants []UserTenant
	query := `
		SELECT
			t.id as tenant_id,
			t.name as tenant_name,
			t.slug as tenant_slug,
			tm.role,
			tm.joined_at
		FROM tenant_memberships tm
		JOIN tenants t ON tm.tenant_id = t.id
		WHERE tm.user_id = ?
		AND tm.status = ?
		AND t.is_active = true
		ORDER BY tm.joined_at ASC`

	err := m.db.Raw(query, userID, StatusActive).Scan(&tenants).Error
	return tenants, err
}

// UserTenant is the view of one tenant from a member's perspective
type UserTenant struct {
	TenantID   string         `json:"tenant_id"`
	TenantName string         `json:"tenant_name"`
	TenantSlug string         `json:"tenant_slug"`
	Role       MembershipRole `json:"role"`
	JoinedAt   time.Time      `json:"joined_at"`
}
