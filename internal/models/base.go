package models

import (
	"errors"
	"time"
)

// Custom types to match PostgreSQL enums
type MembershipRole string
type MembershipStatus string

const (
	// Membership Roles
	RoleAdmin  MembershipRole = "admin"
	RoleStaff  MembershipRole = "staff"
	RoleViewer MembershipRole = "viewer"

	// Membership Status
	StatusActive    MembershipStatus = "active"
	StatusSuspended MembershipStatus = "suspended"
)

// ErrNotFound is returned by the Or404 helpers when no row matches.
var ErrNotFound = errors.New("object not found")

// Timestamps contains the bookkeeping columns shared by mutable models
type Timestamps struct {
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at" json:"updated_at"`
}

// Valid reports whether r is one of the known membership roles.
func (r MembershipRole) Valid() bool {
	switch r {
	case RoleAdmin, RoleStaff, RoleViewer:
		return true
	}
	return false
}
