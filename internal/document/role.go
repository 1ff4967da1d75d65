package document

import "fmt"

// SignerRole partitions signable blocks and signers within an agreement.
type SignerRole string

const (
	RolePIR    SignerRole = "pir"
	RoleFamily SignerRole = "family"
	RoleGLRS   SignerRole = "glrs"
)

type roleInfo struct {
	label string
	color string
	rank  int
}

// Display data only. rank is the conventional signing order.
var roles = map[SignerRole]roleInfo{
	RolePIR:    {label: "PIR", color: "#3B82F6", rank: 0},
	RoleFamily: {label: "Family Member", color: "#10B981", rank: 1},
	RoleGLRS:   {label: "GLRS Staff", color: "#8B5CF6", rank: 2},
}

// Roles returns every known role in conventional signing order.
func Roles() []SignerRole {
	return []SignerRole{RolePIR, RoleFamily, RoleGLRS}
}

// ParseRole validates a role coming from a request or a fixture file.
func ParseRole(s string) (SignerRole, error) {
	r := SignerRole(s)
	if !r.Valid() {
		return "", fmt.Errorf("document: unknown signer role %q", s)
	}
	return r, nil
}

func (r SignerRole) Valid() bool {
	_, ok := roles[r]
	return ok
}

func (r SignerRole) Label() string {
	if info, ok := roles[r]; ok {
		return info.label
	}
	return string(r)
}

func (r SignerRole) Color() string {
	if info, ok := roles[r]; ok {
		return info.color
	}
	return "#6B7280"
}

// Rank is the position of the role in the pir → family → glrs convention.
// Unknown roles sort last.
func (r SignerRole) Rank() int {
	if info, ok := roles[r]; ok {
		return info.rank
	}
	return len(roles)
}

// RequiresEmail reports whether a signer in this role must be reachable by email.
// GLRS staff sign in-portal.
func (r SignerRole) RequiresEmail() bool {
	return r != RoleGLRS
}
