package auth

import "wainbox/pkg/models"

// Principal is the resolved identity acting on the inbox
type Principal struct {
	ID       uint   `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	// NumberIDs are the numbers assigned to an employee. Admins see every number.
	NumberIDs []uint `json:"wa_number_ids"`
}

// IsAdmin reports whether p holds the admin role
func (p *Principal) IsAdmin() bool {
	return p.Role == models.RoleAdmin
}

// CanAccess reports whether p may read and reply on numberID
func (p *Principal) CanAccess(numberID uint) bool {
	if p.IsAdmin() {
		return true
	}
	for _, id := range p.NumberIDs {
		if id == numberID {
			return true
		}
	}
	return false
}
