package core

// Role is the kind of account a user holds
type Role string

const (
	RoleBlank   Role = "blank"
	RolePatient Role = "patient"
	RoleKeeper  Role = "keeper"
)

// ParseRole converts a wire value into a Role.
func ParseRole(s string) (Role, error) {
	switch r := Role(s); r {
	case RoleBlank, RolePatient, RoleKeeper:
		return r, nil
	}
	return "", ErrInvalidRole
}

// User is an application account
type User struct {
	ID         string   `json:"id"`
	ExternalID string   `json:"-"`
	Role       Role     `json:"role"`
	Bonds      []string `json:"bonds,omitempty"` // Keepers bonded with a patient
	Cared      string   `json:"cared,omitempty"` // Patient cared by a keeper
}

// BondWith bonds the patient p with keeper k if the bond rules allow it.
// Both users are mutated; persisting them together is up to the caller.
func (p *User) BondWith(k *User, maxBonds int) error {
	if p.Role != RolePatient || k.Role != RoleKeeper {
		return ErrBondInvalidRoles
	}
	if len(p.Bonds) >= maxBonds {
		return ErrBondLimitReached
	}
	if k.Cared != "" {
		return ErrBondAlreadyAssigned
	}
	p.Bonds = append(p.Bonds, k.ID)
	k.Cared = p.ID
	return nil
}
