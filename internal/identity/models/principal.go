package models

import (
	"strings"
	"time"

	id "presence/pkg/domain"
	dErrors "presence/pkg/domain-errors"
)

// Role gates access to aggregate attendance views. Members see only their own
// records; administrators see everyone's.
type Role string

const (
	RoleMember        Role = "member"
	RoleAdministrator Role = "administrator"
)

// ParseRole constructs a Role from external input. An empty value defaults to
// member so self-registration can never mint administrators.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case "":
		return RoleMember, nil
	case RoleMember, RoleAdministrator:
		return Role(s), nil
	default:
		return "", dErrors.Newf(dErrors.CodeInvalidInput, "unsupported role %q", s)
	}
}

// Principal is an authenticated user of the system.
//
// Invariants:
//   - ID is immutable once created
//   - Email and BadgeCode are unique across principals (store-enforced)
//   - Role is member or administrator
//   - Enrolled flips false→true exactly once, after the first successful
//     face enrollment; it never flips back
type Principal struct {
	ID           id.PrincipalID `json:"id"`
	Email        string         `json:"email"`
	FullName     string         `json:"full_name"`
	BadgeCode    string         `json:"badge_code"`
	Unit         string         `json:"unit"`
	Role         Role           `json:"role"`
	Enrolled     bool           `json:"enrolled"`
	PasswordHash string         `json:"-"`
	CreatedAt    time.Time      `json:"created_at"`
}

// NewPrincipal validates and constructs a principal. The password hash is
// supplied by the service layer; models never see plaintext credentials.
func NewPrincipal(pid id.PrincipalID, email, fullName, badgeCode, unit string, role Role, passwordHash string, now time.Time) (*Principal, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	fullName = strings.TrimSpace(fullName)
	badgeCode = strings.TrimSpace(badgeCode)
	unit = strings.TrimSpace(unit)

	if email == "" || !strings.Contains(email, "@") {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "a valid email is required")
	}
	if fullName == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "full name is required")
	}
	if len(fullName) > 128 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "full name must be 128 characters or less")
	}
	if badgeCode == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "badge code is required")
	}
	if role != RoleMember && role != RoleAdministrator {
		return nil, dErrors.Newf(dErrors.CodeInvalidInput, "unsupported role %q", role)
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "password hash is required")
	}

	return &Principal{
		ID:           pid,
		Email:        email,
		FullName:     fullName,
		BadgeCode:    badgeCode,
		Unit:         unit,
		Role:         role,
		Enrolled:     false,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}, nil
}

// IsAdministrator reports whether the principal may access aggregate views.
func (p *Principal) IsAdministrator() bool {
	return p.Role == RoleAdministrator
}

// MarkEnrolled flips the enrollment flag. Safe to call repeatedly; the flag
// is monotonic.
func (p *Principal) MarkEnrolled() {
	p.Enrolled = true
}
