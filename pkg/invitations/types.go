package invitations

import (
	"time"

	"github.com/platinummonkey/warden/pkg/apperr"
)

// DefaultTTL is how long an invitation stays answerable after issue or resend.
const DefaultTTL = 7 * 24 * time.Hour

// Status is an invitation state stored in invitation_statuses.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
	StatusExpired  Status = "expired"
)

// ParseStatus validates a status filter.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusAccepted, StatusRejected, StatusExpired:
		return st, nil
	}
	return "", apperr.BadRequest("unknown invitation status %q", s)
}

// Resendable reports whether a resend may revive the invitation.
func (s Status) Resendable() bool {
	return s == StatusPending || s == StatusExpired
}

// Invitation is an offer of membership bound to an email and a role.
type Invitation struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Email          string     `json:"email"`
	RoleID         int64      `json:"role_id"`
	InvitedBy      *int64     `json:"invited_by,omitempty"`
	Status         Status     `json:"status"`
	Token          string     `json:"-"`
	ExpiresAt      time.Time  `json:"expires_at"`
	RespondedAt    *time.Time `json:"responded_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Expired reports whether the answer window closed before now, whatever the
// stored status says.
func (i *Invitation) Expired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}
