// Package notify delivers invitation emails.
//
// Delivery is a side effect of an already committed change: callers log a
// failed send and carry on. Two mailers exist. LogMailer writes the message
// to the structured log and is the default for development. SMTPMailer sends
// plain-text mail through an SMTP relay.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"text/template"
	"time"
)

// InvitationEmail is everything an invitation message needs.
type InvitationEmail struct {
	To               string
	Name             string
	OrganizationName string
	TempPassword     string
	Token            string
	AcceptURL        string
	RejectURL        string
	ExpiresAt        time.Time
}

// Mailer sends invitation emails.
type Mailer interface {
	SendInvitation(ctx context.Context, msg InvitationEmail) error
}

var invitationTemplate = template.Must(template.New("invitation").Parse(
	`Hello {{.Name}},

You have been invited to join {{.OrganizationName}}.

Accept the invitation:
  {{.AcceptURL}}

Decline the invitation:
  {{.RejectURL}}

After accepting, sign in with this email address and the temporary
password below. You will be asked to choose a new password.

  Temporary password: {{.TempPassword}}

This invitation expires on {{.ExpiresAt.UTC.Format "2006-01-02 15:04 MST"}}.
`))

// Subject returns the subject line for msg.
func Subject(msg InvitationEmail) string {
	return fmt.Sprintf("You're invited to join %s", msg.OrganizationName)
}

// RenderInvitation renders the plain-text body of msg.
func RenderInvitation(msg InvitationEmail) (string, error) {
	var buf bytes.Buffer
	if err := invitationTemplate.Execute(&buf, msg); err != nil {
		return "", fmt.Errorf("failed to render invitation: %w", err)
	}
	return buf.String(), nil
}
