package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogMailer logs invitations instead of sending them. The temporary password
// is never written to the log.
type LogMailer struct {
	log logrus.FieldLogger
}

// NewLogMailer creates a log-backed mailer.
func NewLogMailer(log logrus.FieldLogger) *LogMailer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogMailer{log: log.WithField("component", "mailer")}
}

// SendInvitation implements Mailer.
func (m *LogMailer) SendInvitation(_ context.Context, msg InvitationEmail) error {
	m.log.WithFields(logrus.Fields{
		"to":           msg.To,
		"organization": msg.OrganizationName,
		"subject":      Subject(msg),
		"accept_url":   msg.AcceptURL,
		"reject_url":   msg.RejectURL,
		"expires_at":   msg.ExpiresAt,
	}).Info("Invitation email")
	return nil
}
