package audit

import (
	"context"
	"time"
)

// EventType discriminates audit events.
type EventType string

const (
	EventOrganizationCreated EventType = "organization.created"
	EventOrganizationUpdated EventType = "organization.updated"
	EventOrganizationDeleted EventType = "organization.deleted"

	EventMemberAdded       EventType = "member.added"
	EventMemberRoleChanged EventType = "member.role_changed"
	EventMemberRemoved     EventType = "member.removed"

	EventRoleCreated EventType = "role.created"
	EventRoleUpdated EventType = "role.updated"
	EventRoleDeleted EventType = "role.deleted"

	EventInvitationCreated  EventType = "invitation.created"
	EventInvitationAccepted EventType = "invitation.accepted"
	EventInvitationRejected EventType = "invitation.rejected"
	EventInvitationExpired  EventType = "invitation.expired"
	EventInvitationResent   EventType = "invitation.resent"
	EventInvitationDeleted  EventType = "invitation.deleted"

	EventAccessDenied EventType = "authz.denied"

	EventBuildUploaded EventType = "build.uploaded"
	EventBuildDeleted  EventType = "build.deleted"
)

// Event is one audit record.
type Event struct {
	Type           EventType              `json:"type"`
	Timestamp      time.Time              `json:"timestamp"`
	ActorID        *int64                 `json:"actor_id,omitempty"`
	OrganizationID *int64                 `json:"organization_id,omitempty"`
	ResourceType   string                 `json:"resource_type,omitempty"`
	ResourceID     string                 `json:"resource_id,omitempty"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Emitter accepts events without blocking or failing.
type Emitter interface {
	Emit(ctx context.Context, event Event)
}

// Sink persists or forwards events.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

type nopEmitter struct{}

func (nopEmitter) Emit(context.Context, Event) {}

// Nop returns an emitter that discards every event.
func Nop() Emitter { return nopEmitter{} }

// Int64 returns a pointer to v, for ActorID and OrganizationID.
func Int64(v int64) *int64 { return &v }
