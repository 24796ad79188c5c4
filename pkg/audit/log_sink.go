package audit

import (
	"context"

	"github.com/sirupsen/logrus"
)

// LogSink writes events as structured log entries.
type LogSink struct {
	log logrus.FieldLogger
}

// NewLogSink returns a sink writing to log.
func NewLogSink(log logrus.FieldLogger) *LogSink {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Write(_ context.Context, event Event) error {
	fields := logrus.Fields{
		"audit":      true,
		"event_type": string(event.Type),
		"timestamp":  event.Timestamp,
	}
	if event.ActorID != nil {
		fields["actor_id"] = *event.ActorID
	}
	if event.OrganizationID != nil {
		fields["organization_id"] = *event.OrganizationID
	}
	if event.ResourceType != "" {
		fields["resource_type"] = event.ResourceType
		fields["resource_id"] = event.ResourceID
	}
	for k, v := range event.Metadata {
		fields["meta_"+k] = v
	}
	s.log.WithFields(fields).Info("audit event")
	return nil
}

// MultiSink fans an event out to several sinks, returning the first error
// after every sink has been tried.
type MultiSink []Sink

func (m MultiSink) Write(ctx context.Context, event Event) error {
	var first error
	for _, s := range m {
		if err := s.Write(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
