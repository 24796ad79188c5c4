// Package audit records domain events for external logging.
//
// An Event is a single tagged record: consumers switch on Type and read the
// generic Metadata map. Delivery is best-effort. Emit never blocks the caller
// and never returns an error; the Dispatcher drops events when its buffer is
// full and logs sink failures.
//
//	d := audit.NewDispatcher(audit.NewLogSink(log), audit.DispatcherConfig{BufferSize: 1024})
//	defer d.Close()
//	d.Emit(ctx, audit.Event{Type: audit.EventInvitationAccepted, ResourceType: "invitation", ResourceID: "42"})
package audit
