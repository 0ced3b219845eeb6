package websocket

import (
	"context"
	"encoding/json"
	"time"

	"github.com/clinic/carecore/internal/domain/store"
)

// Feed publishes appointment changes to the hub. It satisfies the
// scheduling notifier hook.
type Feed struct {
	hub *Hub
	now func() time.Time
}

func NewFeed(hub *Hub, now func() time.Time) *Feed {
	if now == nil {
		now = time.Now
	}
	return &Feed{hub: hub, now: now}
}

func (f *Feed) AppointmentBooked(ctx context.Context, a store.Appointment) error {
	return f.publish(ctx, "appointment.booked", a)
}

func (f *Feed) AppointmentCancelled(ctx context.Context, a store.Appointment) error {
	return f.publish(ctx, "appointment.cancelled", a)
}

func (f *Feed) publish(ctx context.Context, typ string, a store.Appointment) error {
	data, err := json.Marshal(a)
	if err != nil {
		return err
	}
	f.hub.Publish(ctx, Event{
		Type:         typ,
		ResourceType: "appointment",
		ResourceID:   a.ID.String(),
		Timestamp:    f.now().UTC(),
		Data:         data,
	}, ClinicianTopic(a.ClinicianID.String()), PatientTopic(a.PatientID.String()), TopicAppointments)
	return nil
}
