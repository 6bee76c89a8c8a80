package events

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	e := New(AppointmentBooked, map[string]string{"appointment_id": "a1"})
	if e.ID == "" {
		t.Error("expected ID")
	}
	if e.Type != AppointmentBooked {
		t.Errorf("unexpected type %q", e.Type)
	}
	if e.OccurredAt.IsZero() || e.OccurredAt.Location().String() != "UTC" {
		t.Errorf("expected UTC timestamp, got %v", e.OccurredAt)
	}
}

func TestEvent_JSON(t *testing.T) {
	e := New(AppointmentCancelled, map[string]string{"appointment_id": "a1"})
	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	var got map[string]interface{}
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatal(err)
	}
	if got["type"] != AppointmentCancelled {
		t.Errorf("unexpected type %v", got["type"])
	}
	data, _ := got["data"].(map[string]interface{})
	if data["appointment_id"] != "a1" {
		t.Errorf("unexpected data %v", got["data"])
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()
	r.Publish(ctx, New(ScheduleCreated, nil))
	r.Publish(ctx, New(AppointmentBooked, nil))

	types := r.Types()
	if len(types) != 2 || types[0] != ScheduleCreated || types[1] != AppointmentBooked {
		t.Errorf("unexpected types %v", types)
	}

	r.Err = errors.New("broker down")
	if err := r.Publish(ctx, New(AppointmentPaid, nil)); err == nil {
		t.Error("expected configured error")
	}
	if len(r.Events()) != 2 {
		t.Error("failed publish should not be recorded")
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))
	if err := p.Publish(context.Background(), New(AppointmentPaid, map[string]string{"id": "a1"})); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, `"event_type":"appointment.paid"`) || !strings.Contains(out, `"data":{"id":"a1"}`) {
		t.Errorf("unexpected log line %s", out)
	}
}
