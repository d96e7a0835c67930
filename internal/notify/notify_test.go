package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func TestEncodeWrapsPayload(t *testing.T) {
	now := time.Date(2025, 3, 1, 10, 0, 0, 0, time.FixedZone("X", 3600))
	raw, err := Encode(SubjectOrderPaid, map[string]string{"order_id": "o-1"}, now)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Subject != SubjectOrderPaid || !env.OccurredAt.Equal(now) || env.OccurredAt.Location() != time.UTC {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if string(env.Data) != `{"order_id":"o-1"}` {
		t.Fatalf("unexpected data %s", env.Data)
	}
}

func TestEncodeRejectsUnmarshalable(t *testing.T) {
	if _, err := Encode("x", make(chan int), time.Now()); err == nil {
		t.Fatalf("expected marshal error")
	}
}

func TestRecorderAndNoop(t *testing.T) {
	var p Publisher = NewRecorder()
	if err := p.Publish(context.Background(), SubjectOrderPaymentFailed, struct{ ID string }{"o-2"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	events := p.(*Recorder).Events()
	if len(events) != 1 || events[0].Subject != SubjectOrderPaymentFailed {
		t.Fatalf("unexpected events %+v", events)
	}
	if err := (Noop{}).Publish(context.Background(), "x", nil); err != nil {
		t.Fatalf("noop: %v", err)
	}
}
