package telemetry

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"gaul-gnss/internal/baro"
	"gaul-gnss/internal/gps"
)

type recordSink struct {
	name     string
	payloads [][]byte
	err      error
	closed   bool
}

func (s *recordSink) Name() string { return s.name }

func (s *recordSink) Send(p []byte) error {
	s.payloads = append(s.payloads, append([]byte(nil), p...))
	return s.err
}

func (s *recordSink) Close() error {
	s.closed = true
	return nil
}

var fixedNow = time.Date(2024, 7, 4, 8, 6, 8, 0, time.UTC)

func TestFanout_EncodesOnceForAllSinks(t *testing.T) {
	a := &recordSink{name: "a"}
	b := &recordSink{name: "b"}
	f := NewFanout("rocket-1", []Sink{a, b}, WithBaro(func() baro.Snapshot {
		return baro.Snapshot{Enabled: true, Valid: true, AltitudeM: 12.5}
	}))
	f.now = func() time.Time { return fixedNow }

	f.Publish(gps.Reading{Status: true, Fix: true, Latitude: 30.4910248, Longitude: 114.5012, TimeUTC: "08:06:08.000"})

	if len(a.payloads) != 1 || len(b.payloads) != 1 {
		t.Fatalf("payloads a=%d b=%d want 1 each", len(a.payloads), len(b.payloads))
	}
	if string(a.payloads[0]) != string(b.payloads[0]) {
		t.Fatalf("sinks received different payloads")
	}

	var got map[string]any
	if err := json.Unmarshal(a.payloads[0], &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got["instance"] != "rocket-1" {
		t.Fatalf("instance=%v", got["instance"])
	}
	gnss := got["gnss"].(map[string]any)
	if gnss["fix"] != true || gnss["lat_deg"] != 30.4910248 {
		t.Fatalf("gnss=%v", gnss)
	}
	br := got["baro"].(map[string]any)
	if br["altitude_m"] != 12.5 {
		t.Fatalf("baro=%v", br)
	}

	sent, failures := f.Counts()
	if sent != 1 || failures != 0 {
		t.Fatalf("sent=%d failures=%d want 1/0", sent, failures)
	}
}

func TestFanout_FailingSinkDoesNotBlockOthers(t *testing.T) {
	bad := &recordSink{name: "bad", err: errors.New("unreachable")}
	good := &recordSink{name: "good"}
	f := NewFanout("x", []Sink{bad, good})

	err := f.publish(gps.Reading{Status: true})
	if err == nil || !strings.Contains(err.Error(), "bad: unreachable") {
		t.Fatalf("err=%v want bad sink error", err)
	}
	if len(good.payloads) != 1 {
		t.Fatalf("good sink payloads=%d want 1", len(good.payloads))
	}
	if _, failures := f.Counts(); failures != 1 {
		t.Fatalf("failures=%d want 1", failures)
	}
}

func TestFanout_DisabledBaroOmitted(t *testing.T) {
	s := &recordSink{name: "s"}
	f := NewFanout("x", []Sink{s}, WithBaro(func() baro.Snapshot { return baro.Snapshot{} }))
	f.Publish(gps.Reading{Status: true})
	if strings.Contains(string(s.payloads[0]), `"baro"`) {
		t.Fatalf("payload=%s should omit baro", s.payloads[0])
	}
}

func TestFanout_CloseClosesSinks(t *testing.T) {
	a := &recordSink{name: "a"}
	f := NewFanout("x", []Sink{a})
	if err := f.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if !a.closed {
		t.Fatalf("sink not closed")
	}
}

func TestFanout_NilAndEmptyAreNoops(t *testing.T) {
	var f *Fanout
	f.Publish(gps.Reading{})
	if f.Len() != 0 || f.Close() != nil {
		t.Fatalf("nil fanout should be inert")
	}
	NewFanout("x", nil).Publish(gps.Reading{})
}
