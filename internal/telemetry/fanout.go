// Package telemetry forwards GNSS readings to UDP listeners and an MQTT
// broker as JSON.
package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gaul-gnss/internal/baro"
	"gaul-gnss/internal/gps"
)

// Sink delivers one encoded message.
type Sink interface {
	Name() string
	Send(payload []byte) error
	Close() error
}

// Message is the JSON document sent for every successful read.
type Message struct {
	Instance string         `json:"instance"`
	SentAt   time.Time      `json:"sent_at"`
	GNSS     gps.Reading    `json:"gnss"`
	Baro     *baro.Snapshot `json:"baro,omitempty"`
}

// Fanout encodes each reading once and hands it to every sink. A failing
// sink does not stop the others.
type Fanout struct {
	instance string
	sinks    []Sink
	baro     func() baro.Snapshot
	now      func() time.Time

	mu       sync.Mutex
	sent     uint64
	failures uint64
	lastErr  time.Time
}

type Option func(*Fanout)

// WithBaro attaches the latest barometer snapshot to every message.
func WithBaro(snap func() baro.Snapshot) Option {
	return func(f *Fanout) { f.baro = snap }
}

func NewFanout(instance string, sinks []Sink, opts ...Option) *Fanout {
	f := &Fanout{instance: instance, sinks: sinks, now: time.Now}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *Fanout) Len() int {
	if f == nil {
		return 0
	}
	return len(f.sinks)
}

// Publish matches the gps.WithPublisher callback.
func (f *Fanout) Publish(r gps.Reading) {
	if f == nil || len(f.sinks) == 0 {
		return
	}
	if err := f.publish(r); err != nil {
		f.mu.Lock()
		now := f.now()
		quiet := now.Sub(f.lastErr) < 10*time.Second
		if !quiet {
			f.lastErr = now
		}
		f.mu.Unlock()
		if !quiet {
			log.Printf("telemetry send failed: %v", err)
		}
	}
}

func (f *Fanout) publish(r gps.Reading) error {
	msg := Message{Instance: f.instance, SentAt: f.now().UTC(), GNSS: r}
	if f.baro != nil {
		if s := f.baro(); s.Enabled {
			msg.Baro = &s
		}
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("telemetry: encode: %w", err)
	}

	var errs []error
	for _, s := range f.sinks {
		if err := s.Send(payload); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}

	f.mu.Lock()
	f.sent++
	f.failures += uint64(len(errs))
	f.mu.Unlock()
	return errors.Join(errs...)
}

// Counts returns messages published and individual sink failures.
func (f *Fanout) Counts() (sent, failures uint64) {
	if f == nil {
		return 0, 0
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent, f.failures
}

func (f *Fanout) Close() error {
	if f == nil {
		return nil
	}
	var errs []error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}
