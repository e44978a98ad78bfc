package baro

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gaul-gnss/internal/i2c"
	"gaul-gnss/internal/sensors/bmp280"
)

type Config struct {
	Enable      bool
	Bus         string
	Address     uint16
	RefSamples  int
	RefInterval time.Duration
	Interval    time.Duration
}

type Snapshot struct {
	Enabled  bool `json:"enabled"`
	Detected bool `json:"detected"`
	Valid    bool `json:"valid"`

	TempC       float64 `json:"temp_c"`
	PressurePa  float64 `json:"pressure_pa"`
	ReferencePa float64 `json:"reference_pa"`
	AltitudeM   float64 `json:"altitude_m"`

	VerticalSpeedMps float64 `json:"vertical_speed_mps"`

	LastError string    `json:"last_error,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

// sensor is the part of *bmp280.Device the sampler drives.
type sensor interface {
	Read() (tempC, pressPa float64, err error)
	MeasureReference(samples int, interval time.Duration) (float64, error)
	SetReference(pa float64)
}

// opener returns a fresh sensor. It is called at start and again when
// repeated reads fail.
type opener func() (sensor, func() error, error)

type Service struct {
	cfg  Config
	open opener

	mu   sync.RWMutex
	snap Snapshot

	stopOnce sync.Once
	stopCh   chan struct{}
}

const reinitAfterFailures = 10

func New(cfg Config) *Service {
	if cfg.Bus == "" {
		cfg.Bus = "/dev/i2c-1"
	}
	if cfg.Address == 0 {
		cfg.Address = bmp280.DefaultAddress()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 100 * time.Millisecond
	}
	s := &Service{cfg: cfg, stopCh: make(chan struct{})}
	s.open = s.openBMP280
	s.snap.Enabled = cfg.Enable
	return s
}

func (s *Service) openBMP280() (sensor, func() error, error) {
	bus, err := i2c.Open(s.cfg.Bus)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", s.cfg.Bus, err)
	}
	dev, err := bmp280.New(bus.Dev(s.cfg.Address), bmp280.ModeNormal)
	if err != nil {
		_ = bus.Close()
		return nil, nil, fmt.Errorf("%s addr 0x%02X: %w", bus.Path(), s.cfg.Address, err)
	}
	log.Printf("baro sensor ready bus=%s addr=0x%02X", bus.Path(), s.cfg.Address)
	return dev, bus.Close, nil
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Start opens the sensor, measures the ground reference and starts the
// sampling loop. The reference measurement blocks for RefSamples*RefInterval.
func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("baro: service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}

	dev, closeBus, err := s.open()
	if err != nil {
		s.setErr(fmt.Sprintf("init: %v", err))
		return fmt.Errorf("baro: %w", err)
	}

	ref, err := dev.MeasureReference(s.cfg.RefSamples, s.cfg.RefInterval)
	if err != nil {
		log.Printf("baro reference fallback ref_pa=%.0f err=%v", ref, err)
	} else {
		log.Printf("baro reference ref_pa=%.0f samples=%d", ref, s.cfg.RefSamples)
	}

	s.mu.Lock()
	s.snap.Detected = true
	s.snap.ReferencePa = ref
	s.mu.Unlock()

	go s.run(ctx, dev, closeBus)
	return nil
}

func (s *Service) run(ctx context.Context, dev sensor, closeBus func() error) {
	tick := time.NewTicker(s.cfg.Interval)
	defer tick.Stop()
	defer func() {
		if closeBus != nil {
			_ = closeBus()
		}
	}()

	var lastAltM float64
	var lastAt time.Time
	var vs float64
	var failures int
	var lastReinitAt time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-tick.C:
		}

		tc, p, err := dev.Read()
		if err == nil && p <= 0 {
			err = fmt.Errorf("pressure invalid")
		}
		if err != nil {
			failures++
			s.setErr(err.Error())
			if failures >= reinitAfterFailures && time.Since(lastReinitAt) >= 2*time.Second {
				lastReinitAt = time.Now()
				nd, nc, reErr := s.open()
				if reErr != nil {
					s.setErr(fmt.Sprintf("reinit: %v", reErr))
					continue
				}
				// Keep the ground reference from start-up; re-measuring in
				// flight would zero the altitude.
				nd.SetReference(s.Snapshot().ReferencePa)
				if closeBus != nil {
					_ = closeBus()
				}
				dev, closeBus = nd, nc
				failures = 0
			}
			continue
		}
		failures = 0

		now := time.Now().UTC()
		ref := s.Snapshot().ReferencePa
		alt := bmp280.Altitude(p, ref)
		if !lastAt.IsZero() {
			if dt := now.Sub(lastAt).Seconds(); dt > 0 {
				raw := (alt - lastAltM) / dt
				// Simple low-pass to reduce noise.
				vs = 0.8*vs + 0.2*raw
			}
		}
		lastAt = now
		lastAltM = alt

		s.mu.Lock()
		s.snap.Valid = true
		s.snap.TempC = tc
		s.snap.PressurePa = p
		s.snap.AltitudeM = alt
		s.snap.VerticalSpeedMps = vs
		s.snap.LastError = ""
		s.snap.UpdatedAt = now
		s.mu.Unlock()
	}
}

func (s *Service) setErr(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Valid = false
	s.snap.LastError = msg
	s.snap.UpdatedAt = time.Now().UTC()
}
