package web

import (
	"time"

	"gaul-gnss/internal/baro"
	"gaul-gnss/internal/gps"
)

// Sources are read on every /api/status request. Nil entries are reported
// as absent.
type Sources struct {
	GPS       func() gps.Snapshot
	Baro      func() baro.Snapshot
	Telemetry func() (sent, failures uint64)
}

type Status struct {
	start time.Time
	src   Sources
}

func NewStatus(src Sources) *Status {
	return &Status{start: time.Now().UTC(), src: src}
}

type TelemetryCounts struct {
	Sent     uint64 `json:"sent"`
	Failures uint64 `json:"failures"`
}

type StatusSnapshot struct {
	Service   string           `json:"service"`
	NowUTC    string           `json:"now_utc"`
	UptimeSec int64            `json:"uptime_sec"`
	GPS       *gps.Snapshot    `json:"gps,omitempty"`
	Baro      *baro.Snapshot   `json:"baro,omitempty"`
	Telemetry *TelemetryCounts `json:"telemetry,omitempty"`
}

func (s *Status) Snapshot(nowUTC time.Time) StatusSnapshot {
	if nowUTC.IsZero() {
		nowUTC = time.Now().UTC()
	}
	snap := StatusSnapshot{
		Service:   "gaul-gnss",
		NowUTC:    nowUTC.UTC().Format(time.RFC3339Nano),
		UptimeSec: int64(nowUTC.Sub(s.start).Seconds()),
	}
	if s.src.GPS != nil {
		g := s.src.GPS()
		snap.GPS = &g
	}
	if s.src.Baro != nil {
		b := s.src.Baro()
		snap.Baro = &b
	}
	if s.src.Telemetry != nil {
		sent, failures := s.src.Telemetry()
		snap.Telemetry = &TelemetryCounts{Sent: sent, Failures: failures}
	}
	return snap
}
