package gps

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tevino/abool/v2"

	"gaul-gnss/internal/nmea"
	"gaul-gnss/internal/ringbuf"
)

// DefaultScanBound is how many bytes the framer may discard while looking
// for a '$' before giving up on the current line.
const DefaultScanBound = 100

var (
	// ErrNoData means no complete line has arrived since the last read. It is
	// expected when polling faster than the receiver reports.
	ErrNoData = errors.New("gps: no new sentence")
	// ErrFraming is wrapped by *FrameError.
	ErrFraming = errors.New("gps: framing error")
	// ErrNotRMC means a sentence other than RMC was framed.
	ErrNotRMC = errors.New("gps: not an RMC sentence")
)

// Outcome is the result of one framing attempt.
type Outcome int

const (
	OutcomeOK Outcome = iota
	OutcomeNoStartDelimiter
	OutcomeNoEndDelimiter
	OutcomeBufferEmpty
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeNoStartDelimiter:
		return "no start delimiter"
	case OutcomeNoEndDelimiter:
		return "no end delimiter"
	case OutcomeBufferEmpty:
		return "buffer empty"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// FrameError reports a framing failure other than an empty buffer.
type FrameError struct {
	Outcome Outcome
}

func (e *FrameError) Error() string { return "gps: framing: " + e.Outcome.String() }

func (e *FrameError) Unwrap() error { return ErrFraming }

// Reading is the value surfaced to the owner.
//
// Status reports whether the last Read succeeded. Fix reports whether the
// receiver had a satellite lock in the last good sentence. When Status is
// false the other fields are left from the previous good read and must not be
// trusted.
type Reading struct {
	Status    bool      `json:"status"`
	Fix       bool      `json:"fix"`
	Latitude  float64   `json:"lat_deg"`
	Longitude float64   `json:"lon_deg"`
	Time      nmea.Time `json:"-"`
	TimeUTC   string    `json:"time_utc,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty"`
}

func (r Reading) String() string {
	status := "error"
	if r.Status {
		status = "ok"
	}
	fix := "no"
	if r.Fix {
		fix = "yes"
	}
	return fmt.Sprintf("status=%s fix=%s lat=%.7f lon=%.7f time=%s", status, fix, r.Latitude, r.Longitude, r.Time)
}

// ReceiverConfig sizes the buffers of a Receiver. Zero values pick defaults.
type ReceiverConfig struct {
	RingSize     int
	SentenceSize int
	ScanBound    int
}

// Receiver owns the acquisition pipeline for one GNSS receiver.
//
// Ingest is the producer side and must only be called from one goroutine.
// ReadSentence and Read are the consumer side and must only be called from
// one (other) goroutine. The two sides never share a lock.
type Receiver struct {
	ring      *ringbuf.Ring
	lineReady *abool.AtomicBool

	// Consumer-owned.
	sentence  *nmea.SentenceBuffer
	scanBound int
	reading   Reading
	now       func() time.Time
}

func NewReceiver(cfg ReceiverConfig) (*Receiver, error) {
	if cfg.RingSize == 0 {
		cfg.RingSize = ringbuf.DefaultSize
	}
	if cfg.SentenceSize == 0 {
		cfg.SentenceSize = nmea.DefaultSentenceSize
	}
	if cfg.SentenceSize < 0 {
		return nil, fmt.Errorf("gps: sentence size %d must be > 0", cfg.SentenceSize)
	}
	if cfg.ScanBound == 0 {
		cfg.ScanBound = DefaultScanBound
	}
	if cfg.ScanBound < 0 {
		return nil, fmt.Errorf("gps: scan bound %d must be > 0", cfg.ScanBound)
	}
	ring, err := ringbuf.New(cfg.RingSize)
	if err != nil {
		return nil, fmt.Errorf("gps: %w", err)
	}
	return &Receiver{
		ring:      ring,
		lineReady: abool.New(),
		sentence:  nmea.NewSentenceBuffer(cfg.SentenceSize),
		scanBound: cfg.ScanBound,
		now:       time.Now,
	}, nil
}

// Ingest queues one received byte and raises the line-ready flag on '\n'.
// It never blocks; bytes that do not fit are dropped.
func (r *Receiver) Ingest(b byte) {
	// Set only after the terminator is committed so a reader that sees the
	// flag can drain the whole line. A dropped terminator flags nothing.
	if r.ring.Push(b) && b == '\n' {
		r.lineReady.Set()
	}
}

// Dropped returns the number of bytes lost to ring overflow.
func (r *Receiver) Dropped() uint64 { return r.ring.Dropped() }

// Buffered returns the number of bytes waiting in the ring.
func (r *Receiver) Buffered() int { return r.ring.Len() }

// ReadSentence extracts one '$'...'\n' sentence from the ring into the
// sentence buffer.
func (r *Receiver) ReadSentence() Outcome {
	if !r.lineReady.SetToIf(true, false) {
		return OutcomeBufferEmpty
	}
	r.sentence.Reset()

	found := false
	for i := 0; i < r.scanBound; i++ {
		c, ok := r.ring.Pop()
		if !ok {
			return OutcomeBufferEmpty
		}
		if c == '$' {
			r.sentence.Append(c)
			found = true
			break
		}
	}
	if !found {
		return OutcomeNoStartDelimiter
	}

	for !r.sentence.Full() {
		c, ok := r.ring.Pop()
		if !ok {
			return OutcomeBufferEmpty
		}
		r.sentence.Append(c)
		if c == '\n' {
			return OutcomeOK
		}
	}
	return OutcomeNoEndDelimiter
}

// Sentence returns a copy of the last framed sentence.
func (r *Receiver) Sentence() string { return r.sentence.String() }

// Read frames, validates and parses the next sentence.
//
// ErrNoData leaves the reading untouched. Any other error clears
// Reading.Status and leaves the rest of the previous reading in place.
func (r *Receiver) Read() (Reading, error) {
	switch out := r.ReadSentence(); out {
	case OutcomeOK:
	case OutcomeBufferEmpty:
		return r.reading, ErrNoData
	default:
		r.reading.Status = false
		return r.reading, &FrameError{Outcome: out}
	}

	s := r.sentence.Bytes()
	if !nmea.IsRMC(s) {
		r.reading.Status = false
		return r.reading, fmt.Errorf("%w: %q", ErrNotRMC, sentenceID(s))
	}

	fix, err := nmea.ParseRMC(s)
	if err != nil {
		r.reading.Status = false
		return r.reading, err
	}

	r.reading = Reading{
		Status:    true,
		Fix:       fix.Valid,
		Latitude:  fix.Latitude,
		Longitude: fix.Longitude,
		Time:      fix.Time,
		TimeUTC:   fix.Time.String(),
		UpdatedAt: r.now().UTC(),
	}
	return r.reading, nil
}

// Reading returns the last reading without touching the ring.
func (r *Receiver) Reading() Reading { return r.reading }

// Configure writes the setup commands to w in order and stops at the first
// failure.
func (r *Receiver) Configure(w io.Writer, commands []string) error {
	for _, body := range commands {
		cmd := nmea.Command(body)
		if _, err := io.WriteString(w, cmd); err != nil {
			return fmt.Errorf("gps: send %q: %w", body, err)
		}
	}
	return nil
}

func sentenceID(s []byte) string {
	end := len(s)
	for i, c := range s {
		if c == ',' || c == '\r' || c == '\n' {
			end = i
			break
		}
	}
	if end > 6 {
		end = 6
	}
	return string(s[:end])
}
