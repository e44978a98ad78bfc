package gps

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	geo "github.com/kellydunn/golang-geo"
	"go.uber.org/ratelimit"

	"gaul-gnss/internal/nmea"
)

// Config controls the GPS service.
//
// Source selects the byte transport: "serial" (default), "tcp" (gpsd in raw
// NMEA mode, ser2net, ...) or "file" (replay of a capture).
type Config struct {
	Enable bool

	Source string

	// Device and Baud apply to Source=="serial". Device may be empty to
	// auto-detect.
	Device string
	Baud   int

	// Addr is host:port for Source=="tcp". GPSDWatch sends the gpsd WATCH
	// command asking for raw NMEA after connecting.
	Addr      string
	GPSDWatch bool

	// Path is the capture for Source=="file". ReplayBaud paces the replay at
	// the given line rate (10 bits per byte); 0 means 9600.
	Path       string
	ReplayBaud int

	// Configure sends Commands (or DefaultCommands) once the serial port is
	// open.
	Configure bool
	Commands  []string

	RingSize     int
	SentenceSize int
	ScanBound    int

	PollInterval time.Duration
}

type Snapshot struct {
	Enabled bool `json:"enabled"`
	Running bool `json:"running"`

	Source string `json:"source,omitempty"`
	Device string `json:"device,omitempty"`
	Baud   int    `json:"baud,omitempty"`

	HaveReading bool    `json:"have_reading"`
	Reading     Reading `json:"reading"`

	SentencesOK   uint64 `json:"sentences_ok"`
	FramingErrors uint64 `json:"framing_errors"`
	NotRMC        uint64 `json:"not_rmc"`
	ParseErrors   uint64 `json:"parse_errors"`
	BytesDropped  uint64 `json:"bytes_dropped"`
	Buffered      int    `json:"buffered"`

	LastSentence string `json:"last_sentence,omitempty"`

	OriginLatDeg        *float64 `json:"origin_lat_deg,omitempty"`
	OriginLonDeg        *float64 `json:"origin_lon_deg,omitempty"`
	DistanceFromOriginM *float64 `json:"distance_from_origin_m,omitempty"`

	LastError    string `json:"last_error,omitempty"`
	LastErrorUTC string `json:"last_error_utc,omitempty"`
}

// TimingPin is raised for the duration of each poll so the pipeline cost can
// be measured with a logic analyzer.
type TimingPin interface {
	Set(high bool) error
}

type Option func(*Service)

// WithPublisher registers fn to receive every successful reading. fn runs on
// the poll goroutine and should not block.
func WithPublisher(fn func(Reading)) Option {
	return func(s *Service) { s.publish = fn }
}

func WithTimingPin(p TimingPin) Option {
	return func(s *Service) { s.pin = p }
}

type Service struct {
	cfg Config

	publish func(Reading)
	pin     TimingPin

	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	last atomic.Value // Snapshot

	mu     sync.Mutex
	closer io.Closer
	errAt  time.Time
}

func New(cfg Config, opts ...Option) *Service {
	s := &Service{cfg: cfg, done: make(chan struct{})}
	for _, o := range opts {
		o(s)
	}
	s.last.Store(Snapshot{Enabled: cfg.Enable, Source: normalizeSource(cfg.Source), Device: cfg.Device, Baud: cfg.Baud})
	return s
}

func (s *Service) Start(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("gps service is nil")
	}
	if !s.cfg.Enable {
		return nil
	}
	if ctx == nil {
		return fmt.Errorf("ctx is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return nil
	}

	rcv, err := NewReceiver(ReceiverConfig{
		RingSize:     s.cfg.RingSize,
		SentenceSize: s.cfg.SentenceSize,
		ScanBound:    s.cfg.ScanBound,
	})
	if err != nil {
		return err
	}

	src := normalizeSource(s.cfg.Source)
	var rw io.ReadWriteCloser
	name := strings.TrimSpace(s.cfg.Addr)
	if src == SourceTCP && name == "" {
		return fmt.Errorf("gps: tcp source needs addr")
	}
	if src != SourceTCP {
		// TCP is dialed by pumpTCP so a down gpsd does not fail Start.
		rw, name, err = openSource(ctx, s.cfg)
		if err != nil {
			s.setErrorLocked(err.Error())
			return err
		}
	}

	if s.cfg.Configure && src == SourceSerial {
		cmds := s.cfg.Commands
		if len(cmds) == 0 {
			cmds = DefaultCommands()
		}
		if err := rcv.Configure(rw, cmds); err != nil {
			_ = rw.Close()
			s.setErrorLocked(err.Error())
			return err
		}
		log.Printf("gps configured commands=%d", len(cmds))
	}
	if rw != nil {
		s.closer = rw
	}

	childCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	baud := s.cfg.Baud
	if src == SourceSerial && baud == 0 {
		baud = 9600
	}
	st := &pollState{snap: Snapshot{Enabled: true, Running: true, Source: src, Device: name, Baud: baud}}
	s.last.Store(st.snap)

	done := make(chan struct{})
	s.done = done
	pumpDone := make(chan struct{})
	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		defer close(pumpDone)
		if src == SourceTCP {
			s.pumpTCP(childCtx, rcv)
			return
		}
		defer func() { _ = rw.Close() }()
		s.pump(childCtx, rw, rcv, src == SourceFile)
	}()
	go func() {
		defer s.wg.Done()
		s.poll(childCtx, rcv, st, pumpDone)
	}()
	go func() {
		s.wg.Wait()
		close(done)
	}()

	log.Printf("gps enabled source=%s device=%s baud=%d", src, name, baud)
	return nil
}

// pump is the producer: one Ingest per received byte, in arrival order.
func (s *Service) pump(ctx context.Context, r io.Reader, rcv *Receiver, paced bool) {
	br := bufio.NewReaderSize(r, 256)

	var rl ratelimit.Limiter = ratelimit.NewUnlimited()
	if paced {
		baud := s.cfg.ReplayBaud
		if baud <= 0 {
			baud = 9600
		}
		rl = ratelimit.New(max(baud/10, 1), ratelimit.WithoutSlack)
	}

	for {
		if ctx.Err() != nil {
			return
		}
		rl.Take()
		b, err := br.ReadByte()
		if err != nil {
			if ctx.Err() == nil {
				if errors.Is(err, io.EOF) && paced {
					log.Printf("gps replay finished")
				} else {
					s.setError(fmt.Sprintf("gps read stopped: %v", err))
				}
			}
			return
		}
		rcv.Ingest(b)
	}
}

const (
	redialMin = 250 * time.Millisecond
	redialMax = 10 * time.Second
)

// pumpTCP keeps the TCP source connected until ctx ends. Every connection
// feeds the same receiver, so the last reading survives a reconnect.
func (s *Service) pumpTCP(ctx context.Context, rcv *Receiver) {
	backoff := redialMin
	for {
		rw, addr, err := openSource(ctx, s.cfg)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.setError(err.Error())
			if !sleepCtx(ctx, backoff) {
				return
			}
			backoff = min(backoff*2, redialMax)
			continue
		}
		backoff = redialMin
		log.Printf("gps connected source=tcp addr=%s", addr)

		// Unblocks the pending read when the service is closed.
		stop := context.AfterFunc(ctx, func() { _ = rw.Close() })
		s.pump(ctx, rw, rcv, false)
		stop()
		_ = rw.Close()

		if ctx.Err() != nil {
			return
		}
		log.Printf("gps disconnected addr=%s retry_in=%s", addr, redialMin)
		if !sleepCtx(ctx, redialMin) {
			return
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// poll is the consumer: one Read per tick.
func (s *Service) poll(ctx context.Context, rcv *Receiver, st *pollState, pumpDone <-chan struct{}) {
	interval := s.cfg.PollInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	rl := ratelimit.New(1, ratelimit.Per(interval), ratelimit.WithoutSlack)

	defer func() {
		st.snap.Running = false
		s.store(st)
	}()

	for {
		rl.Take()
		if ctx.Err() != nil {
			return
		}

		s.setPin(true)
		start := time.Now()
		reading, err := rcv.Read()
		readDuration.Observe(time.Since(start).Seconds())
		s.setPin(false)

		st.observe(rcv, reading, err)
		if err == nil && s.publish != nil {
			s.publish(reading)
		}

		if errors.Is(err, ErrNoData) {
			select {
			case <-pumpDone:
				// Source gone and no complete line left.
				return
			default:
			}
			continue
		}
		s.store(st)
	}
}

func (s *Service) setPin(high bool) {
	if s.pin == nil {
		return
	}
	_ = s.pin.Set(high)
}

// pollState is owned by the poll goroutine; snapshots are published from it.
type pollState struct {
	snap     Snapshot
	origin   *geo.Point
	lastDrop uint64
	errAt    time.Time
}

func (st *pollState) observe(rcv *Receiver, reading Reading, err error) {
	dropped := rcv.Dropped()
	if d := dropped - st.lastDrop; d > 0 {
		bytesDropped.Add(float64(d))
	}
	st.lastDrop = dropped
	st.snap.BytesDropped = dropped
	st.snap.Buffered = rcv.Buffered()

	var fe *FrameError
	switch {
	case err == nil:
		readsTotal.WithLabelValues(resultOK).Inc()
		st.snap.SentencesOK++
	case errors.Is(err, ErrNoData):
		readsTotal.WithLabelValues(resultNoData).Inc()
		return
	case errors.As(err, &fe):
		readsTotal.WithLabelValues(resultFraming).Inc()
		st.snap.FramingErrors++
	case errors.Is(err, ErrNotRMC):
		readsTotal.WithLabelValues(resultNotRMC).Inc()
		st.snap.NotRMC++
	case errors.Is(err, nmea.ErrParse):
		readsTotal.WithLabelValues(resultParse).Inc()
		st.snap.ParseErrors++
	}

	st.snap.LastSentence = strings.TrimRight(rcv.Sentence(), "\r\n")
	st.snap.Reading = reading
	if err != nil {
		st.errAt = time.Now().UTC()
		st.snap.LastError = err.Error()
		st.snap.LastErrorUTC = st.errAt.Format(time.RFC3339Nano)
		return
	}

	st.snap.HaveReading = true
	if !reading.Fix {
		fixGauge.Set(0)
		return
	}
	fixGauge.Set(1)

	p := geo.NewPoint(reading.Latitude, reading.Longitude)
	if st.origin == nil {
		st.origin = p
		lat, lon := reading.Latitude, reading.Longitude
		st.snap.OriginLatDeg = &lat
		st.snap.OriginLonDeg = &lon
	}
	d := st.origin.GreatCircleDistance(p) * 1000.0
	st.snap.DistanceFromOriginM = &d
}

func (s *Service) store(st *pollState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	// setError may have recorded a transport error since the last store.
	snap := st.snap
	if s.errAt.After(st.errAt) {
		cur := s.Snapshot()
		snap.LastError = cur.LastError
		snap.LastErrorUTC = cur.LastErrorUTC
	}
	s.last.Store(snap)
}

// Done is closed once the pump and poll goroutines have exited: on Close,
// when a replay or serial port runs dry, never on a TCP disconnect.
func (s *Service) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Service) Close() {
	if s == nil {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	closer := s.closer
	s.cancel = nil
	s.closer = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if closer != nil {
		_ = closer.Close()
	}
	s.wg.Wait()
}

func (s *Service) Snapshot() Snapshot {
	if s == nil {
		return Snapshot{}
	}
	v := s.last.Load()
	if v == nil {
		return Snapshot{}
	}
	return v.(Snapshot)
}

func (s *Service) setError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setErrorLocked(msg)
}

func (s *Service) setErrorLocked(msg string) {
	s.errAt = time.Now().UTC()
	cur := s.Snapshot()
	cur.LastError = msg
	cur.LastErrorUTC = s.errAt.Format(time.RFC3339Nano)
	// Do not touch the reading; a transport hiccup does not invalidate it.
	s.last.Store(cur)
}
