package main

import (
	"context"
	"log"

	"gaul-gnss/internal/baro"
	"gaul-gnss/internal/config"
	"gaul-gnss/internal/debugpin"
	"gaul-gnss/internal/gps"
	"gaul-gnss/internal/telemetry"
	"gaul-gnss/internal/web"
)

type liveRuntime struct {
	cfg  config.Config
	logs *web.LogBuffer

	gpsSvc  *gps.Service
	baroSvc *baro.Service
	fanout  *telemetry.Fanout
	pin     *debugpin.Pin
	status  *web.Status
}

func gpsConfig(c config.GPSConfig) gps.Config {
	configure := true
	if c.Configure != nil {
		configure = *c.Configure
	}
	return gps.Config{
		Enable:       c.Enable,
		Source:       c.Source,
		Device:       c.Device,
		Baud:         c.Baud,
		Addr:         c.Addr,
		GPSDWatch:    c.GPSDWatch,
		Path:         c.Path,
		ReplayBaud:   c.ReplayBaud,
		Configure:    configure,
		Commands:     c.Commands,
		RingSize:     c.RingSize,
		SentenceSize: c.SentenceSize,
		ScanBound:    c.ScanBound,
		PollInterval: c.PollInterval,
	}
}

// newRuntime brings up every configured component. Optional hardware that
// fails to initialise is logged and left out so the GNSS pipeline keeps
// running.
func newRuntime(ctx context.Context, cfg config.Config, logs *web.LogBuffer) *liveRuntime {
	r := &liveRuntime{cfg: cfg, logs: logs}

	r.baroSvc = baro.New(baro.Config{
		Enable:      cfg.Baro.Enable,
		Bus:         cfg.Baro.Bus,
		Address:     cfg.Baro.Address,
		RefSamples:  cfg.Baro.RefSamples,
		RefInterval: cfg.Baro.RefInterval,
		Interval:    cfg.Baro.Interval,
	})
	if cfg.Baro.Enable {
		log.Printf("baro enabled bus=%s addr=0x%02X", cfg.Baro.Bus, cfg.Baro.Address)
		if err := r.baroSvc.Start(ctx); err != nil {
			log.Printf("baro init failed: %v", err)
		}
	}

	var sinks []telemetry.Sink
	if dest := cfg.Telemetry.UDPDest; dest != "" {
		s, err := telemetry.NewUDPSink(dest)
		if err != nil {
			log.Printf("telemetry udp init failed: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	instance := telemetry.InstanceID(cfg.Telemetry.Instance)
	if u := cfg.Telemetry.MQTTURL; u != "" {
		s, err := telemetry.NewMQTTSink(u, cfg.Telemetry.MQTTTopic, instance)
		if err != nil {
			log.Printf("telemetry mqtt init failed: %v", err)
		} else {
			sinks = append(sinks, s)
		}
	}
	r.fanout = telemetry.NewFanout(instance, sinks, telemetry.WithBaro(r.baroSvc.Snapshot))
	for _, s := range sinks {
		log.Printf("telemetry enabled sink=%s instance=%s", s.Name(), instance)
	}
	if r.fanout.Len() == 0 {
		log.Printf("telemetry disabled: no udp_dest or mqtt_url")
	}

	opts := []gps.Option{gps.WithPublisher(r.fanout.Publish)}
	if cfg.DebugPin.Enable {
		pin, err := debugpin.Open(cfg.DebugPin.Line)
		if err != nil {
			log.Printf("debug pin init failed: %v", err)
		} else {
			log.Printf("debug pin enabled line=%s", pin.Name())
			r.pin = pin
			opts = append(opts, gps.WithTimingPin(pin))
		}
	}

	r.gpsSvc = gps.New(gpsConfig(cfg.GPS), opts...)
	if cfg.GPS.Enable {
		if err := r.gpsSvc.Start(ctx); err != nil {
			log.Printf("gps init failed: %v", err)
		}
	}

	r.status = web.NewStatus(web.Sources{
		GPS:       r.gpsSvc.Snapshot,
		Baro:      r.baroSvc.Snapshot,
		Telemetry: r.fanout.Counts,
	})
	return r
}

// Run serves the web UI and logs a summary until ctx ends or a file replay
// finishes.
func (r *liveRuntime) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	webErr := make(chan error, 1)
	if r.cfg.Web.Enable {
		log.Printf("web listening addr=%s", r.cfg.Web.Listen)
		go func() {
			webErr <- web.Serve(ctx, r.cfg.Web.Listen, r.status, r.logs)
		}()
	}

	// A dead serial port or socket leaves the daemon up with last_error set;
	// only a finished replay ends the run.
	var replayDone <-chan struct{}
	if r.cfg.GPS.Enable && r.cfg.GPS.Source == gps.SourceFile {
		replayDone = r.gpsSvc.Done()
	}

	ticker := newSummaryTicker(r.cfg.SummaryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-webErr:
			return err
		case <-replayDone:
			log.Print(r.summary())
			return nil
		case <-ticker.C:
			log.Print(r.summary())
		}
	}
}

func (r *liveRuntime) summary() string {
	sent, failures := r.fanout.Counts()
	return formatSummary(r.gpsSvc.Snapshot(), r.baroSvc.Snapshot(), sent, failures)
}

func (r *liveRuntime) Close() {
	if r == nil {
		return
	}
	r.gpsSvc.Close()
	r.baroSvc.Close()
	if err := r.fanout.Close(); err != nil {
		log.Printf("telemetry close: %v", err)
	}
	if r.pin != nil {
		_ = r.pin.Close()
	}
}
