package gps

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"
)

// Source kinds for Config.Source.
const (
	SourceSerial = "serial"
	SourceTCP    = "tcp"
	SourceFile   = "file"
)

// openSource opens the byte transport described by cfg. The returned name is
// used in logs and status.
func openSource(ctx context.Context, cfg Config) (io.ReadWriteCloser, string, error) {
	switch normalizeSource(cfg.Source) {
	case SourceSerial:
		device := strings.TrimSpace(cfg.Device)
		if device == "" {
			device = autoDetectDevice()
			if device == "" {
				return nil, "", fmt.Errorf("gps auto-detect failed: no /dev/ttyACM*, /dev/ttyUSB* or /dev/serial0 found")
			}
		}
		baud := cfg.Baud
		if baud == 0 {
			baud = 9600
		}
		rw, err := openSerial(device, baud)
		if err != nil {
			return nil, "", fmt.Errorf("gps open failed device=%s baud=%d: %w", device, baud, err)
		}
		return rw, device, nil
	case SourceTCP:
		addr := strings.TrimSpace(cfg.Addr)
		conn, err := dialTCP(ctx, addr)
		if err != nil {
			return nil, "", fmt.Errorf("gps dial failed addr=%s: %w", addr, err)
		}
		if cfg.GPSDWatch {
			if err := gpsdWatchRaw(conn); err != nil {
				_ = conn.Close()
				return nil, "", fmt.Errorf("gpsd watch failed: %w", err)
			}
		}
		return conn, addr, nil
	case SourceFile:
		f, err := os.Open(cfg.Path)
		if err != nil {
			return nil, "", fmt.Errorf("gps replay open failed: %w", err)
		}
		return readOnly{f}, cfg.Path, nil
	default:
		return nil, "", fmt.Errorf("gps: unknown source %q", cfg.Source)
	}
}

func normalizeSource(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return SourceSerial
	}
	return s
}

func dialTCP(ctx context.Context, addr string) (net.Conn, error) {
	d := &net.Dialer{Timeout: 2 * time.Second}
	if ctx == nil {
		return d.Dial("tcp", addr)
	}
	return d.DialContext(ctx, "tcp", addr)
}

// gpsdWatchRaw asks gpsd to pass NMEA through untouched instead of JSON.
func gpsdWatchRaw(conn net.Conn) error {
	_, err := conn.Write([]byte("?WATCH={\"enable\":true,\"nmea\":true}\n"))
	return err
}

// readOnly discards configuration commands sent to a replayed capture.
type readOnly struct {
	io.ReadCloser
}

func (readOnly) Write(p []byte) (int, error) { return len(p), nil }

func autoDetectDevice() string {
	candidates := []string{"/dev/serial0"}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyACM%d", i))
	}
	for i := 0; i < 10; i++ {
		candidates = append(candidates, fmt.Sprintf("/dev/ttyUSB%d", i))
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}
