// Package debugpin drives a spare GPIO line high while a GNSS poll runs so
// its duration can be measured with a logic analyser.
package debugpin

import (
	"fmt"
	"sync"
)

type line interface {
	SetValue(v int) error
	Close() error
}

// Pin is a GPIO output. It satisfies gps.TimingPin.
type Pin struct {
	mu      sync.Mutex
	line    line
	name    string
	level   bool
	toggles uint64
}

func newPin(name string, l line) *Pin {
	return &Pin{line: l, name: name}
}

func (p *Pin) Name() string {
	if p == nil {
		return ""
	}
	return p.name
}

func (p *Pin) Set(high bool) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.line == nil {
		return fmt.Errorf("debugpin: %s closed", p.name)
	}
	v := 0
	if high {
		v = 1
	}
	if err := p.line.SetValue(v); err != nil {
		return fmt.Errorf("debugpin: %s: %w", p.name, err)
	}
	if high != p.level {
		p.toggles++
	}
	p.level = high
	return nil
}

// Toggles counts level changes since open.
func (p *Pin) Toggles() uint64 {
	if p == nil {
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.toggles
}

// Close drives the line low and releases it.
func (p *Pin) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.line == nil {
		return nil
	}
	_ = p.line.SetValue(0)
	err := p.line.Close()
	p.line = nil
	p.level = false
	return err
}
