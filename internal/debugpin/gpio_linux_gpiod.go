//go:build linux && (arm || arm64)

package debugpin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/warthog618/go-gpiocdev"
)

// Open requests the given BCM GPIO as an output, initially low, through the
// GPIO character device.
func Open(bcm int) (*Pin, error) {
	if bcm <= 0 {
		return nil, fmt.Errorf("debugpin: invalid gpio %d", bcm)
	}

	// Raspberry Pi kernels name header lines "GPIO<n>".
	lineName := fmt.Sprintf("GPIO%d", bcm)

	// Pi 5 kernels may expose the header on gpiochip4.
	chipCandidates := []string{"/dev/gpiochip0", "/dev/gpiochip4"}
	entries, _ := os.ReadDir("/dev")
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, "gpiochip") {
			chipCandidates = append(chipCandidates, filepath.Join("/dev", name))
		}
	}

	for _, chipPath := range chipCandidates {
		chip, err := gpiocdev.NewChip(chipPath)
		if err != nil {
			continue
		}
		offset, err := chip.FindLine(lineName)
		if err != nil {
			_ = chip.Close()
			continue
		}
		l, err := chip.RequestLine(offset, gpiocdev.AsOutput(0), gpiocdev.WithConsumer("gaul-gnss-debug"))
		if err != nil {
			_ = chip.Close()
			continue
		}
		return newPin(lineName, &gpiodLine{chip: chip, line: l}), nil
	}

	return nil, fmt.Errorf("debugpin: gpio line %q not found (or busy)", lineName)
}

type gpiodLine struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

func (g *gpiodLine) SetValue(v int) error { return g.line.SetValue(v) }

func (g *gpiodLine) Close() error {
	err := g.line.Close()
	_ = g.chip.Close()
	return err
}
