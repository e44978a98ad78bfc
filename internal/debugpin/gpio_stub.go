//go:build !linux || (!arm && !arm64)

package debugpin

import "fmt"

func Open(bcm int) (*Pin, error) {
	return nil, fmt.Errorf("debugpin: gpio unsupported on this platform")
}
