//go:build !linux || (!arm && !arm64)

package indicator

import "fmt"

func openGPIO(pin int) (led, error) {
	return nil, fmt.Errorf("indicator: gpio unsupported on this platform")
}

var openGPIOFn = openGPIO
