package dmx

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// gpioLine adapts a periph pin to the Line interface.
type gpioLine struct {
	pin gpio.PinIO
}

func (g *gpioLine) Set(high bool) {
	// Errors here are per-edge and unrecoverable mid-frame; the transmitter
	// contract is to never propagate transmit failures.
	_ = g.pin.Out(gpio.Level(high))
}

// OpenLine resolves a GPIO pin by name (e.g. "GPIO18") and returns it as a
// Line. Host init or lookup failure returns an error; callers degrade to a
// nil line.
func OpenLine(name string) (Line, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("gpio host init: %w", err)
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		return nil, fmt.Errorf("gpio pin %q not found", name)
	}
	if err := pin.Out(gpio.High); err != nil {
		return nil, fmt.Errorf("gpio pin %q: %w", name, err)
	}
	logrus.WithField("component", "dmx").Infof("Using GPIO pin %s", pin.Name())
	return &gpioLine{pin: pin}, nil
}
