package sensor

import (
	"context"
	"fmt"

	"github.com/stianeikeland/go-rpio/v4"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// GPIOSampler reads a laser break-beam receiver wired to a Raspberry Pi pin.
type GPIOSampler struct {
	laser     rpio.Pin
	receiver  rpio.Pin
	hasLaser  bool
	activeLow bool
}

// OpenGPIO maps GPIO memory, switches the laser emitter on and configures the
// receiver pin as a pulled-up input.
func OpenGPIO(cfg types.SensorConfig) (*GPIOSampler, error) {
	if cfg.ReceiverPin <= 0 {
		return nil, fmt.Errorf("sensor receiverPin is required")
	}
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("opening GPIO: %w", err)
	}

	s := &GPIOSampler{
		receiver:  rpio.Pin(cfg.ReceiverPin),
		activeLow: cfg.ActiveLow,
	}
	if cfg.LaserPin > 0 {
		s.laser = rpio.Pin(cfg.LaserPin)
		s.hasLaser = true
		s.laser.Output()
		s.laser.High()
	}
	s.receiver.Input()
	s.receiver.PullUp()
	return s, nil
}

// Sample returns true while the beam is broken.
func (s *GPIOSampler) Sample(_ context.Context) (bool, error) {
	high := s.receiver.Read() == rpio.High
	if s.activeLow {
		return !high, nil
	}
	return high, nil
}

// Close switches the laser off and releases GPIO memory.
func (s *GPIOSampler) Close() error {
	if s.hasLaser {
		s.laser.Low()
	}
	return rpio.Close()
}
