package actuator

import (
	"context"
	"fmt"
	"time"

	"github.com/spencerhhubert/go-firmata"

	"github.com/dwsmith1983/sortimate/pkg/types"
)

// Servo driver defaults.
const (
	defaultBaud   = 57600
	defaultBoard  = 0x40
	defaultSettle = 500 * time.Millisecond
	defaultDwell  = time.Second
)

// SysEx commands understood by the bin's PCA9685 firmata sketch.
const (
	sysexServo     = 0x01
	cmdInitBoard   = 0x07
	cmdSetAngle    = 0x08
	maxServoAngle  = 180
	sevenBitMask   = 0x7F
	sevenBitOffset = 7
)

// ServoDriver drives a rotation servo and a gate servo on a PCA9685 board
// attached to a firmata microcontroller.
type ServoDriver struct {
	client       *firmata.FirmataClient
	boardAddr    byte
	rotation     byte
	gate         byte
	homeAngle    uint8
	closedAngle  uint8
	openAngle    uint8
	destinations map[types.WasteCategory]uint8
	settle       time.Duration
	dwell        time.Duration
}

// DialServo connects to the microcontroller and initialises the servo board.
func DialServo(cfg types.ActuatorConfig) (*ServoDriver, error) {
	if cfg.Port == "" {
		return nil, fmt.Errorf("actuator port is required")
	}
	dests, err := destinationAngles(cfg.Destinations)
	if err != nil {
		return nil, err
	}

	baud := cfg.Baud
	if baud <= 0 {
		baud = defaultBaud
	}
	client, err := firmata.NewClient(cfg.Port, baud)
	if err != nil {
		return nil, fmt.Errorf("connecting to microcontroller on %s: %w", cfg.Port, err)
	}

	addr := cfg.BoardAddr
	if addr == 0 {
		addr = defaultBoard
	}

	d := &ServoDriver{
		client:       client,
		boardAddr:    addr,
		rotation:     cfg.RotationChannel,
		gate:         cfg.GateChannel,
		homeAngle:    cfg.HomeAngle,
		closedAngle:  cfg.GateClosedAngle,
		openAngle:    cfg.GateOpenAngle,
		destinations: dests,
		settle:       parseDurationOr(cfg.Settle, defaultSettle),
		dwell:        parseDurationOr(cfg.Dwell, defaultDwell),
	}
	client.SysEx(sysexServo, cmdInitBoard, d.boardAddr)
	return d, nil
}

// MoveTo rotates to the category's compartment, opens the gate long enough for
// the object to drop and closes it again.
func (d *ServoDriver) MoveTo(ctx context.Context, category types.WasteCategory) error {
	angle, ok := d.destinations[category]
	if !ok {
		return &types.ActuationError{Op: "move", Target: string(category), Reason: ReasonNoDestination}
	}

	d.setAngle(d.gate, d.closedAngle)
	d.setAngle(d.rotation, angle)
	if err := sleep(ctx, d.settle); err != nil {
		return err
	}
	d.setAngle(d.gate, d.openAngle)
	if err := sleep(ctx, d.dwell); err != nil {
		return err
	}
	d.setAngle(d.gate, d.closedAngle)
	return sleep(ctx, d.settle)
}

// Home closes the gate and rotates back to the neutral position.
func (d *ServoDriver) Home(ctx context.Context) error {
	d.setAngle(d.gate, d.closedAngle)
	d.setAngle(d.rotation, d.homeAngle)
	return sleep(ctx, d.settle)
}

// Close releases the serial connection.
func (d *ServoDriver) Close() {
	d.client.Close()
}

func (d *ServoDriver) setAngle(channel byte, angle uint8) {
	lo, hi := sevenBit(angle)
	d.client.SysEx(sysexServo, cmdSetAngle, d.boardAddr, channel, lo, hi)
}

// sevenBit splits a byte into the two 7-bit bytes firmata SysEx payloads carry.
func sevenBit(v uint8) (byte, byte) {
	return v & sevenBitMask, v >> sevenBitOffset
}

func destinationAngles(in map[types.WasteCategory]int) (map[types.WasteCategory]uint8, error) {
	out := make(map[types.WasteCategory]uint8, len(in))
	for c, angle := range in {
		if !c.Valid() {
			return nil, fmt.Errorf("unknown destination category %q", c)
		}
		if angle < 0 || angle > maxServoAngle {
			return nil, fmt.Errorf("destination angle for %s out of range: %d", c, angle)
		}
		out[c] = uint8(angle)
	}
	for _, c := range types.Categories() {
		if _, ok := out[c]; !ok {
			return nil, fmt.Errorf("no destination configured for %s", c)
		}
	}
	return out, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
