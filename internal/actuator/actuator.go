// Package actuator drives the rotation and gate mechanism that routes an
// object into its compartment.
package actuator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/dwsmith1983/sortimate/internal/metrics"
	"github.com/dwsmith1983/sortimate/pkg/types"
)

// DefaultHomeTimeout bounds the return-to-home that follows every move.
const DefaultHomeTimeout = 5 * time.Second

// Failure reasons used in ActuationError.
const (
	ReasonInvalidTarget = "invalid_target"
	ReasonNoDestination = "no_destination"
	ReasonTimeout       = "timeout"
	ReasonInterrupted   = "interrupted"
	ReasonDriver        = "driver_error"
	ReasonPanic         = "panic"
)

// Driver commands the physical mechanism. A nil error means the position was
// reached.
type Driver interface {
	MoveTo(ctx context.Context, category types.WasteCategory) error
	Home(ctx context.Context) error
}

// Actuator is what the control loop drives: a Driver that is safe to command
// repeatedly to the same pose.
type Actuator interface {
	MoveTo(ctx context.Context, category types.WasteCategory) error
	Home(ctx context.Context) error
}

// Gate tracks the last confirmed pose of a Driver. Commanding the pose it is
// already at is a no-op, and a move that fails leaves the pose unknown so the
// next command is always sent.
type Gate struct {
	driver Driver
	logger *slog.Logger

	mu   sync.Mutex
	pose types.ActuatorPose
}

// NewGate wraps a driver. The initial pose is unknown.
func NewGate(driver Driver, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{driver: driver, logger: logger, pose: types.UnknownPose}
}

// Pose returns the last confirmed pose.
func (g *Gate) Pose() types.ActuatorPose {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.pose
}

// MoveTo drives the mechanism to the destination of category.
func (g *Gate) MoveTo(ctx context.Context, category types.WasteCategory) error {
	if !category.Valid() {
		return &types.ActuationError{Op: "move", Target: string(category), Reason: ReasonInvalidTarget}
	}
	return g.command(ctx, "move", types.PoseAt(category), func(ctx context.Context) error {
		return g.driver.MoveTo(ctx, category)
	})
}

// Home returns the mechanism to the neutral pose.
func (g *Gate) Home(ctx context.Context) error {
	return g.command(ctx, "home", types.HomePose, g.driver.Home)
}

func (g *Gate) command(ctx context.Context, op string, target types.ActuatorPose, fn func(context.Context) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.pose == target {
		return nil
	}

	g.pose = types.UnknownPose
	if err := fn(ctx); err != nil {
		ae := &types.ActuationError{Op: op, Target: target.String(), Reason: reasonFor(err), Err: err}
		metrics.ActuationFailures.WithLabelValues(ae.FailureSignature()).Inc()
		g.logger.Warn("actuator command failed", "op", op, "target", target.String(), "reason", ae.Reason, "error", err)
		return ae
	}
	g.pose = target
	return nil
}

func reasonFor(err error) string {
	var ae *types.ActuationError
	switch {
	case errors.As(err, &ae) && ae.Reason != "":
		return ae.Reason
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, context.Canceled):
		return ReasonInterrupted
	default:
		return ReasonDriver
	}
}

// Route moves a to the destination of category and then back home. Home is
// attempted on every exit path, including a driver panic, with a context that
// survives cancellation of ctx so an interrupted move never leaves the gate
// blocking the chute.
func Route(ctx context.Context, a Actuator, category types.WasteCategory, homeTimeout time.Duration) (err error) {
	if homeTimeout <= 0 {
		homeTimeout = DefaultHomeTimeout
	}

	defer func() {
		r := recover()
		if r != nil {
			err = &types.ActuationError{Op: "move", Target: string(category), Reason: ReasonPanic}
		}

		hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), homeTimeout)
		defer cancel()
		if herr := a.Home(hctx); herr != nil {
			err = errors.Join(err, herr)
		}

		if r != nil {
			panic(r)
		}
	}()

	return a.MoveTo(ctx, category)
}
