package logger

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	corelogger "github.com/kilianp07/fleetsim/core/logger"
)

// Logger mirrors the core logger interface.
type Logger = corelogger.Logger

// NopLogger implements Logger with no-op methods.
type NopLogger struct{}

func (NopLogger) Debugf(string, ...any)         {}
func (NopLogger) Debugw(string, map[string]any) {}
func (NopLogger) Infof(string, ...any)          {}
func (NopLogger) Warnf(string, ...any)          {}
func (NopLogger) Errorf(string, ...any)         {}
func (n NopLogger) With(string, string) Logger  { return n }

var (
	outMu sync.RWMutex
	// All loggers share one serialized writer so lines emitted by concurrent
	// vehicles never interleave.
	out io.Writer = zerolog.SyncWriter(os.Stdout)
)

// SetOutput redirects every logger created afterwards to w.
func SetOutput(w io.Writer) {
	outMu.Lock()
	out = zerolog.SyncWriter(w)
	outMu.Unlock()
}

func output() io.Writer {
	outMu.RLock()
	defer outMu.RUnlock()
	return out
}

// SetLevel sets the global minimum level from its name (debug, info, warn, error).
func SetLevel(name string) error {
	lvl, err := zerolog.ParseLevel(strings.ToLower(name))
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(lvl)
	return nil
}

// New returns a Logger for the given component. The environment is detected via
// the APP_ENV variable.
func New(component string) Logger {
	return NewZerologLogger(component)
}

// NewVehicle returns a logger tagged with the fleet and vehicle identifiers.
func NewVehicle(fleetID, vehicleID string) Logger {
	return New("vehicle").With("fleet_id", fleetID).With("vehicle_id", vehicleID)
}
