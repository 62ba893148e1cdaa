package hvcore

import (
	"log/slog"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// Option configures a VM created by NewVM.
type Option func(*options)

type options struct {
	facility Facility
	logger   *slog.Logger
	pageSize uint64
}

// WithFacility replaces the platform hypervisor binding.
func WithFacility(f Facility) Option {
	return func(o *options) { o.facility = f }
}

// WithLogger sets the logger used for mapping and vCPU lifecycle records.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithPageSize overrides the host page size used for alignment checks.
// size must be a power of two.
func WithPageSize(size uint64) Option {
	return func(o *options) { o.pageSize = size }
}

func newOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.facility == nil {
		o.facility = defaultFacility()
	}
	if o.logger == nil {
		o.logger = defaultLogger()
	}
	if o.pageSize == 0 || o.pageSize&(o.pageSize-1) != 0 {
		o.pageSize = uint64(unix.Getpagesize())
	}
	return o
}

func defaultLogger() *slog.Logger {
	if isDebugEnv() {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.DiscardHandler)
}

// isProductionEnv checks if we're running in production environment
func isProductionEnv() bool {
	env := os.Getenv("HV_ENV")
	if env == "production" || env == "prod" {
		return true
	}

	// Check if debug mode is explicitly disabled
	if debug := os.Getenv("HV_DEBUG"); debug != "" {
		if val, err := strconv.ParseBool(debug); err == nil && !val {
			return true
		}
	}

	return false
}

func isDebugEnv() bool {
	val, err := strconv.ParseBool(os.Getenv("HV_DEBUG"))
	return err == nil && val
}
