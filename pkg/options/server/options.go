// Package server provides HTTP server options.
package server

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/kart-io/learning-rag/pkg/options"
)

var _ options.IOptions = (*Options)(nil)

// Options contains HTTP server configuration.
type Options struct {
	// Addr is the listen address.
	Addr string `json:"addr" mapstructure:"addr"`

	// ReadTimeout bounds reading the whole request, including uploads.
	ReadTimeout time.Duration `json:"read-timeout" mapstructure:"read-timeout"`

	// WriteTimeout bounds writing the response. Zero disables it, which is
	// needed for long streamed chat answers.
	WriteTimeout time.Duration `json:"write-timeout" mapstructure:"write-timeout"`

	// IdleTimeout for keep-alive connections.
	IdleTimeout time.Duration `json:"idle-timeout" mapstructure:"idle-timeout"`

	// ShutdownTimeout for graceful shutdown.
	ShutdownTimeout time.Duration `json:"shutdown-timeout" mapstructure:"shutdown-timeout"`

	// CORSAllowOrigins lists allowed origins. Empty disables the CORS middleware.
	CORSAllowOrigins []string `json:"cors-allow-origins" mapstructure:"cors-allow-origins"`

	// SkipLogPaths are not written to the access log.
	SkipLogPaths []string `json:"skip-log-paths" mapstructure:"skip-log-paths"`

	// SkipTracePaths get no server span.
	SkipTracePaths []string `json:"skip-trace-paths" mapstructure:"skip-trace-paths"`
}

// NewOptions creates new Options with defaults.
func NewOptions() *Options {
	return &Options{
		Addr:             ":8000",
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     0,
		IdleTimeout:      120 * time.Second,
		ShutdownTimeout:  30 * time.Second,
		CORSAllowOrigins: []string{"*"},
		SkipLogPaths:     []string{"/health"},
		SkipTracePaths:   []string{"/health", "/ready", "/metrics"},
	}
}

// AddFlags adds flags to the flagset.
func (o *Options) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	p := options.Join(prefixes...) + "server."
	fs.StringVar(&o.Addr, p+"addr", o.Addr, "HTTP listen address.")
	fs.DurationVar(&o.ReadTimeout, p+"read-timeout", o.ReadTimeout, "HTTP read timeout.")
	fs.DurationVar(&o.WriteTimeout, p+"write-timeout", o.WriteTimeout, "HTTP write timeout (0 disables).")
	fs.DurationVar(&o.IdleTimeout, p+"idle-timeout", o.IdleTimeout, "HTTP idle timeout.")
	fs.DurationVar(&o.ShutdownTimeout, p+"shutdown-timeout", o.ShutdownTimeout, "Graceful shutdown timeout.")
	fs.StringSliceVar(&o.CORSAllowOrigins, p+"cors-allow-origins", o.CORSAllowOrigins, "Allowed CORS origins.")
	fs.StringSliceVar(&o.SkipLogPaths, p+"skip-log-paths", o.SkipLogPaths, "Paths excluded from the access log.")
	fs.StringSliceVar(&o.SkipTracePaths, p+"skip-trace-paths", o.SkipTracePaths, "Paths that get no tracing span.")
}

// Validate validates the options.
func (o *Options) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	if o.Addr == "" {
		errs = append(errs, fmt.Errorf("server.addr is required"))
	}
	if o.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Errorf("server.shutdown-timeout must be positive"))
	}
	return errs
}
