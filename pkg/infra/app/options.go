package app

import "github.com/spf13/pflag"

// CliOptions is implemented by an application's aggregated options.
type CliOptions interface {
	// AddFlags adds flags to the flagset.
	AddFlags(fs *pflag.FlagSet)
	// Complete fills in derived values after config loading.
	Complete() error
	// Validate validates the options.
	Validate() error
}
