package tracing

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOptions_Defaults(t *testing.T) {
	opts := NewOptions()
	assert.False(t, opts.Enabled)
	assert.Empty(t, opts.Validate())
	assert.Equal(t, ExporterOTLPGRPC, opts.ExporterType)
	assert.Equal(t, SamplerParentBased, opts.SamplerType)
}

func TestOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(o *Options)
		errs   int
	}{
		{name: "disabled skips checks", modify: func(o *Options) { o.ExporterType = "zipkin" }, errs: 0},
		{name: "enabled defaults", modify: func(o *Options) { o.Enabled = true }, errs: 0},
		{name: "stdout without endpoint", modify: func(o *Options) {
			o.Enabled, o.ExporterType, o.Endpoint = true, ExporterStdout, ""
		}, errs: 0},
		{name: "otlp without endpoint", modify: func(o *Options) { o.Enabled, o.Endpoint = true, "" }, errs: 1},
		{name: "unknown exporter", modify: func(o *Options) { o.Enabled, o.ExporterType = true, "zipkin" }, errs: 1},
		{name: "bad sampler", modify: func(o *Options) {
			o.Enabled, o.SamplerType, o.SamplerRatio = true, "sometimes", 2
		}, errs: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := NewOptions()
			tt.modify(opts)
			assert.Len(t, opts.Validate(), tt.errs)
		})
	}
}

func TestOptions_AddFlags(t *testing.T) {
	opts := NewOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	opts.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--tracing.enabled",
		"--tracing.exporter-type=otlp_http",
		"--tracing.endpoint=collector:4318",
		"--tracing.headers=authorization=token",
	}))
	assert.True(t, opts.Enabled)
	assert.Equal(t, ExporterOTLPHTTP, opts.ExporterType)
	assert.Equal(t, "collector:4318", opts.Endpoint)
	assert.Equal(t, map[string]string{"authorization": "token"}, opts.Headers)
}
