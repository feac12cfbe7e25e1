// Package logger provides structured logging utilities with context propagation.
package logger

import (
	"context"

	"github.com/kart-io/logger"
	"github.com/kart-io/logger/core"
	"go.opentelemetry.io/otel/trace"

	"github.com/kart-io/learning-rag/pkg/infra/middleware/common"
)

type contextKey int

const loggerFieldsKey contextKey = iota

// fields 按写入顺序保存的键值对，同名键后写覆盖先写。
type fields struct {
	keys   []string
	values map[string]any
}

func (f *fields) clone() *fields {
	out := &fields{keys: append([]string(nil), f.keys...), values: make(map[string]any, len(f.values))}
	for k, v := range f.values {
		out.values[k] = v
	}
	return out
}

func (f *fields) set(key string, value any) {
	if _, ok := f.values[key]; !ok {
		f.keys = append(f.keys, key)
	}
	f.values[key] = value
}

func fromContext(ctx context.Context) *fields {
	if f, ok := ctx.Value(loggerFieldsKey).(*fields); ok {
		return f
	}
	return nil
}

// WithFields returns a context whose logger carries the given key/value pairs.
// Non-string keys and a dangling key are ignored.
func WithFields(ctx context.Context, keysAndValues ...any) context.Context {
	var f *fields
	if cur := fromContext(ctx); cur != nil {
		f = cur.clone()
	} else {
		f = &fields{values: make(map[string]any)}
	}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok || key == "" {
			continue
		}
		f.set(key, keysAndValues[i+1])
	}
	return context.WithValue(ctx, loggerFieldsKey, f)
}

// GetContextFields returns the fields stored in ctx, prefixed with the request
// ID when the request ID middleware has set one and with trace_id/span_id when
// ctx carries a valid OpenTelemetry span context.
func GetContextFields(ctx context.Context) []any {
	var out []any
	if id := common.GetRequestID(ctx); id != "" {
		out = append(out, "request_id", id)
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		out = append(out, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}
	if f := fromContext(ctx); f != nil {
		for _, k := range f.keys {
			if k == "request_id" || k == "trace_id" || k == "span_id" {
				continue
			}
			out = append(out, k, f.values[k])
		}
	}
	return out
}

// GetLogger returns the global logger enriched with the fields of ctx.
func GetLogger(ctx context.Context) core.Logger {
	base := logger.Global()
	fs := GetContextFields(ctx)
	if len(fs) == 0 {
		return base
	}
	return base.With(fs...)
}
