package logger

import (
	"context"
	"errors"
	"fmt"
)

// LogInfo logs an info message with the fields of ctx.
func LogInfo(ctx context.Context, msg string, keysAndValues ...any) {
	GetLogger(ctx).Infow(msg, keysAndValues...)
}

// LogWarn logs a warning with the fields of ctx.
func LogWarn(ctx context.Context, msg string, keysAndValues ...any) {
	GetLogger(ctx).Warnw(msg, keysAndValues...)
}

// LogError logs err and its unwrap chain with the fields of ctx.
func LogError(ctx context.Context, msg string, err error, keysAndValues ...any) {
	if err == nil {
		GetLogger(ctx).Errorw(msg, keysAndValues...)
		return
	}
	fields := append([]any{
		"error", err.Error(),
		"error_type", fmt.Sprintf("%T", err),
	}, keysAndValues...)
	if chain := UnwrapError(err); len(chain) > 1 {
		fields = append(fields, "error_chain", chain)
	}
	GetLogger(ctx).Errorw(msg, fields...)
}

// UnwrapError returns the messages of err and every error it wraps.
// Joined errors are followed depth first.
func UnwrapError(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		for e != nil {
			out = append(out, e.Error())
			if multi, ok := e.(interface{ Unwrap() []error }); ok {
				for _, child := range multi.Unwrap() {
					walk(child)
				}
				return
			}
			e = errors.Unwrap(e)
		}
	}
	walk(err)
	return out
}
