package logging

import (
	"context"
	"fmt"
	"log"
	"strings"
)

// Logger specifies a contextual, structured logger.
type Logger interface {
	Info(ctx context.Context, msg string, kv ...any)
	Error(ctx context.Context, msg string, err error, kv ...any)
}

type stdLogger struct {
	l *log.Logger
}

// Std writes through the standard log package.
func Std(l *log.Logger) Logger {
	if l == nil {
		l = log.Default()
	}
	return &stdLogger{l: l}
}

func (s *stdLogger) Info(_ context.Context, msg string, kv ...any) {
	s.l.Printf("[INFO] %s%s", msg, pairs(kv))
}

func (s *stdLogger) Error(_ context.Context, msg string, err error, kv ...any) {
	s.l.Printf("[ERROR] %s: %v%s", msg, err, pairs(kv))
}

func pairs(kv []any) string {
	if len(kv) == 0 {
		return ""
	}
	var sb strings.Builder
	for i := 0; i < len(kv); i += 2 {
		if i+1 < len(kv) {
			fmt.Fprintf(&sb, " %v=%v", kv[i], kv[i+1])
		} else {
			fmt.Fprintf(&sb, " %v", kv[i])
		}
	}
	return sb.String()
}

type nop struct{}

func Nop() Logger { return nop{} }

func (nop) Info(context.Context, string, ...any)         {}
func (nop) Error(context.Context, string, error, ...any) {}
