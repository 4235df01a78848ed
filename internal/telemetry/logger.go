// Package telemetry builds the structured logger every service entrypoint
// uses, optionally shipping entries to Loki alongside the usual stdout
// encoder.
package telemetry

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"legal-contract-review/internal/loki"
)

// NewLogger builds a production zap.Logger tagged with service, as an
// explicit constructor any component (orchestrator, vector store, httpapi)
// can take as a dependency instead of reaching for a package-level global.
func NewLogger(service string) (*zap.Logger, error) {
	base, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	logger := base.With(zap.String("service", service))

	if endpoint := os.Getenv("LOKI_ENDPOINT"); endpoint != "" {
		sink := loki.New(endpoint, map[string]string{"service": service})
		logger = logger.WithOptions(zap.WrapCore(func(core zapcore.Core) zapcore.Core {
			return zapcore.NewTee(core, lokiCore{client: sink, level: zapcore.InfoLevel})
		}))
	}
	return logger, nil
}

// lokiCore is a minimal zapcore.Core that forwards entries to a Loki push
// client, exercised by NewLogger when LOKI_ENDPOINT is configured.
type lokiCore struct {
	client *loki.Client
	level  zapcore.Level
}

func (c lokiCore) Enabled(l zapcore.Level) bool { return l >= c.level }

func (c lokiCore) With(fields []zapcore.Field) zapcore.Core { return c }

func (c lokiCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c lokiCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.client.Push(loki.Batch{Entries: []loki.Entry{{
		Timestamp: ent.Time,
		Line:      ent.Level.String() + " " + ent.LoggerName + " " + ent.Message,
		Labels:    map[string]string{"level": ent.Level.String()},
	}}})
}

func (c lokiCore) Sync() error { return nil }
