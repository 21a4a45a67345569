package observability

import (
	"context"
	"sort"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// AuditLogger emits administrative actions as OpenTelemetry log records and
// mirrors them to the process log.
type AuditLogger struct {
	logger otellog.Logger
}

// NewAuditLogger creates an audit logger on provider, or on the global
// logger provider when provider is nil.
func NewAuditLogger(provider otellog.LoggerProvider) *AuditLogger {
	if provider == nil {
		provider = global.GetLoggerProvider()
	}
	return &AuditLogger{logger: provider.Logger(instrumentationName + "/audit")}
}

// Record emits one audit record. fields become record attributes.
func (a *AuditLogger) Record(ctx context.Context, action string, fields map[string]string) {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var record otellog.Record
	record.SetTimestamp(time.Now())
	record.SetSeverity(otellog.SeverityInfo)
	record.SetSeverityText("INFO")
	record.SetBody(otellog.StringValue(action))

	event := LoggerFromContext(ctx).Info().Str("audit_action", action)
	for _, k := range keys {
		record.AddAttributes(otellog.String(k, fields[k]))
		event = event.Str(k, fields[k])
	}

	a.logger.Emit(ctx, record)
	event.Msg("audit")
}
