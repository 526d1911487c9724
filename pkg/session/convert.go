package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/greg-hellings/datasettool/pkg/backend"
)

// CanConvert reports whether the whole export has at least one image in each
// Train/Val bucket. The selected instance is not considered.
func (e *Engine) CanConvert() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot != nil && e.snapshot.Info.Convertible()
}

// Convert hands the export to the conversion pipeline. It returns
// ErrConvertNotReady while CanConvert is false.
func (e *Engine) Convert(ctx context.Context, projectID string) error {
	e.mu.Lock()
	if e.snapshot == nil {
		e.mu.Unlock()
		return ErrNoExport
	}
	if !e.snapshot.Info.Convertible() {
		e.mu.Unlock()
		return ErrConvertNotReady
	}
	exportID := e.exportID
	e.mu.Unlock()

	if err := e.client.TriggerConversion(ctx, projectID, exportID); err != nil {
		slog.Error("Failed to trigger conversion",
			"export", exportID,
			"diagnostic", backend.Diagnostic(err))
		return fmt.Errorf("session: trigger conversion: %w", err)
	}
	slog.Info("Conversion triggered", "project", projectID, "export", exportID)
	return nil
}
