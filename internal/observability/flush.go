package observability

import (
	"errors"
	"fmt"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// FlushTelemetry flushes logs and, when textfile is set, writes the metric
// registry to it in Prometheus text format. Call once the run has finished.
func FlushTelemetry(logger *zap.Logger, textfile string) error {
	if textfile != "" {
		if err := prometheus.WriteToTextfile(textfile, registry); err != nil {
			return fmt.Errorf("write metrics textfile: %w", err)
		}
	}
	if logger != nil {
		if err := logger.Sync(); err != nil && !unsyncable(err) {
			return fmt.Errorf("flush logs: %w", err)
		}
	}
	return nil
}

// unsyncable reports whether err is what fsync returns for terminals and pipes,
// which have nothing to flush.
func unsyncable(err error) bool {
	return errors.Is(err, syscall.EINVAL) || errors.Is(err, syscall.ENOTTY)
}
