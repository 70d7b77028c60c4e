// FILE: wiretap/src/cmd/wiretap/commands/status.go
package commands

import (
	"context"
	"time"

	"github.com/lixenwraith/log"
)

// statusReporter logs the fields returned by report every interval
func statusReporter(ctx context.Context, interval time.Duration, logger *log.Logger, report func() []any) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			func() {
				defer func() {
					if r := recover(); r != nil {
						logger.Error("msg", "Panic in status reporter",
							"component", "status_reporter",
							"panic", r)
					}
				}()

				fields := append([]any{"msg", "Status report", "component", "status_reporter"}, report()...)
				logger.Info(fields...)
			}()
		}
	}
}
