// Command classify runs the lung X-ray classifier outside the HTTP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/timmy/lungscan/internal/logger"
)

func main() {
	appLogger := logger.New(&logger.Config{
		Level:       "info",
		Format:      "text",
		Output:      os.Stderr,
		ServiceName: "lungscan-classify",
	})
	logger.SetDefaultLogger(appLogger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand(os.Stdout).ExecuteContext(appLogger.WithContext(ctx)); err != nil {
		os.Exit(1)
	}
}
