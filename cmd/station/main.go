package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/bootstrap"
)

func main() {
	app, err := bootstrap.NewApp()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize station: %v\n", err)
		os.Exit(1)
	}

	app.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	app.Log.Info("Shutdown signal received, shutting down gracefully...")

	app.Shutdown()
	app.Log.Info("Station exiting")
}
