package simclient

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/pkg/logger"
)

// File permission constants.
const (
	logFilePermission = 0600
)

// SetupLogging configures logging to both console and file.
// If logFile is empty, a timestamped filename is generated.
func SetupLogging(logFile string) error {
	// Initialize the logger first
	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if logFile == "" {
		timestamp := time.Now().Format("20060102_150405")
		logFile = "sim_log_" + timestamp + ".log"
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermission)
	if err != nil {
		return fmt.Errorf("failed to create log file: %w", err)
	}

	multiWriter := io.MultiWriter(os.Stdout, file)
	log.SetOutput(multiWriter)
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	logger.Get().Info(context.Background(), "logging to file", logger.String("logFile", logFile))
	return nil
}

// ShowHelp prints usage information for the simulation client.
func ShowHelp() {
	os.Stdout.WriteString(`WiseTwin Telemetry Simulation Client
====================================

Generates realistic training sessions and replays them against a running
telemetry service, then checks the server-side session count.

Usage:
  go run cmd/sim-client/main.go [options]

Options:
  -url string
        Base URL of the service (default "http://localhost:9080")
  -sessions int
        Number of sessions to simulate (default 100)
  -workers int
        Number of concurrent workers (default CPU cores * 2)
  -timeout duration
        HTTP request timeout (default 30s)
  -container string
        Target container id (default "personal-sim-client")
  -secret string
        HMAC secret for signing tokens, required for org containers
  -issuer string
        Issuer claim for signed tokens (default "wisetwin")
  -tenant string
        Tenant claim for signed tokens
  -log string
        Log file for run output (default: sim_log_TIMESTAMP.log)
  -verbose
        Enable verbose logging
  -help
        Show this help message

Examples:
  # Simulate against a local service with default settings
  go run cmd/sim-client/main.go

  # Heavier run with more workers
  go run cmd/sim-client/main.go -sessions 5000 -workers 16

  # Target an organization container with signed tokens
  go run cmd/sim-client/main.go -container org-acme -secret change-me -tenant acme
`)
}
