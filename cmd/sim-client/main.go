package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/ManoelDaPonte/wisetwin-saas-sub001/internal/simclient"
)

// Default configuration constants.
const (
	defaultNumSessions = 100
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultRunTimeout  = 10 * time.Minute
)

func main() {
	var (
		baseURL     = flag.String("url", "http://localhost:9080", "Base URL of the service")
		numSessions = flag.Int("sessions", defaultNumSessions, "Number of sessions to simulate")
		workers     = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout     = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		containerID = flag.String("container", "personal-sim-client", "Target container id")
		authSecret  = flag.String("secret", "", "HMAC secret for signing tokens, required for org containers")
		tokenIssuer = flag.String("issuer", "wisetwin", "Issuer claim for signed tokens")
		tenantID    = flag.String("tenant", "", "Tenant claim for signed tokens")
		logFile     = flag.String("log", "", "Log file for run output (default: sim_log_TIMESTAMP.log)")
		verbose     = flag.Bool("verbose", false, "Enable verbose logging")
		help        = flag.Bool("help", false, "Show help")
	)
	flag.Parse()

	if *help {
		simclient.ShowHelp()
		return
	}

	// Setup logging
	if err := simclient.SetupLogging(*logFile); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		return
	}

	// Create context with timeout
	ctx, cancel := context.WithTimeout(context.Background(), defaultRunTimeout)
	defer cancel()

	// Create simulation configuration
	config := &simclient.Config{
		BaseURL:     *baseURL,
		NumSessions: *numSessions,
		Workers:     *workers,
		Timeout:     *timeout,
		ContainerID: *containerID,
		AuthSecret:  *authSecret,
		TokenIssuer: *tokenIssuer,
		TenantID:    *tenantID,
		LogFile:     *logFile,
		Verbose:     *verbose,
	}

	// Run the simulation
	if err := simclient.Run(ctx, config); err != nil {
		os.Stderr.WriteString("Simulation failed: " + err.Error() + "\n")
		return
	}
}
