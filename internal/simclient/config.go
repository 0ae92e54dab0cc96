package simclient

import "time"

// Config holds configuration for the session simulation run
type Config struct {
	BaseURL     string        // Base URL of the service
	NumSessions int           // Number of sessions to simulate
	Workers     int           // Number of concurrent workers
	Timeout     time.Duration // HTTP request timeout
	ContainerID string        // Target container, personal-<subject> or org-<tenant>
	AuthSecret  string        // HMAC secret used to sign tokens for org containers
	TokenIssuer string        // Issuer claim for signed tokens
	TenantID    string        // Tenant claim for signed tokens
	LogFile     string        // Log file for run output
	Verbose     bool          // Enable verbose logging
}

// AckResponse represents the response from envelope submission
type AckResponse struct {
	Success          bool   `json:"success"`
	SessionID        string `json:"sessionId"`
	Created          bool   `json:"created"`
	CompletionStatus string `json:"completionStatus"`
}

// Stats holds simulation statistics
type Stats struct {
	SessionsGenerated   int
	EnvelopesSubmitted  int
	SessionsCreated     int
	SessionsUpdated     int
	EnvelopesFailed     int
	SessionsOnServer    int
	VerificationSkipped bool
	StartTime           time.Time
	EndTime             time.Time
	Duration            time.Duration
}
