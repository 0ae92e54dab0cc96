package simclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// HTTPClient wraps http.Client with timeout
type HTTPClient struct {
	client  *http.Client
	timeout time.Duration
}

// newHTTPClient creates a new HTTP client with timeout
func newHTTPClient(timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// Get performs a GET request
func (c *HTTPClient) Get(url string) (*http.Response, error) {
	return c.client.Get(url)
}

// Post performs a POST request with JSON body
func (c *HTTPClient) Post(url string, body interface{}) (*http.Response, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequest("POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	return c.client.Do(req)
}

// readResponseBody reads and closes the response body
func readResponseBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// submitSessions replays session scripts concurrently using a worker pool.
// Each worker posts the opening envelope, then the closing one, so the
// server sees the same in-progress-then-final sequence a real client sends.
func submitSessions(ctx context.Context, config *Config, scripts []SessionScript, stats *Stats) error {
	log.Printf("Submitting %d sessions with %d workers...", len(scripts), config.Workers)

	client := newHTTPClient(config.Timeout)
	url := config.BaseURL + "/api/telemetry"

	// Counters for statistics
	var (
		created   int64
		updated   int64
		failed    int64
		submitted int64
	)

	scriptChan := make(chan SessionScript, config.Workers*WorkerChannelMultiplier)
	var wg sync.WaitGroup

	for w := 0; w < config.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for script := range scriptChan {
				for _, env := range []interface{}{script.Opening, script.Closing} {
					select {
					case <-ctx.Done():
						return
					default:
					}

					ack, err := postEnvelope(client, url, env)
					atomic.AddInt64(&submitted, 1)
					if err != nil {
						atomic.AddInt64(&failed, 1)
						if config.Verbose {
							log.Printf("submission failed: %v", err)
						}
						continue
					}
					if ack.Created {
						atomic.AddInt64(&created, 1)
					} else {
						atomic.AddInt64(&updated, 1)
					}
				}
			}
		}()
	}

	start := time.Now()
	for _, script := range scripts {
		select {
		case <-ctx.Done():
			close(scriptChan)
			return ctx.Err()
		case scriptChan <- script:
		}
	}
	close(scriptChan)
	wg.Wait()

	stats.EnvelopesSubmitted = int(atomic.LoadInt64(&submitted))
	stats.SessionsCreated = int(atomic.LoadInt64(&created))
	stats.SessionsUpdated = int(atomic.LoadInt64(&updated))
	stats.EnvelopesFailed = int(atomic.LoadInt64(&failed))

	elapsed := time.Since(start)
	rate := float64(stats.EnvelopesSubmitted) / elapsed.Seconds()
	log.Printf("Submitted %d envelopes in %s (%.1f/sec): %d created, %d updated, %d failed",
		stats.EnvelopesSubmitted, elapsed.Round(time.Millisecond), rate,
		stats.SessionsCreated, stats.SessionsUpdated, stats.EnvelopesFailed)

	return nil
}

// postEnvelope submits one envelope and decodes the acknowledgement.
func postEnvelope(client *HTTPClient, url string, env interface{}) (*AckResponse, error) {
	resp, err := client.Post(url, env)
	if err != nil {
		return nil, fmt.Errorf("post failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != StatusOK && resp.StatusCode != StatusCreated {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var ack AckResponse
	if err := json.Unmarshal(body, &ack); err != nil {
		return nil, fmt.Errorf("failed to decode acknowledgement: %w", err)
	}
	return &ack, nil
}

// checkServiceHealth verifies the service answers on /healthz.
func checkServiceHealth(ctx context.Context, config *Config) error {
	client := newHTTPClient(config.Timeout)

	resp, err := client.Get(config.BaseURL + "/healthz")
	if err != nil {
		return fmt.Errorf("service unreachable: %w", err)
	}
	if _, err := readResponseBody(resp); err != nil {
		return fmt.Errorf("failed to read health response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}
