package simclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
)

// sessionCountResponse is the slice of the list response the verifier needs.
type sessionCountResponse struct {
	Pagination struct {
		Total int `json:"total"`
	} `json:"pagination"`
}

// verifySessions asks the server how many sessions it holds for the target
// container and compares against what the run submitted.
func verifySessions(ctx context.Context, config *Config, stats *Stats) error {
	client := newHTTPClient(config.Timeout)

	query := url.Values{}
	query.Set("containerId", config.ContainerID)
	query.Set("limit", "1")

	resp, err := client.Get(config.BaseURL + "/api/sessions?" + query.Encode())
	if err != nil {
		return fmt.Errorf("session count request failed: %w", err)
	}

	body, err := readResponseBody(resp)
	if err != nil {
		return fmt.Errorf("failed to read session count response: %w", err)
	}
	if resp.StatusCode != StatusOK {
		return fmt.Errorf("session count request returned status %d: %s", resp.StatusCode, string(body))
	}

	var page sessionCountResponse
	if err := json.Unmarshal(body, &page); err != nil {
		return fmt.Errorf("failed to decode session count response: %w", err)
	}

	stats.SessionsOnServer = page.Pagination.Total

	if stats.SessionsOnServer < stats.SessionsCreated {
		log.Printf("WARNING: server reports %d sessions for container %s, expected at least %d",
			stats.SessionsOnServer, config.ContainerID, stats.SessionsCreated)
	} else {
		log.Printf("Server reports %d sessions for container %s", stats.SessionsOnServer, config.ContainerID)
	}

	return nil
}
