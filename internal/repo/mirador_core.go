package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

// LogEntry is one log line returned by mirador-core.
type LogEntry struct {
	Timestamp time.Time
	Message   string
	Severity  string
}

// Line renders the entry the way the diagnoser expects, e.g. "ERROR: connection refused".
func (e LogEntry) Line() string {
	sev := strings.ToUpper(strings.TrimSpace(e.Severity))
	if sev == "" {
		return e.Message
	}
	return sev + ": " + e.Message
}

// MiradorCoreClient fetches recent service logs from the mirador-core RCA API.
type MiradorCoreClient struct {
	baseURL    string
	logsPath   string
	lookback   time.Duration
	clock      utils.Clock
	httpClient *http.Client
}

// NewMiradorCoreClient constructs a client targeting the configured mirador-core instance.
func NewMiradorCoreClient(baseURL, logsPath string, timeout time.Duration, clock utils.Clock) *MiradorCoreClient {
	if clock == nil {
		clock = utils.SystemClock{}
	}
	return &MiradorCoreClient{
		baseURL:  strings.TrimRight(baseURL, "/"),
		logsPath: logsPath,
		lookback: 15 * time.Minute,
		clock:    clock,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// FetchLogEntries queries mirador-core for up to limit entries of service, newest last.
func (c *MiradorCoreClient) FetchLogEntries(ctx context.Context, service string, limit int) ([]LogEntry, error) {
	if c == nil {
		return nil, fmt.Errorf("mirador-core client not initialised")
	}
	if c.baseURL == "" {
		return nil, fmt.Errorf("mirador-core base URL not configured")
	}

	end := c.clock.Now()
	payload := map[string]interface{}{
		"service": service,
		"start":   end.Add(-c.lookback).Format(time.RFC3339),
		"end":     end.Format(time.RFC3339),
		"limit":   limit,
	}

	var response struct {
		Entries []struct {
			Timestamp time.Time `json:"timestamp"`
			Message   string    `json:"message"`
			Severity  string    `json:"severity"`
		} `json:"entries"`
	}

	if err := c.postJSON(ctx, c.resolvePath(c.logsPath), payload, &response); err != nil {
		return nil, fmt.Errorf("mirador-core logs request failed: %w", err)
	}

	entries := make([]LogEntry, 0, len(response.Entries))
	for _, e := range response.Entries {
		entries = append(entries, LogEntry{Timestamp: e.Timestamp, Message: e.Message, Severity: e.Severity})
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

// RecentLogs returns formatted log lines for service.
func (c *MiradorCoreClient) RecentLogs(ctx context.Context, service string, maxLines int) ([]string, error) {
	entries, err := c.FetchLogEntries(ctx, service, maxLines)
	if err != nil {
		return nil, err
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		lines = append(lines, e.Line())
	}
	return lines, nil
}

func (c *MiradorCoreClient) resolvePath(p string) string {
	if c.baseURL == "" {
		return ""
	}
	cleaned := "/" + strings.TrimLeft(p, "/")
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return c.baseURL + cleaned
	}
	u.Path = path.Join(u.Path, cleaned)
	return u.String()
}

func (c *MiradorCoreClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	if endpoint == "" {
		return fmt.Errorf("empty endpoint")
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return utils.NotFound("mirador-core.logs", endpoint)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("mirador-core returned %s", resp.Status)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
