// Package sink pushes completed runs to the external REST backend.
package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/lazypower/cohortsim/internal/engine"
	"github.com/lazypower/cohortsim/internal/model"
)

const (
	defaultBatchSize = 500
	httpTimeout      = 5 * time.Second
)

// Client talks to the sink backend.
type Client struct {
	http      *http.Client
	serverURL string
	batchSize int
}

// NewClient creates a sink client for serverURL. An empty serverURL falls
// back to COHORTSIM_SINK_URL. Non-positive batchSize and timeout use defaults.
func NewClient(serverURL string, batchSize int, timeout time.Duration) (*Client, error) {
	if serverURL == "" {
		serverURL = os.Getenv("COHORTSIM_SINK_URL")
	}
	if serverURL == "" {
		return nil, fmt.Errorf("no sink URL configured (set sink.url or COHORTSIM_SINK_URL)")
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if timeout <= 0 {
		timeout = httpTimeout
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		serverURL: strings.TrimRight(serverURL, "/"),
		batchSize: batchSize,
	}, nil
}

// eventBatch is the body of one events POST.
type eventBatch struct {
	Batch  int           `json:"batch"`
	Total  int           `json:"total"`
	Events []model.Event `json:"events"`
}

// Stats reports what a push delivered.
type Stats struct {
	Agents    int `json:"agents"`
	Events    int `json:"events"`
	Batches   int `json:"batches"`
	Snapshots int `json:"snapshots"`
}

// Push sends the roster, the event log in batches, and the snapshots. It
// stops at the first failure; res is only read.
func (c *Client) Push(ctx context.Context, runID string, res *engine.Result) (Stats, error) {
	var st Stats
	base := "/api/sim/runs/" + runID

	if err := c.postJSON(ctx, base+"/agents", res.Roster); err != nil {
		return st, err
	}
	st.Agents = len(res.Roster)

	total := (len(res.Events) + c.batchSize - 1) / c.batchSize
	for i := 0; i < total; i++ {
		lo := i * c.batchSize
		hi := min(lo+c.batchSize, len(res.Events))
		batch := eventBatch{Batch: i, Total: total, Events: res.Events[lo:hi]}
		if err := c.postJSON(ctx, base+"/events", batch); err != nil {
			return st, fmt.Errorf("batch %d/%d: %w", i+1, total, err)
		}
		st.Events += hi - lo
		st.Batches++
	}

	if len(res.Snapshots) > 0 {
		if err := c.postJSON(ctx, base+"/snapshots", res.Snapshots); err != nil {
			return st, err
		}
		st.Snapshots = len(res.Snapshots)
	}
	return st, nil
}

func (c *Client) postJSON(ctx context.Context, path string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	_, err = c.Post(ctx, path, body)
	return err
}

// Post sends a POST request with JSON body. Returns response body.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", path, err)
	}
	if resp.StatusCode >= 400 {
		return data, fmt.Errorf("POST %s: status %d: %s", path, resp.StatusCode, data)
	}
	return data, nil
}

// Healthy checks if the sink is reachable.
func (c *Client) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/api/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
