package jobapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"analysis-tracker/internal/domain/ports/adapter"
)

// Sentinel errors for remote job API failures.
var (
	ErrAPIUnreachable = errors.New("job api unreachable")
	ErrAPIStatus      = errors.New("job api error")
	ErrAPITimeout     = errors.New("job api timeout")
)

// Compile-time assurance this adapter satisfies the port
var _ adapter.JobAPIAdapter = (*HTTPAdapter)(nil)

// HTTPAdapter talks to the remote analysis service over its JSON API.
// Create: POST {base}/api/v1/jobs  Get: GET {base}/api/v1/jobs/{id}
// Authorization: Bearer <API_KEY>
type HTTPAdapter struct {
	base   string
	apiKey string
	client *http.Client
}

func NewHTTPAdapter(base, apiKey string, timeout time.Duration) (*HTTPAdapter, error) {
	if base == "" {
		return nil, errors.New("job api base url empty")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPAdapter{
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		client: &http.Client{Timeout: timeout},
	}, nil
}

func (a *HTTPAdapter) CreateJob(ctx context.Context, input, instruction string) (*adapter.CreateJobResponse, error) {
	reqBody := struct {
		Input       string `json:"input"`
		Instruction string `json:"instruction,omitempty"`
	}{Input: input, Instruction: instruction}

	b, _ := json.Marshal(reqBody)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.base+"/api/v1/jobs", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	a.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: create status %d", ErrAPIStatus, resp.StatusCode)
	}

	var out adapter.CreateJobResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding create response: %w", err)
	}
	return &out, nil
}

func (a *HTTPAdapter) GetJob(ctx context.Context, jobID string) (*adapter.JobStatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.base+"/api/v1/jobs/"+jobID, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	a.setHeaders(req)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: get status %d", ErrAPIStatus, resp.StatusCode)
	}

	var out adapter.JobStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decoding job response: %w", err)
	}
	return &out, nil
}

func (a *HTTPAdapter) setHeaders(req *http.Request) {
	if a.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+a.apiKey)
	}
}

// classifyError folds transport failures into the sentinel taxonomy while
// preserving context cancellation untouched, so the poller can tell a
// cancelled fetch from a dead endpoint.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrAPITimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrAPIUnreachable, err)
}
