package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"github.com/viant/remediator/model"
	"github.com/viant/remediator/service/action"
)

// Request is the payload posted to the remote executor.
type Request struct {
	Actions []*model.Action `json:"actions"`
	Context *action.Context `json:"context"`
}

// Response is the payload expected back.
type Response struct {
	Results []*action.Result `json:"results"`
}

// Service delegates actions to an HTTP endpoint guarded by a circuit breaker.
type Service struct {
	url     string
	client  *http.Client
	breaker *gobreaker.CircuitBreaker
}

var _ action.Executor = (*Service)(nil)

// Option customises the service
type Option func(s *Service)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Service) { s.client = client }
}

// WithBreaker sets breaker settings.
func WithBreaker(settings gobreaker.Settings) Option {
	return func(s *Service) { s.breaker = gobreaker.NewCircuitBreaker(settings) }
}

// New creates a remote executor posting to url.
func New(url string, timeout time.Duration, options ...Option) *Service {
	ret := &Service{
		url:    url,
		client: &http.Client{Timeout: timeout},
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "action-executor",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

// ExecuteActions posts actions and returns the remote results.
func (s *Service) ExecuteActions(ctx context.Context, actions []*model.Action, actionContext *action.Context) ([]*action.Result, error) {
	payload, err := json.Marshal(&Request{Actions: actions, Context: actionContext})
	if err != nil {
		return nil, err
	}
	out, err := s.breaker.Execute(func() (interface{}, error) {
		return s.post(ctx, payload)
	})
	if err != nil {
		return nil, fmt.Errorf("action executor %s: %w", s.url, err)
	}
	results := out.([]*action.Result)
	if len(results) != len(actions) {
		return nil, fmt.Errorf("action executor %s: expected %d results, got %d", s.url, len(actions), len(results))
	}
	return results, nil
}

func (s *Service) post(ctx context.Context, payload []byte) ([]*action.Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	response := &Response{}
	if err := json.Unmarshal(body, response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Results, nil
}
