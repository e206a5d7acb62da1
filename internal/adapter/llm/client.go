// Package llm provides an HTTP client for the inference gateway. The
// gateway exposes an OpenAI-compatible structured-output endpoint; the
// client enforces per-call timeouts and reports cost/latency metadata.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	tgotel "github.com/clearfield/triage/internal/adapter/otel"
	"github.com/clearfield/triage/internal/port/inference"
	"github.com/clearfield/triage/internal/resilience"
)

// Client talks to the inference gateway and implements inference.Service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
	metrics    *tgotel.Metrics
}

// NewClient creates an inference gateway client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second, // per-call timeouts come from the PromptSpec context
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// SetMetrics attaches metric instruments; each call then records its
// latency and cost, tagged by model.
func (c *Client) SetMetrics(m *tgotel.Metrics) {
	c.metrics = m
}

type inferRequest struct {
	Model        string   `json:"model"`
	Instructions []string `json:"instructions"`
	Input        string   `json:"input"`
	MaxTokens    int      `json:"max_tokens,omitempty"`
	JSONOutput   bool     `json:"json_output"`
}

type inferResponse struct {
	Output  json.RawMessage `json:"output"`
	Model   string          `json:"model"`
	CostUSD float64         `json:"cost_usd"`
	Tokens  int             `json:"total_tokens"`
}

// Infer performs one structured inference call. The PromptSpec Timeout
// bounds the call; the gateway's raw errors never leak past this boundary
// unwrapped.
func (c *Client) Infer(ctx context.Context, spec inference.PromptSpec) (*inference.Result, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(inferRequest{
		Model:        spec.Model,
		Instructions: spec.Instructions,
		Input:        spec.Input,
		MaxTokens:    spec.MaxTokens,
		JSONOutput:   true,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal infer request: %w", err)
	}

	start := time.Now()
	var parsed inferResponse

	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/responses", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("inference gateway error %d: %s", resp.StatusCode, string(data))
		}

		if err := json.Unmarshal(data, &parsed); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(call)
	} else {
		err = call()
	}
	if err != nil {
		return nil, err
	}

	latency := time.Since(start)
	if c.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("model", spec.Model))
		c.metrics.InferenceLatency.Record(ctx, latency.Seconds(), attrs)
		c.metrics.InferenceCost.Record(ctx, parsed.CostUSD, attrs)
	}

	return &inference.Result{
		Output:  parsed.Output,
		Model:   parsed.Model,
		Latency: latency,
		CostUSD: parsed.CostUSD,
		Tokens:  parsed.Tokens,
	}, nil
}
