package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	workflow "github.com/intrafind/ihub-apps-sub010"
	"github.com/intrafind/ihub-apps-sub010/retry"
)

const maxResponseBytes = 10 << 20

// HTTPInput defines the input parameters for the http tool
type HTTPInput struct {
	URL             string            `mapstructure:"url"`
	Method          string            `mapstructure:"method"`
	Headers         map[string]string `mapstructure:"headers"`
	Body            string            `mapstructure:"body"`
	JSON            any               `mapstructure:"json"`
	Timeout         float64           `mapstructure:"timeout"` // seconds, default 30
	FollowRedirects *bool             `mapstructure:"follow_redirects"`
	Retries         *int              `mapstructure:"retries"`
}

// HTTPOutput defines the output of the http tool
type HTTPOutput struct {
	StatusCode int               `json:"status_code"`
	Status     string            `json:"status"`
	Headers    map[string]string `json:"headers"`
	Body       string            `json:"body"`
	JSON       any               `json:"json,omitempty"`
	Success    bool              `json:"success"`
}

// HTTPTool makes HTTP requests. Transport errors, 429 and 5xx responses are
// retried with backoff.
type HTTPTool struct {
	client       *http.Client
	retryOptions []retry.Option
}

// NewHTTPTool returns the http tool using a default client.
func NewHTTPTool() workflow.Tool {
	return workflow.NewTypedTool[HTTPInput, HTTPOutput](&HTTPTool{client: &http.Client{}})
}

// NewHTTPToolWithClient returns the http tool using the given client and
// retry options.
func NewHTTPToolWithClient(client *http.Client, opts ...retry.Option) workflow.Tool {
	return workflow.NewTypedTool[HTTPInput, HTTPOutput](&HTTPTool{client: client, retryOptions: opts})
}

func (t *HTTPTool) Name() string {
	return "http"
}

func (t *HTTPTool) Description() string {
	return "Make an HTTP request and return the status, headers and body"
}

func (t *HTTPTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":     map[string]any{"type": "string", "description": "Request URL"},
			"method":  map[string]any{"type": "string", "description": "HTTP method, default GET"},
			"headers": map[string]any{"type": "object"},
			"body":    map[string]any{"type": "string", "description": "Raw request body"},
			"json":    map[string]any{"description": "Value sent as a JSON body"},
		},
		"required": []string{"url"},
	}
}

func (t *HTTPTool) Execute(ctx context.Context, params HTTPInput) (HTTPOutput, error) {
	if params.URL == "" {
		return HTTPOutput{}, fmt.Errorf("url cannot be empty")
	}
	if params.Method == "" {
		params.Method = http.MethodGet
	}
	if params.Timeout <= 0 {
		params.Timeout = 30
	}

	var body []byte
	if params.JSON != nil {
		data, err := json.Marshal(params.JSON)
		if err != nil {
			return HTTPOutput{}, fmt.Errorf("failed to marshal json body: %w", err)
		}
		body = data
	} else if params.Body != "" {
		body = []byte(params.Body)
	}

	client := *t.client
	client.Timeout = time.Duration(params.Timeout * float64(time.Second))
	if params.FollowRedirects != nil && !*params.FollowRedirects {
		client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		}
	}

	opts := append([]retry.Option{}, t.retryOptions...)
	if params.Retries != nil {
		opts = append(opts, retry.WithMaxRetries(*params.Retries))
	}

	var output HTTPOutput
	err := retry.Do(ctx, func() error {
		output = HTTPOutput{}
		var bodyReader io.Reader
		if body != nil {
			bodyReader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, strings.ToUpper(params.Method), params.URL, bodyReader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		for key, value := range params.Headers {
			req.Header.Set(key, value)
		}
		if params.JSON != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		out, err := t.do(&client, req)
		if err != nil {
			return err
		}
		output = out
		if out.StatusCode == http.StatusTooManyRequests || out.StatusCode >= 500 {
			return retry.NewRecoverableError(fmt.Errorf("server responded %s", out.Status))
		}
		return nil
	}, opts...)
	if err != nil && output.StatusCode == 0 {
		return HTTPOutput{}, err
	}
	// A final error response is returned to the workflow rather than failing it.
	return output, nil
}

func (t *HTTPTool) do(client *http.Client, req *http.Request) (HTTPOutput, error) {
	resp, err := client.Do(req)
	if err != nil {
		return HTTPOutput{}, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return HTTPOutput{}, fmt.Errorf("failed to read response body: %w", err)
	}
	output := HTTPOutput{
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       string(respBody),
		Success:    resp.StatusCode >= 200 && resp.StatusCode < 300,
		Headers:    make(map[string]string, len(resp.Header)),
	}
	for key, values := range resp.Header {
		if len(values) > 0 {
			output.Headers[key] = values[0]
		}
	}
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var parsed any
		if err := json.Unmarshal(respBody, &parsed); err == nil {
			output.JSON = parsed
		}
	}
	return output, nil
}
