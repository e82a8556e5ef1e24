package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperkishore/cupido/internal/reliability"
)

// HTTPAdapter forwards summarization requests to a JSON endpoint. Responses
// are expected as {"summary": "..."}; a plain text body is accepted too.
type HTTPAdapter struct {
	url        string
	client     *http.Client
	maxRetries int
}

func NewHTTPAdapter(url string) *HTTPAdapter {
	return &HTTPAdapter{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		maxRetries: 2,
	}
}

func (a *HTTPAdapter) Summarize(ctx context.Context, req Request) (string, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			wait := reliability.ExponentialBackoff(attempt-1, 200*time.Millisecond, 2*time.Second)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(wait):
			}
		}

		text, retryable, err := a.post(ctx, payload)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retryable {
			break
		}
	}
	return "", lastErr
}

func (a *HTTPAdapter) post(ctx context.Context, payload []byte) (text string, retryable bool, err error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(payload))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := a.client.Do(httpReq)
	if err != nil {
		// Transport errors are retried unless the caller's deadline expired.
		return "", ctx.Err() == nil, fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("summarizer http status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	var obj struct {
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal(body, &obj); err == nil && strings.TrimSpace(obj.Summary) != "" {
		return obj.Summary, false, nil
	}

	plain := strings.TrimSpace(string(body))
	if plain == "" || strings.HasPrefix(plain, "{") {
		return "", false, fmt.Errorf("summarizer returned no usable summary")
	}
	return plain, false, nil
}
