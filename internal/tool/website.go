package tool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"toolcall/internal/domain"
)

const (
	defaultWebsiteTimeout = 5 * time.Second
	websiteDrainBytes     = 64 * 1024
)

// WebsiteCheckTool probes a URL and reports its HTTP status. Network errors
// and timeouts are described in the output, never returned as faults.
type WebsiteCheckTool struct {
	client     *http.Client
	defaultURL string
}

type WebsiteConfig struct {
	DefaultURL string
	Timeout    time.Duration
}

func NewWebsiteCheckTool(cfg WebsiteConfig) *WebsiteCheckTool {
	if cfg.DefaultURL == "" {
		cfg.DefaultURL = "https://example.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultWebsiteTimeout
	}
	return &WebsiteCheckTool{
		client:     newHTTPClient(cfg.Timeout),
		defaultURL: cfg.DefaultURL,
	}
}

func (t *WebsiteCheckTool) Descriptor() domain.ToolDescriptor {
	return domain.ToolDescriptor{
		ID:          "website_check",
		Name:        "Website Check",
		Description: "Check the status of a website.",
		Parameters:  map[string]string{"url": "string"},
	}
}

func (t *WebsiteCheckTool) Execute(ctx context.Context, params map[string]any, tc domain.Context) (domain.Result, error) {
	tc = ensureContext(tc)
	url := ArgsStringDefault(params, "url", t.defaultURL)

	status, err := t.probe(ctx, url)
	if err != nil {
		msg := fmt.Sprintf("Error checking website: %v", err)
		tc[KeyWebsiteStatus] = msg
		return domain.Reported(msg, tc), nil
	}

	msg := fmt.Sprintf("Website %s returned status %d", url, status)
	tc[KeyWebsiteStatus] = msg
	return domain.OK(msg, tc), nil
}

func (t *WebsiteCheckTool) probe(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", userAgentString)

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, websiteDrainBytes))

	return resp.StatusCode, nil
}
