package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ashureev/mindx/internal/domain"
)

var fileNamePattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// maxResponseBytes caps how much of an agent response is read.
const maxResponseBytes = 4 << 20

// HTTPClientConfig configures the HTTP gateway.
type HTTPClientConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// HTTPClient reaches the agent platform over HTTP/JSON.
//
//	POST {base}/v1/agents/{id}/invoke  {"message": "...", "assets": ["..."]}
//	POST {base}/v1/assets              multipart "files"
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// invokeEnvelope is the platform's response wrapper.
type invokeEnvelope struct {
	Success  bool   `json:"success"`
	Error    string `json:"error,omitempty"`
	Response struct {
		Result any `json:"result"`
	} `json:"response"`
}

type uploadEnvelope struct {
	Success  bool     `json:"success"`
	Error    string   `json:"error,omitempty"`
	AssetIDs []string `json:"asset_ids"`
}

// NewHTTPClient creates an HTTP gateway.
func NewHTTPClient(cfg HTTPClientConfig) (*HTTPClient, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("agent base url is required")
	}
	if _, err := url.ParseRequestURI(base); err != nil {
		return nil, fmt.Errorf("invalid agent base url %q: %w", base, err)
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{
		baseURL:    base,
		apiKey:     strings.TrimSpace(cfg.APIKey),
		httpClient: hc,
	}, nil
}

// Invoke implements Gateway.
func (c *HTTPClient) Invoke(ctx context.Context, req Request) (Verdict, error) {
	assets := req.Assets
	if assets == nil {
		assets = []string{}
	}
	body, err := json.Marshal(map[string]any{
		"message": req.Message,
		"assets":  assets,
	})
	if err != nil {
		return nil, fmt.Errorf("encode invoke request: %w", err)
	}

	endpoint := c.baseURL + "/v1/agents/" + url.PathEscape(req.AgentID) + "/invoke"
	raw, err := c.do(ctx, endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var env invokeEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode invoke response: %w", err)
	}
	if !env.Success {
		if env.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRejected, env.Error)
		}
		return nil, ErrRejected
	}
	return ParseVerdict(env.Response.Result)
}

// UploadEvidence implements Gateway.
func (c *HTTPClient) UploadEvidence(ctx context.Context, ev domain.Evidence) ([]string, error) {
	if len(ev.Data) == 0 {
		return nil, errors.New("evidence is empty")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, sanitizeFileName(ev.FileName)))
	header.Set("Content-Type", ev.ContentTypeOrSniff())
	part, err := mw.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(ev.Data); err != nil {
		return nil, fmt.Errorf("write multipart part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	raw, err := c.do(ctx, c.baseURL+"/v1/assets", mw.FormDataContentType(), &buf)
	if err != nil {
		return nil, err
	}
	var env uploadEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if !env.Success {
		if env.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRejected, env.Error)
		}
		return nil, ErrRejected
	}
	return env.AssetIDs, nil
}

// Name implements Gateway.
func (c *HTTPClient) Name() string { return "http" }

// Close implements Gateway.
func (c *HTTPClient) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) do(ctx context.Context, endpoint, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read agent response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRejected, resp.StatusCode, truncateText(string(raw), 200))
	}
	return raw, nil
}

func sanitizeFileName(fileName string) string {
	base := strings.TrimSpace(filepath.Base(fileName))
	if base == "" || base == "." || base == "/" {
		base = "evidence.jpg"
	}
	base = fileNamePattern.ReplaceAllString(base, "_")
	if base == "" {
		base = "evidence.jpg"
	}
	return base
}

func truncateText(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
