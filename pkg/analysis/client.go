package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/ha1tch/moodcanvas/pkg/graph"
)

const (
	// DefaultBaseURL is where a local OpenAI-compatible server usually
	// listens.
	DefaultBaseURL = "http://localhost:1234"

	// DefaultTimeout is the per-request HTTP timeout. Vision models on
	// local hardware are slow.
	DefaultTimeout = 2 * time.Minute

	// DefaultRateLimit is requests per second.
	DefaultRateLimit = 2.0

	DefaultVisionModel = "llava"
	DefaultTextModel   = "mixtral"

	chatPath = "/v1/chat/completions"

	maxErrorBody = 512
)

// Client is a rate-limited client for an OpenAI-compatible chat
// completions endpoint.
type Client struct {
	httpClient  *http.Client
	limiter     *rate.Limiter
	baseURL     string
	visionModel string
	textModel   string
	log         *zap.Logger
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL sets the server root. The chat path is resolved against it.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) {
		c.baseURL = u
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimit sets requests per second. Non-positive disables limiting.
func WithRateLimit(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithModels sets the vision and text model names. Empty keeps the
// default.
func WithModels(vision, text string) ClientOption {
	return func(c *Client) {
		if vision != "" {
			c.visionModel = vision
		}
		if text != "" {
			c.textModel = text
		}
	}
}

// WithLogger sets the logger. Nil keeps the no-op default.
func WithLogger(l *zap.Logger) ClientOption {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient creates a client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		limiter:     rate.NewLimiter(rate.Limit(DefaultRateLimit), 1),
		baseURL:     DefaultBaseURL,
		visionModel: DefaultVisionModel,
		textModel:   DefaultTextModel,
		log:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Analyzer = (*Client)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"` // string or []contentPart
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func temperature(t float64) *float64 { return &t }

// endpoint resolves the chat path against the base URL. An absolute path
// replaces any path on the base.
func (c *Client) endpoint() (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return "", fmt.Errorf("invalid model server URL %q", c.baseURL)
	}
	return base.ResolveReference(&url.URL{Path: chatPath}).String(), nil
}

// chat sends one completion request and returns the first choice's text.
func (c *Client) chat(ctx context.Context, req chatRequest) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}
	endpoint, err := c.endpoint()
	if err != nil {
		return "", err
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	c.log.Debug("chat completion",
		zap.String("model", req.Model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("duration", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}

	var cr chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("%w: decoding reply: %v", ErrInvalidResponse, err)
	}
	if len(cr.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}
	return cr.Choices[0].Message.Content, nil
}

// AnalyzeImage asks the vision model about one concept of an image.
func (c *Client) AnalyzeImage(ctx context.Context, img Image, concept string) (json.RawMessage, error) {
	content, err := c.chat(ctx, chatRequest{
		Model: c.visionModel,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: ConceptPrompt(concept)},
				{Type: "image_url", ImageURL: &imageURL{URL: img.DataURL()}},
			},
		}},
	})
	if err != nil {
		return nil, err
	}
	raw := json.RawMessage(ExtractJSON(content))
	if !json.Valid(raw) {
		return nil, fmt.Errorf("%w: reply is not JSON", ErrInvalidResponse)
	}
	return raw, nil
}

// AnalyzeRow asks the text model for keywords describing a row.
func (c *Client) AnalyzeRow(ctx context.Context, row map[string]string) (*graph.ItemAnalysis, error) {
	content, err := c.chat(ctx, chatRequest{
		Model:       c.textModel,
		Messages:    []chatMessage{{Role: "user", Content: RowPrompt(row)}},
		Temperature: temperature(0.3),
	})
	if err != nil {
		return nil, err
	}
	var out graph.ItemAnalysis
	if err := json.Unmarshal([]byte(ExtractJSON(content)), &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &out, nil
}

// Synthesize asks the text model for a prompt built from in.
func (c *Client) Synthesize(ctx context.Context, in SynthesisInput) (*Synthesis, error) {
	system, user := SynthesisPrompt(in)
	content, err := c.chat(ctx, chatRequest{
		Model: c.textModel,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature(0.7),
	})
	if err != nil {
		return nil, err
	}
	return ParseSynthesis(content, in.Mode)
}

// ParseSynthesis interprets a synthesis reply for mode.
func ParseSynthesis(content string, mode graph.OutputMode) (*Synthesis, error) {
	if mode != graph.ModeDoubleOutput {
		return &Synthesis{Consolidated: strings.TrimSpace(content)}, nil
	}
	var pair struct {
		Positive string `json:"positivePrompt"`
		Negative string `json:"negativePrompt"`
	}
	if err := json.Unmarshal([]byte(ExtractJSON(content)), &pair); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if pair.Positive == "" && pair.Negative == "" {
		return nil, fmt.Errorf("%w: empty prompt pair", ErrInvalidResponse)
	}
	return &Synthesis{Positive: pair.Positive, Negative: pair.Negative}, nil
}
