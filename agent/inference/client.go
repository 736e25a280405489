// Package inference talks to a local Ollama endpoint.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	DefaultHost    = "127.0.0.1"
	DefaultPort    = 11434
	DefaultModel   = "llama3.2"
	DefaultTimeout = 5 * time.Second

	generatePath = "/api/generate"
	maxErrorBody = 512
)

type Backend string

const (
	// BackendGenerate posts to /api/generate.
	BackendGenerate Backend = "generate"
	// BackendChat goes through langchaingo's Ollama chat client.
	BackendChat Backend = "chat"
)

var Backends = []Backend{BackendGenerate, BackendChat}

func (b Backend) String() string {
	return string(b)
}

type Config struct {
	Host      string
	Port      int
	Model     string
	Timeout   time.Duration
	RateLimit float64 // Requests per second; 0 disables throttling
	Backend   Backend
}

// Addr returns host:port of the endpoint.
func (c Config) Addr() string {
	host := c.Host
	if host == "" {
		host = DefaultHost
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// BaseURL returns the endpoint root URL.
func (c Config) BaseURL() string {
	return "http://" + c.Addr()
}

// Generator sends a single prompt and returns the raw reply.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// New returns the generator selected by config.Backend.
func New(log *zap.Logger, config Config) (Generator, error) {
	switch config.Backend {
	case BackendGenerate, "":
		return NewClient(log, config), nil
	case BackendChat:
		return NewOllamaChat(log, config)
	default:
		return nil, fmt.Errorf("unknown inference backend %q", config.Backend)
	}
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Model    string  `json:"model"`
	Response *string `json:"response"`
	Done     bool    `json:"done"`
}

// Client calls the Ollama generate API. It also satisfies llms.Model.
type Client struct {
	log        *zap.Logger
	config     Config
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

var _ llms.Model = (*Client)(nil)

func NewClient(log *zap.Logger, config Config, opts ...Option) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	c := &Client{
		log:        log,
		config:     config,
		baseURL:    config.BaseURL(),
		httpClient: &http.Client{Timeout: config.Timeout},
		limiter:    newLimiter(config.RateLimit),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends prompt to the configured model without streaming and returns
// the reply text unmodified.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	return c.generate(ctx, c.config.Model, prompt)
}

func (c *Client) generate(ctx context.Context, model, prompt string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", newError(CodeRequestFailed, "rate limit wait", err)
	}

	body, err := json.Marshal(generateRequest{Model: model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", newError(CodeRequestFailed, "encode request", err)
	}

	url := strings.TrimRight(c.baseURL, "/") + generatePath
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", newError(CodeRequestFailed, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	c.log.Debug("Sending prompt.", zap.String("model", model), zap.String("prompt", prompt))
	start := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classify(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", newError(CodeRequestFailed, "unexpected status", &HTTPStatusError{
			StatusCode: resp.StatusCode,
			URL:        url,
			Body:       strings.TrimSpace(string(b)),
		})
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", classify(err, "decode response")
	}
	if out.Response == nil {
		return "", newError(CodeRequestFailed, "decode response", errors.New("response field missing"))
	}

	c.log.Debug("Received reply.",
		zap.String("model", model),
		zap.String("response", *out.Response),
		zap.Duration("took", time.Since(start)),
	)
	return *out.Response, nil
}

// GenerateContent flattens the text parts of messages into one prompt.
func (c *Client) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, opt := range options {
		opt(&opts)
	}
	model := c.config.Model
	if opts.Model != "" {
		model = opts.Model
	}

	var parts []string
	for _, m := range messages {
		for _, part := range m.Parts {
			if text, ok := part.(llms.TextContent); ok {
				parts = append(parts, text.Text)
			}
		}
	}

	text, err := c.generate(ctx, model, strings.Join(parts, "\n"))
	if err != nil {
		return nil, err
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: text}},
	}, nil
}

// Call implements the single-prompt form of llms.Model.
func (c *Client) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, c, prompt, options...)
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}
