package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bassamadnan/tmpmail/apperror"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

const (
	DefaultTimeout       = 30 * time.Second
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = 1 * time.Second
)

// Config holds what the gateway needs to reach the backend.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RetryAttempts int
	RetryDelay    time.Duration
}

// Client is the gateway to the disposable-email backend. It is built once at
// startup and shared; it holds no mutable state of its own.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	attempts   int
	delay      time.Duration
	logger     *zap.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func NewClient(cfg Config, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RetryAttempts < 1 {
		cfg.RetryAttempts = 1
	}
	if cfg.RetryDelay < 0 {
		cfg.RetryDelay = 0
	}

	c := &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		attempts: cfg.RetryAttempts,
		delay:    cfg.RetryDelay,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GenerateAddress asks the backend to mint an address. An empty username lets
// the backend pick one.
func (c *Client) GenerateAddress(ctx context.Context, username, domain string) (*GeneratedAddress, error) {
	var out GeneratedAddress
	body := generateRequest{Username: username, Domain: domain}
	if err := c.do(ctx, "generate_address", http.MethodPost, []string{"address", "generate"}, nil, body, &out); err != nil {
		return nil, err
	}
	if out.Email == "" {
		return nil, apperror.New(apperror.KindUnknown, "The server did not return an address.", nil)
	}
	return &out, nil
}

func (c *Client) Domains(ctx context.Context) ([]string, error) {
	var out domainsResponse
	if err := c.do(ctx, "list_domains", http.MethodGet, []string{"domains"}, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Domains, nil
}

func (c *Client) Envelopes(ctx context.Context, email string) ([]Envelope, error) {
	var out envelopesResponse
	if err := c.do(ctx, "list_envelopes", http.MethodGet, []string{"getEnvelopes", email}, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Envelopes, nil
}

func (c *Client) Content(ctx context.Context, uid UID, email string) (*Content, error) {
	var out Content
	query := url.Values{"email": {email}}
	if err := c.do(ctx, "fetch_content", http.MethodGet, []string{"email", uid.String(), "content"}, query, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Attachments(ctx context.Context, uid UID, email string) ([]Attachment, error) {
	var out AttachmentList
	query := url.Values{"email": {email}}
	if err := c.do(ctx, "fetch_attachments", http.MethodGet, []string{"getAttachments", uid.String()}, query, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Health returns the raw body of the backend root endpoint.
func (c *Client) Health(ctx context.Context) ([]byte, error) {
	var out []byte
	if err := c.do(ctx, "health", http.MethodGet, nil, nil, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// endpoint joins escaped path segments onto the base URL and adds the
// cache-busting _t parameter.
func (c *Client) endpoint(segments []string, query url.Values) string {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	u := c.baseURL.JoinPath(escaped...)
	q := u.Query()
	for k, vs := range query {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	q.Set("_t", fmt.Sprint(time.Now().UnixMilli()))
	u.RawQuery = q.Encode()
	return u.String()
}

func decodeInto(data []byte, out any) error {
	switch dst := out.(type) {
	case nil:
		return nil
	case *[]byte:
		*dst = append((*dst)[:0], data...)
		return nil
	default:
		if len(data) == 0 {
			return errors.New("empty response body")
		}
		return json.Unmarshal(data, out)
	}
}
