package midtrans

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	sdk "github.com/midtrans/midtrans-go"
	"github.com/midtrans/midtrans-go/coreapi"

	"github.com/faisalrasbihan/algosaham-4-sub001/pkg/config"
)

const (
	EnvSandbox    = "sandbox"
	EnvProduction = "production"

	defaultTimeout = 10 * time.Second
)

var errServerKeyRequired = errors.New("midtrans server key is required")

// Client exposes the Midtrans core API through the official SDK with the
// merchant server key. Every call is bound to the caller's context.
type Client struct {
	serverKey string
	env       sdk.EnvironmentType
	transport http.RoundTripper
	override  *url.URL
	timeout   time.Duration
	sdkHTTP   *sdk.HttpClientImplementation
}

// Option configures optional client behavior.
type Option func(*Client)

// WithEnvironment selects the sandbox or production API host.
func WithEnvironment(env string) Option {
	return func(c *Client) {
		c.env = environmentType(env)
	}
}

// WithHTTPClient sends requests through client's transport. A positive
// client timeout becomes the per-call timeout.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client == nil {
			return
		}
		if client.Transport != nil {
			c.transport = client.Transport
		}
		if client.Timeout > 0 {
			c.timeout = client.Timeout
		}
	}
}

// WithBaseURL redirects requests to a different API host, such as a local fake.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed == "" {
			return
		}
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			c.override = parsed
		}
	}
}

// WithTimeout bounds every gateway call.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

func NewClient(serverKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(serverKey)
	if trimmedKey == "" {
		return nil, errServerKeyRequired
	}

	client := &Client{
		serverKey: trimmedKey,
		env:       sdk.Sandbox,
		transport: http.DefaultTransport,
		timeout:   defaultTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	client.sdkHTTP = sdk.GetHttpClient(client.env)
	return client, nil
}

// NewFromConfig builds the client the binaries share.
func NewFromConfig(cfg config.MidtransConfig) (*Client, error) {
	return NewClient(cfg.ServerKey,
		WithEnvironment(cfg.Environment()),
		WithBaseURL(cfg.BaseURL),
		WithTimeout(cfg.RequestTimeout),
	)
}

// ServerKey exposes the merchant key for signature checks.
func (c *Client) ServerKey() string {
	if c == nil {
		return ""
	}
	return c.serverKey
}

// core returns an SDK client whose requests carry ctx. The SDK itself takes
// no context, so the binding happens in the transport.
func (c *Client) core(ctx context.Context) *coreapi.Client {
	httpImpl := *c.sdkHTTP
	httpImpl.HttpClient = &http.Client{
		Transport: boundTransport{ctx: ctx, base: c.transport, override: c.override},
	}

	var api coreapi.Client
	api.New(c.serverKey, c.env)
	api.HttpClient = &httpImpl
	return &api
}

// call runs fn under the client timeout.
func (c *Client) call(ctx context.Context, fn func(api *coreapi.Client) *sdk.Error) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return fromSDK(fn(c.core(ctx)))
}

type boundTransport struct {
	ctx      context.Context
	base     http.RoundTripper
	override *url.URL
}

func (t boundTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	out := req.WithContext(t.ctx)
	if t.override != nil {
		target := *out.URL
		target.Scheme = t.override.Scheme
		target.Host = t.override.Host
		target.Path = strings.TrimRight(t.override.Path, "/") + target.Path
		target.RawPath = ""
		out.URL = &target
		out.Host = t.override.Host
	}
	return t.base.RoundTrip(out)
}

func environmentType(env string) sdk.EnvironmentType {
	if strings.EqualFold(strings.TrimSpace(env), EnvProduction) {
		return sdk.Production
	}
	return sdk.Sandbox
}
