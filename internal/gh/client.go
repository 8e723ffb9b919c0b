// Package gh provides a GraphQL client for GitHub Projects v2 API.
// It implements a deep module interface - simple methods hiding complex GraphQL queries.
package gh

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/go-github/v66/github"
	"github.com/machinebox/graphql"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
)

// DefaultEndpoint is the public GitHub GraphQL endpoint.
const DefaultEndpoint = "https://api.github.com/graphql"

// DefaultTimeout bounds each HTTP round trip, connection and body read included.
const DefaultTimeout = 30 * time.Second

// Client is a GitHub GraphQL API client for Projects v2.
// It provides high-level methods for querying and mutating project data.
type Client struct {
	gql *graphql.Client
}

type options struct {
	timeout    time.Duration
	logger     logrus.FieldLogger
	baseClient *http.Client
}

// Option customizes a Client.
type Option func(*options)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithLogger routes the GraphQL client's request/response trace to logger at debug level.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(o *options) { o.logger = logger }
}

// WithHTTPClient uses hc's transport as the base for authenticated requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.baseClient = hc }
}

// New creates a new GitHub GraphQL client for endpoint authenticated with token.
// Returns an error if token is empty.
func New(endpoint, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errors.New("GitHub token is empty")
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}

	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	base := http.DefaultTransport
	if o.baseClient != nil && o.baseClient.Transport != nil {
		base = o.baseClient.Transport
	}

	httpClient := &http.Client{
		Timeout: o.timeout,
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   &statusTransport{base: base},
		},
	}

	client := graphql.NewClient(endpoint, graphql.WithHTTPClient(httpClient))
	if o.logger != nil {
		logger := o.logger
		client.Log = func(s string) { logger.Debug(s) }
	}

	return &Client{gql: client}, nil
}

// Execute runs one GraphQL query or mutation and decodes its data into resp.
// Failures are returned as *Error classified by ErrorType. Nothing is retried.
func (c *Client) Execute(ctx context.Context, query string, vars map[string]interface{}, resp interface{}) error {
	req := graphql.NewRequest(query)
	for k, v := range vars {
		req.Var(k, v)
	}
	return c.makeRequest(ctx, req, resp, "")
}

// makeRequest executes a GraphQL request and classifies the error.
func (c *Client) makeRequest(ctx context.Context, req *graphql.Request, resp interface{}, resource string) error {
	return wrapError(c.gql.Run(ctx, req, resp), resource)
}

// statusTransport turns non-2xx responses into go-github error values so they
// can be classified before the GraphQL client tries to decode the body.
type statusTransport struct {
	base http.RoundTripper
}

func (t *statusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	body := resp.Body
	if err := github.CheckResponse(resp); err != nil {
		body.Close()
		return nil, err
	}
	return resp, nil
}
