// Package gateway implements the client of the Slurm-web gateway API
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	config_util "github.com/prometheus/common/config"
	"github.com/prometheus/common/version"
)

// Headers set on gateway requests.
const (
	headerRequestID     = "X-Request-Id"
	headerAuthorization = "Authorization"
	headerContentType   = "Content-Type"
	mimeJSON            = "application/json"
)

// TokenProvider returns the bearer token of the current session. An empty
// string means no session.
type TokenProvider interface {
	Token() string
}

// Config contains the gateway client configuration. A zero CacheTTL
// disables caching of authenticated GET responses.
type Config struct {
	URL              string
	HTTPClientConfig config_util.HTTPClientConfig
	CacheTTL         time.Duration
	Tokens           TokenProvider
	Logger           *slog.Logger
	Registerer       prometheus.Registerer
}

// Client is the single entry point for gateway HTTP calls.
type Client struct {
	URL     *url.URL
	client  *http.Client
	tokens  TokenProvider
	logger  *slog.Logger
	cache   *responseCache
	metrics *metrics

	// All in-flight calls derive from scope. AbortAll cancels it and
	// installs a fresh one.
	scopeMu sync.Mutex
	scope   context.Context
	abort   context.CancelFunc
}

// New returns a new instance of Client.
func New(c Config) (*Client, error) {
	if c.URL == "" {
		return nil, ErrMissingURL
	}

	// Unwrap original error to avoid leaking sensitive passwords in output
	gatewayURL, err := url.Parse(c.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid gateway url: %w", errors.Unwrap(err))
	}

	httpClient, err := config_util.NewClientFromConfig(
		c.HTTPClientConfig,
		"slurmweb_gateway",
		config_util.WithUserAgent("slurmweb/"+version.Version),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway HTTP client: %w", err)
	}

	m, err := newMetrics(c.Registerer)
	if err != nil {
		return nil, fmt.Errorf("failed to register gateway metrics: %w", err)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	scope, abort := context.WithCancel(context.Background())

	return &Client{
		URL:     gatewayURL,
		client:  httpClient,
		tokens:  c.Tokens,
		logger:  logger,
		cache:   newResponseCache(c.CacheTTL),
		metrics: m,
		scope:   scope,
		abort:   abort,
	}, nil
}

// String implements stringer method for Client.
func (c *Client) String() string {
	return fmt.Sprintf("Gateway{URL: %s}", c.URL.Redacted())
}

// SetTokenProvider sets the source of bearer tokens.
func (c *Client) SetTokenProvider(tokens TokenProvider) {
	c.tokens = tokens
}

// AbortAll cancels every in-flight call of this client. Calls issued
// afterwards are not affected.
func (c *Client) AbortAll() {
	c.scopeMu.Lock()
	defer c.scopeMu.Unlock()

	c.abort()
	c.scope, c.abort = context.WithCancel(context.Background())

	c.logger.Debug("Aborted in-flight gateway requests")
}

// FlushCache drops all cached responses.
func (c *Client) FlushCache() {
	c.cache.flush()
}

// Close aborts in-flight calls and releases client resources.
func (c *Client) Close() {
	c.AbortAll()
	c.cache.stop()
}

// Scope returns the context cancelled by the next AbortAll. Callers holding
// a response check it before applying the response.
func (c *Client) Scope() context.Context {
	c.scopeMu.Lock()
	defer c.scopeMu.Unlock()

	return c.scope
}

func (c *Client) token() string {
	if c.tokens == nil {
		return ""
	}

	return c.tokens.Token()
}

// Login authenticates user and returns the session token.
func (c *Client) Login(ctx context.Context, user, password string) (*LoginResponse, error) {
	idents := map[string]string{"user": user, "password": password}

	var resp LoginResponse
	if err := c.request(ctx, "login", http.MethodPost, []string{"login"}, idents, false, &resp); err != nil {
		return nil, remapLoginError(err)
	}

	return &resp, nil
}

// Anonymous returns a token for anonymous access when the gateway has
// authentication disabled.
func (c *Client) Anonymous(ctx context.Context) (*AnonymousResponse, error) {
	var resp AnonymousResponse
	if err := c.request(ctx, "anonymous", http.MethodGet, []string{"anonymous"}, nil, false, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// Clusters returns the clusters accessible to the current user.
func (c *Client) Clusters(ctx context.Context) ([]ClusterDescription, error) {
	return getList[ClusterDescription](ctx, c, "clusters", "clusters")
}

// Users returns users known by the gateway.
func (c *Client) Users(ctx context.Context) ([]UserDescription, error) {
	return getList[UserDescription](ctx, c, "users", "users")
}

// Stats returns statistics of cluster.
func (c *Client) Stats(ctx context.Context, cluster string) (*ClusterStats, error) {
	var stats ClusterStats
	if err := c.request(ctx, "stats", http.MethodGet, agentPath(cluster, "stats"), nil, true, &stats); err != nil {
		return nil, err
	}

	return &stats, nil
}

// Jobs returns jobs of cluster.
func (c *Client) Jobs(ctx context.Context, cluster string) ([]ClusterJob, error) {
	return getList[ClusterJob](ctx, c, "jobs", agentPath(cluster, "jobs")...)
}

// Job returns details of job id on cluster.
func (c *Client) Job(ctx context.Context, cluster string, id int64) (*ClusterJobDetail, error) {
	var job ClusterJobDetail

	resource := agentPath(cluster, "job", strconv.FormatInt(id, 10))
	if err := c.request(ctx, "job", http.MethodGet, resource, nil, true, &job); err != nil {
		return nil, err
	}

	return &job, nil
}

// Nodes returns nodes of cluster.
func (c *Client) Nodes(ctx context.Context, cluster string) ([]ClusterNode, error) {
	return getList[ClusterNode](ctx, c, "nodes", agentPath(cluster, "nodes")...)
}

// Node returns node name of cluster.
func (c *Client) Node(ctx context.Context, cluster, name string) (*ClusterNode, error) {
	var node ClusterNode
	if err := c.request(ctx, "node", http.MethodGet, agentPath(cluster, "node", name), nil, true, &node); err != nil {
		return nil, err
	}

	return &node, nil
}

// Partitions returns partitions of cluster.
func (c *Client) Partitions(ctx context.Context, cluster string) ([]ClusterPartition, error) {
	return getList[ClusterPartition](ctx, c, "partitions", agentPath(cluster, "partitions")...)
}

// QOS returns QOS of cluster.
func (c *Client) QOS(ctx context.Context, cluster string) ([]ClusterQos, error) {
	return getList[ClusterQos](ctx, c, "qos", agentPath(cluster, "qos")...)
}

// Reservations returns reservations of cluster.
func (c *Client) Reservations(ctx context.Context, cluster string) ([]ClusterReservation, error) {
	return getList[ClusterReservation](ctx, c, "reservations", agentPath(cluster, "reservations")...)
}

// Accounts returns accounts of cluster.
func (c *Client) Accounts(ctx context.Context, cluster string) ([]ClusterAccount, error) {
	return getList[ClusterAccount](ctx, c, "accounts", agentPath(cluster, "accounts")...)
}

func agentPath(cluster string, elems ...string) []string {
	return append([]string{"agents", cluster}, elems...)
}

func getList[T any](ctx context.Context, c *Client, operation string, resource ...string) ([]T, error) {
	var items []T
	if err := c.request(ctx, operation, http.MethodGet, resource, nil, true, &items); err != nil {
		return nil, err
	}

	return items, nil
}

// request makes a gateway call and decodes the JSON response into out.
func (c *Client) request(
	ctx context.Context,
	operation, method string,
	resource []string,
	payload any,
	auth bool,
	out any,
) error {
	start := time.Now()

	body, cached, err := c.roundTrip(ctx, method, resource, payload, auth)
	if err == nil {
		if err = json.Unmarshal(body, out); err != nil {
			err = &Error{
				Kind:        KindRequest,
				Description: fmt.Sprintf("invalid response body: %s", err),
				Err:         err,
			}
		}
	}

	result := outcome(err)
	if cached && err == nil {
		result = outcomeCached
	}

	c.metrics.observe(operation, result, time.Since(start))

	return err
}

// roundTrip sends the request and classifies failures. The returned flag
// reports whether body was served from cache.
func (c *Client) roundTrip(
	ctx context.Context,
	method string,
	resource []string,
	payload any,
	auth bool,
) ([]byte, bool, error) {
	scope := c.Scope()
	reqURL := c.URL.JoinPath(resource...)
	cacheKey := reqURL.Path

	var token string
	if auth {
		if token = c.token(); token == "" {
			return nil, false, requestError(ErrMissingToken)
		}

		if method == http.MethodGet {
			if body, ok := c.cache.get(token, cacheKey); ok {
				return body, true, nil
			}
		}
	}

	// Request is cancelled by the caller or by AbortAll, whichever first
	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	stop := context.AfterFunc(scope, cancel)
	defer stop()

	var reader io.Reader

	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, false, requestError(err)
		}

		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(reqCtx, method, reqURL.String(), reader)
	if err != nil {
		return nil, false, requestError(err)
	}

	requestID := uuid.NewString()
	req.Header.Set(headerRequestID, requestID)

	if payload != nil {
		req.Header.Set(headerContentType, mimeJSON)
	}

	if auth {
		req.Header.Set(headerAuthorization, "Bearer "+token)
	}

	c.logger.Debug("Gateway request", "method", method, "resource", cacheKey, "request_id", requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		if scope.Err() != nil {
			return nil, false, ErrAborted
		}

		c.logger.Debug(
			"Gateway request failed", "method", method, "resource", cacheKey,
			"request_id", requestID, "err", err,
		)

		return nil, false, requestError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)

	// A response racing with AbortAll is discarded
	if scope.Err() != nil {
		return nil, false, ErrAborted
	}

	if err != nil {
		return nil, false, requestError(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		gwErr := classifyResponse(resp.StatusCode, body)

		// Gateway refused the token, cached bodies of the session are stale
		if gwErr.Kind == KindAuthentication {
			c.cache.flush()
		}

		c.logger.Debug(
			"Gateway error response", "method", method, "resource", cacheKey,
			"request_id", requestID, "status", resp.StatusCode, "kind", gwErr.Kind,
			"description", strings.TrimSpace(gwErr.Description),
		)

		return nil, false, gwErr
	}

	if auth && method == http.MethodGet {
		c.cache.set(token, cacheKey, body)
	}

	return body, false, nil
}
