package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	config_util "github.com/prometheus/common/config"
	"github.com/prometheus/common/promslog"
	"github.com/slurm-web/console/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testTokens struct {
	mu    sync.Mutex
	token string
}

func (t *testTokens) Token() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.token
}

func (t *testTokens) set(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.token = token
}

func newTestClient(t *testing.T, serverURL string, cacheTTL time.Duration, reg prometheus.Registerer) (*Client, *testTokens) {
	t.Helper()

	tokens := &testTokens{token: "secret"}
	client, err := New(Config{
		URL:              serverURL,
		HTTPClientConfig: config_util.HTTPClientConfig{},
		CacheTTL:         cacheTTL,
		Tokens:           tokens,
		Logger:           promslog.NewNopLogger(),
		Registerer:       reg,
	})
	require.NoError(t, err)
	t.Cleanup(client.Close)

	return client, tokens
}

func TestNewClientErrors(t *testing.T) {
	_, err := New(Config{})
	require.ErrorIs(t, err, ErrMissingURL)

	_, err = New(Config{URL: "http://[::1]:namedport"})
	require.Error(t, err)
}

func TestClientLogin(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/login", r.URL.Path)
		assert.Empty(t, r.Header.Get("Authorization"))
		assert.NotEmpty(t, r.Header.Get("X-Request-Id"))

		var idents map[string]string
		if err := json.NewDecoder(r.Body).Decode(&idents); err != nil {
			w.WriteHeader(http.StatusBadRequest)

			return
		}

		if idents["user"] != "alice" || idents["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"code": 401, "description": "Invalid credentials"}`))

			return
		}

		w.Write([]byte(`{"result": "Authentication successful", "token": "tok", "fullname": "Alice", "groups": ["users"]}`))
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, 0, nil)

	resp, err := client.Login(context.Background(), "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "tok", resp.Token)
	assert.Equal(t, "Alice", resp.Fullname)
	assert.Equal(t, []string{"users"}, resp.Groups)

	_, err = client.Login(context.Background(), "alice", "wrong")
	require.Error(t, err)

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, KindAuthentication, gwErr.Kind)
	assert.Equal(t, "Invalid credentials", gwErr.Description)
}

func TestClientAuthenticatedRequests(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		switch r.URL.Path {
		case "/clusters":
			w.Write([]byte(`[{"name": "foo", "permissions": {"roles": ["user"], "actions": ["view-jobs"]}}]`))
		case "/users":
			w.Write([]byte(`[{"login": "alice", "fullname": "Alice"}]`))
		case "/agents/foo/stats":
			w.Write([]byte(`{"resources": {"nodes": 4, "cores": 128}, "jobs": {"running": 2, "total": 5}}`))
		case "/agents/foo/jobs":
			w.Write([]byte(`[{"job_id": 1, "user_name": "alice", "account": "physics", "job_state": "RUNNING", "partition": "normal"}]`))
		case "/agents/foo/job/1":
			w.Write([]byte(`{"job_id": 1, "user_name": "alice", "working_directory": "/home/alice"}`))
		case "/agents/foo/nodes":
			w.Write([]byte(`[{"name": "cn1", "cores": 32, "cpus": 64, "real_memory": 1024, "state": ["IDLE"], "partitions": ["normal"]}]`))
		case "/agents/foo/node/cn1":
			w.Write([]byte(`{"name": "cn1", "cores": 32}`))
		case "/agents/foo/partitions":
			w.Write([]byte(`[{"name": "normal", "nodes": {"configured": "cn[1-4]", "total": 4}}]`))
		case "/agents/foo/qos":
			w.Write([]byte(`[{"name": "normal", "priority": 10}]`))
		case "/agents/foo/reservations":
			w.Write([]byte(`[{"name": "maint", "node_list": "cn1"}]`))
		case "/agents/foo/accounts":
			w.Write([]byte(`[{"name": "physics"}]`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, 0, nil)
	ctx := context.Background()

	clusters, err := client.Clusters(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, "foo", clusters[0].Name)
	assert.Equal(t, []string{"view-jobs"}, clusters[0].Permissions.Actions)
	assert.Nil(t, clusters[0].Stats)

	users, err := client.Users(ctx)
	require.NoError(t, err)
	assert.Equal(t, []UserDescription{{Login: "alice", Fullname: "Alice"}}, users)

	stats, err := client.Stats(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, uint(128), stats.Resources.Cores)
	assert.Equal(t, uint(2), stats.Jobs.Running)

	jobs, err := client.Jobs(ctx, "foo")
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "RUNNING", jobs[0].JobState)

	job, err := client.Job(ctx, "foo", 1)
	require.NoError(t, err)
	assert.Equal(t, "/home/alice", job.WorkingDirectory)

	nodes, err := client.Nodes(ctx, "foo")
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, []string{"IDLE"}, nodes[0].State)

	node, err := client.Node(ctx, "foo", "cn1")
	require.NoError(t, err)
	assert.Equal(t, uint(32), node.Cores)

	partitions, err := client.Partitions(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, uint(4), partitions[0].Nodes.Total)

	qos, err := client.QOS(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, int64(10), qos[0].Priority.Number)

	reservations, err := client.Reservations(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, "maint", reservations[0].Name)

	accounts, err := client.Accounts(ctx, "foo")
	require.NoError(t, err)
	assert.Equal(t, "physics", accounts[0].Name)

	_, err = client.Jobs(ctx, "unknown")
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindServer, kind)
}

func TestClientErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/agents/expired/jobs":
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"description": "token expired"}`))
		case "/agents/forbidden/jobs":
			w.WriteHeader(http.StatusForbidden)
			w.Write([]byte(`{"description": "no permission"}`))
		case "/agents/broken/jobs":
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"description": "agent unreachable"}`))
		case "/agents/garbage/jobs":
			w.Write([]byte(`not json`))
		}
	}))
	defer server.Close()

	client, _ := newTestClient(t, server.URL, 0, nil)
	ctx := context.Background()

	var gwErr *Error

	_, err := client.Jobs(ctx, "expired")
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, KindAuthentication, gwErr.Kind)
	assert.Equal(t, "token expired", gwErr.Description)

	_, err = client.Jobs(ctx, "forbidden")
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, KindPermission, gwErr.Kind)

	_, err = client.Jobs(ctx, "broken")
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, KindServer, gwErr.Kind)
	assert.Equal(t, http.StatusInternalServerError, gwErr.Status)
	assert.Equal(t, "agent unreachable", gwErr.Description)

	_, err = client.Jobs(ctx, "garbage")
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, KindRequest, gwErr.Kind)
}

func TestClientNoResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	serverURL := server.URL
	server.Close()

	client, _ := newTestClient(t, serverURL, 0, nil)

	_, err := client.Clusters(context.Background())
	kind, ok := KindOf(err)
	require.True(t, ok)
	assert.Equal(t, KindRequest, kind)
}

func TestClientMissingToken(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	client, tokens := newTestClient(t, server.URL, 0, nil)
	tokens.set("")

	_, err := client.Clusters(context.Background())
	require.ErrorIs(t, err, ErrMissingToken)

	kind, _ := KindOf(err)
	assert.Equal(t, KindRequest, kind)
	assert.Equal(t, int32(0), hits.Load())
}

func TestClientAbortAll(t *testing.T) {
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		arrived <- struct{}{}

		select {
		case <-release:
		case <-r.Context().Done():
			return
		}

		w.Write([]byte(`[]`))
	}))
	defer server.Close()
	defer close(release)

	client, _ := newTestClient(t, server.URL, 0, nil)
	ctx := context.Background()

	errs := make(chan error, 2)

	go func() {
		_, err := client.Jobs(ctx, "foo")
		errs <- err
	}()

	go func() {
		_, err := client.Nodes(ctx, "foo")
		errs <- err
	}()

	// Wait for both requests to be in-flight
	<-arrived
	<-arrived

	client.AbortAll()

	for range 2 {
		select {
		case err := <-errs:
			require.ErrorIs(t, err, ErrAborted)
		case <-time.After(5 * time.Second):
			t.Fatal("aborted request did not return")
		}
	}

	// Calls after abort are not affected
	go func() {
		<-arrived
		release <- struct{}{}
	}()

	jobs, err := client.Jobs(ctx, "foo")
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestClientScope(t *testing.T) {
	client, _ := newTestClient(t, "http://localhost:5011", 0, nil)

	scope := client.Scope()
	require.NoError(t, scope.Err())

	client.AbortAll()
	require.Error(t, scope.Err())
	assert.NoError(t, client.Scope().Err())
}

func TestClientCache(t *testing.T) {
	var hits atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(`[{"name": "foo"}]`))
	}))
	defer server.Close()

	reg := prometheus.NewPedanticRegistry()
	client, tokens := newTestClient(t, server.URL, time.Minute, reg)
	ctx := context.Background()

	for range 3 {
		clusters, err := client.Clusters(ctx)
		require.NoError(t, err)
		assert.Equal(t, "foo", clusters[0].Name)
	}

	assert.Equal(t, int32(1), hits.Load())

	// Cache is scoped by token
	tokens.set("other")

	_, err := client.Clusters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())

	client.FlushCache()

	_, err = client.Clusters(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(3), hits.Load())

	assert.InDelta(t, 3, testutil.ToFloat64(client.metrics.requests.WithLabelValues("clusters", "success")), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(client.metrics.requests.WithLabelValues("clusters", "cached")), 0)
}

func TestClientRevokedToken(t *testing.T) {
	var revoked atomic.Bool

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if revoked.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"description": "token expired"}`))

			return
		}

		w.Write([]byte(`[{"name": "foo"}]`))
	}))
	defer server.Close()

	ctx := context.Background()

	// Default configuration does not cache responses
	client, _ := newTestClient(t, server.URL, time.Duration(common.DefaultGatewayWebConfig.CacheTTL), nil)

	_, err := client.Clusters(ctx)
	require.NoError(t, err)

	revoked.Store(true)

	_, err = client.Clusters(ctx)
	assert.True(t, IsAuthentication(err))

	// With caching enabled, a refused token drops cached responses
	revoked.Store(false)

	cached, _ := newTestClient(t, server.URL, time.Minute, nil)

	_, err = cached.Clusters(ctx)
	require.NoError(t, err)

	revoked.Store(true)

	_, err = cached.Nodes(ctx, "foo")
	require.True(t, IsAuthentication(err))

	_, err = cached.Clusters(ctx)
	assert.True(t, IsAuthentication(err))
}

func TestClientMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	reg := prometheus.NewPedanticRegistry()
	client, _ := newTestClient(t, server.URL, 0, reg)

	_, err := client.QOS(context.Background(), "foo")
	require.Error(t, err)

	assert.InDelta(t, 1, testutil.ToFloat64(client.metrics.requests.WithLabelValues("qos", "permission")), 0)

	// Registering twice on the same registry must fail
	_, err = New(Config{URL: server.URL, Registerer: reg})
	require.Error(t, err)
}
