package router

import (
	"net/url"
	"testing"

	"github.com/prometheus/common/promslog"
	"github.com/slurm-web/console/pkg/storage"
	"github.com/slurm-web/console/pkg/stores"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) (*Router, *stores.SessionStore, *stores.RuntimeStore) {
	t.Helper()

	s := storage.NewMemory()
	logger := promslog.NewNopLogger()
	session := stores.NewSessionStore(s, logger)
	runtime := stores.NewRuntimeStore(s, nil, logger)

	return New(session, runtime, logger), session, runtime
}

func TestResolve(t *testing.T) {
	r, _, _ := newTestRouter(t)

	tests := []struct {
		path   string
		name   string
		params map[string]string
	}{
		{"/login", RouteLogin, map[string]string{}},
		{"/clusters", RouteClusters, map[string]string{}},
		{"/settings/errors", RouteSettingsErrors, map[string]string{}},
		{"/foo/dashboard", RouteDashboard, map[string]string{"cluster": "foo"}},
		{"/foo/jobs?page=2", RouteJobs, map[string]string{"cluster": "foo"}},
		{"/foo/job/42", RouteJob, map[string]string{"cluster": "foo", "id": "42"}},
		{"/foo/node/cn1", RouteNode, map[string]string{"cluster": "foo", "name": "cn1"}},
		{"/foo/qos", RouteQos, map[string]string{"cluster": "foo"}},
	}

	for _, test := range tests {
		route, err := r.Resolve(test.path)
		require.NoError(t, err, test.path)
		assert.Equal(t, test.name, route.Name, test.path)
		assert.Equal(t, test.params, route.Params, test.path)
	}

	route, err := r.Resolve("/foo/jobs?page=2&states=running")
	require.NoError(t, err)
	assert.Equal(t, "/foo/jobs?page=2&states=running", route.FullPath)
	assert.Equal(t, url.Values{"page": {"2"}, "states": {"running"}}, route.Query)

	_, err = r.Resolve("/foo/job/bar")
	require.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve("/foo/bar/baz")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGuard(t *testing.T) {
	r, session, runtime := newTestRouter(t)

	route, err := r.Navigate("/foo/jobs?page=2")
	require.NoError(t, err)
	assert.Equal(t, RouteLogin, route.Name)
	assert.Equal(t, "/foo/jobs?page=2", session.ReturnURL())
	assert.Equal(t, RouteLogin, runtime.Navigation())
	assert.Empty(t, runtime.CurrentCluster())

	// Login resumes navigation to stored path
	session.Login("tok1")
	assert.Equal(t, RouteJobs, r.Current().Name)
	assert.Equal(t, "foo", runtime.CurrentCluster())
	assert.Equal(t, "/foo/jobs?page=2", runtime.Route())
	assert.Empty(t, session.ReturnURL())

	session.Logout()
	assert.Equal(t, RouteLogin, r.Current().Name)
}

func TestHomeRedirect(t *testing.T) {
	r, session, _ := newTestRouter(t)

	// Without stored path, login lands on clusters
	session.Login("tok1")
	assert.Equal(t, RouteClusters, r.Current().Name)

	route, err := r.Navigate("/")
	require.NoError(t, err)
	assert.Equal(t, RouteClusters, route.Name)
}

func TestPublicRoutes(t *testing.T) {
	r, session, _ := newTestRouter(t)

	route, err := r.Navigate("/anonymous")
	require.NoError(t, err)
	assert.Equal(t, RouteAnonymous, route.Name)
	assert.Empty(t, session.ReturnURL())

	// Unknown paths leave current route untouched
	r.Push("/foo/bar/baz")
	assert.Equal(t, RouteAnonymous, r.Current().Name)
}
