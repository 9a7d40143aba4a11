// Package router resolves dashboard paths into named routes and guards
// access to routes requiring an authenticated session.
package router

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/gorilla/mux"
	"github.com/slurm-web/console/pkg/base"
	"github.com/slurm-web/console/pkg/stores"
)

// Route names.
const (
	RouteHome           = "home"
	RouteLogin          = "login"
	RouteAnonymous      = "anonymous"
	RouteSignout        = "signout"
	RouteClusters       = "clusters"
	RouteSettings       = "settings"
	RouteSettingsErrors = "settings-errors"
	RouteDashboard      = "dashboard"
	RouteJobs           = "jobs"
	RouteJob            = "job"
	RouteResources      = "resources"
	RouteNode           = "node"
	RouteQos            = "qos"
)

// Routes reachable without a session.
var publicRoutes = []string{RouteLogin, RouteAnonymous}

// ErrNotFound is returned when no route matches a path.
var ErrNotFound = errors.New("route not found")

// Route is a resolved dashboard location.
type Route struct {
	Name     string
	Path     string
	FullPath string
	Params   map[string]string
	Query    url.Values
}

// Cluster returns the cluster parameter of the route, if any.
func (r Route) Cluster() string {
	return r.Params["cluster"]
}

// Router maps paths to routes and applies the authentication guard.
type Router struct {
	logger  *slog.Logger
	mux     *mux.Router
	session *stores.SessionStore
	runtime *stores.RuntimeStore

	mu      sync.Mutex
	current Route
}

// New returns a new Router and registers it as navigator of session.
func New(session *stores.SessionStore, runtime *stores.RuntimeStore, logger *slog.Logger) *Router {
	m := mux.NewRouter()

	m.Path("/").Name(RouteHome)
	m.Path(base.LoginPath).Name(RouteLogin)
	m.Path("/anonymous").Name(RouteAnonymous)
	m.Path("/signout").Name(RouteSignout)
	m.Path(base.ClustersPath).Name(RouteClusters)
	m.Path("/settings").Name(RouteSettings)
	m.Path("/settings/errors").Name(RouteSettingsErrors)
	m.Path("/{cluster}/dashboard").Name(RouteDashboard)
	m.Path("/{cluster}/jobs").Name(RouteJobs)
	m.Path("/{cluster}/job/{id:[0-9]+}").Name(RouteJob)
	m.Path("/{cluster}/resources").Name(RouteResources)
	m.Path("/{cluster}/node/{name}").Name(RouteNode)
	m.Path("/{cluster}/qos").Name(RouteQos)

	router := &Router{
		logger:  logger,
		mux:     m,
		session: session,
		runtime: runtime,
	}

	session.SetNavigator(router)

	return router
}

// Resolve returns the route matching path without navigating.
func (r *Router) Resolve(path string) (Route, error) {
	u, err := url.Parse(path)
	if err != nil {
		return Route{}, fmt.Errorf("invalid path %s: %w", path, err)
	}

	var match mux.RouteMatch
	if !r.mux.Match(&http.Request{Method: http.MethodGet, URL: u}, &match) || match.Route == nil {
		return Route{}, fmt.Errorf("%w: %s", ErrNotFound, u.Path)
	}

	return Route{
		Name:     match.Route.GetName(),
		Path:     u.Path,
		FullPath: u.RequestURI(),
		Params:   match.Vars,
		Query:    u.Query(),
	}, nil
}

// Navigate resolves path, applies redirects and the authentication guard
// and returns the route finally reached.
func (r *Router) Navigate(path string) (Route, error) {
	route, err := r.Resolve(path)
	if err != nil {
		return Route{}, err
	}

	if route.Name == RouteHome {
		return r.Navigate(base.ClustersPath)
	}

	// Redirect to login page when accessing restricted routes without
	// session. Path is kept to resume navigation after login.
	if !slices.Contains(publicRoutes, route.Name) && !r.session.Authenticated() {
		r.logger.Debug("Authentication required", "route", route.Name, "path", route.FullPath)
		r.session.SetReturnURL(route.FullPath)

		return r.Navigate(base.LoginPath)
	}

	if cluster := route.Cluster(); cluster != "" {
		r.runtime.SetCurrentCluster(cluster)
	}

	r.runtime.SetRoute(route.Name, route.FullPath)

	r.mu.Lock()
	r.current = route
	r.mu.Unlock()

	return route, nil
}

// Push navigates to path. Unknown paths are logged and ignored.
func (r *Router) Push(path string) {
	if _, err := r.Navigate(path); err != nil {
		r.logger.Warn("Navigation failed", "path", path, "err", err)
	}
}

// Current returns the route last reached.
func (r *Router) Current() Route {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.current
}
