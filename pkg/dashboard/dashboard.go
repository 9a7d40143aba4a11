// Package dashboard wires the gateway client, the stores and the router
// into one application context and implements the view actions.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/slurm-web/console/pkg/base"
	"github.com/slurm-web/console/pkg/gateway"
	"github.com/slurm-web/console/pkg/router"
	"github.com/slurm-web/console/pkg/storage"
	"github.com/slurm-web/console/pkg/stores"
	"k8s.io/utils/clock"
)

// Custom errors.
var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrUnknownCluster         = errors.New("unknown cluster")
	ErrMissingStorage         = errors.New("missing storage")
)

// Config contains the application configuration.
type Config struct {
	Gateway    gateway.Config
	Storage    storage.Storage
	Clock      clock.WithDelayedExecution
	Logger     *slog.Logger
	Registerer prometheus.Registerer
}

// App is the application context shared by all views.
type App struct {
	logger  *slog.Logger
	Client  *gateway.Client
	Session *stores.SessionStore
	Runtime *stores.RuntimeStore
	Router  *router.Router
}

// New returns a new App.
func New(c Config) (*App, error) {
	if c.Storage == nil {
		return nil, ErrMissingStorage
	}

	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	session := stores.NewSessionStore(c.Storage, c.Logger.With("store", "session"))
	runtime := stores.NewRuntimeStore(c.Storage, c.Clock, c.Logger.With("store", "runtime"))

	gwConfig := c.Gateway
	gwConfig.Tokens = session
	gwConfig.Logger = c.Logger.With("subsystem", "gateway")
	gwConfig.Registerer = c.Registerer

	client, err := gateway.New(gwConfig)
	if err != nil {
		return nil, err
	}

	return &App{
		logger:  c.Logger,
		Client:  client,
		Session: session,
		Runtime: runtime,
		Router:  router.New(session, runtime, c.Logger.With("subsystem", "router")),
	}, nil
}

// Close releases application resources.
func (a *App) Close() {
	a.Client.Close()
}

// HandleError funnels errors of view actions. Authentication failures end
// the session, aborted requests are ignored and other errors are reported
// to the user. err is returned unchanged.
func (a *App) HandleError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gateway.ErrAborted):
		a.logger.Debug("Ignoring aborted request")
	case gateway.IsAuthentication(err):
		a.logger.Debug("Session invalidated by gateway", "err", err)
		a.Logout()
	default:
		a.Runtime.ReportError(err.Error())
	}

	return err
}

// commit applies a response to the stores unless requests of scope were
// aborted in the meantime.
func (a *App) commit(scope context.Context, apply func()) error {
	if scope.Err() != nil {
		a.logger.Debug("Discarding response of aborted request")

		return gateway.ErrAborted
	}

	apply()

	return nil
}

// Login authenticates user on the gateway and opens the session.
func (a *App) Login(ctx context.Context, user, password string) (*gateway.LoginResponse, error) {
	a.Router.Push(base.LoginPath)

	scope := a.Client.Scope()

	resp, err := a.Client.Login(ctx, user, password)
	if err != nil {
		if gateway.IsAuthentication(err) {
			a.Runtime.ReportError("Authentication failed: " + err.Error())

			return nil, err
		}

		return nil, a.HandleError(err)
	}

	if err := a.commit(scope, func() { a.Session.Login(resp.Token) }); err != nil {
		return nil, err
	}

	a.logger.Debug("User authenticated", "user", user, "fullname", resp.Fullname)

	return resp, nil
}

// Anonymous opens an anonymous session when gateway authentication is
// disabled.
func (a *App) Anonymous(ctx context.Context) (*gateway.AnonymousResponse, error) {
	scope := a.Client.Scope()

	resp, err := a.Client.Anonymous(ctx)
	if err != nil {
		if gateway.IsAuthentication(err) {
			a.Runtime.ReportError("Anonymous access refused: " + err.Error())

			return nil, err
		}

		return nil, a.HandleError(err)
	}

	if err := a.commit(scope, func() { a.Session.Login(resp.Token) }); err != nil {
		return nil, err
	}

	return resp, nil
}

// Logout ends the session and drops the data cached for it.
func (a *App) Logout() {
	a.Client.AbortAll()
	a.Client.FlushCache()
	a.Runtime.ClearClusters()
	a.Session.Logout()
}

// LeaveView aborts requests issued by the current view.
func (a *App) LeaveView() {
	a.Client.AbortAll()
}

// enter navigates to path and fails when the guard redirects to login.
func (a *App) enter(path string) error {
	route, err := a.Router.Navigate(path)
	if err != nil {
		return err
	}

	if route.Name == router.RouteLogin {
		return ErrAuthenticationRequired
	}

	return nil
}

// enterCluster enters a cluster view, refreshing the cluster cache when
// cluster is not known yet.
func (a *App) enterCluster(ctx context.Context, cluster, path string) error {
	if err := a.enter(path); err != nil {
		return err
	}

	if a.Runtime.IsClusterAvailable(cluster) {
		return nil
	}

	if _, err := a.Clusters(ctx); err != nil {
		return err
	}

	if !a.Runtime.IsClusterAvailable(cluster) {
		err := fmt.Errorf("%w: %s", ErrUnknownCluster, cluster)
		a.Runtime.ReportError(err.Error())

		return err
	}

	// Clusters view moved the route away
	return a.enter(path)
}

func clusterPath(cluster string, elems ...string) string {
	return (&url.URL{Path: "/"}).JoinPath(append([]string{cluster}, elems...)...).Path
}

// Clusters refreshes the available clusters.
func (a *App) Clusters(ctx context.Context) ([]gateway.ClusterDescription, error) {
	if err := a.enter("/clusters"); err != nil {
		return nil, err
	}

	scope := a.Client.Scope()

	clusters, err := a.Client.Clusters(ctx)
	if err != nil {
		return nil, a.HandleError(err)
	}

	err = a.commit(scope, func() {
		for _, cluster := range clusters {
			a.Runtime.AddCluster(cluster)
		}
	})
	if err != nil {
		return nil, err
	}

	return clusters, nil
}

// Users returns users known by the gateway.
func (a *App) Users(ctx context.Context) ([]gateway.UserDescription, error) {
	if err := a.enter("/settings"); err != nil {
		return nil, err
	}

	users, err := a.Client.Users(ctx)

	return users, a.HandleError(err)
}

// Stats returns the dashboard statistics of cluster.
func (a *App) Stats(ctx context.Context, cluster string) (*gateway.ClusterStats, error) {
	if err := a.enterCluster(ctx, cluster, clusterPath(cluster, "dashboard")); err != nil {
		return nil, err
	}

	stats, err := a.Client.Stats(ctx, cluster)

	return stats, a.HandleError(err)
}

// JobsView returns the page of cluster jobs selected by the runtime jobs
// view settings.
func (a *App) JobsView(ctx context.Context, cluster string) (*stores.JobsPage, error) {
	settings := a.Runtime.Jobs()

	path := clusterPath(cluster, "jobs")
	if params := settings.QueryParameters(); len(params) > 0 {
		path += "?" + params.Encode()
	}

	if err := a.enterCluster(ctx, cluster, path); err != nil {
		return nil, err
	}

	jobs, err := a.Client.Jobs(ctx, cluster)
	if err != nil {
		return nil, a.HandleError(err)
	}

	page := settings.Apply(jobs)

	return &page, nil
}

// Job returns details of job id.
func (a *App) Job(ctx context.Context, cluster string, id int64) (*gateway.ClusterJobDetail, error) {
	if err := a.enterCluster(ctx, cluster, clusterPath(cluster, "job", strconv.FormatInt(id, 10))); err != nil {
		return nil, err
	}

	job, err := a.Client.Job(ctx, cluster, id)

	return job, a.HandleError(err)
}

// Nodes returns nodes of cluster.
func (a *App) Nodes(ctx context.Context, cluster string) ([]gateway.ClusterNode, error) {
	if err := a.enterCluster(ctx, cluster, clusterPath(cluster, "resources")); err != nil {
		return nil, err
	}

	nodes, err := a.Client.Nodes(ctx, cluster)

	return nodes, a.HandleError(err)
}

// Node returns node name of cluster.
func (a *App) Node(ctx context.Context, cluster, name string) (*gateway.ClusterNode, error) {
	if err := a.enterCluster(ctx, cluster, clusterPath(cluster, "node", name)); err != nil {
		return nil, err
	}

	node, err := a.Client.Node(ctx, cluster, name)

	return node, a.HandleError(err)
}

// QOS returns QOS of cluster.
func (a *App) QOS(ctx context.Context, cluster string) ([]gateway.ClusterQos, error) {
	if err := a.enterCluster(ctx, cluster, clusterPath(cluster, "qos")); err != nil {
		return nil, err
	}

	qos, err := a.Client.QOS(ctx, cluster)

	return qos, a.HandleError(err)
}

// Partitions returns partitions of cluster.
func (a *App) Partitions(ctx context.Context, cluster string) ([]gateway.ClusterPartition, error) {
	if err := a.enterCluster(ctx, cluster, clusterPath(cluster, "resources")); err != nil {
		return nil, err
	}

	partitions, err := a.Client.Partitions(ctx, cluster)

	return partitions, a.HandleError(err)
}

// Reservations returns reservations of cluster.
func (a *App) Reservations(ctx context.Context, cluster string) ([]gateway.ClusterReservation, error) {
	if err := a.enterCluster(ctx, cluster, clusterPath(cluster, "dashboard")); err != nil {
		return nil, err
	}

	reservations, err := a.Client.Reservations(ctx, cluster)

	return reservations, a.HandleError(err)
}

// Accounts returns accounts of cluster.
func (a *App) Accounts(ctx context.Context, cluster string) ([]gateway.ClusterAccount, error) {
	if err := a.enterCluster(ctx, cluster, clusterPath(cluster, "dashboard")); err != nil {
		return nil, err
	}

	accounts, err := a.Client.Accounts(ctx, cluster)

	return accounts, a.HandleError(err)
}
