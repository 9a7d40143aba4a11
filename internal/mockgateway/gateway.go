// Package mockgateway implements an in-process Slurm-web gateway serving
// fixture data. It is used by tests and the mock_gateway command.
package mockgateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/slurm-web/console/pkg/gateway"
)

// Config contains mock gateway configuration.
type Config struct {
	Logger *slog.Logger
	// Anonymous disables authentication. Only anonymous tokens are
	// delivered then.
	Anonymous bool
	// LoginRateLimit is the number of login attempts allowed per client IP
	// and minute. Zero disables limiting.
	LoginRateLimit int
	Users          []User
	Clusters       []Cluster
}

// Gateway is a mock Slurm-web gateway.
type Gateway struct {
	logger    *slog.Logger
	router    *mux.Router
	anonymous bool
	users     []User
	clusters  []Cluster

	mu      sync.Mutex
	tokens  map[string]string
	hits    map[string]int
	failure *failure
	held    chan struct{}
}

type failure struct {
	status      int
	description string
}

type errorResponse struct {
	Code        int    `json:"code"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// New returns a new mock Gateway. Default users and clusters are used when
// none are configured.
func New(c Config) *Gateway {
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}

	if c.Users == nil {
		c.Users = DefaultUsers()
	}

	if c.Clusters == nil {
		c.Clusters = DefaultClusters()
	}

	g := &Gateway{
		logger:    c.Logger,
		router:    mux.NewRouter(),
		anonymous: c.Anonymous,
		users:     c.Users,
		clusters:  c.Clusters,
		tokens:    make(map[string]string),
		hits:      make(map[string]int),
	}

	var login http.Handler = http.HandlerFunc(g.login)
	if c.LoginRateLimit > 0 {
		login = httprate.Limit(
			c.LoginRateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "Too many login attempts")
			}),
		)(login)
	}

	g.router.Handle("/login", login).Methods(http.MethodPost)
	g.router.HandleFunc("/anonymous", g.anonymousLogin).Methods(http.MethodGet)
	g.router.HandleFunc("/clusters", g.authenticated(g.listClusters)).Methods(http.MethodGet)
	g.router.HandleFunc("/users", g.authenticated(g.listUsers)).Methods(http.MethodGet)

	agents := g.router.PathPrefix("/agents/{cluster}").Subrouter()
	agents.HandleFunc("/stats", g.agent(ActionViewStats, g.stats)).Methods(http.MethodGet)
	agents.HandleFunc("/jobs", g.agent(ActionViewJobs, g.jobs)).Methods(http.MethodGet)
	agents.HandleFunc("/job/{id:[0-9]+}", g.agent(ActionViewJobs, g.job)).Methods(http.MethodGet)
	agents.HandleFunc("/nodes", g.agent(ActionViewNodes, g.nodes)).Methods(http.MethodGet)
	agents.HandleFunc("/node/{name}", g.agent(ActionViewNodes, g.node)).Methods(http.MethodGet)
	agents.HandleFunc("/partitions", g.agent(ActionViewPartitions, g.partitions)).Methods(http.MethodGet)
	agents.HandleFunc("/qos", g.agent(ActionViewQos, g.qos)).Methods(http.MethodGet)
	agents.HandleFunc("/reservations", g.agent(ActionViewReservations, g.reservations)).Methods(http.MethodGet)
	agents.HandleFunc("/accounts", g.agent(ActionViewAccounts, g.accounts)).Methods(http.MethodGet)

	g.router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "The requested URL was not found on the server.")
	})

	return g
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.mu.Lock()
	g.hits[r.URL.Path]++
	g.mu.Unlock()

	g.router.ServeHTTP(w, r)
}

// Hits returns the number of requests received on path.
func (g *Gateway) Hits(path string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	return g.hits[path]
}

// RevokeTokens invalidates all delivered tokens.
func (g *Gateway) RevokeTokens() {
	g.mu.Lock()
	defer g.mu.Unlock()

	clear(g.tokens)
}

// Fail makes agent requests respond with status and description until
// reset with a zero status.
func (g *Gateway) Fail(status int, description string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if status == 0 {
		g.failure = nil

		return
	}

	g.failure = &failure{status: status, description: description}
}

// Hold blocks agent requests until the returned release function is
// called or the requests are cancelled by clients.
func (g *Gateway) Hold() func() {
	held := make(chan struct{})

	g.mu.Lock()
	g.held = held
	g.mu.Unlock()

	var once sync.Once

	return func() {
		once.Do(func() {
			g.mu.Lock()
			if g.held == held {
				g.held = nil
			}
			g.mu.Unlock()

			close(held)
		})
	}
}

func (g *Gateway) login(w http.ResponseWriter, r *http.Request) {
	if g.anonymous {
		g.logger.Warn("Authentication attempt but authentication is disabled")
		writeError(w, http.StatusInternalServerError, "Unable to authenticate")

		return
	}

	var idents struct {
		User     string `json:"user"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&idents); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid login request")

		return
	}

	idx := slices.IndexFunc(g.users, func(u User) bool {
		return u.Login == idents.User && u.Password == idents.Password
	})
	if idx < 0 {
		g.logger.Warn("Authentication error", "user", idents.User)
		writeError(w, http.StatusUnauthorized, "Invalid credentials")

		return
	}

	user := g.users[idx]
	token := g.issueToken(user.Login)

	g.logger.Info("User authenticated successfully", "user", user.Login)

	writeJSON(w, gateway.LoginResponse{
		Result:   "Authentication successful",
		Token:    token,
		Fullname: user.Fullname,
		Groups:   user.Groups,
	})
}

func (g *Gateway) anonymousLogin(w http.ResponseWriter, _ *http.Request) {
	if !g.anonymous {
		g.logger.Warn("Anonymous access attempt but authentication is enabled")
		writeError(w, http.StatusUnauthorized, "Unauthorized anonymous access")

		return
	}

	writeJSON(w, gateway.AnonymousResponse{
		Result: "Successful anonymous access",
		Token:  g.issueToken(anonymousLogin),
	})
}

const anonymousLogin = "anonymous"

func (g *Gateway) issueToken(login string) string {
	token := uuid.NewString()

	g.mu.Lock()
	g.tokens[token] = login
	g.mu.Unlock()

	return token
}

// authenticated checks bearer token and passes the user login to next.
func (g *Gateway) authenticated(next func(http.ResponseWriter, *http.Request, string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			writeError(w, http.StatusUnauthorized, "Not allowed to access endpoint without bearer token")

			return
		}

		g.mu.Lock()
		login, ok := g.tokens[token]
		g.mu.Unlock()

		if !ok {
			writeError(w, http.StatusUnauthorized, "Unable to decode token")

			return
		}

		next(w, r, login)
	}
}

// actions returns actions granted to login on cluster.
func (g *Gateway) actions(login, cluster string) ([]string, []string) {
	var roles []string

	if login == anonymousLogin {
		roles = []string{"user"}
	} else if idx := slices.IndexFunc(g.users, func(u User) bool { return u.Login == login }); idx >= 0 {
		roles = g.users[idx].Roles[cluster]
	}

	actions := []string{}

	for _, role := range roles {
		for _, action := range roleActions[role] {
			if !slices.Contains(actions, action) {
				actions = append(actions, action)
			}
		}
	}

	if roles == nil {
		roles = []string{}
	}

	return roles, actions
}

// agent checks cluster exists, action is granted and applies injected
// failures and holds before calling next.
func (g *Gateway) agent(action string, next func(http.ResponseWriter, *http.Request, *Cluster)) http.HandlerFunc {
	return g.authenticated(func(w http.ResponseWriter, r *http.Request, login string) {
		name := mux.Vars(r)["cluster"]

		idx := slices.IndexFunc(g.clusters, func(c Cluster) bool { return c.Name == name })
		if idx < 0 {
			writeError(w, http.StatusNotFound, "Unable to retrieve data from cluster "+name+", cluster not found")

			return
		}

		if _, actions := g.actions(login, name); !slices.Contains(actions, action) {
			writeError(w, http.StatusForbidden, "Access to "+action+" is not permitted")

			return
		}

		g.mu.Lock()
		held, fail := g.held, g.failure
		g.mu.Unlock()

		if held != nil {
			select {
			case <-held:
			case <-r.Context().Done():
				return
			}
		}

		if fail != nil {
			writeError(w, fail.status, fail.description)

			return
		}

		next(w, r, &g.clusters[idx])
	})
}

func (g *Gateway) listClusters(w http.ResponseWriter, _ *http.Request, login string) {
	clusters := make([]gateway.ClusterDescription, 0, len(g.clusters))

	for i := range g.clusters {
		roles, actions := g.actions(login, g.clusters[i].Name)
		cluster := gateway.ClusterDescription{
			Name:        g.clusters[i].Name,
			Permissions: gateway.ClusterPermissions{Roles: roles, Actions: actions},
		}

		// Stats are included when the user is allowed to view them
		if slices.Contains(actions, ActionViewStats) {
			stats := g.clusters[i].Stats()
			cluster.Stats = &stats
		}

		clusters = append(clusters, cluster)
	}

	writeJSON(w, clusters)
}

func (g *Gateway) listUsers(w http.ResponseWriter, _ *http.Request, _ string) {
	users := make([]gateway.UserDescription, 0, len(g.users))
	for _, u := range g.users {
		users = append(users, gateway.UserDescription{Login: u.Login, Fullname: u.Fullname})
	}

	writeJSON(w, users)
}

func (g *Gateway) stats(w http.ResponseWriter, _ *http.Request, c *Cluster) {
	writeJSON(w, c.Stats())
}

func (g *Gateway) jobs(w http.ResponseWriter, _ *http.Request, c *Cluster) {
	jobs := make([]gateway.ClusterJob, 0, len(c.Jobs))
	for _, job := range c.Jobs {
		jobs = append(jobs, job.ClusterJob)
	}

	writeJSON(w, jobs)
}

func (g *Gateway) job(w http.ResponseWriter, r *http.Request, c *Cluster) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid job ID")

		return
	}

	idx := slices.IndexFunc(c.Jobs, func(j gateway.ClusterJobDetail) bool { return j.JobID == id })
	if idx < 0 {
		writeError(w, http.StatusNotFound, "Job "+strconv.FormatInt(id, 10)+" not found")

		return
	}

	writeJSON(w, c.Jobs[idx])
}

func (g *Gateway) nodes(w http.ResponseWriter, _ *http.Request, c *Cluster) {
	writeJSON(w, c.Nodes)
}

func (g *Gateway) node(w http.ResponseWriter, r *http.Request, c *Cluster) {
	name := mux.Vars(r)["name"]

	idx := slices.IndexFunc(c.Nodes, func(n gateway.ClusterNode) bool { return n.Name == name })
	if idx < 0 {
		writeError(w, http.StatusNotFound, "Node "+name+" not found")

		return
	}

	writeJSON(w, c.Nodes[idx])
}

func (g *Gateway) partitions(w http.ResponseWriter, _ *http.Request, c *Cluster) {
	writeJSON(w, c.Partitions)
}

func (g *Gateway) qos(w http.ResponseWriter, _ *http.Request, c *Cluster) {
	writeJSON(w, c.Qos)
}

func (g *Gateway) reservations(w http.ResponseWriter, _ *http.Request, c *Cluster) {
	writeJSON(w, c.Reservations)
}

func (g *Gateway) accounts(w http.ResponseWriter, _ *http.Request, c *Cluster) {
	writeJSON(w, c.Accounts)
}

func setHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
}

func writeJSON(w http.ResponseWriter, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())

		return
	}

	setHeaders(w)
	w.WriteHeader(http.StatusOK)
	w.Write(data) //nolint:errcheck
}

func writeError(w http.ResponseWriter, status int, description string) {
	setHeaders(w)
	w.WriteHeader(status)

	json.NewEncoder(w).Encode(errorResponse{ //nolint:errchkjson
		Code:        status,
		Name:        http.StatusText(status),
		Description: description,
	})
}
