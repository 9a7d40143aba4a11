package stores

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"

	"github.com/slurm-web/console/pkg/base"
	"github.com/slurm-web/console/pkg/gateway"
	"github.com/slurm-web/console/pkg/storage"
	"k8s.io/utils/clock"
)

// RuntimeStore owns cross-view ephemeral state: active cluster, cluster
// cache, job view settings, notifications and the error log.
type RuntimeStore struct {
	logger  *slog.Logger
	storage storage.Storage
	clock   clock.WithDelayedExecution

	mu             sync.Mutex
	navigation     string
	route          string
	sidebarOpen    bool
	currentCluster string
	clusters       []gateway.ClusterDescription
	jobs           *JobsViewSettings

	notifications    []Notification
	timers           map[int64]clock.Timer
	lastNotification int64
	subscribers      []func(NotificationEvent)

	errors []RuntimeError
}

// NewRuntimeStore returns a new RuntimeStore restoring the cluster cache
// persisted in s. A nil clk uses the wall clock.
func NewRuntimeStore(s storage.Storage, clk clock.WithDelayedExecution, logger *slog.Logger) *RuntimeStore {
	if clk == nil {
		clk = clock.RealClock{}
	}

	store := &RuntimeStore{
		logger:     logger,
		storage:    s,
		clock:      clk,
		navigation: "home",
		jobs:       NewJobsViewSettings(),
		timers:     make(map[int64]clock.Timer),
	}

	store.restoreClusters()

	return store
}

// restoreClusters loads the persisted cluster cache. Missing or corrupted
// values leave the cache empty.
func (r *RuntimeStore) restoreClusters() {
	value, ok, err := r.storage.Get(base.ClustersStorageKey)
	if err != nil {
		r.logger.Warn("Failed to restore available clusters", "err", err)

		return
	}

	if !ok {
		return
	}

	var clusters []gateway.ClusterDescription
	if err := json.Unmarshal([]byte(value), &clusters); err != nil {
		r.logger.Warn("Ignoring invalid persisted available clusters", "err", err)

		return
	}

	r.clusters = clusters
}

// persistClusters must be called with lock held.
func (r *RuntimeStore) persistClusters() {
	value, err := json.Marshal(r.clusters)
	if err != nil {
		r.logger.Warn("Failed to serialize available clusters", "err", err)

		return
	}

	if err := r.storage.Set(base.ClustersStorageKey, string(value)); err != nil {
		r.logger.Warn("Failed to persist available clusters", "err", err)
	}
}

// AddCluster adds cluster to the available clusters. An existing cluster
// with the same name is replaced in place.
func (r *RuntimeStore) AddCluster(cluster gateway.ClusterDescription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.clusters, func(c gateway.ClusterDescription) bool {
		return c.Name == cluster.Name
	})
	if idx >= 0 {
		r.clusters[idx] = cluster
	} else {
		r.clusters = append(r.clusters, cluster)
	}

	r.persistClusters()
}

// ClearClusters empties the available clusters.
func (r *RuntimeStore) ClearClusters() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.clusters = nil
	r.currentCluster = ""

	if err := r.storage.Remove(base.ClustersStorageKey); err != nil {
		r.logger.Warn("Failed to remove persisted available clusters", "err", err)
	}
}

// IsClusterAvailable returns true if cluster name is available.
func (r *RuntimeStore) IsClusterAvailable(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.clusterIndex(name) >= 0
}

func (r *RuntimeStore) clusterIndex(name string) int {
	return slices.IndexFunc(r.clusters, func(c gateway.ClusterDescription) bool {
		return c.Name == name
	})
}

// Cluster returns the cached description of cluster name.
func (r *RuntimeStore) Cluster(name string) (gateway.ClusterDescription, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if idx := r.clusterIndex(name); idx >= 0 {
		return r.clusters[idx], true
	}

	return gateway.ClusterDescription{}, false
}

// Clusters returns a copy of the available clusters.
func (r *RuntimeStore) Clusters() []gateway.ClusterDescription {
	r.mu.Lock()
	defer r.mu.Unlock()

	return slices.Clone(r.clusters)
}

// HasClusterPermission returns true when action is granted on cluster.
func (r *RuntimeStore) HasClusterPermission(cluster, action string) bool {
	c, ok := r.Cluster(cluster)

	return ok && slices.Contains(c.Permissions.Actions, action)
}

// CurrentCluster returns the active cluster.
func (r *RuntimeStore) CurrentCluster() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.currentCluster
}

// SetCurrentCluster sets the active cluster.
func (r *RuntimeStore) SetCurrentCluster(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.currentCluster = name
}

// Jobs returns the jobs view settings. Settings are view-local and must
// not be shared between goroutines.
func (r *RuntimeStore) Jobs() *JobsViewSettings {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.jobs
}

// SetRoute records the active route name and path.
func (r *RuntimeStore) SetRoute(name, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.navigation = name
	r.route = path
}

// Navigation returns the active route name.
func (r *RuntimeStore) Navigation() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.navigation
}

// Route returns the active route path.
func (r *RuntimeStore) Route() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.route
}

// ToggleSidebar flips the sidebar state and returns the new one.
func (r *RuntimeStore) ToggleSidebar() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sidebarOpen = !r.sidebarOpen

	return r.sidebarOpen
}

// SidebarOpen returns the sidebar state.
func (r *RuntimeStore) SidebarOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.sidebarOpen
}
