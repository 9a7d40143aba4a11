package stores

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/common/promslog"
	"github.com/slurm-web/console/pkg/base"
	"github.com/slurm-web/console/pkg/gateway"
	"github.com/slurm-web/console/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

func newTestRuntime(t *testing.T) (*RuntimeStore, *testingclock.FakeClock, *storage.Memory) {
	t.Helper()

	s := storage.NewMemory()
	clk := testingclock.NewFakeClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))

	return NewRuntimeStore(s, clk, promslog.NewNopLogger()), clk, s
}

func TestRuntimeClusters(t *testing.T) {
	r, _, s := newTestRuntime(t)

	foo := gateway.ClusterDescription{
		Name:        "foo",
		Permissions: gateway.ClusterPermissions{Roles: []string{"user"}, Actions: []string{"view-jobs"}},
	}
	bar := gateway.ClusterDescription{Name: "bar"}

	r.AddCluster(foo)
	r.AddCluster(bar)

	assert.True(t, r.IsClusterAvailable("foo"))
	assert.False(t, r.IsClusterAvailable("baz"))
	assert.True(t, r.HasClusterPermission("foo", "view-jobs"))
	assert.False(t, r.HasClusterPermission("foo", "view-nodes"))
	assert.False(t, r.HasClusterPermission("baz", "view-jobs"))

	// Re-adding keeps position and replaces description
	foo.Permissions.Actions = []string{"view-nodes"}
	r.AddCluster(foo)

	clusters := r.Clusters()
	require.Len(t, clusters, 2)
	assert.Equal(t, "foo", clusters[0].Name)
	assert.Equal(t, []string{"view-nodes"}, clusters[0].Permissions.Actions)

	// Cache is restored by a new store
	restored := NewRuntimeStore(s, nil, promslog.NewNopLogger())
	assert.Equal(t, clusters, restored.Clusters())

	r.SetCurrentCluster("foo")
	r.ClearClusters()
	assert.Empty(t, r.Clusters())
	assert.Empty(t, r.CurrentCluster())

	_, ok, err := s.Get(base.ClustersStorageKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRuntimeInvalidPersistedClusters(t *testing.T) {
	s := storage.NewMemory()
	require.NoError(t, s.Set(base.ClustersStorageKey, "{not json"))

	r := NewRuntimeStore(s, nil, promslog.NewNopLogger())
	assert.Empty(t, r.Clusters())
}

func TestRuntimeNavigation(t *testing.T) {
	r, _, _ := newTestRuntime(t)

	assert.Equal(t, "home", r.Navigation())

	r.SetRoute("jobs", "/foo/jobs")
	assert.Equal(t, "jobs", r.Navigation())
	assert.Equal(t, "/foo/jobs", r.Route())

	assert.True(t, r.ToggleSidebar())
	assert.True(t, r.SidebarOpen())
	assert.False(t, r.ToggleSidebar())
}

func TestNotificationExpiry(t *testing.T) {
	r, clk, _ := newTestRuntime(t)

	var events []NotificationEvent

	r.Subscribe(func(e NotificationEvent) { events = append(events, e) })

	short := r.Notify(NotificationError, "x", time.Second)
	long := r.Notify(NotificationInfo, "y", 10*time.Second)
	assert.NotEqual(t, short, long)
	require.Len(t, r.Notifications(), 2)

	clk.Step(time.Second)

	notifications := r.Notifications()
	require.Len(t, notifications, 1)
	assert.Equal(t, long, notifications[0].ID)
	assert.Equal(t, "y", notifications[0].Message)

	require.Len(t, events, 3)
	assert.True(t, events[2].Removed)
	assert.Equal(t, short, events[2].Notification.ID)

	// Removing an absent notification is a no-op
	r.RemoveNotification(short)
	r.RemoveNotification(12345)
	assert.Len(t, r.Notifications(), 1)
	assert.Len(t, events, 3)

	// Manual removal cancels expiry
	r.RemoveNotification(long)
	assert.Empty(t, r.Notifications())
	assert.False(t, clk.HasWaiters())

	clk.Step(10 * time.Second)
	assert.Len(t, events, 4)
}

func TestNotificationIDsDistinct(t *testing.T) {
	r, _, _ := newTestRuntime(t)

	seen := make(map[int64]bool)

	for range 10 {
		id := r.Notify(NotificationInfo, "x", time.Minute)
		assert.False(t, seen[id])
		seen[id] = true
	}
}

func TestErrorLogBounded(t *testing.T) {
	r, clk, _ := newTestRuntime(t)
	r.SetRoute("jobs", "/foo/jobs")

	for i := range 105 {
		r.ReportError(fmt.Sprintf("error %d", i))
	}

	errs := r.Errors()
	require.Len(t, errs, 100)
	assert.Equal(t, "error 5", errs[0].Message)
	assert.Equal(t, "error 104", errs[99].Message)
	assert.Equal(t, "/foo/jobs", errs[0].Route)
	assert.Equal(t, clk.Now(), errs[0].Timestamp)

	notifications := r.Notifications()
	require.Len(t, notifications, 105)
	assert.Equal(t, NotificationError, notifications[0].Type)
	assert.Equal(t, 5*time.Second, notifications[0].Timeout)

	clk.Step(5 * time.Second)
	assert.Empty(t, r.Notifications())
	assert.Len(t, r.Errors(), 100)
}
