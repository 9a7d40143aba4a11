package stores

import (
	"testing"

	"github.com/prometheus/common/promslog"
	"github.com/slurm-web/console/pkg/base"
	"github.com/slurm-web/console/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordNavigator struct {
	paths []string
}

func (n *recordNavigator) Push(path string) {
	n.paths = append(n.paths, path)
}

func TestSessionLoginLogout(t *testing.T) {
	s := storage.NewMemory()
	nav := &recordNavigator{}

	session := NewSessionStore(s, promslog.NewNopLogger())
	session.SetNavigator(nav)
	assert.False(t, session.Authenticated())

	session.Login("tok1")
	assert.True(t, session.Authenticated())
	assert.Equal(t, "tok1", session.Token())
	assert.Equal(t, []string{base.HomePath}, nav.paths)

	v, ok, err := s.Get(base.TokenStorageKey)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "tok1", v)

	session.Logout()
	assert.Empty(t, session.Token())
	assert.Equal(t, []string{base.HomePath, base.LoginPath}, nav.paths)

	_, ok, err = s.Get(base.TokenStorageKey)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSessionReturnURL(t *testing.T) {
	nav := &recordNavigator{}

	session := NewSessionStore(storage.NewMemory(), promslog.NewNopLogger())
	session.SetNavigator(nav)
	session.SetReturnURL("/foo/jobs?page=2")

	session.Login("tok1")
	assert.Equal(t, []string{"/foo/jobs?page=2"}, nav.paths)
	assert.Empty(t, session.ReturnURL())
}

func TestSessionRestore(t *testing.T) {
	s := storage.NewMemory()

	NewSessionStore(s, promslog.NewNopLogger()).Login("tok1")

	// Navigator is optional
	session := NewSessionStore(s, promslog.NewNopLogger())
	assert.Equal(t, "tok1", session.Token())
}
