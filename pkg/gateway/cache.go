package gateway

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/slurm-web/console/internal/common"
)

// responseCache keeps bodies of authenticated GET responses. A nil
// responseCache is valid and caches nothing.
type responseCache struct {
	items *ttlcache.Cache[string, []byte]
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		return nil
	}

	items := ttlcache.New[string, []byte](
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go items.Start()

	return &responseCache{items: items}
}

// Entries are scoped by token so that sessions never share responses.
func (c *responseCache) get(token, resource string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	item := c.items.Get(common.GenerateKey(token, resource))
	if item == nil {
		return nil, false
	}

	return item.Value(), true
}

func (c *responseCache) set(token, resource string, body []byte) {
	if c == nil {
		return
	}

	c.items.Set(common.GenerateKey(token, resource), body, ttlcache.DefaultTTL)
}

func (c *responseCache) flush() {
	if c == nil {
		return
	}

	c.items.DeleteAll()
}

func (c *responseCache) stop() {
	if c == nil {
		return
	}

	c.items.Stop()
}
