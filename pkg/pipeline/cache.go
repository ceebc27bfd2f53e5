package pipeline

import (
	"sync"

	"github.com/heatmon/heatmon/pkg/storage"
)

// Cache keeps the most recent point per logical name.
type Cache struct {
	data map[string]storage.Point
	sync.RWMutex
}

func NewCache() *Cache {
	return &Cache{
		data: make(map[string]storage.Point),
	}
}

func (c *Cache) Get(logicalName string) (storage.Point, bool) {
	c.RLock()
	defer c.RUnlock()
	p, ok := c.data[logicalName]
	return p, ok
}

func (c *Cache) Set(p storage.Point) {
	c.Lock()
	c.data[p.LogicalName] = p
	c.Unlock()
}
