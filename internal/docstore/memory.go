package docstore

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"

	"github.com/dbsahdlks/INgress/internal/document"
	"github.com/dbsahdlks/INgress/internal/metrics"
)

// 文档注释：进程内 LRU 文档存储
// 背景：每个会话只有最近几个周期的文档会被拉取，容量与 TTL 均可调；内嵌凭证的文档只存放于此。
// 约束：进程内存，不落盘；过期项在读取时淘汰。
type LRU struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
}

type kv struct {
	k   string
	v   document.Document
	exp time.Time
}

func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 256
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &LRU{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element)}
}

func (c *LRU) Get(_ context.Context, session string, gen uint64) (document.Document, error) {
	k := Key(session, gen)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		it := e.Value.(kv)
		if time.Now().Before(it.exp) {
			c.lst.MoveToFront(e)
			metrics.DocStoreHitsTotal.WithLabelValues("memory").Inc()
			return it.v, nil
		}
		c.lst.Remove(e)
		delete(c.dict, k)
	}
	metrics.DocStoreMissesTotal.WithLabelValues("memory").Inc()
	return document.Document{}, ErrNotFound
}

func (c *LRU) Put(_ context.Context, doc document.Document) error {
	k := Key(doc.Session, doc.Generation)
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.dict[k]; ok {
		e.Value = kv{k: k, v: doc, exp: time.Now().Add(c.ttl)}
		c.lst.MoveToFront(e)
		return nil
	}
	c.dict[k] = c.lst.PushFront(kv{k: k, v: doc, exp: time.Now().Add(c.ttl)})
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		it := back.Value.(kv)
		delete(c.dict, it.k)
		c.lst.Remove(back)
	}
	return nil
}

func (c *LRU) Forget(_ context.Context, session string) error {
	prefix := keyPrefix + session + ":"
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.dict {
		if strings.HasPrefix(k, prefix) {
			c.lst.Remove(e)
			delete(c.dict, k)
		}
	}
	return nil
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}
