package redis

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"presence_chat_server/internal/service/chat"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryCache 同步执行任务的内存 AsyncCacheService
type memoryCache struct {
	mu      sync.Mutex
	strings map[string]string
	ttls    map[string]time.Duration
	sets    map[string]map[string]struct{}
	failSet bool

	// deferTasks 为真时任务只入队，由测试决定何时、按什么顺序执行
	deferTasks bool
	queued     []func()
	onAdd      func()
}

func newMemoryCache() *memoryCache {
	return &memoryCache{
		strings: make(map[string]string),
		ttls:    make(map[string]time.Duration),
		sets:    make(map[string]map[string]struct{}),
	}
}

func (c *memoryCache) Set(_ context.Context, key, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSet {
		return errors.New("connection refused")
	}
	c.strings[key] = value
	c.ttls[key] = ttl
	return nil
}

func (c *memoryCache) Get(_ context.Context, key string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.strings[key], nil
}

func (c *memoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.strings, key)
	delete(c.sets, key)
	return nil
}

func (c *memoryCache) AddToSet(_ context.Context, key string, members ...interface{}) error {
	c.mu.Lock()
	set, ok := c.sets[key]
	if !ok {
		set = make(map[string]struct{})
		c.sets[key] = set
	}
	for _, m := range members {
		set[m.(string)] = struct{}{}
	}
	hook := c.onAdd
	c.onAdd = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (c *memoryCache) GetSetMembers(_ context.Context, key string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := []string{}
	for m := range c.sets[key] {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, nil
}

func (c *memoryCache) RemoveFromSet(_ context.Context, key string, members ...interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range members {
		delete(c.sets[key], m.(string))
	}
	return nil
}

func (c *memoryCache) SubmitTask(action func()) {
	c.mu.Lock()
	if c.deferTasks {
		c.queued = append(c.queued, action)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	action()
}

// runQueued 并发执行已入队的任务并等待结束
func (c *memoryCache) runQueued() {
	c.mu.Lock()
	tasks := c.queued
	c.queued = nil
	c.mu.Unlock()

	var wg sync.WaitGroup
	for i := len(tasks) - 1; i >= 0; i-- {
		wg.Add(1)
		go func(task func()) {
			defer wg.Done()
			task()
		}(tasks[i])
	}
	wg.Wait()
}

func TestPresenceMirrorTracksOnlineSet(t *testing.T) {
	cache := newMemoryCache()
	mirror := NewPresenceMirror(cache)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mirror.PresenceChanged("user1", chat.StatusOnline, at)
	mirror.PresenceChanged("user2", chat.StatusAway, at)

	online, err := mirror.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user1", "user2"}, online)

	rec, err := mirror.Status(ctx, "user2")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, chat.StatusAway, rec.Status)
	assert.True(t, at.Equal(rec.LastSeen))
	assert.Zero(t, cache.ttls[statusKeyPrefix+"user2"])

	mirror.PresenceChanged("user1", chat.StatusOffline, at.Add(time.Hour))
	online, err = mirror.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user2"}, online)
	rec, err = mirror.Status(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusOffline, rec.Status)
	assert.Equal(t, offlineStatusTTL, cache.ttls[statusKeyPrefix+"user1"])
}

func TestPresenceMirrorStatusMissing(t *testing.T) {
	mirror := NewPresenceMirror(newMemoryCache())
	rec, err := mirror.Status(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.Nil(t, rec)
}

func TestPresenceMirrorResetAndFailures(t *testing.T) {
	cache := newMemoryCache()
	mirror := NewPresenceMirror(cache)
	mirror.PresenceChanged("user1", chat.StatusOnline, time.Now())

	require.NoError(t, mirror.Reset(context.Background()))
	online, err := mirror.Online(context.Background())
	require.NoError(t, err)
	assert.Empty(t, online)

	// 写失败不会向调用方传播
	cache.failSet = true
	assert.NotPanics(t, func() {
		mirror.PresenceChanged("user1", chat.StatusOnline, time.Now())
	})
}

func TestPresenceMirrorFastTransitionsKeepLatest(t *testing.T) {
	cache := newMemoryCache()
	cache.deferTasks = true
	mirror := NewPresenceMirror(cache)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	mirror.PresenceChanged("user1", chat.StatusOnline, at)
	mirror.PresenceChanged("user1", chat.StatusOffline, at.Add(time.Millisecond))
	mirror.PresenceChanged("user2", chat.StatusOnline, at)
	require.Len(t, cache.queued, 2, "one pending task per principal")

	cache.runQueued()

	online, err := mirror.Online(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"user2"}, online)
	rec, err := mirror.Status(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusOffline, rec.Status)
}

func TestPresenceMirrorChangeDuringWrite(t *testing.T) {
	cache := newMemoryCache()
	mirror := NewPresenceMirror(cache)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	// online 正在写入时用户就下线了，下线必须落在 online 之后
	cache.onAdd = func() {
		mirror.PresenceChanged("user1", chat.StatusOffline, at.Add(time.Second))
	}
	mirror.PresenceChanged("user1", chat.StatusOnline, at)

	online, err := mirror.Online(ctx)
	require.NoError(t, err)
	assert.Empty(t, online)
	rec, err := mirror.Status(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, chat.StatusOffline, rec.Status)
	assert.True(t, at.Add(time.Second).Equal(rec.LastSeen))
}
