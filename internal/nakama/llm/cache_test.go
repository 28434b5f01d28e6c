package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type countingClient struct {
	calls atomic.Int32
	delay time.Duration
	out   string
	err   error
}

func (c *countingClient) Complete(context.Context, Request) (string, error) {
	c.calls.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.out, c.err
}

func req(text string) Request {
	return Request{Messages: []Message{{Role: RoleUser, Content: text}}, Temperature: 0.4, MaxTokens: 50}
}

func TestCacheKey(t *testing.T) {
	a, _ := CacheKey("response", req("hello"))
	b, _ := CacheKey("response", req("hello"))
	c, _ := CacheKey("decision", req("hello"))
	d, _ := CacheKey("response", req("hello!"))
	if a != b {
		t.Error("identical requests should share a key")
	}
	if a == c || a == d {
		t.Error("namespace or content change should change the key")
	}
}

func TestCachedClient_Ristretto(t *testing.T) {
	rc, err := NewRistrettoCache(RistrettoConfig{})
	if err != nil {
		t.Fatalf("NewRistrettoCache: %v", err)
	}
	defer rc.Close()

	inner := &countingClient{out: "cached answer"}
	c := NewCachedClient(inner, rc, "response", nil)
	ctx := context.Background()

	if out, err := c.Complete(ctx, req("q")); err != nil || out != "cached answer" {
		t.Fatalf("first Complete = %q, %v", out, err)
	}
	rc.Wait()
	if out, err := c.Complete(ctx, req("q")); err != nil || out != "cached answer" {
		t.Fatalf("second Complete = %q, %v", out, err)
	}
	if inner.calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", inner.calls.Load())
	}

	c.Complete(ctx, req("other"))
	if inner.calls.Load() != 2 {
		t.Errorf("different content should miss, calls = %d", inner.calls.Load())
	}
}

func TestCachedClient_ErrorsNotCached(t *testing.T) {
	rc, err := NewRistrettoCache(RistrettoConfig{})
	if err != nil {
		t.Fatalf("NewRistrettoCache: %v", err)
	}
	defer rc.Close()

	inner := &countingClient{err: errors.New("upstream down")}
	c := NewCachedClient(inner, rc, "decision", nil)
	for i := 0; i < 2; i++ {
		if _, err := c.Complete(context.Background(), req("q")); err == nil {
			t.Fatal("expected error")
		}
		rc.Wait()
	}
	if inner.calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", inner.calls.Load())
	}
}

func TestCachedClient_CollapsesConcurrentMisses(t *testing.T) {
	inner := &countingClient{out: "x", delay: 50 * time.Millisecond}
	c := NewCachedClient(inner, nil, "response", nil)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if out, err := c.Complete(context.Background(), req("same")); err != nil || out != "x" {
				t.Errorf("Complete = %q, %v", out, err)
			}
		}()
	}
	wg.Wait()
	if n := inner.calls.Load(); n >= 10 {
		t.Errorf("upstream calls = %d, want collapsed", n)
	}
}

func TestRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	rc := NewRedisCache(client, RedisCacheConfig{TTL: time.Hour})
	ctx := context.Background()

	if _, ok, err := rc.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("Get on empty = %v, %v", ok, err)
	}
	if err := rc.Set(ctx, "k", "v1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := rc.Set(ctx, "k", "v2"); err != nil {
		t.Fatalf("Set again: %v", err)
	}
	v, ok, err := rc.Get(ctx, "k")
	if err != nil || !ok || v != "v1" {
		t.Errorf("Get = %q, %v, %v; want first write kept", v, ok, err)
	}
	if !mr.Exists("nakama:llm:k") {
		t.Error("key not stored under prefix")
	}

	mr.FastForward(2 * time.Hour)
	if _, ok, _ := rc.Get(ctx, "k"); ok {
		t.Error("entry should expire after TTL")
	}
}

func TestCachedClient_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	inner := &countingClient{out: "from upstream"}
	c := NewCachedClient(inner, NewRedisCache(client, RedisCacheConfig{}), "memory", nil)
	for i := 0; i < 3; i++ {
		if out, err := c.Complete(context.Background(), req("summarise")); err != nil || out != "from upstream" {
			t.Fatalf("Complete = %q, %v", out, err)
		}
	}
	if inner.calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1", inner.calls.Load())
	}
}

func TestCachedClient_RedisDownFallsThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	mr.Close()

	inner := &countingClient{out: "live"}
	c := NewCachedClient(inner, NewRedisCache(client, RedisCacheConfig{}), "response", nil)
	out, err := c.Complete(context.Background(), req("q"))
	if err != nil || out != "live" {
		t.Errorf("Complete = %q, %v; want upstream answer", out, err)
	}
}
