package cache

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestInMemoryCache_SetGet(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()
	payload := json.RawMessage(`{"name":"Berlin"}`)

	if err := c.Set(ctx, "weather:berlin", payload, time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	got, ok, err := c.Get(ctx, "weather:berlin")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !ok {
		t.Fatal("Get() miss, want hit")
	}
	if string(got) != string(payload) {
		t.Errorf("Get() = %s, want %s", got, payload)
	}
}

func TestInMemoryCache_Miss(t *testing.T) {
	c := NewInMemoryCache()

	_, ok, err := c.Get(context.Background(), "weather:nowhere")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() hit for absent key")
	}
}

func TestInMemoryCache_Expiry(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	if err := c.Set(ctx, "weather:berlin", json.RawMessage(`{}`), 10*time.Millisecond); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	_, ok, err := c.Get(ctx, "weather:berlin")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if ok {
		t.Error("Get() hit after TTL expiry")
	}
}

func TestInMemoryCache_Overwrite(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	_ = c.Set(ctx, "k", json.RawMessage(`{"v":1}`), time.Minute)
	_ = c.Set(ctx, "k", json.RawMessage(`{"v":2}`), time.Minute)

	got, ok, _ := c.Get(ctx, "k")
	if !ok || string(got) != `{"v":2}` {
		t.Errorf("Get() = %s, %v, want latest value", got, ok)
	}
}

func TestInMemoryCache_ConcurrentAccess(t *testing.T) {
	c := NewInMemoryCache()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = c.Set(ctx, "shared", json.RawMessage(`{}`), time.Minute)
			_, _, _ = c.Get(ctx, "shared")
		}()
	}
	wg.Wait()
}
