package catalog_test

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/catalog"
)

type countingSource struct {
	calls int
	err   error
}

func (s *countingSource) Fetch(context.Context) (catalog.Index, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return catalog.Index{"rose-toner": catalog.Row{"MRP": "899"}}, nil
}

func TestMemoryCacheHonoursTTL(t *testing.T) {
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	cache := catalog.NewMemoryCache()
	cache.Now = func() time.Time { return now }
	src := &countingSource{}

	svc, err := catalog.NewService(catalog.ServiceConfig{Source: src, Cache: cache, TTL: time.Minute})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Products(ctx)
	require.NoError(t, err)
	_, err = svc.Products(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)

	now = now.Add(2 * time.Minute)
	idx, err := svc.Products(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)

	raw, ok := idx.LookupMRP("rose-toner")
	require.True(t, ok)
	require.Equal(t, "899", raw)
}

func TestMemoryCacheDoesNotCacheErrors(t *testing.T) {
	src := &countingSource{err: errors.New("boom")}
	svc, err := catalog.NewService(catalog.ServiceConfig{Source: src})
	require.NoError(t, err)

	_, err = svc.Products(context.Background())
	require.Error(t, err)
	_, err = svc.Products(context.Background())
	require.Error(t, err)
	require.Equal(t, 2, src.calls)
}

func TestRedisCacheSharesIndex(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	src := &countingSource{}
	svc, err := catalog.NewService(catalog.ServiceConfig{
		Source: src,
		Cache:  catalog.NewRedisCache(client, "storefront:"),
		TTL:    time.Minute,
	})
	require.NoError(t, err)

	ctx := context.Background()
	_, err = svc.Products(ctx)
	require.NoError(t, err)
	_, err = svc.Products(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, src.calls)
	require.True(t, mr.Exists("storefront:catalog:csv"))

	mr.FastForward(2 * time.Minute)
	_, err = svc.Products(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, src.calls)
}

func TestNewServiceRequiresSource(t *testing.T) {
	_, err := catalog.NewService(catalog.ServiceConfig{})
	require.Error(t, err)
}
