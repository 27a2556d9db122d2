package catalog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/storefront-checkout/internal/remote"
)

const defaultCacheKey = "catalog:csv"

// Source fetches the raw catalog export.
type Source interface {
	Fetch(ctx context.Context) (Index, error)
}

// HTTPSource downloads a CSV export from the product service.
type HTTPSource struct {
	Client *remote.Client
	Path   string
}

// Fetch implements Source.
func (s HTTPSource) Fetch(ctx context.Context) (Index, error) {
	if s.Client == nil {
		return nil, errors.New("catalog: source not configured")
	}
	body, err := s.Client.GetRaw(ctx, s.Path)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch export: %w", err)
	}
	return ParseCSV(bytes.NewReader(body))
}

// ServiceConfig wires the catalog service.
type ServiceConfig struct {
	Source   Source
	Cache    Cache
	TTL      time.Duration
	CacheKey string
}

// Service serves the product catalog export through a TTL cache.
type Service struct {
	source Source
	cache  Cache
	ttl    time.Duration
	key    string
}

// NewService validates the configuration and returns a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Source == nil {
		return nil, errors.New("catalog: source is required")
	}
	cache := cfg.Cache
	if cache == nil {
		cache = NewMemoryCache()
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	key := strings.TrimSpace(cfg.CacheKey)
	if key == "" {
		key = defaultCacheKey
	}
	return &Service{source: cfg.Source, cache: cache, ttl: ttl, key: key}, nil
}

// Products returns the slug-indexed catalog export.
func (s *Service) Products(ctx context.Context) (Index, error) {
	if s == nil {
		return nil, errors.New("catalog: service not configured")
	}
	return s.cache.GetOrFetch(ctx, s.key, s.ttl, s.source.Fetch)
}
