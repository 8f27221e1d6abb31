package catalog

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-dansa/internal/obs"
	"github.com/noah-isme/backend-dansa/internal/pricing"
)

// Service fronts the upstream catalog with a Redis read-through cache for
// the browse endpoints. Basket pricing goes straight to the Client so adds
// always see live capacity.
type Service struct {
	Client Client
	Cache  *Cache
	Logger zerolog.Logger
}

// ServiceConfig groups Service dependencies.
type ServiceConfig struct {
	Client Client
	Cache  *Cache
	Logger zerolog.Logger
}

// NewService constructs a Service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Client == nil {
		return nil, errors.New("catalog: client is required")
	}
	return &Service{Client: cfg.Client, Cache: cfg.Cache, Logger: cfg.Logger}, nil
}

// ListCourses returns published courses, served from cache when possible.
func (s *Service) ListCourses(ctx context.Context, kind Kind) ([]Course, error) {
	key := "catalog:courses"
	if kind != "" {
		key += ":" + string(kind)
	}
	var cached []Course
	hit, err := s.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_read_failed")
	}
	if hit {
		obs.ObserveCatalogRequest("list_courses", "cache_hit")
		return cached, nil
	}

	courses, err := s.Client.ListCourses(ctx, kind)
	if err != nil {
		obs.ObserveCatalogRequest("list_courses", "error")
		return nil, err
	}
	obs.ObserveCatalogRequest("list_courses", "ok")
	if err := s.Cache.SetJSON(ctx, key, courses); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_write_failed")
	}
	return courses, nil
}

// GetCourse returns one course by id, served from cache when possible.
func (s *Service) GetCourse(ctx context.Context, id string) (Course, error) {
	key := "catalog:course:" + id
	var cached Course
	hit, err := s.Cache.GetJSON(ctx, key, &cached)
	if err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_read_failed")
	}
	if hit {
		obs.ObserveCatalogRequest("get_course", "cache_hit")
		return cached, nil
	}

	course, err := s.Client.GetCourse(ctx, id)
	if err != nil {
		obs.ObserveCatalogRequest("get_course", "error")
		return Course{}, err
	}
	obs.ObserveCatalogRequest("get_course", "ok")
	if err := s.Cache.SetJSON(ctx, key, course); err != nil {
		s.Logger.Warn().Err(err).Str("key", key).Msg("catalog_cache_write_failed")
	}
	return course, nil
}

// ResolveItem passes through to the upstream so basket adds always see live
// capacity and pricing.
func (s *Service) ResolveItem(ctx context.Context, req ResolveRequest) (ResolvedItem, error) {
	return s.Client.ResolveItem(ctx, req)
}

// ValidatePromo passes through to the upstream.
func (s *Service) ValidatePromo(ctx context.Context, code string, itemIDs []string) (PromoQuote, error) {
	return s.Client.ValidatePromo(ctx, code, itemIDs)
}

// CreditBalance passes through to the upstream.
func (s *Service) CreditBalance(ctx context.Context, userID string) (pricing.Money, error) {
	return s.Client.CreditBalance(ctx, userID)
}
