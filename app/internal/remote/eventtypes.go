package remote

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"osdbridge/app/internal/cache"
	"osdbridge/app/internal/models"
)

const eventTypesKey = "eventTypes"

// EventTypeService caches the remote event types. While the API is
// unreachable it keeps serving the last list it saw.
type EventTypeService struct {
	api    API
	cache  *cache.Cache[models.EventTypes]
	logger *zap.Logger

	mu       sync.Mutex
	lastGood models.EventTypes
}

// NewEventTypeService creates the service with the given freshness TTL
func NewEventTypeService(api API, ttl time.Duration, logger *zap.Logger) *EventTypeService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventTypeService{
		api:    api,
		cache:  cache.New[models.EventTypes](ttl),
		logger: logger,
	}
}

// Get returns the event types. When the API is unavailable it returns the
// last good list (or an empty map) together with the fetch error.
func (s *EventTypeService) Get(ctx context.Context) (models.EventTypes, error) {
	if v, ok := s.cache.Get(eventTypesKey); ok {
		return v, nil
	}

	types, err := s.api.GetEventTypes(ctx)
	if err != nil {
		s.logger.Warn("event types unavailable", zap.Error(err))
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.lastGood != nil {
			return s.lastGood, err
		}
		return models.EventTypes{}, err
	}

	s.cache.Set(eventTypesKey, types)
	s.mu.Lock()
	s.lastGood = types
	s.mu.Unlock()
	return types, nil
}

// Stop releases the cache sweeper
func (s *EventTypeService) Stop() {
	s.cache.Stop()
}
