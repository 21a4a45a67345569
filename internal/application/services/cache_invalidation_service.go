package services

import (
	"context"
	"fmt"
	"time"

	"github.com/zatekoja/coursefeedback/backend/internal/domain/entities"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/providers"
	"github.com/zatekoja/coursefeedback/backend/internal/domain/repositories"
	"github.com/zatekoja/coursefeedback/backend/internal/infrastructure/observability"
)

const invalidationTimeout = 5 * time.Second

const (
	// PublicFeedbackCachePrefix keys cached public feedback responses by course key
	PublicFeedbackCachePrefix = "http:cache:feedback:public:"

	// PublicFeedbackGenerationPrefix keys the per-course generation counters
	// that version the cached responses
	PublicFeedbackGenerationPrefix = "http:cache:feedback:public-gen:"
)

// PublicFeedbackCacheKey returns the cache key of a course's public feedback view
func PublicFeedbackCacheKey(courseKey string) string {
	return PublicFeedbackCachePrefix + courseKey
}

// PublicFeedbackGenerationKey returns the generation counter guarding a
// course's cached public view
func PublicFeedbackGenerationKey(courseKey string) string {
	return PublicFeedbackGenerationPrefix + courseKey
}

// CacheInvalidationService retires cached public views when feedback changes
// by bumping the generation of every affected course.
type CacheInvalidationService struct {
	cache    providers.CacheProvider
	eventBus providers.EventBus
	links    repositories.SharingLinkRepository
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewCacheInvalidationService creates a new cache invalidation service
func NewCacheInvalidationService(cache providers.CacheProvider, eventBus providers.EventBus, links repositories.SharingLinkRepository) *CacheInvalidationService {
	ctx, cancel := context.WithCancel(context.Background())
	return &CacheInvalidationService{
		cache:    cache,
		eventBus: eventBus,
		links:    links,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
}

// Start begins listening for feedback events
func (s *CacheInvalidationService) Start() error {
	eventChan, err := s.eventBus.Subscribe(s.ctx, providers.EventChannelFeedbackUpdates)
	if err != nil {
		return fmt.Errorf("failed to subscribe to feedback updates: %w", err)
	}

	go s.processEvents(eventChan)
	observability.LoggerFromContext(s.ctx).Info().Msg("cache invalidation service started")
	return nil
}

// Stop stops the service and waits for the event loop to exit
func (s *CacheInvalidationService) Stop() {
	s.cancel()
	<-s.done
}

func (s *CacheInvalidationService) processEvents(eventChan <-chan *entities.FeedbackEvent) {
	defer close(s.done)

	for {
		select {
		case <-s.ctx.Done():
			return
		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if event != nil {
				s.HandleEvent(event)
			}
		}
	}
}

// HandleEvent invalidates the views affected by an event received from the bus
func (s *CacheInvalidationService) HandleEvent(event *entities.FeedbackEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), invalidationTimeout)
	defer cancel()

	s.Invalidate(ctx, event)
}

// Invalidate retires every public view the changed record can appear in:
// its own course and each course it is shared with.
func (s *CacheInvalidationService) Invalidate(ctx context.Context, event *entities.FeedbackEvent) {
	logger := observability.LoggerFromContext(ctx)

	courseKeys := map[string]struct{}{}
	if event.CourseKey != "" {
		courseKeys[event.CourseKey] = struct{}{}
	}

	if event.FeedbackID != "" && s.links != nil {
		linked, err := s.links.ListLinksFor(ctx, event.FeedbackID)
		if err != nil {
			logger.Warn().Err(err).Str("feedback_id", event.FeedbackID).Msg("could not resolve linked courses for invalidation")
		}
		for _, key := range linked {
			courseKeys[key] = struct{}{}
		}
	}

	for key := range courseKeys {
		if _, err := s.cache.Incr(ctx, PublicFeedbackGenerationKey(key)); err != nil {
			logger.Warn().Err(err).Str("course_key", key).Msg("failed to invalidate public feedback cache")
		}
	}
}

// InvalidatingEventBus invalidates cached public views in the publisher's
// own call path before forwarding each update to the wrapped bus.
type InvalidatingEventBus struct {
	providers.EventBus
	invalidator *CacheInvalidationService
}

// NewInvalidatingEventBus wraps bus so every published feedback update first
// bumps the affected generations
func NewInvalidatingEventBus(bus providers.EventBus, invalidator *CacheInvalidationService) *InvalidatingEventBus {
	return &InvalidatingEventBus{EventBus: bus, invalidator: invalidator}
}

// Publish invalidates, then forwards the event
func (b *InvalidatingEventBus) Publish(ctx context.Context, channel string, event *entities.FeedbackEvent) error {
	if channel == providers.EventChannelFeedbackUpdates && event != nil {
		// the mutation is committed; a cancelled request must not skip invalidation
		invalidateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidationTimeout)
		b.invalidator.Invalidate(invalidateCtx, event)
		cancel()
	}
	return b.EventBus.Publish(ctx, channel, event)
}
