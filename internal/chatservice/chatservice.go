// Package chatservice implements ChatService and MessageService
// (spec.md §4.6): the business rules around chat/group lifecycle,
// sending and mutating messages, reactions, read state, and search.
// It owns no storage of its own — everything here validates, enforces
// invariants, and then delegates to Store, cachebus, delivery, and events.
package chatservice

import (
	"context"
	"html"
	"regexp"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/shopmindai/shopmindai/services/messaging-core/internal/apperr"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/cachebus"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/config"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/domain"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/events"
	"github.com/shopmindai/shopmindai/services/messaging-core/internal/store"
)

// Delivery is the subset of the DeliveryEngine's API this service
// needs; kept as a narrow interface so chatservice never depends on
// the worker-loop machinery, only on "enqueue this fan-out".
type Delivery interface {
	Enqueue(ctx context.Context, chatID domain.ChatID, messageID domain.MessageID, recipientIDs []domain.UserID) error
}

// Caller identifies who is making a request — the re-architected
// alternative to ambient authorization middleware state (spec.md §9):
// every service method takes one explicitly instead of reading it off
// a request context key.
type Caller struct {
	UserID    domain.UserID
	SessionID domain.SessionID
}

type Service struct {
	store    store.Store
	bus      *cachebus.Bus
	delivery Delivery
	events   *events.Log

	rateCfg config.RateLimitConfig

	mu       sync.Mutex
	limiters map[domain.UserID]*rate.Limiter
}

func New(st store.Store, bus *cachebus.Bus, delivery Delivery, evts *events.Log, rateCfg config.RateLimitConfig) *Service {
	return &Service{
		store:    st,
		bus:      bus,
		delivery: delivery,
		events:   evts,
		rateCfg:  rateCfg,
		limiters: make(map[domain.UserID]*rate.Limiter),
	}
}

func (s *Service) limiterFor(userID domain.UserID) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[userID]
	if !ok {
		l = rate.NewLimiter(rate.Limit(s.rateCfg.SendPerSecond), s.rateCfg.SendPerSecond*2)
		s.limiters[userID] = l
	}
	return l
}

// allowedTagPattern is the sanitizer's allow-list (spec.md §4.6): everything
// else gets HTML-escaped rather than stripped, so a rejected tag is
// visible as literal text instead of silently vanishing.
var allowedTagPattern = regexp.MustCompile(`(?i)&lt;/?(b|i|em|strong|u)&gt;`)

// sanitizeBody escapes the full body, then un-escapes just the
// allow-listed tags. There is no HTML sanitizer dependency in the
// retrieved example pack, so this narrow allow-list replacement is a
// deliberate stdlib choice — anything broader (attribute handling,
// nested tag balancing) would need a real library like bluemonday and
// is out of scope for the five inline-formatting tags spec.md names.
func sanitizeBody(body string) string {
	escaped := html.EscapeString(body)
	return allowedTagPattern.ReplaceAllStringFunc(escaped, func(tag string) string {
		return html.UnescapeString(tag)
	})
}

func normalizeBody(body string) string {
	return strings.TrimSpace(body)
}
