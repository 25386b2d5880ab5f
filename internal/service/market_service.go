package service

import (
	"sort"
	"sync"

	"github.com/dalbhanjan-om/BetfairOdds-Backend/internal/domain"
)

// MarketService keeps the latest price snapshot per market for the
// control surface and the live push feed. Trading decisions never read
// from here; workers hold their own state.
type MarketService struct {
	mu      sync.RWMutex
	latest  map[string]*domain.PriceUpdate
	updates chan *domain.PriceUpdate
}

// NewMarketService creates an empty snapshot store.
func NewMarketService() *MarketService {
	return &MarketService{
		latest:  make(map[string]*domain.PriceUpdate),
		updates: make(chan *domain.PriceUpdate, 256),
	}
}

// Apply stores a worker's update and forwards it to the push feed.
// Never blocks: if the feed is saturated the update is still stored but
// not forwarded.
func (s *MarketService) Apply(u *domain.PriceUpdate) {
	s.mu.Lock()
	s.latest[u.MarketID] = u
	s.mu.Unlock()

	select {
	case s.updates <- u:
	default:
	}
}

// Latest returns the most recent snapshot for a market, nil if none.
func (s *MarketService) Latest(marketID string) *domain.PriceUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest[marketID]
}

// All returns every market's latest snapshot sorted by market id.
func (s *MarketService) All() []*domain.PriceUpdate {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.PriceUpdate, 0, len(s.latest))
	for _, u := range s.latest {
		result = append(result, u)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MarketID < result[j].MarketID
	})
	return result
}

// Forget drops a market's snapshot, typically after its worker stops.
func (s *MarketService) Forget(marketID string) {
	s.mu.Lock()
	delete(s.latest, marketID)
	s.mu.Unlock()
}

// Updates returns the push feed channel consumed by the broadcast hub.
func (s *MarketService) Updates() <-chan *domain.PriceUpdate {
	return s.updates
}
