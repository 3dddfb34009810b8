package execution

import (
	"context"
	"sync"
	"time"

	"github.com/kirillm/gap-pullback-bot/internal/exchange"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// QuoteSource источник котировок
type QuoteSource interface {
	GetQuote(ctx context.Context, code string) (*exchange.Quote, error)
}

// PriceFailover отдает последнюю цену: брокер, затем кеш не старше ttl
type PriceFailover struct {
	primarySource QuoteSource
	ttl           time.Duration
	logger        *utils.Logger
	now           func() time.Time

	mu    sync.Mutex
	cache map[string]cachedPrice
}

type cachedPrice struct {
	price     float64
	timestamp time.Time
}

// NewPriceFailover создает новый price failover
func NewPriceFailover(primarySource QuoteSource, ttl time.Duration, logger *utils.Logger) *PriceFailover {
	return &PriceFailover{
		primarySource: primarySource,
		ttl:           ttl,
		logger:        logger,
		now:           time.Now,
		cache:         make(map[string]cachedPrice),
	}
}

// Remember кеширует наблюдаемую цену
func (pf *PriceFailover) Remember(code string, price float64) {
	if price <= 0 {
		return
	}
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.cache[code] = cachedPrice{price: price, timestamp: pf.now()}
}

// GetPrice получает цену с failover на кеш
func (pf *PriceFailover) GetPrice(ctx context.Context, code string) (float64, error) {
	q, err := pf.primarySource.GetQuote(ctx, code)
	if err == nil && q.Current > 0 {
		pf.Remember(code, q.Current)
		return q.Current, nil
	}

	pf.mu.Lock()
	cached, ok := pf.cache[code]
	pf.mu.Unlock()

	if ok {
		age := pf.now().Sub(cached.timestamp)
		if age < pf.ttl {
			pf.logger.Warn("⚠️ Using cached price for %s (age: %v)", code, age)
			return cached.price, nil
		}
	}

	return 0, ErrPriceUnavailable
}
