// Package fake содержит управляемый из тестов брокер.
package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
	"github.com/kirillm/gap-pullback-bot/internal/exchange"
)

// Broker брокер с заранее заданными ответами
type Broker struct {
	mu sync.Mutex

	NotConfigured bool

	Quotes      map[string]*exchange.Quote
	QuoteErrors map[string]error
	Orderbooks  map[string]*exchange.Orderbook

	Cash      float64
	CashErr   error
	WarmupErr error
	Buyable   int64
	BuyableOK bool

	// PlaceFunc переопределяет ответ на PlaceOrder
	PlaceFunc func(req exchange.OrderRequest) (*exchange.OrderResponse, error)
	// Details последовательные ответы GetOrderDetail по order id
	Details map[string][]*exchange.OrderDetail

	Orders      []exchange.OrderRequest
	QuoteCalls  int
	DetailCalls int
	WarmupCalls int
	nextID      int
}

// New создает пустой брокер
func New() *Broker {
	return &Broker{
		Quotes:      make(map[string]*exchange.Quote),
		QuoteErrors: make(map[string]error),
		Orderbooks:  make(map[string]*exchange.Orderbook),
		Details:     make(map[string][]*exchange.OrderDetail),
	}
}

// SetPrice задает текущую цену инструмента
func (b *Broker) SetPrice(code string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	q, ok := b.Quotes[code]
	if !ok {
		q = &exchange.Quote{Code: code, Open: price, PrevClose: price}
		b.Quotes[code] = q
	}
	q.Current = price
}

func (b *Broker) Configured() bool {
	return !b.NotConfigured
}

func (b *Broker) GetQuote(ctx context.Context, code string) (*exchange.Quote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.QuoteCalls++
	if err := b.QuoteErrors[code]; err != nil {
		return nil, err
	}
	q, ok := b.Quotes[code]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrQuoteUnavailable, code)
	}
	cp := *q
	return &cp, nil
}

func (b *Broker) GetOrderbook(ctx context.Context, code string) (*exchange.Orderbook, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	ob, ok := b.Orderbooks[code]
	if !ok {
		return nil, fmt.Errorf("orderbook %s: %w", code, domain.ErrNotFound)
	}
	cp := *ob
	return &cp, nil
}

func (b *Broker) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (*exchange.OrderResponse, error) {
	b.mu.Lock()
	b.Orders = append(b.Orders, req)
	place := b.PlaceFunc
	b.nextID++
	id := fmt.Sprintf("ORD-%d", b.nextID)
	var price float64
	if q, ok := b.Quotes[req.Code]; ok {
		price = q.Current
	}
	b.mu.Unlock()

	if place != nil {
		return place(req)
	}
	return &exchange.OrderResponse{
		Success: true,
		OrderID: id,
		Fills:   []exchange.Fill{{Price: price, Quantity: req.Quantity}},
	}, nil
}

func (b *Broker) GetOrderDetail(ctx context.Context, orderID string) (*exchange.OrderDetail, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.DetailCalls++
	seq := b.Details[orderID]
	if len(seq) == 0 {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	d := seq[0]
	if len(seq) > 1 {
		b.Details[orderID] = seq[1:]
	}
	return d, nil
}

func (b *Broker) Warmup(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.WarmupCalls++
	return b.WarmupErr
}

func (b *Broker) GetAvailableCash(ctx context.Context) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.CashErr != nil {
		return 0, b.CashErr
	}
	return b.Cash, nil
}

func (b *Broker) GetBuyableQuantity(ctx context.Context, code string, price float64) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.BuyableOK {
		return b.Buyable, nil
	}
	return int64(b.Cash / price), nil
}

// SellOrders ордера на продажу
func (b *Broker) SellOrders() []exchange.OrderRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []exchange.OrderRequest
	for _, o := range b.Orders {
		if o.Side == domain.SideSell {
			out = append(out, o)
		}
	}
	return out
}
