package exchange

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillm/gap-pullback-bot/internal/domain"
)

// PaperBroker исполняет ордера виртуально (режим DRY_RUN).
// Котировки и стакан берутся у реального брокера.
type PaperBroker struct {
	market Broker

	mu       sync.Mutex
	cash     float64
	holdings map[string]int64
	orders   map[string]OrderDetail
}

// NewPaperBroker создает paper-брокер со стартовым капиталом
func NewPaperBroker(market Broker, initialCash float64) *PaperBroker {
	return &PaperBroker{
		market:   market,
		cash:     initialCash,
		holdings: make(map[string]int64),
		orders:   make(map[string]OrderDetail),
	}
}

func (p *PaperBroker) Configured() bool {
	return p.market.Configured()
}

func (p *PaperBroker) Warmup(ctx context.Context) error {
	return Warmup(ctx, p.market)
}

func (p *PaperBroker) GetQuote(ctx context.Context, code string) (*Quote, error) {
	return p.market.GetQuote(ctx, code)
}

func (p *PaperBroker) GetOrderbook(ctx context.Context, code string) (*Orderbook, error) {
	return p.market.GetOrderbook(ctx, code)
}

// PlaceOrder исполняет ордер целиком по текущей цене
func (p *PaperBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	if req.Quantity <= 0 {
		return nil, fmt.Errorf("%w: quantity %d", domain.ErrInvalidInput, req.Quantity)
	}

	price := req.Price
	if price <= 0 {
		q, err := p.market.GetQuote(ctx, req.Code)
		if err != nil {
			return nil, err
		}
		price = q.Current
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	amount := price * float64(req.Quantity)
	switch req.Side {
	case domain.SideBuy:
		if amount > p.cash {
			return &OrderResponse{Success: false, Message: "insufficient paper cash"}, nil
		}
		p.cash -= amount
		p.holdings[req.Code] += req.Quantity
	case domain.SideSell:
		if p.holdings[req.Code] < req.Quantity {
			return &OrderResponse{Success: false, Message: "insufficient paper holdings"}, nil
		}
		p.cash += amount
		p.holdings[req.Code] -= req.Quantity
	default:
		return nil, fmt.Errorf("%w: side %q", domain.ErrInvalidInput, req.Side)
	}

	orderID := "SIM-" + uuid.NewString()
	p.orders[orderID] = OrderDetail{
		OrderID:        orderID,
		Code:           req.Code,
		Status:         domain.StatusFilled,
		FilledQuantity: req.Quantity,
		AvgPrice:       price,
	}

	return &OrderResponse{
		Success: true,
		OrderID: orderID,
		Fills:   []Fill{{Price: price, Quantity: req.Quantity}},
	}, nil
}

func (p *PaperBroker) GetOrderDetail(ctx context.Context, orderID string) (*OrderDetail, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	d, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", orderID, domain.ErrNotFound)
	}
	return &d, nil
}

func (p *PaperBroker) GetAvailableCash(ctx context.Context) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cash, nil
}

func (p *PaperBroker) GetBuyableQuantity(ctx context.Context, code string, price float64) (int64, error) {
	if price <= 0 {
		return 0, fmt.Errorf("%w: price %.2f", domain.ErrInvalidInput, price)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return int64(p.cash / price), nil
}

// Holdings количество бумаг на виртуальном счете
func (p *PaperBroker) Holdings(code string) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holdings[code]
}
