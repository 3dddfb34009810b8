package exchange

import (
	"context"
	"time"
)

// Quote котировка инструмента
type Quote struct {
	Code       string    `json:"code"`
	Name       string    `json:"name"`
	Open       float64   `json:"open"`
	High       float64   `json:"high"`
	Low        float64   `json:"low"`
	Current    float64   `json:"current"`
	PrevClose  float64   `json:"prevClose"`
	Volume     int64     `json:"volume"`
	TradeValue float64   `json:"tradeValue"`
	MarketCap  float64   `json:"marketCap"`
	BuyVolume  int64     `json:"buyVolume"`
	SellVolume int64     `json:"sellVolume"`
	ReceivedAt time.Time `json:"-"`
}

// TradeStrength buyVolume / sellVolume × 100
func (q *Quote) TradeStrength() float64 {
	if q.SellVolume == 0 {
		if q.BuyVolume > 0 {
			return MaxTradeStrength
		}
		return 0
	}
	return float64(q.BuyVolume) / float64(q.SellVolume) * 100
}

// MaxTradeStrength значение при нулевом объеме продаж
const MaxTradeStrength = 999.99

// Level уровень стакана
type Level struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// Orderbook стакан заявок
type Orderbook struct {
	Code        string  `json:"code"`
	Bids        []Level `json:"bids"`
	Asks        []Level `json:"asks"`
	TotalBidQty int64   `json:"totalBidQty"`
	TotalAskQty int64   `json:"totalAskQty"`
}

// BestBid лучшая цена покупки
func (o *Orderbook) BestBid() float64 {
	if len(o.Bids) == 0 {
		return 0
	}
	return o.Bids[0].Price
}

// BestAsk лучшая цена продажи
func (o *Orderbook) BestAsk() float64 {
	if len(o.Asks) == 0 {
		return 0
	}
	return o.Asks[0].Price
}

// OrderRequest запрос на ордер. Price == 0 означает рыночный ордер.
type OrderRequest struct {
	Code      string  `json:"code"`
	Side      string  `json:"side"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
	OrderType string  `json:"orderType"`
}

// Fill одно исполнение внутри ордера
type Fill struct {
	Price    float64 `json:"price"`
	Quantity int64   `json:"quantity"`
}

// OrderResponse ответ брокера на размещение ордера
type OrderResponse struct {
	Success bool   `json:"success"`
	OrderID string `json:"orderId"`
	Message string `json:"message"`
	Fills   []Fill `json:"fills"`
}

// OrderDetail состояние ордера
type OrderDetail struct {
	OrderID        string  `json:"orderId"`
	Code           string  `json:"code"`
	Status         string  `json:"status"`
	FilledQuantity int64   `json:"filledQuantity"`
	AvgPrice       float64 `json:"avgPrice"`
}

// Broker контракт брокера, который потребляет движок
type Broker interface {
	Configured() bool
	GetQuote(ctx context.Context, code string) (*Quote, error)
	GetOrderbook(ctx context.Context, code string) (*Orderbook, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error)
	GetOrderDetail(ctx context.Context, orderID string) (*OrderDetail, error)
	GetAvailableCash(ctx context.Context) (float64, error)
	GetBuyableQuantity(ctx context.Context, code string, price float64) (int64, error)
}

// Warmer брокер, которому нужен прогрев сессии перед открытием рынка
type Warmer interface {
	Warmup(ctx context.Context) error
}

// Warmup прогревает брокера, если он это поддерживает
func Warmup(ctx context.Context, b Broker) error {
	if w, ok := b.(Warmer); ok {
		return w.Warmup(ctx)
	}
	return nil
}
