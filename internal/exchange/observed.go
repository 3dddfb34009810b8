package exchange

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kirillm/gap-pullback-bot/internal/metrics"
	"github.com/kirillm/gap-pullback-bot/pkg/utils"
)

// observedBroker wraps a Broker with tracing spans and request metrics.
type observedBroker struct {
	broker Broker
}

var _ Broker = (*observedBroker)(nil)

// Observe wraps a broker with observability middleware.
func Observe(b Broker) Broker {
	return &observedBroker{broker: b}
}

func (o *observedBroker) start(ctx context.Context, method string, attrs ...attribute.KeyValue) (context.Context, trace.Span, time.Time) {
	ctx, span := utils.StartSpan(ctx, "broker."+method, trace.WithAttributes(attrs...))
	return ctx, span, time.Now()
}

func (o *observedBroker) finish(span trace.Span, method string, started time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	metrics.BrokerRequestsTotal.WithLabelValues(method, status).Inc()
	metrics.BrokerRequestDuration.WithLabelValues(method).Observe(time.Since(started).Seconds())
	span.End()
}

func (o *observedBroker) Configured() bool {
	return o.broker.Configured()
}

func (o *observedBroker) Warmup(ctx context.Context) error {
	ctx, span, started := o.start(ctx, "Warmup")
	err := Warmup(ctx, o.broker)
	o.finish(span, "Warmup", started, err)
	return err
}

func (o *observedBroker) GetQuote(ctx context.Context, code string) (*Quote, error) {
	ctx, span, started := o.start(ctx, "GetQuote", attribute.String("code", code))
	q, err := o.broker.GetQuote(ctx, code)
	o.finish(span, "GetQuote", started, err)
	return q, err
}

func (o *observedBroker) GetOrderbook(ctx context.Context, code string) (*Orderbook, error) {
	ctx, span, started := o.start(ctx, "GetOrderbook", attribute.String("code", code))
	ob, err := o.broker.GetOrderbook(ctx, code)
	o.finish(span, "GetOrderbook", started, err)
	return ob, err
}

func (o *observedBroker) PlaceOrder(ctx context.Context, req OrderRequest) (*OrderResponse, error) {
	ctx, span, started := o.start(ctx, "PlaceOrder",
		attribute.String("code", req.Code),
		attribute.String("side", req.Side),
		attribute.Int64("quantity", req.Quantity),
	)
	resp, err := o.broker.PlaceOrder(ctx, req)
	if resp != nil {
		span.SetAttributes(attribute.String("order_id", resp.OrderID), attribute.Bool("success", resp.Success))
	}
	o.finish(span, "PlaceOrder", started, err)
	return resp, err
}

func (o *observedBroker) GetOrderDetail(ctx context.Context, orderID string) (*OrderDetail, error) {
	ctx, span, started := o.start(ctx, "GetOrderDetail", attribute.String("order_id", orderID))
	d, err := o.broker.GetOrderDetail(ctx, orderID)
	o.finish(span, "GetOrderDetail", started, err)
	return d, err
}

func (o *observedBroker) GetAvailableCash(ctx context.Context) (float64, error) {
	ctx, span, started := o.start(ctx, "GetAvailableCash")
	cash, err := o.broker.GetAvailableCash(ctx)
	o.finish(span, "GetAvailableCash", started, err)
	return cash, err
}

func (o *observedBroker) GetBuyableQuantity(ctx context.Context, code string, price float64) (int64, error) {
	ctx, span, started := o.start(ctx, "GetBuyableQuantity", attribute.String("code", code), attribute.Float64("price", price))
	qty, err := o.broker.GetBuyableQuantity(ctx, code, price)
	o.finish(span, "GetBuyableQuantity", started, err)
	return qty, err
}
