// Package events delivers order lifecycle events to RabbitMQ.
package events

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/xenking/stockroom/internal/domain/order"
	"github.com/xenking/stockroom/internal/jsonx"
)

const publishTimeout = 5 * time.Second

var errDisconnected = errors.New("amqp publisher is disconnected")

// Channel is the subset of *amqp.Channel used for publishing.
type Channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Session is an open broker connection with its publishing channel.
type Session struct {
	Channel Channel
	// Closed receives when the connection or the channel shuts down.
	Closed <-chan *amqp.Error
	Close  func() error
}

// DialFunc opens a Session.
type DialFunc func(ctx context.Context) (*Session, error)

// Publisher publishes order events to a topic exchange with routing key
// "order.<type>". It implements order.Notifier.
//
// A Publisher created by Dial or Connect redials with exponential backoff
// when its session closes. Events raised while disconnected are dropped.
type Publisher struct {
	exchange string
	lg       *zap.Logger

	dial       DialFunc
	newBackOff func() backoff.BackOff
	stop       context.CancelFunc
	done       chan struct{}

	mu    sync.Mutex
	ch    Channel
	close func() error
}

var _ order.Notifier = (*Publisher)(nil)

// NewPublisher wraps an open channel. It never reconnects.
func NewPublisher(ch Channel, exchange string, lg *zap.Logger) *Publisher {
	return &Publisher{
		ch:       ch,
		exchange: exchange,
		lg:       lg,
		close:    func() error { return nil },
	}
}

// Dial connects to the broker at url, declares the durable topic exchange and
// returns a Publisher that keeps the connection alive until ctx is done or
// Close is called.
func Dial(ctx context.Context, url, exchange string, lg *zap.Logger) (*Publisher, error) {
	return Connect(ctx, DialURL(url, exchange), exchange, lg)
}

// Connect opens the first session with dial and watches it for closure.
func Connect(ctx context.Context, dial DialFunc, exchange string, lg *zap.Logger) (*Publisher, error) {
	return connect(ctx, dial, exchange, lg, defaultBackOff)
}

func defaultBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 30 * time.Second
	return b
}

func connect(
	ctx context.Context,
	dial DialFunc,
	exchange string,
	lg *zap.Logger,
	newBackOff func() backoff.BackOff,
) (*Publisher, error) {
	s, err := dial(ctx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)
	p := &Publisher{
		exchange:   exchange,
		lg:         lg,
		dial:       dial,
		newBackOff: newBackOff,
		stop:       cancel,
		done:       make(chan struct{}),
		ch:         s.Channel,
		close:      s.Close,
	}
	go p.watch(ctx, s.Closed)
	return p, nil
}

// DialURL returns a DialFunc that opens a connection and channel to url and
// declares exchange as a durable topic exchange.
func DialURL(url, exchange string) DialFunc {
	return func(context.Context) (*Session, error) {
		conn, err := amqp.Dial(url)
		if err != nil {
			return nil, errors.Wrap(err, "dial amqp")
		}
		ch, err := conn.Channel()
		if err != nil {
			_ = conn.Close()
			return nil, errors.Wrap(err, "open channel")
		}
		if err := ch.ExchangeDeclare(
			exchange,
			amqp.ExchangeTopic,
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			_ = conn.Close()
			return nil, errors.Wrapf(err, "declare exchange %s", exchange)
		}

		// Both are closed by the library on shutdown, so the merge exits.
		connClosed := conn.NotifyClose(make(chan *amqp.Error, 1))
		chClosed := ch.NotifyClose(make(chan *amqp.Error, 1))
		closed := make(chan *amqp.Error, 1)
		go func() {
			var reason *amqp.Error
			select {
			case reason = <-connClosed:
			case reason = <-chClosed:
			}
			closed <- reason
		}()

		return &Session{
			Channel: ch,
			Closed:  closed,
			Close: func() error {
				if err := ch.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
					_ = conn.Close()
					return errors.Wrap(err, "close channel")
				}
				if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
					return errors.Wrap(err, "close connection")
				}
				return nil
			},
		}, nil
	}
}

// watch redials every time the current session closes.
func (p *Publisher) watch(ctx context.Context, closed <-chan *amqp.Error) {
	defer close(p.done)
	for {
		select {
		case <-ctx.Done():
			return
		case reason := <-closed:
			fields := []zap.Field{zap.String("exchange", p.exchange)}
			if reason != nil {
				fields = append(fields, zap.Int("code", reason.Code), zap.String("reason", reason.Reason))
			}
			p.lg.Warn("AMQP session closed, reconnecting", fields...)
		}
		p.detach()

		s, err := backoff.Retry(ctx, func() (*Session, error) {
			return p.dial(ctx)
		},
			backoff.WithBackOff(p.newBackOff()),
			backoff.WithMaxElapsedTime(0),
			backoff.WithNotify(func(err error, next time.Duration) {
				p.lg.Warn("AMQP reconnect failed", zap.Error(err), zap.Duration("retry_in", next))
			}),
		)
		if err != nil {
			return
		}
		if ctx.Err() != nil {
			_ = s.Close()
			return
		}
		p.attach(s)
		p.lg.Info("AMQP session restored", zap.String("exchange", p.exchange))
		closed = s.Closed
	}
}

func (p *Publisher) detach() {
	p.mu.Lock()
	release := p.close
	p.ch = nil
	p.close = func() error { return nil }
	p.mu.Unlock()
	_ = release()
}

func (p *Publisher) attach(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ch = s.Channel
	p.close = s.Close
}

// Ping reports whether a session is open.
func (p *Publisher) Ping(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return errDisconnected
	}
	return nil
}

// Notify publishes e. Failures are logged; the change that produced the
// event is already committed.
func (p *Publisher) Notify(ctx context.Context, e order.Event) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	msg := amqp.Publishing{
		MessageId:    uuid.NewString(),
		DeliveryMode: amqp.Persistent,
		Timestamp:    e.OccurredAt,
		ContentType:  "application/json",
		Type:         string(e.Type),
		Body:         Encode(e),
	}

	p.mu.Lock()
	err := errDisconnected
	if p.ch != nil {
		err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKey(e.Type), false, false, msg)
	}
	p.mu.Unlock()
	if err != nil {
		p.lg.Warn("Failed to publish order event",
			zap.Error(err),
			zap.String("type", string(e.Type)),
			zap.Int64("order_id", e.OrderID),
		)
	}
}

// Close stops reconnecting and releases the current session.
func (p *Publisher) Close() error {
	if p.stop != nil {
		p.stop()
		<-p.done
	}
	p.mu.Lock()
	release := p.close
	p.ch = nil
	p.close = func() error { return nil }
	p.mu.Unlock()
	return release()
}

// RoutingKey returns the routing key for an event type.
func RoutingKey(t order.EventType) string {
	return "order." + string(t)
}

// Encode renders an event as JSON.
func Encode(e order.Event) []byte {
	var enc jx.Encoder
	enc.ObjStart()
	enc.FieldStart("type")
	enc.Str(string(e.Type))
	enc.FieldStart("order_id")
	enc.Int64(e.OrderID)
	enc.FieldStart("order_number")
	enc.Str(e.OrderNumber)
	enc.FieldStart("status")
	enc.Str(string(e.Status))
	if e.PreviousStatus != "" {
		enc.FieldStart("previous_status")
		enc.Str(string(e.PreviousStatus))
	}
	enc.FieldStart("total_amount")
	jsonx.EncodeDecimal(&enc, e.TotalAmount)
	enc.FieldStart("stock_moved")
	enc.Int(e.StockMoved)
	enc.FieldStart("actor")
	enc.Str(e.Actor)
	jsonx.FieldTime(&enc, "occurred_at", &e.OccurredAt)
	enc.ObjEnd()
	return enc.Bytes()
}
