package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"
)

const (
	originHeader = "origin"
	maxDialDelay = 60 * time.Second
)

// Deliverer hands relayed payloads to local subscribers
type Deliverer interface {
	Deliver(room string, payload []byte) int
}

// ErrRelayUnavailable is returned by Publish while the broker connection is down
var ErrRelayUnavailable = errors.New("relay connection unavailable")

// RelayOptions configures the AMQP relay
type RelayOptions struct {
	URL           string
	Exchange      string
	RetryAttempts int
	Delay         time.Duration
}

type dialFunc func(ctx context.Context) (*amqp091.Connection, error)

// Relay publishes broadcasts to a topic exchange, using the room as routing
// key, and delivers what other processes published to local subscribers.
// A dropped broker connection is redialed until Close is called.
type Relay struct {
	exchange string
	origin   string
	target   Deliverer
	delay    time.Duration
	dial     dialFunc

	mu    sync.Mutex
	conn  *amqp091.Connection
	pubCh *amqp091.Channel

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// DialWithRetry connects to the broker with exponential backoff
func DialWithRetry(ctx context.Context, url string, attempts int, delay time.Duration) (*amqp091.Connection, error) {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 1; i <= attempts; i++ {
		conn, err := amqp091.Dial(url)
		if err == nil {
			if i > 1 {
				log.Info().Int("attempt", i).Msg("AMQP relay connected")
			}
			return conn, nil
		}
		lastErr = err

		if i == attempts {
			break
		}

		sleep := delay << (i - 1)
		if sleep > maxDialDelay {
			sleep = maxDialDelay
		}
		log.Warn().Err(err).Int("attempt", i).Dur("sleep", sleep).Msg("AMQP dial failed")

		timer := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("dial cancelled: %w", ctx.Err())
		case <-timer.C:
		}
	}

	return nil, fmt.Errorf("failed to connect to AMQP after %d attempts: %w", attempts, lastErr)
}

// NewRelay connects to the broker, declares the exchange and starts
// consuming on an exclusive queue bound to every room.
func NewRelay(ctx context.Context, opts RelayOptions, target Deliverer) (*Relay, error) {
	if opts.Exchange == "" {
		return nil, errors.New("relay exchange is required")
	}

	r := newRelay(opts, target, func(ctx context.Context) (*amqp091.Connection, error) {
		return DialWithRetry(ctx, opts.URL, opts.RetryAttempts, opts.Delay)
	})

	conn, err := r.dial(ctx)
	if err != nil {
		r.cancel()
		return nil, err
	}
	if err := r.setup(conn); err != nil {
		conn.Close()
		r.cancel()
		return nil, err
	}

	r.wg.Add(1)
	go r.watch(conn.NotifyClose(make(chan *amqp091.Error, 1)))

	log.Info().
		Str("exchange", r.exchange).
		Str("origin", r.origin).
		Msg("AMQP relay started")
	return r, nil
}

func newRelay(opts RelayOptions, target Deliverer, dial dialFunc) *Relay {
	delay := opts.Delay
	if delay <= 0 {
		delay = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Relay{
		exchange: opts.Exchange,
		origin:   uuid.NewString(),
		target:   target,
		delay:    delay,
		dial:     dial,
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (r *Relay) setup(conn *amqp091.Connection) error {
	pubCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open publish channel: %w", err)
	}
	if err := pubCh.ExchangeDeclare(r.exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	subCh, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("open consume channel: %w", err)
	}
	q, err := subCh.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	if err := subCh.QueueBind(q.Name, "#", r.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	deliveries, err := subCh.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	r.mu.Lock()
	if r.ctx.Err() != nil {
		r.mu.Unlock()
		return fmt.Errorf("relay closed: %w", r.ctx.Err())
	}
	r.conn = conn
	r.pubCh = pubCh
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for d := range deliveries {
			r.handleDelivery(d)
		}
	}()
	return nil
}

// watch redials after the broker drops the connection and re-arms the
// close notification on the new one. It returns once Close is called.
func (r *Relay) watch(closed <-chan *amqp091.Error) {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		case amqpErr := <-closed:
			if r.ctx.Err() != nil {
				return
			}
			event := log.Error().Str("exchange", r.exchange)
			if amqpErr != nil {
				event = event.Int("code", amqpErr.Code).Str("reason", amqpErr.Reason)
			}
			event.Msg("AMQP relay connection closed, reconnecting")

			r.mu.Lock()
			r.conn = nil
			r.pubCh = nil
			r.mu.Unlock()

			conn, err := r.reconnect()
			if err != nil {
				return
			}
			closed = conn.NotifyClose(make(chan *amqp091.Error, 1))
			log.Info().Str("exchange", r.exchange).Msg("AMQP relay reconnected")
		}
	}
}

func (r *Relay) reconnect() (*amqp091.Connection, error) {
	for {
		conn, err := r.dial(r.ctx)
		if err == nil {
			if err = r.setup(conn); err == nil {
				return conn, nil
			}
			conn.Close()
		}
		log.Error().Err(err).Dur("retry_in", r.delay).Msg("AMQP relay reconnect failed")

		timer := time.NewTimer(r.delay)
		select {
		case <-r.ctx.Done():
			timer.Stop()
			return nil, r.ctx.Err()
		case <-timer.C:
		}
	}
}

// Publish sends payload to every other process subscribed to the exchange
func (r *Relay) Publish(ctx context.Context, room string, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pubCh == nil {
		return ErrRelayUnavailable
	}
	return r.pubCh.PublishWithContext(ctx, r.exchange, room, false, false, amqp091.Publishing{
		ContentType: "application/json",
		MessageId:   uuid.NewString(),
		Timestamp:   time.Now(),
		Headers:     amqp091.Table{originHeader: r.origin},
		Body:        payload,
	})
}

func (r *Relay) handleDelivery(d amqp091.Delivery) {
	if origin, _ := d.Headers[originHeader].(string); origin == r.origin {
		return
	}
	if d.RoutingKey == "" {
		return
	}
	r.target.Deliver(d.RoutingKey, d.Body)
}

// Close stops consuming and closes the connection
func (r *Relay) Close() error {
	var err error
	r.once.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
		r.mu.Lock()
		if r.conn != nil {
			err = r.conn.Close()
		}
		r.mu.Unlock()
		r.wg.Wait()
	})
	return err
}
