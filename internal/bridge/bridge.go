// internal/bridge/bridge.go
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"trustpanel/internal/common/config"
	"trustpanel/internal/common/database"
	apperrors "trustpanel/internal/common/errors"
	"trustpanel/internal/common/logger"
	"trustpanel/internal/common/metrics"
	"trustpanel/internal/model"
)

// LinksHandler receives each validated link delivery. It is invoked on the
// receive loop, one delivery at a time in delivery order, after the
// acknowledgement has been published. Implementations must return quickly
// and run slow work on their own goroutines; the panel controller applies
// its state transition and spawns the batch analysis before returning.
type LinksHandler func(links []model.DocumentLink)

// Bridge is the two-channel protocol between the panel and the page-side
// injection trigger, carried over Redis pub/sub. One channel set per bridge
// instance, namespaced by a session id.
//
// Command channel: Inject publishes the injection request and waits for a
// reply. Notification channel: Subscribe delivers sendLinks pushes to a
// handler, acknowledging each one first.
type Bridge struct {
	rdb     *database.RedisClient
	cfg     config.BridgeConfig
	session string
	logger  logger.Logger

	mu     sync.Mutex
	closed bool
	sub    *redis.PubSub
	wg     sync.WaitGroup
}

func New(rdb *database.RedisClient, cfg config.BridgeConfig, log logger.Logger) *Bridge {
	session := uuid.NewString()
	return &Bridge{
		rdb:     rdb,
		cfg:     cfg,
		session: session,
		logger:  log.WithFields(map[string]interface{}{"component": "message-bridge", "session": session}),
	}
}

// Session returns the id namespacing this bridge's channels.
func (b *Bridge) Session() string {
	return b.session
}

func (b *Bridge) CommandChannel() string { return b.channel("commands") }
func (b *Bridge) ReplyChannel() string   { return b.channel("replies") }
func (b *Bridge) LinksChannel() string   { return b.channel("links") }
func (b *Bridge) AckChannel() string     { return b.channel("acks") }

func (b *Bridge) channel(name string) string {
	return fmt.Sprintf("%s:%s:%s", b.cfg.ChannelPrefix, b.session, name)
}

// Inject sends the one-shot injectContentScript command and waits for the
// trigger's reply. A missing listener, a transport error, an expired reply
// window, and an explicit failure reply all surface as the same injection
// error shape: callers never need to distinguish "no responder" from
// "responder said failure".
func (b *Bridge) Inject(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return apperrors.NewChannelUnavailableError(errors.New("bridge is closed"))
	}
	b.mu.Unlock()

	// Subscribe to the reply channel before publishing so the reply cannot
	// be missed.
	replySub := b.rdb.Subscribe(ctx, b.ReplyChannel())
	defer replySub.Close()
	if _, err := replySub.Receive(ctx); err != nil {
		return apperrors.NewInjectionFailedError(fmt.Sprintf("reply channel unavailable: %v", err))
	}

	payload, err := json.Marshal(Command{Action: ActionInjectContentScript})
	if err != nil {
		return apperrors.NewInjectionFailedError(fmt.Sprintf("encoding command: %v", err))
	}

	receivers, err := b.rdb.Publish(ctx, b.CommandChannel(), payload)
	if err != nil {
		return apperrors.NewInjectionFailedError(fmt.Sprintf("publishing command: %v", err))
	}
	if receivers == 0 {
		return apperrors.NewInjectionFailedError("no listener on command channel")
	}

	timer := time.NewTimer(b.cfg.ReplyTimeoutDuration())
	defer timer.Stop()

	select {
	case msg, ok := <-replySub.Channel():
		if !ok {
			return apperrors.NewInjectionFailedError("reply channel closed")
		}
		reply, err := decodeCommandReply([]byte(msg.Payload))
		if err != nil {
			metrics.ProtocolViolations.WithLabelValues("command").Inc()
			return err
		}
		if reply.Status == StatusFailure {
			reason := reply.Error
			if reason == "" {
				reason = "injection trigger reported failure"
			}
			return apperrors.NewInjectionFailedError(reason)
		}
		return nil
	case <-timer.C:
		return apperrors.NewInjectionFailedError(
			fmt.Sprintf("no reply within %s", b.cfg.ReplyTimeoutDuration()))
	case <-ctx.Done():
		return apperrors.NewInjectionFailedError(ctx.Err().Error())
	}
}

// Subscribe registers the handler for sendLinks notifications. Registration
// is idempotent: a second call on an already-subscribed bridge is a no-op,
// so re-initialization can never stack duplicate handlers.
func (b *Bridge) Subscribe(ctx context.Context, handler LinksHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return apperrors.NewChannelUnavailableError(errors.New("bridge is closed"))
	}
	if b.sub != nil {
		return nil
	}

	sub := b.rdb.Subscribe(ctx, b.LinksChannel())
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return apperrors.NewChannelUnavailableError(err)
	}

	b.sub = sub
	b.wg.Add(1)
	go b.receiveLoop(sub.Channel(), handler)
	return nil
}

func (b *Bridge) receiveLoop(ch <-chan *redis.Message, handler LinksHandler) {
	defer b.wg.Done()

	for msg := range ch {
		links, err := decodeNotification([]byte(msg.Payload))
		if err != nil {
			metrics.ProtocolViolations.WithLabelValues("notification").Inc()
			b.logger.WithError(err).Warn("dropping malformed notification", nil)
			continue
		}

		// Acknowledge before handing off: receipt is independent of how
		// long batch analysis takes.
		b.acknowledge()

		b.logger.Info("links received", map[string]interface{}{"count": len(links)})
		handler(links)
	}
}

func (b *Bridge) acknowledge() {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	payload, _ := json.Marshal(Ack{Farewell: AckFarewell})
	if _, err := b.rdb.Publish(ctx, b.AckChannel(), payload); err != nil {
		b.logger.WithError(err).Warn("failed to publish acknowledgement", nil)
	}
}

// Close tears the bridge down. Idempotent; after it returns no further
// notifications are delivered to the handler.
func (b *Bridge) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	sub := b.sub
	b.mu.Unlock()

	var err error
	if sub != nil {
		err = sub.Close()
	}
	b.wg.Wait()
	return err
}
