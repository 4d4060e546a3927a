package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trustpanel/internal/common/config"
	"trustpanel/internal/common/database"
	apperrors "trustpanel/internal/common/errors"
	"trustpanel/internal/common/logger"
	"trustpanel/internal/model"
)

// ==========================
// Test Helper Functions
// ==========================

func createTestBridge(t *testing.T) (*Bridge, *database.RedisClient) {
	mr := miniredis.RunT(t)

	rdb, err := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	b := New(rdb, config.BridgeConfig{
		ChannelPrefix: "trustpanel-test",
		ReplyTimeout:  500,
	}, logger.NewTestLogger(t))
	t.Cleanup(func() { _ = b.Close() })

	return b, rdb
}

// startInjectionResponder simulates the page-side trigger: it listens on
// the command channel and answers every command with the given reply.
func startInjectionResponder(t *testing.T, rdb *database.RedisClient, b *Bridge, reply CommandReply) {
	ctx := context.Background()
	sub := rdb.Subscribe(ctx, b.CommandChannel())
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })

	go func() {
		for msg := range sub.Channel() {
			var cmd Command
			if json.Unmarshal([]byte(msg.Payload), &cmd) != nil || cmd.Action != ActionInjectContentScript {
				continue
			}
			payload, _ := json.Marshal(reply)
			rdb.GetClient().Publish(ctx, b.ReplyChannel(), payload)
		}
	}()
}

func subscribeRaw(t *testing.T, rdb *database.RedisClient, channel string) <-chan *redis.Message {
	ctx := context.Background()
	sub := rdb.Subscribe(ctx, channel)
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	return sub.Channel()
}

func sendLinksPayload(links []model.DocumentLink) []byte {
	payload, _ := json.Marshal(Notification{Action: ActionSendLinks, Links: links})
	return payload
}

// ==========================
// Command Channel Tests
// ==========================

func TestBridge_Inject_NoResponder(t *testing.T) {
	b, _ := createTestBridge(t)

	err := b.Inject(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInjectionFailed, apperrors.CodeOf(err))
}

func TestBridge_Inject_Success(t *testing.T) {
	b, rdb := createTestBridge(t)
	startInjectionResponder(t, rdb, b, CommandReply{Status: StatusSuccess})

	err := b.Inject(context.Background())
	require.NoError(t, err)
}

func TestBridge_Inject_ExplicitFailureReply(t *testing.T) {
	b, rdb := createTestBridge(t)
	startInjectionResponder(t, rdb, b, CommandReply{Status: StatusFailure, Error: "tab has no content"})

	err := b.Inject(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInjectionFailed, apperrors.CodeOf(err))

	var stdErr *apperrors.StandardError
	require.ErrorAs(t, err, &stdErr)
	assert.Equal(t, "tab has no content", stdErr.Details)
}

func TestBridge_Inject_ReplyTimeout(t *testing.T) {
	b, rdb := createTestBridge(t)

	// A listener that never answers: same error shape as a failure reply.
	ctx := context.Background()
	sub := rdb.Subscribe(ctx, b.CommandChannel())
	_, err := sub.Receive(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Close() })
	go func() {
		for range sub.Channel() {
		}
	}()

	err = b.Inject(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInjectionFailed, apperrors.CodeOf(err))
}

func TestBridge_Inject_TransportError(t *testing.T) {
	mr := miniredis.RunT(t)

	rdb, err := database.NewRedis(config.RedisConfig{Address: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })

	b := New(rdb, config.BridgeConfig{
		ChannelPrefix: "trustpanel-test",
		ReplyTimeout:  500,
	}, logger.NewTestLogger(t))
	t.Cleanup(func() { _ = b.Close() })

	// Transport gone mid-session: same error shape as any other injection
	// failure, callers cannot tell the cases apart.
	mr.Close()

	err = b.Inject(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeInjectionFailed, apperrors.CodeOf(err))
}

func TestBridge_Inject_AfterClose(t *testing.T) {
	b, _ := createTestBridge(t)
	require.NoError(t, b.Close())

	err := b.Inject(context.Background())
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrCodeChannelUnavailable, apperrors.CodeOf(err))
}

// ==========================
// Notification Channel Tests
// ==========================

func TestBridge_Subscribe_DeliversLinksAndAcks(t *testing.T) {
	b, rdb := createTestBridge(t)

	received := make(chan []model.DocumentLink, 1)
	require.NoError(t, b.Subscribe(context.Background(), func(links []model.DocumentLink) {
		received <- links
	}))

	acks := subscribeRaw(t, rdb, b.AckChannel())

	links := []model.DocumentLink{
		{Href: "https://x.com/tos", Type: model.LinkTypeTerms, Text: "Terms of Service"},
		{Href: "https://x.com/priv", Type: model.LinkTypePolicy, PageTitle: "X"},
	}
	rdb.GetClient().Publish(context.Background(), b.LinksChannel(), sendLinksPayload(links))

	select {
	case got := <-received:
		assert.Equal(t, links, got)
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	select {
	case msg := <-acks:
		var ack Ack
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &ack))
		assert.Equal(t, AckFarewell, ack.Farewell)
	case <-time.After(2 * time.Second):
		t.Fatal("acknowledgement was not published")
	}
}

func TestBridge_Subscribe_HandlerSeesDeliveriesInOrder(t *testing.T) {
	b, rdb := createTestBridge(t)

	done := make(chan struct{}, 2)
	var order []string
	require.NoError(t, b.Subscribe(context.Background(), func(links []model.DocumentLink) {
		if len(order) == 0 {
			time.Sleep(50 * time.Millisecond) // first delivery is the slow one
		}
		order = append(order, links[0].Href)
		done <- struct{}{}
	}))

	ctx := context.Background()
	first := []model.DocumentLink{{Href: "https://x.com/first", Type: model.LinkTypeTerms}}
	second := []model.DocumentLink{{Href: "https://x.com/second", Type: model.LinkTypePolicy}}
	rdb.GetClient().Publish(ctx, b.LinksChannel(), sendLinksPayload(first))
	rdb.GetClient().Publish(ctx, b.LinksChannel(), sendLinksPayload(second))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("handler was not invoked for every delivery")
		}
	}
	assert.Equal(t, []string{"https://x.com/first", "https://x.com/second"}, order)
}

func TestBridge_Subscribe_AckNotBlockedBySlowHandler(t *testing.T) {
	b, rdb := createTestBridge(t)

	release := make(chan struct{})
	require.NoError(t, b.Subscribe(context.Background(), func([]model.DocumentLink) {
		<-release // handler held open, ack must already be out
	}))
	defer close(release)

	acks := subscribeRaw(t, rdb, b.AckChannel())

	links := []model.DocumentLink{{Href: "https://x.com/tos", Type: model.LinkTypeTerms}}
	rdb.GetClient().Publish(context.Background(), b.LinksChannel(), sendLinksPayload(links))

	select {
	case <-acks:
		// ack arrived while the handler is still blocked
	case <-time.After(2 * time.Second):
		t.Fatal("acknowledgement must not wait for downstream processing")
	}
}

func TestBridge_Subscribe_DropsMalformedNotifications(t *testing.T) {
	b, rdb := createTestBridge(t)

	received := make(chan []model.DocumentLink, 4)
	require.NoError(t, b.Subscribe(context.Background(), func(links []model.DocumentLink) {
		received <- links
	}))

	ctx := context.Background()
	malformed := [][]byte{
		[]byte(`not json`),
		[]byte(`{"action":"somethingElse","links":[]}`),
		[]byte(`{"action":"sendLinks","links":[{"text":"no href","type":"terms"}]}`),
		[]byte(`{"action":"sendLinks","links":[{"href":"https://x.com/t","type":"contract"}]}`),
	}
	for _, payload := range malformed {
		rdb.GetClient().Publish(ctx, b.LinksChannel(), payload)
	}

	// A valid delivery after the garbage still goes through.
	valid := []model.DocumentLink{{Href: "https://x.com/tos", Type: model.LinkTypeTerms}}
	rdb.GetClient().Publish(ctx, b.LinksChannel(), sendLinksPayload(valid))

	select {
	case got := <-received:
		assert.Equal(t, valid, got)
	case <-time.After(2 * time.Second):
		t.Fatal("valid notification was not delivered")
	}
	assert.Empty(t, received, "malformed notifications must not reach the handler")
}

func TestBridge_Subscribe_Idempotent(t *testing.T) {
	b, rdb := createTestBridge(t)

	calls := make(chan struct{}, 4)
	handler := func([]model.DocumentLink) { calls <- struct{}{} }
	require.NoError(t, b.Subscribe(context.Background(), handler))
	require.NoError(t, b.Subscribe(context.Background(), handler))

	links := []model.DocumentLink{{Href: "https://x.com/tos", Type: model.LinkTypeTerms}}
	rdb.GetClient().Publish(context.Background(), b.LinksChannel(), sendLinksPayload(links))

	select {
	case <-calls:
	case <-time.After(2 * time.Second):
		t.Fatal("handler was not invoked")
	}

	select {
	case <-calls:
		t.Fatal("duplicate handler registration")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestBridge_Close_IdempotentAndStopsDelivery(t *testing.T) {
	b, rdb := createTestBridge(t)

	received := make(chan []model.DocumentLink, 1)
	require.NoError(t, b.Subscribe(context.Background(), func(links []model.DocumentLink) {
		received <- links
	}))

	require.NoError(t, b.Close())
	require.NoError(t, b.Close())

	links := []model.DocumentLink{{Href: "https://x.com/tos", Type: model.LinkTypeTerms}}
	rdb.GetClient().Publish(context.Background(), b.LinksChannel(), sendLinksPayload(links))

	select {
	case <-received:
		t.Fatal("notification delivered after Close")
	case <-time.After(300 * time.Millisecond):
	}
}
