package event

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/rocketcart/internal/domain"
	"github.com/utafrali/rocketcart/internal/notify"
	pkgkafka "github.com/utafrali/rocketcart/pkg/kafka"
	"github.com/utafrali/rocketcart/pkg/logger"
)

var _ notify.Notifier = (*Producer)(nil)

type published struct {
	topic string
	event *pkgkafka.Event
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(_ context.Context, topic string, event *pkgkafka.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{topic: topic, event: event})
	return nil
}

func (f *fakePublisher) messages() []published {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]published(nil), f.sent...)
}

func sampleCart() domain.Cart {
	return domain.Cart{
		{ID: 1, Title: "Tênis A", Price: 100, Amount: 2},
		{ID: 3, Title: "Tênis C", Price: 49.95, Amount: 1},
	}
}

func TestPublishCartUpdated(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub, logger.Discard())

	ctx := logger.WithCorrelationID(context.Background(), "corr-1")
	require.NoError(t, p.PublishCartUpdated(ctx, "s-1", sampleCart()))

	sent := pub.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, TopicCartUpdated, sent[0].topic)
	assert.Equal(t, "s-1", sent[0].event.AggregateID)
	assert.Equal(t, SourceCartService, sent[0].event.Source)
	assert.Equal(t, "corr-1", sent[0].event.CorrelationID)

	var data CartUpdatedData
	require.NoError(t, json.Unmarshal(sent[0].event.Data, &data))
	assert.Equal(t, "s-1", data.SessionID)
	assert.Equal(t, 3, data.ItemCount)
	assert.InDelta(t, 249.95, data.Total, 0.001)
	assert.Equal(t, []domain.Product(sampleCart()), data.Items)
}

func TestPublishCartUpdated_DefaultSession(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub, logger.Discard())

	require.NoError(t, p.PublishCartUpdated(context.Background(), "", nil))

	sent := pub.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, "default", sent[0].event.AggregateID)

	var data CartUpdatedData
	require.NoError(t, json.Unmarshal(sent[0].event.Data, &data))
	assert.Empty(t, data.Items)
	assert.Zero(t, data.ItemCount)
}

func TestPublishCartUpdated_Error(t *testing.T) {
	pub := &fakePublisher{err: errors.New("leader not available")}
	p := NewProducer(pub, logger.Discard())

	err := p.PublishCartUpdated(context.Background(), "s-1", sampleCart())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "publish cart.updated event")
}

func TestListener_PublishesSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub, logger.Discard())

	cart := sampleCart()
	p.Listener("s-2")(cart)
	cart[0].Amount = 99
	p.Wait()

	sent := pub.messages()
	require.Len(t, sent, 1)
	var data CartUpdatedData
	require.NoError(t, json.Unmarshal(sent[0].event.Data, &data))
	assert.Equal(t, 2, data.Items[0].Amount, "listener must publish the snapshot it was given")
}

func TestNotify_UsesSessionFromContext(t *testing.T) {
	pub := &fakePublisher{}
	p := NewProducer(pub, logger.Discard())

	ctx, cancel := context.WithCancel(logger.WithSessionID(context.Background(), "s-3"))
	p.Notify(ctx, "Quantidade solicitada fora de estoque")
	cancel()
	p.Wait()

	sent := pub.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, TopicCartNotification, sent[0].topic)

	var data CartNotificationData
	require.NoError(t, json.Unmarshal(sent[0].event.Data, &data))
	assert.Equal(t, CartNotificationData{SessionID: "s-3", Message: "Quantidade solicitada fora de estoque"}, data)
}

func TestNotify_ErrorsAreSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	p := NewProducer(pub, logger.Discard())

	assert.NotPanics(t, func() {
		p.Notify(context.Background(), "Erro na adição do produto")
		p.Wait()
	})
	assert.Empty(t, pub.messages())
}
