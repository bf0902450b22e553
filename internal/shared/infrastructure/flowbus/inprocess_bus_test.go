package flowbus_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/flowbus"
)

type recordingHandler struct {
	mu       sync.Mutex
	payloads []string
	block    chan struct{}
}

func (h *recordingHandler) HandleMessage(_ context.Context, msg flowbus.Message) {
	if h.block != nil {
		<-h.block
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.payloads = append(h.payloads, string(msg.Payload))
}

func (h *recordingHandler) received() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.payloads...)
}

type panickingHandler struct{}

func (panickingHandler) HandleMessage(context.Context, flowbus.Message) {
	panic("boom")
}

func TestInProcessBus_DeliversInPublishOrder(t *testing.T) {
	bus := flowbus.NewInProcessBus(nil)
	defer bus.Close()

	h := &recordingHandler{}
	require.NoError(t, bus.Subscribe("purchases", h))

	var want []string
	for i := 0; i < 50; i++ {
		payload := fmt.Sprintf(`{"n":%d}`, i)
		want = append(want, payload)
		require.NoError(t, bus.Publish(context.Background(), "purchases", []byte(payload)))
	}

	require.Eventually(t, func() bool {
		return len(h.received()) == len(want)
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, want, h.received())
}

func TestInProcessBus_PublishIsAsynchronous(t *testing.T) {
	bus := flowbus.NewInProcessBus(nil)
	h := &recordingHandler{block: make(chan struct{})}
	require.NoError(t, bus.Subscribe("purchases", h))

	require.NoError(t, bus.Publish(context.Background(), "purchases", []byte(`{}`)))
	assert.Empty(t, h.received(), "publish must not wait for the handler")

	close(h.block)
	require.Eventually(t, func() bool { return len(h.received()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, bus.Close())
}

func TestInProcessBus_DropsWithoutSubscriber(t *testing.T) {
	bus := flowbus.NewInProcessBus(nil)
	defer bus.Close()

	require.NoError(t, bus.Publish(context.Background(), "purchases", []byte(`"early"`)))

	h := &recordingHandler{}
	require.NoError(t, bus.Subscribe("purchases", h))
	require.NoError(t, bus.Publish(context.Background(), "purchases", []byte(`"late"`)))

	require.Eventually(t, func() bool { return len(h.received()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{`"late"`}, h.received())
}

func TestInProcessBus_ChannelsAreIsolated(t *testing.T) {
	bus := flowbus.NewInProcessBus(nil)
	defer bus.Close()

	a, b := &recordingHandler{}, &recordingHandler{}
	require.NoError(t, bus.Subscribe("a", a))
	require.NoError(t, bus.Subscribe("b", b))

	require.NoError(t, bus.Publish(context.Background(), "a", []byte(`1`)))
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"1"}, a.received())
	assert.Empty(t, b.received())
}

func TestInProcessBus_Unsubscribe(t *testing.T) {
	bus := flowbus.NewInProcessBus(nil)
	defer bus.Close()

	h := &recordingHandler{}
	require.NoError(t, bus.Subscribe("purchases", h))
	require.NoError(t, bus.Subscribe("purchases", h))
	assert.Len(t, bus.Registry().Handlers("purchases"), 1, "duplicate subscribe is a no-op")

	require.NoError(t, bus.Unsubscribe("purchases", h))
	require.NoError(t, bus.Unsubscribe("purchases", h))
	assert.False(t, bus.Registry().HasHandlers("purchases"))
}

func TestInProcessBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := flowbus.NewInProcessBus(nil)

	h := &recordingHandler{}
	require.NoError(t, bus.Subscribe("purchases", panickingHandler{}))
	require.NoError(t, bus.Subscribe("purchases", h))

	require.NoError(t, bus.Publish(context.Background(), "purchases", []byte(`1`)))
	require.NoError(t, bus.Publish(context.Background(), "purchases", []byte(`2`)))
	require.NoError(t, bus.Close())

	assert.Equal(t, []string{"1", "2"}, h.received())
}

func TestInProcessBus_Validation(t *testing.T) {
	bus := flowbus.NewInProcessBus(nil)

	assert.ErrorIs(t, bus.Subscribe(" ", &recordingHandler{}), flowbus.ErrInvalidChannel)
	assert.ErrorIs(t, bus.Subscribe("purchases", nil), flowbus.ErrNilHandler)
	assert.ErrorIs(t, bus.Publish(context.Background(), "", nil), flowbus.ErrInvalidChannel)

	require.NoError(t, bus.Close())
	assert.ErrorIs(t, bus.Publish(context.Background(), "purchases", nil), flowbus.ErrClosed)
	assert.ErrorIs(t, bus.Subscribe("purchases", &recordingHandler{}), flowbus.ErrClosed)
}

func TestNew_SelectsTransport(t *testing.T) {
	bus, err := flowbus.New(flowbus.Config{})
	require.NoError(t, err)
	_, ok := bus.(*flowbus.InProcessBus)
	assert.True(t, ok)

	_, err = flowbus.New(flowbus.Config{Kind: flowbus.KindRabbitMQ})
	assert.Error(t, err)
	_, err = flowbus.New(flowbus.Config{Kind: flowbus.KindNATS})
	assert.Error(t, err)
	_, err = flowbus.New(flowbus.Config{Kind: "kafka"})
	assert.Error(t, err)
}
