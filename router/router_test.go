package router

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/iotgw/transport"
)

func TestRouterDispatchesToMatchingHandler(t *testing.T) {
	r := New(0, nil)
	defer r.Close()

	var mu sync.Mutex
	var got transport.Message
	done := make(chan struct{})

	r.Handle("d2p/sensor_reading/g/+/d/+/r/+", func(ctx context.Context, msg transport.Message) error {
		mu.Lock()
		got = msg
		mu.Unlock()
		close(done)
		return nil
	})

	r.Dispatch(context.Background(), transport.Message{Topic: "d2p/sensor_reading/g/GW1/d/D1/r/temp", Payload: []byte("21")})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "d2p/sensor_reading/g/GW1/d/D1/r/temp", got.Topic)
}

func TestRouterNonMatchingPatternIsIgnored(t *testing.T) {
	r := New(0, nil)
	defer r.Close()

	called := make(chan struct{}, 1)
	r.Handle("d2p/events/#", func(ctx context.Context, msg transport.Message) error {
		called <- struct{}{}
		return nil
	})

	r.Dispatch(context.Background(), transport.Message{Topic: "d2p/sensor_reading/g/GW1/d/D1/r/temp"})

	select {
	case <-called:
		t.Fatal("handler should not have been invoked")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRouterRemove(t *testing.T) {
	r := New(0, nil)
	defer r.Close()

	count := 0
	var mu sync.Mutex
	tok := r.Handle("t/#", func(ctx context.Context, msg transport.Message) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})

	r.Dispatch(context.Background(), transport.Message{Topic: "t/a"})
	time.Sleep(50 * time.Millisecond)

	r.Remove(tok)
	r.Dispatch(context.Background(), transport.Message{Topic: "t/b"})
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, count)
}
