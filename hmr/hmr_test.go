package hmr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNoopChannelSilentlySucceeds(t *testing.T) {
	var c Channel = NoopChannel{}
	c.On("hmr-invalidate", func(Payload) { t.Fatal("handler should never run") })
	c.Send(Payload{Event: "full-reload"})
	assert.NoError(t, c.Close())
}

func TestHandlerSetDispatchesOnlyMatchingEvent(t *testing.T) {
	hs := newHandlerSet()
	var gotInvalidate, gotReload int
	hs.on("hmr-invalidate", func(Payload) { gotInvalidate++ })
	hs.on("full-reload", func(Payload) { gotReload++ })

	hs.dispatch(Payload{Event: "hmr-invalidate"})
	assert.Equal(t, 1, gotInvalidate)
	assert.Equal(t, 0, gotReload)
}

func TestHandlerSetSupportsMultipleHandlersPerEvent(t *testing.T) {
	hs := newHandlerSet()
	var calls int
	hs.on("hmr-invalidate", func(Payload) { calls++ })
	hs.on("hmr-invalidate", func(Payload) { calls++ })

	hs.dispatch(Payload{Event: "hmr-invalidate"})
	assert.Equal(t, 2, calls)
}
