package crawl

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrawlEndFiresOnceAfterDebounce(t *testing.T) {
	f := New()
	var calls int32
	f.OnCrawlEnd(func() { atomic.AddInt32(&calls, 1) })

	f.RegisterRequestProcessing("a", func() {})
	f.RegisterRequestProcessing("b", func() {})
	f.MarkIDAsDone("a")
	f.MarkIDAsDone("b")

	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))

	f.RegisterRequestProcessing("c", func() {})
	f.MarkIDAsDone("c")
	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestRegisterRequestProcessingIdempotentPerID(t *testing.T) {
	f := New()
	var doneCalls int32
	f.RegisterRequestProcessing("a", func() { atomic.AddInt32(&doneCalls, 1) })
	f.RegisterRequestProcessing("a", func() { atomic.AddInt32(&doneCalls, 1) })
	assert.EqualValues(t, 1, doneCalls)
}

func TestWaitForRequestsIdleReleasesOnIgnoredID(t *testing.T) {
	f := New()
	f.RegisterRequestProcessing("self", func() {})

	cancelled, err := f.Wait("self")
	require.NoError(t, err)
	assert.False(t, cancelled)
}

func TestCancelResolvesOutstandingWaiters(t *testing.T) {
	f := New()
	f.RegisterRequestProcessing("a", func() {})

	ch := f.WaitForRequestsIdle("")
	f.Cancel()

	res := <-ch
	assert.True(t, res.Cancelled)
}

func TestDebounceRestartsOnNewRegistrationDuringWindow(t *testing.T) {
	f := New()
	var calls int32
	f.OnCrawlEnd(func() { atomic.AddInt32(&calls, 1) })

	f.RegisterRequestProcessing("a", func() {})
	f.MarkIDAsDone("a")

	time.Sleep(20 * time.Millisecond)
	f.RegisterRequestProcessing("b", func() {})
	f.MarkIDAsDone("b")

	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls), "debounce should not have fired yet")

	time.Sleep(40 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
