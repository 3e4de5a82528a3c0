package executor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medswitch/medswitch/internal/adapters"
	"github.com/medswitch/medswitch/internal/catalog"
	"github.com/medswitch/medswitch/internal/metrics"
	"github.com/medswitch/medswitch/internal/provider"
)

// blockingAdapter hangs until the call's context expires.
type blockingAdapter struct{}

func (blockingAdapter) Family() string { return "block" }

func (blockingAdapter) Complete(ctx context.Context, _ provider.Request) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func (blockingAdapter) Stream(ctx context.Context, _ provider.Request) (<-chan provider.Chunk, error) {
	ch := make(chan provider.Chunk)
	go func() {
		defer close(ch)
		<-ctx.Done()
	}()
	return ch, nil
}

func streamingDesc() catalog.ModelDescriptor {
	return catalog.ModelDescriptor{ID: "stream-model", Family: "mock", Streaming: true}
}

func plainDesc() catalog.ModelDescriptor {
	return catalog.ModelDescriptor{ID: "plain-model", Family: "mock"}
}

func newExecutor(a provider.Adapter, tracker *metrics.Tracker, streaming bool) *Executor {
	return New(map[string]provider.Adapter{a.Family(): a}, tracker, nil, time.Second, streaming)
}

func TestDispatchStreamingAccumulatesAndForwards(t *testing.T) {
	tracker := metrics.NewTracker()
	a := adapters.NewScripted("mock").WithChunks("one ", "two ", "three")
	e := newExecutor(a, tracker, true)

	var chunks []string
	res, err := e.Dispatch(context.Background(), streamingDesc(), provider.Request{}, func(c string) {
		chunks = append(chunks, c)
	})
	require.NoError(t, err)

	assert.True(t, res.Streamed)
	assert.Equal(t, "one two three", res.Content)
	assert.Equal(t, []string{"one ", "two ", "three"}, chunks)

	snap := tracker.Snapshot()["stream-model"]
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(0), snap.Errors)
}

func TestDispatchNonStreamingPath(t *testing.T) {
	tracker := metrics.NewTracker()
	a := adapters.NewScripted("mock").WithResponse("single shot")
	e := newExecutor(a, tracker, true)

	res, err := e.Dispatch(context.Background(), plainDesc(), provider.Request{}, nil)
	require.NoError(t, err)
	assert.False(t, res.Streamed)
	assert.Equal(t, "single shot", res.Content)
}

func TestGlobalStreamingFlagForcesSingleShot(t *testing.T) {
	tracker := metrics.NewTracker()
	a := adapters.NewScripted("mock").WithChunks("a", "b")
	e := newExecutor(a, tracker, false)

	res, err := e.Dispatch(context.Background(), streamingDesc(), provider.Request{}, nil)
	require.NoError(t, err)
	assert.False(t, res.Streamed)
	assert.Equal(t, "ab", res.Content)
}

func TestDispatchMissingAdapterIsValidation(t *testing.T) {
	e := New(map[string]provider.Adapter{}, metrics.NewTracker(), nil, time.Second, true)

	_, err := e.Dispatch(context.Background(), plainDesc(), provider.Request{}, nil)
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, provider.KindValidation, pe.Kind)
}

func TestDispatchTimeoutIsClassified(t *testing.T) {
	tracker := metrics.NewTracker()
	e := New(map[string]provider.Adapter{"block": blockingAdapter{}}, tracker, nil, 30*time.Millisecond, true)
	desc := catalog.ModelDescriptor{ID: "slow", Family: "block"}

	_, err := e.Dispatch(context.Background(), desc, provider.Request{}, nil)
	var pe *provider.Error
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, provider.KindTimeout, pe.Kind)

	snap := tracker.Snapshot()["slow"]
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.Errors)
}

func TestStreamCancellationRecordsFailedAttempt(t *testing.T) {
	tracker := metrics.NewTracker()
	e := New(map[string]provider.Adapter{"block": blockingAdapter{}}, tracker, nil, 30*time.Millisecond, true)
	desc := catalog.ModelDescriptor{ID: "hung-stream", Family: "block", Streaming: true}

	_, err := e.Dispatch(context.Background(), desc, provider.Request{}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	snap := tracker.Snapshot()["hung-stream"]
	assert.Equal(t, int64(1), snap.TotalRequests)
	assert.Equal(t, int64(1), snap.Errors)
}

func TestStreamAdapterErrorRecorded(t *testing.T) {
	tracker := metrics.NewTracker()
	a := adapters.NewScripted("mock").WithError(errors.New("boom"))
	e := newExecutor(a, tracker, true)

	_, err := e.Dispatch(context.Background(), streamingDesc(), provider.Request{}, nil)
	require.Error(t, err)
	assert.Equal(t, int64(1), tracker.Snapshot()["stream-model"].Errors)
}
