package runtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	metadatapkg "github.com/drblury/quoteflow/internal/runtime/metadata"
)

func TestJobHooksMiddlewareSkipsEmptyHooks(t *testing.T) {
	mw, err := JobHooksMiddleware(JobHooks{}).Builder(nil)
	require.NoError(t, err)
	assert.Nil(t, mw)
}

func TestJobHooksMiddlewareCallsHooks(t *testing.T) {
	var (
		started []JobContext
		done    []JobContext
		failed  []error
	)
	hooks := JobHooks{
		OnJobStart: func(job JobContext) { started = append(started, job) },
		OnJobDone:  func(job JobContext) { done = append(done, job) },
		OnJobError: func(_ JobContext, err error) { failed = append(failed, err) },
	}
	mw, err := JobHooksMiddleware(hooks).Builder(nil)
	require.NoError(t, err)

	msg := message.NewMessage("msg-1", []byte("EUR/USD"))
	msg.Metadata.Set(metadatapkg.KeyCorrelationID, "corr-1")
	_, err = mw(func(*message.Message) ([]*message.Message, error) {
		time.Sleep(time.Millisecond)
		return nil, nil
	})(msg)
	require.NoError(t, err)

	boom := errors.New("boom")
	_, err = mw(func(*message.Message) ([]*message.Message, error) { return nil, boom })(message.NewMessage("msg-2", nil))
	assert.ErrorIs(t, err, boom)

	require.Len(t, started, 2)
	require.Len(t, done, 1)
	assert.Equal(t, "msg-1", done[0].MessageUUID)
	assert.Equal(t, "corr-1", done[0].CorrelationID)
	assert.Positive(t, done[0].Duration)
	assert.Zero(t, started[0].Duration)
	assert.Equal(t, []error{boom}, failed)
}

func TestJobHooksMerge(t *testing.T) {
	var order []string
	a := JobHooks{OnJobDone: func(JobContext) { order = append(order, "a") }}
	b := JobHooks{
		OnJobDone:  func(JobContext) { order = append(order, "b") },
		OnJobError: func(JobContext, error) { order = append(order, "b-error") },
	}

	merged := a.Merge(b)
	merged.OnJobDone(JobContext{})
	merged.OnJobError(JobContext{}, errors.New("boom"))
	assert.Nil(t, merged.OnJobStart)
	assert.Equal(t, []string{"a", "b", "b-error"}, order)
}

func TestLoggingHooks(t *testing.T) {
	logger := &recordingServiceLogger{}
	hooks := LoggingHooks(logger)

	job := JobContext{HandlerName: "quotes-processor", Context: context.Background()}
	hooks.OnJobStart(job)
	hooks.OnJobDone(job)
	hooks.OnJobError(job, errors.New("boom"))

	assert.Equal(t, []string{"Job started"}, logger.debugs)
	assert.Equal(t, []string{"Job completed"}, logger.infos)
	assert.Equal(t, []string{"Job failed"}, logger.errors)
}
