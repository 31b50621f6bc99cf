package ingest

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CapIot.quakeboard/internal/models"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type collectingSink struct {
	mu   sync.Mutex
	msgs []models.Message
}

func (s *collectingSink) Enqueue(ctx context.Context, msg models.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *collectingSink) messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.msgs...)
}

func (s *collectingSink) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

func TestDecodeSingleMessage(t *testing.T) {
	msgs, err := Decode([]byte(` {"DeviceId":"D","MessageDate":"t","IotData":{"mmi":3}} `))
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "D", msgs[0].DeviceID)
	assert.Equal(t, 3.0, *msgs[0].IotData.MMI)
}

func TestDecodeArray(t *testing.T) {
	msgs, err := Decode([]byte(`[
		{"DeviceId":"A","MessageDate":"t","IotData":{"mmi":1}},
		{"DeviceId":"B","MessageDate":"t","IotData":{"richterMagnitude":2}}
	]`))
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "B", msgs[1].DeviceID)
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte("   "))
	require.ErrorIs(t, err, ErrEmptyPayload)

	_, err = Decode([]byte(`{"DeviceId":`))
	require.Error(t, err)

	_, err = Decode([]byte(`[1, 2]`))
	require.Error(t, err)
}

func TestDecodeArraySkipsBadElements(t *testing.T) {
	msgs, err := Decode([]byte(`[
		{"DeviceId":"A","MessageDate":"t","IotData":{"mmi":1}},
		{"DeviceId":"B","MessageDate":"t","IotData":{"mmi":"high"}},
		{"DeviceId":"C","MessageDate":"t","IotData":{"richterMagnitude":2}}
	]`))

	var skipped *SkippedError
	require.ErrorAs(t, err, &skipped)
	assert.Equal(t, 3, skipped.Total)
	assert.Len(t, skipped.Errs, 1)
	assert.Contains(t, err.Error(), "message 1")

	require.Len(t, msgs, 2)
	assert.Equal(t, "A", msgs[0].DeviceID)
	assert.Equal(t, "C", msgs[1].DeviceID)
}

func TestDeliverKeepsGoodMessagesOfMixedBatch(t *testing.T) {
	sink := &collectingSink{}
	payload := []byte(`[
		{"DeviceId":"A","MessageDate":"t","IotData":{"mmi":1}},
		{"DeviceId":"B","MessageDate":"t","IotData":{"mmi":"high"}}
	]`)

	require.NoError(t, deliver(context.Background(), sink, payload, discard))

	msgs := sink.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "A", msgs[0].DeviceID)
}

func TestDeliverDropsGarbage(t *testing.T) {
	sink := &collectingSink{}
	require.NoError(t, deliver(context.Background(), sink, []byte("garbage"), discard))
	assert.Equal(t, 0, sink.len())
}

func TestDeliverStopsOnCancelledContext(t *testing.T) {
	sink := &collectingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := deliver(ctx, sink, []byte(`{"DeviceId":"D","MessageDate":"t","IotData":{"mmi":1}}`), discard)
	require.ErrorIs(t, err, context.Canceled)
}
