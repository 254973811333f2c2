package eventbridge

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"github.com/aws/aws-sdk-go-v2/service/eventbridge/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"north-backend/domain/events"
	"north-backend/domain/proposal"
	"north-backend/domain/tree"
)

type fakeBus struct {
	calls [][]types.PutEventsRequestEntry
	out   *eventbridge.PutEventsOutput
	err   error
}

func (f *fakeBus) PutEvents(_ context.Context, in *eventbridge.PutEventsInput, _ ...func(*eventbridge.Options)) (*eventbridge.PutEventsOutput, error) {
	f.calls = append(f.calls, in.Entries)
	if f.out != nil {
		return f.out, f.err
	}
	return &eventbridge.PutEventsOutput{}, f.err
}

func statusEvents(n int) []events.DomainEvent {
	out := make([]events.DomainEvent, n)
	for i := range out {
		out[i] = events.NewProposalStatusChanged("u1", "t1", "e1", proposal.KindRefinement, tree.StatusCompleted, time.Unix(int64(i), 0))
	}
	return out
}

func TestPublishBatch_ChunksByTen(t *testing.T) {
	// Arrange
	bus := &fakeBus{}
	p := NewPublisher(bus, "north-bus", zap.NewNop())

	// Act
	err := p.PublishBatch(context.Background(), statusEvents(23))

	// Assert
	require.NoError(t, err)
	require.Len(t, bus.calls, 3)
	assert.Len(t, bus.calls[0], 10)
	assert.Len(t, bus.calls[2], 3)

	entry := bus.calls[0][0]
	assert.Equal(t, "north-bus", aws.ToString(entry.EventBusName))
	assert.Equal(t, Source, aws.ToString(entry.Source))
	assert.Equal(t, events.TypeProposalStatusChanged, aws.ToString(entry.DetailType))
	var detail map[string]any
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(entry.Detail)), &detail))
	assert.Equal(t, "completed", detail["status"])
	assert.Equal(t, "e1", detail["element_id"])
}

func TestPublish_FailedEntries(t *testing.T) {
	bus := &fakeBus{out: &eventbridge.PutEventsOutput{
		FailedEntryCount: 1,
		Entries:          []types.PutEventsResultEntry{{ErrorCode: aws.String("ThrottlingException")}},
	}}
	p := NewPublisher(bus, "north-bus", zap.NewNop())

	err := p.Publish(context.Background(), statusEvents(1)[0])

	assert.Error(t, err)
}

func TestPublish_ClientError(t *testing.T) {
	bus := &fakeBus{err: errors.New("no route")}

	err := NewPublisher(bus, "b", zap.NewNop()).Publish(context.Background(), statusEvents(1)[0])

	assert.ErrorContains(t, err, "no route")
}

func TestLogPublisher(t *testing.T) {
	p := NewLogPublisher(zap.NewNop())

	assert.NoError(t, p.PublishBatch(context.Background(), statusEvents(2)))
}
