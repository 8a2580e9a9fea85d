package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type attributed struct{ run string }

func (a attributed) Attributes() map[string]string {
	return map[string]string{"run_id": a.run}
}

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "runs", attributed{run: "r-1"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "accounts", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "r-1", msgs[0].Attributes["run_id"])
	require.Nil(t, msgs[1].Attributes)
	require.Len(t, pub.Topic("accounts"), 1)

	msgs[0].Topic = "modified"
	require.Equal(t, "runs", pub.Messages()[0].Topic)
}

func TestPublisherHonorsCanceledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().Publish(ctx, "runs", "x")
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, New().Messages())
}
