package pubsub

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublishWithoutTopic(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), "batches", map[string]int{"rows": 1})
	require.Error(t, err)
}

func TestNewRequiresIdentifiers(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), "", "topic")
	require.Error(t, err)
	_, err = New(context.Background(), "project", "")
	require.Error(t, err)
}

func TestAttributeCarrier(t *testing.T) {
	t.Parallel()

	c := &attributeCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc-def-01")
	require.Equal(t, "00-abc-def-01", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}

func TestCloseWithoutClient(t *testing.T) {
	t.Parallel()

	require.NoError(t, (&Publisher{}).Close())
}
