package pubsub_test

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	pspublisher "github.com/prepcart/brochure-crawler/internal/publisher/pubsub"
)

func newTestClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublisherPublishesJSON(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	client, srv := newTestClient(t)
	_, err := client.CreateTopic(ctx, "brochures")
	require.NoError(t, err)

	pub := pspublisher.New(client, map[string]string{"source": "brochures"})
	defer pub.Stop()

	id, err := pub.Publish(ctx, "brochures", map[string]any{"brochureId": "broshura-42", "pageCount": 12})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "brochures", msgs[0].Attributes["source"])

	var body map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &body))
	assert.Equal(t, "broshura-42", body["brochureId"])
	assert.InDelta(t, 12, body["pageCount"], 0)
}

func TestPublisherMissingTopicFails(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	pub := pspublisher.New(client, nil)
	defer pub.Stop()

	_, err := pub.Publish(context.Background(), "does-not-exist", map[string]string{"k": "v"})
	require.Error(t, err)

	_, err = pub.Publish(context.Background(), "", "payload")
	require.Error(t, err)
}

func TestPublisherRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := pspublisher.New(nil, nil).Publish(context.Background(), "brochures", "payload")
	require.Error(t, err)
}

func TestPublisherRejectsUnmarshalablePayload(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	pub := pspublisher.New(client, nil)
	_, err := pub.Publish(context.Background(), "brochures", make(chan int))
	require.Error(t, err)
}
