package archive_test

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/estore/internal/archive"
)

func TestNewRecord(t *testing.T) {
	r := archive.NewRecord(archive.KindWebhook, "charge.success", "ref-1", "order-1", []byte(`{"event":"charge.success","data":{"amount":100}}`))

	assert.Equal(t, archive.SourcePaystack, r.Source)
	assert.Equal(t, "ref-1", r.Reference)
	assert.Equal(t, "charge.success", r.Payload["event"])
	assert.False(t, r.ReceivedAt.IsZero())

	notJSON := archive.NewRecord(archive.KindVerify, "", "ref-2", "", []byte("oops"))
	assert.Nil(t, notJSON.Payload)
	assert.Equal(t, "oops", notJSON.Raw)
}

func TestMongoStore_SaveAndFind(t *testing.T) {
	uri := os.Getenv("MONGODB_URI_TEST")
	if uri == "" {
		t.Skip("MONGODB_URI_TEST not set, skipping MongoDB integration test")
	}

	ctx := context.Background()
	client, err := archive.Connect(ctx, uri)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Disconnect(context.Background()) })

	db := client.Database("estore_test")
	require.NoError(t, db.Collection("gateway_events").Drop(ctx))

	store, err := archive.NewMongoStore(ctx, client, "estore_test", "gateway_events")
	require.NoError(t, err)

	require.NoError(t, store.Save(ctx, archive.NewRecord(archive.KindVerify, "", "ref-1", "o-1", []byte(`{"status":"success"}`))))
	require.NoError(t, store.Save(ctx, archive.NewRecord(archive.KindWebhook, "charge.success", "ref-1", "o-1", []byte(`{"event":"charge.success"}`))))
	require.NoError(t, store.Save(ctx, archive.NewRecord(archive.KindVerify, "", "ref-2", "o-2", []byte(`{}`))))

	records, err := store.FindByReference(ctx, "ref-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, archive.KindVerify, records[0].Kind)
	assert.Equal(t, "charge.success", records[1].Event)
}
