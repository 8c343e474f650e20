package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGenerateManifest(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	storage := NewMockS3Service()
	manifests := NewManifestService(env.orders, storage, zap.NewNop())

	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	_, aliceOrders := env.subscribe(t, alice.ID, catalog.FulfillmentPickup, 4)
	_, bobOrders := env.subscribe(t, bob.ID, catalog.FulfillmentPickup, 4)

	_, err := env.orders.UpdateOrderNotes(ctx, aliceOrders[0].ID, alice.ID, "no beets, thanks")
	require.NoError(t, err)
	_, err = env.addons.SetOrderAddons(ctx, aliceOrders[0].ID, alice.ID, []AddonSelection{
		{Name: "honey", Quantity: 1},
		{Name: "eggs", Quantity: 2},
	})
	require.NoError(t, err)
	_, err = env.orders.LockOrder(ctx, aliceOrders[0].ID)
	require.NoError(t, err)
	// bob cancels, so only alice is on the sheet
	_, err = env.orders.CancelOrder(ctx, bobOrders[0].ID, bob.ID)
	require.NoError(t, err)

	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	manifest, err := manifests.GenerateManifest(ctx, date, catalog.FulfillmentPickup)
	require.NoError(t, err)

	assert.Equal(t, "2024-03-05", manifest.Date)
	assert.Equal(t, 1, manifest.Orders)
	assert.Equal(t, "manifests/2024-03-05/pickup.csv", manifest.Key)
	assert.Contains(t, manifest.URL, manifest.Key)
	assert.Equal(t, testStart.Add(PresignExpiry), manifest.ExpiresAt)

	body, contentType, ok := storage.Object(manifest.Key)
	require.True(t, ok)
	assert.Equal(t, "text/csv", contentType)

	rows, err := csv.NewReader(bytes.NewReader(body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, manifestHeader, rows[0])
	assert.Equal(t, alice.Email, rows[1][4])
	assert.Equal(t, "small", rows[1][7])
	assert.Equal(t, "locked", rows[1][9])
	assert.Equal(t, "no beets, thanks", rows[1][10])
	assert.Equal(t, "eggs x2; honey x1", rows[1][11])
}

func TestGenerateManifestRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t)
	manifests := NewManifestService(env.orders, NewMockS3Service(), nil)

	_, err := manifests.GenerateManifest(context.Background(), testStart, "drone")
	assert.ErrorIs(t, err, ErrInvalidFulfillmentType)
}
