//go:build integration

package checkout

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Runs with: STOREFRONT_TEST_DB_DSN=postgres://... go test -tags integration ./internal/checkout/
func TestPostgresConcurrentCheckoutsNeverOversell(t *testing.T) {
	f := newFixtureOn(t, dbtest.OpenPostgres(t))
	const buyers, stock = 6, 2
	p := f.product("Limited Run", "30.00", stock)

	inputs := make([]PlaceOrderInput, buyers)
	for i := range inputs {
		userID := uuid.New()
		inputs[i] = f.input(userID, f.address(userID))
		f.add(userID, p, 1)
	}

	results := make([]error, buyers)
	var g errgroup.Group
	for i := range inputs {
		g.Go(func() error {
			_, results[i] = f.svc.PlaceOrder(context.Background(), inputs[i])
			return nil
		})
	}
	require.NoError(t, g.Wait())

	committed := 0
	for _, err := range results {
		switch {
		case err == nil:
			committed++
		case pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock):
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, stock, committed)
	assert.Equal(t, 0, f.stock(p.ID))
	assert.Equal(t, int64(stock), f.count(&models.Order{}))
}
