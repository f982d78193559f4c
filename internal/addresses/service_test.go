package addresses

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func newService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	svc, err := NewService(NewRepository(conn), db.FromConn(conn))
	require.NoError(t, err)
	return svc, conn
}

func sampleInput() CreateInput {
	return CreateInput{
		Recipient:  "Ada Lovelace",
		Line1:      "12 Analytical Way",
		City:       "London",
		Region:     "LDN",
		PostalCode: "N1 9GU",
		Country:    "gb",
	}
}

func TestCreateFirstAddressTakesBothDefaults(t *testing.T) {
	svc, _ := newService(t)
	userID := uuid.New()

	first, err := svc.Create(context.Background(), userID, sampleInput())
	require.NoError(t, err)
	assert.True(t, first.IsShipping)
	assert.True(t, first.IsBilling)
	assert.Equal(t, "GB", first.Country)

	second, err := svc.Create(context.Background(), userID, sampleInput())
	require.NoError(t, err)
	assert.False(t, second.IsShipping)
	assert.False(t, second.IsBilling)
}

func TestSetDefaultMovesFlag(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	userID := uuid.New()

	first, err := svc.Create(ctx, userID, sampleInput())
	require.NoError(t, err)
	second, err := svc.Create(ctx, userID, sampleInput())
	require.NoError(t, err)

	require.NoError(t, svc.SetDefaultShipping(ctx, userID, second.ID))

	list, err := svc.List(ctx, userID)
	require.NoError(t, err)
	shipping := 0
	for _, a := range list {
		if a.IsShipping {
			shipping++
			assert.Equal(t, second.ID, a.ID)
		}
	}
	assert.Equal(t, 1, shipping)

	_, err = svc.ValidatedShippingAddress(ctx, nil, userID, first.ID)
	assert.Equal(t, pkgerrors.CodeInvalidAddress, pkgerrors.CodeOf(err))
	_, err = svc.ValidatedBillingAddress(ctx, nil, userID, first.ID)
	assert.NoError(t, err)

	err = svc.SetDefaultBilling(ctx, uuid.New(), second.ID)
	assert.Equal(t, pkgerrors.CodeNotFound, pkgerrors.CodeOf(err))
}

func TestDefaultMovesLockOwnerBeforeClearingFlag(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	userID := uuid.New()
	require.NoError(t, conn.Create(&models.User{ID: userID, Email: "ada@example.com", PasswordHash: "x"}).Error)

	first, err := svc.Create(ctx, userID, sampleInput())
	require.NoError(t, err)
	second, err := svc.Create(ctx, userID, sampleInput())
	require.NoError(t, err)

	var (
		mu     sync.Mutex
		events []string
	)
	record := func(event string) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, event)
	}
	require.NoError(t, conn.Callback().Query().Before("gorm:query").Register("test:record_lock", func(tx *gorm.DB) {
		if _, ok := tx.Statement.Clauses["FOR"]; ok {
			record("lock:" + tx.Statement.Table)
		}
	}))
	require.NoError(t, conn.Callback().Update().Before("gorm:update").Register("test:record_update", func(tx *gorm.DB) {
		record("update:" + tx.Statement.Table)
	}))

	require.NoError(t, svc.SetDefaultShipping(ctx, userID, second.ID))
	mu.Lock()
	assert.Equal(t, []string{"lock:users", "lock:addresses", "update:addresses", "update:addresses"}, events)
	mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 6; i++ {
		target := first.ID
		if i%2 == 0 {
			target = second.ID
		}
		g.Go(func() error { return svc.SetDefaultShipping(gctx, userID, target) })
	}
	g.Go(func() error {
		input := sampleInput()
		input.IsShipping = true
		_, err := svc.Create(gctx, userID, input)
		return err
	})
	require.NoError(t, g.Wait())

	var shipping int64
	require.NoError(t, conn.Model(&models.Address{}).
		Where("user_id = ? AND is_shipping = ?", userID, true).
		Count(&shipping).Error)
	assert.Equal(t, int64(1), shipping)
}

func TestValidatedAddressRejectsForeignOwner(t *testing.T) {
	svc, conn := newService(t)
	ctx := context.Background()
	owner := uuid.New()

	address, err := svc.Create(ctx, owner, sampleInput())
	require.NoError(t, err)

	_, err = svc.ValidatedShippingAddress(ctx, conn, uuid.New(), address.ID)
	assert.Equal(t, pkgerrors.CodeInvalidAddress, pkgerrors.CodeOf(err))

	_, err = svc.ValidatedShippingAddress(ctx, conn, owner, uuid.Nil)
	assert.Equal(t, pkgerrors.CodeInvalidAddress, pkgerrors.CodeOf(err))

	got, err := svc.ValidatedShippingAddress(ctx, conn, owner, address.ID)
	require.NoError(t, err)
	assert.Equal(t, address.ID, got.ID)
}

func TestCreateRequiresFields(t *testing.T) {
	svc, conn := newService(t)
	_, err := svc.Create(context.Background(), uuid.New(), CreateInput{Recipient: "x"})
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))

	var count int64
	require.NoError(t, conn.Model(&models.Address{}).Count(&count).Error)
	assert.Zero(t, count)
}
