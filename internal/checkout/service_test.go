package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/addresses"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/internal/shipping"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type fixture struct {
	t         *testing.T
	conn      *gorm.DB
	svc       Service
	cart      cart.Service
	addresses addresses.Service
	standard  *models.ShippingMethod
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, dbtest.Open(t))
}

func newFixtureOn(t *testing.T, conn *gorm.DB) *fixture {
	t.Helper()
	client := db.FromConn(conn)

	addrSvc, err := addresses.NewService(addresses.NewRepository(conn), client)
	require.NoError(t, err)
	cartSvc, err := cart.NewService(cart.ServiceParams{
		Repo:      cart.NewRepository(conn),
		Inventory: inventory.NewRepository(conn),
		Tx:        client,
	})
	require.NoError(t, err)

	svc, err := NewService(ServiceParams{
		Tx:                    client,
		Addresses:             addrSvc,
		Shipping:              shipping.NewRepository(conn),
		Cart:                  cart.NewRepository(conn),
		Products:              products.NewRepository(conn),
		Inventory:             inventory.NewRepository(conn),
		Orders:                orders.NewRepository(conn),
		Events:                outbox.NewService(outbox.NewRepository(conn), nil),
		FreeShippingThreshold: decimal.RequireFromString("100.00"),
		Timeout:               5 * time.Second,
	})
	require.NoError(t, err)

	standard := &models.ShippingMethod{Name: "Standard", BasePrice: decimal.RequireFromString("5.00"), IsActive: true}
	require.NoError(t, conn.Create(standard).Error)

	return &fixture{t: t, conn: conn, svc: svc, cart: cartSvc, addresses: addrSvc, standard: standard}
}

func (f *fixture) product(name, price string, stock int) *models.Product {
	f.t.Helper()
	p := &models.Product{Name: name, Price: decimal.RequireFromString(price), Stock: stock, IsActive: true}
	require.NoError(f.t, f.conn.Create(p).Error)
	return p
}

func (f *fixture) address(userID uuid.UUID) *models.Address {
	f.t.Helper()
	addr, err := f.addresses.Create(context.Background(), userID, addresses.CreateInput{
		Recipient:  "Test Buyer",
		Line1:      "1 Main St",
		City:       "Springfield",
		Region:     "IL",
		PostalCode: "62701",
		Country:    "US",
	})
	require.NoError(f.t, err)
	return addr
}

func (f *fixture) add(userID uuid.UUID, p *models.Product, qty int) {
	f.t.Helper()
	_, err := f.cart.AddOrMergeItem(context.Background(), userID, p.ID, qty)
	require.NoError(f.t, err)
}

func (f *fixture) stock(id uuid.UUID) int {
	f.t.Helper()
	stock, err := inventory.NewRepository(f.conn).CheckStock(context.Background(), id)
	require.NoError(f.t, err)
	return stock
}

func (f *fixture) count(model any) int64 {
	f.t.Helper()
	var n int64
	require.NoError(f.t, f.conn.Model(model).Count(&n).Error)
	return n
}

func (f *fixture) assertNoWrites() {
	f.t.Helper()
	assert.Zero(f.t, f.count(&models.Order{}))
	assert.Zero(f.t, f.count(&models.OrderItem{}))
	assert.Zero(f.t, f.count(&models.OutboxEvent{}))
}

func (f *fixture) input(userID uuid.UUID, addr *models.Address) PlaceOrderInput {
	return PlaceOrderInput{
		UserID:            userID,
		ShippingAddressID: addr.ID,
		PaymentMethod:     enums.PaymentMethodCard,
		ShippingMethodID:  f.standard.ID,
	}
}

func TestPlaceOrderCommitsEverything(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	addr := f.address(userID)
	mug := f.product("Mug", "12.50", 10)
	lamp := f.product("Lamp", "30.00", 3)
	f.add(userID, mug, 2)
	f.add(userID, lamp, 1)

	order, err := f.svc.PlaceOrder(context.Background(), f.input(userID, addr))
	require.NoError(t, err)

	assert.Equal(t, "55.00", order.Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", order.ShippingCost.StringFixed(2))
	assert.Equal(t, "60.00", order.TotalPrice.StringFixed(2))
	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, addr.ID, order.BillingAddressID)
	assert.Len(t, order.Items, 2)

	assert.Equal(t, 8, f.stock(mug.ID))
	assert.Equal(t, 2, f.stock(lamp.ID))
	assert.Zero(t, f.count(&models.CartItem{}))
	assert.Equal(t, int64(1), f.count(&models.Order{}))
	assert.Equal(t, int64(2), f.count(&models.OrderItem{}))

	var event models.OutboxEvent
	require.NoError(t, f.conn.First(&event).Error)
	assert.Equal(t, enums.EventOrderPlaced, event.EventType)
	assert.Equal(t, order.ID, event.AggregateID)
}

func TestPlaceOrderFreeShippingAtThreshold(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	addr := f.address(userID)
	p := f.product("Boots", "50.00", 5)
	f.add(userID, p, 2)

	order, err := f.svc.PlaceOrder(context.Background(), f.input(userID, addr))
	require.NoError(t, err)
	assert.Equal(t, "100.00", order.Subtotal.StringFixed(2))
	assert.True(t, order.ShippingCost.IsZero())
	assert.Equal(t, "100.00", order.TotalPrice.StringFixed(2))
}

func TestPlaceOrderForeignAddressWritesNothing(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	stranger := f.address(uuid.New())
	p := f.product("Hat", "10.00", 5)
	f.add(userID, p, 1)

	_, err := f.svc.PlaceOrder(context.Background(), f.input(userID, stranger))
	assert.Equal(t, pkgerrors.CodeInvalidAddress, pkgerrors.CodeOf(err))

	f.assertNoWrites()
	assert.Equal(t, 5, f.stock(p.ID))
	assert.Equal(t, int64(1), f.count(&models.CartItem{}))
}

func TestPlaceOrderRejectsBillingWithoutFlag(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	addr := f.address(userID)
	other := f.address(userID)
	p := f.product("Hat", "10.00", 5)
	f.add(userID, p, 1)

	in := f.input(userID, addr)
	in.BillingAddressID = &other.ID
	_, err := f.svc.PlaceOrder(context.Background(), in)
	assert.Equal(t, pkgerrors.CodeInvalidAddress, pkgerrors.CodeOf(err))

	require.NoError(t, f.addresses.SetDefaultBilling(context.Background(), userID, other.ID))
	order, err := f.svc.PlaceOrder(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, other.ID, order.BillingAddressID)
}

func TestPlaceOrderInvalidShippingMethod(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	addr := f.address(userID)
	p := f.product("Hat", "10.00", 5)
	f.add(userID, p, 1)
	require.NoError(t, f.conn.Model(&models.ShippingMethod{}).Where("id = ?", f.standard.ID).Update("is_active", false).Error)

	_, err := f.svc.PlaceOrder(context.Background(), f.input(userID, addr))
	assert.Equal(t, pkgerrors.CodeInvalidShippingMethod, pkgerrors.CodeOf(err))
	f.assertNoWrites()
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	addr := f.address(userID)

	_, err := f.svc.PlaceOrder(context.Background(), f.input(userID, addr))
	assert.Equal(t, pkgerrors.CodeEmptyCart, pkgerrors.CodeOf(err))
	f.assertNoWrites()
}

func TestPlaceOrderInvalidPaymentMethod(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	in := f.input(userID, f.address(userID))
	in.PaymentMethod = "cash"

	_, err := f.svc.PlaceOrder(context.Background(), in)
	assert.Equal(t, pkgerrors.CodeValidation, pkgerrors.CodeOf(err))
}

func TestPlaceOrderOutOfStockNamesProducts(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	addr := f.address(userID)
	ok := f.product("Spoon", "2.00", 10)
	short := f.product("Teapot", "25.00", 4)
	retired := f.product("Saucer", "3.00", 4)
	f.add(userID, ok, 1)
	f.add(userID, short, 3)
	f.add(userID, retired, 1)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", short.ID).Update("stock", 1).Error)
	require.NoError(t, f.conn.Model(&models.Product{}).Where("id = ?", retired.ID).Update("is_active", false).Error)

	_, err := f.svc.PlaceOrder(context.Background(), f.input(userID, addr))
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeOutOfStock, typed.Code())
	assert.Equal(t, map[string]any{"products": []string{"Saucer", "Teapot"}}, typed.Details())

	f.assertNoWrites()
	assert.Equal(t, 10, f.stock(ok.ID))
	assert.Equal(t, int64(3), f.count(&models.CartItem{}))
}

func TestOrderLinePriceIsFrozen(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	addr := f.address(userID)
	p := f.product("Clock", "40.00", 2)
	f.add(userID, p, 1)

	order, err := f.svc.PlaceOrder(context.Background(), f.input(userID, addr))
	require.NoError(t, err)

	prodSvc, err := products.NewService(products.NewRepository(f.conn), nil)
	require.NoError(t, err)
	_, err = prodSvc.UpdatePrice(context.Background(), p.ID, decimal.RequireFromString("55.00"))
	require.NoError(t, err)

	stored, err := orders.NewRepository(f.conn).FindOwned(context.Background(), userID, order.ID)
	require.NoError(t, err)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "40.00", stored.Items[0].Price.StringFixed(2))
	assert.Equal(t, "Clock", stored.Items[0].ProductName)
	assert.Equal(t, "45.00", stored.TotalPrice.StringFixed(2))
}

func TestConcurrentCheckoutsForLastUnit(t *testing.T) {
	f := newFixture(t)
	p := f.product("Last One", "20.00", 1)

	users := []uuid.UUID{uuid.New(), uuid.New()}
	inputs := make([]PlaceOrderInput, len(users))
	for i, userID := range users {
		inputs[i] = f.input(userID, f.address(userID))
		f.add(userID, p, 1)
	}

	results := make([]error, len(users))
	var g errgroup.Group
	for i := range inputs {
		i := i
		g.Go(func() error {
			_, results[i] = f.svc.PlaceOrder(context.Background(), inputs[i])
			return nil
		})
	}
	require.NoError(t, g.Wait())

	committed, outOfStock := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			committed++
		case pkgerrors.IsCode(err, pkgerrors.CodeOutOfStock):
			outOfStock++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, committed)
	assert.Equal(t, 1, outOfStock)
	assert.Equal(t, 0, f.stock(p.ID))
	assert.Equal(t, int64(1), f.count(&models.Order{}))
	assert.Equal(t, int64(1), f.count(&models.OrderItem{}))
}

func TestPlaceOrderRollsBackWhenStockDropsAfterLinesAreWritten(t *testing.T) {
	f := newFixture(t)
	userID := uuid.New()
	addr := f.address(userID)

	// fixed ids so the healthy product is decremented before the short one
	first := &models.Product{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000a"), Name: "Kettle", Price: decimal.RequireFromString("40.00"), Stock: 5, IsActive: true}
	second := &models.Product{ID: uuid.MustParse("00000000-0000-0000-0000-00000000000b"), Name: "Toaster", Price: decimal.RequireFromString("35.00"), Stock: 3, IsActive: true}
	require.NoError(t, f.conn.Create(first).Error)
	require.NoError(t, f.conn.Create(second).Error)
	f.add(userID, first, 2)
	f.add(userID, second, 3)

	// a competing sale lands between the order lines insert and the locked
	// decrement, inside the same transaction
	fired := false
	require.NoError(t, f.conn.Callback().Create().After("gorm:create").Register("test:drain_stock", func(tx *gorm.DB) {
		if fired || tx.Statement.Table != "order_items" || tx.Error != nil {
			return
		}
		fired = true
		tx.Session(&gorm.Session{NewDB: true}).
			Model(&models.Product{}).Where("id = ?", second.ID).Update("stock", 1)
	}))

	_, err := f.svc.PlaceOrder(context.Background(), f.input(userID, addr))
	require.Error(t, err)
	require.True(t, fired)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeOutOfStock, typed.Code())
	assert.Equal(t, map[string]any{"products": []string{"Toaster"}}, typed.Details())

	f.assertNoWrites()
	assert.Equal(t, 5, f.stock(first.ID))
	assert.Equal(t, 3, f.stock(second.ID))

	var lines []models.CartItem
	require.NoError(t, f.conn.Where("user_id = ?", userID).Order("quantity").Find(&lines).Error)
	require.Len(t, lines, 2)
	assert.Equal(t, 2, lines[0].Quantity)
	assert.Equal(t, 3, lines[1].Quantity)
}

type timeoutRunner struct{}

func (timeoutRunner) WithTxTimeout(context.Context, time.Duration, func(tx *gorm.DB) error) error {
	return context.DeadlineExceeded
}

func TestPlaceOrderTimeoutIsRetryable(t *testing.T) {
	f := newFixture(t)
	svc := f.svc.(*service)
	svc.tx = timeoutRunner{}

	userID := uuid.New()
	_, err := svc.PlaceOrder(context.Background(), f.input(userID, f.address(userID)))
	require.Error(t, err)
	assert.Equal(t, pkgerrors.CodeTimeout, pkgerrors.CodeOf(err))
	assert.True(t, pkgerrors.MetadataFor(pkgerrors.CodeOf(err)).Retryable)
}

func TestShippingCost(t *testing.T) {
	threshold := decimal.RequireFromString("100.00")
	base := decimal.RequireFromString("7.95")

	assert.Equal(t, "7.95", ShippingCost(decimal.RequireFromString("99.99"), threshold, base).StringFixed(2))
	assert.Equal(t, "0.00", ShippingCost(decimal.RequireFromString("100.00"), threshold, base).StringFixed(2))
	assert.Equal(t, "0.00", ShippingCost(decimal.RequireFromString("250"), threshold, base).StringFixed(2))
}
