package checkout

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/products"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type txRunner interface {
	WithTxTimeout(ctx context.Context, timeout time.Duration, fn func(tx *gorm.DB) error) error
}

type addressValidator interface {
	ValidatedShippingAddress(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*models.Address, error)
	ValidatedBillingAddress(ctx context.Context, tx *gorm.DB, userID, id uuid.UUID) (*models.Address, error)
}

type shippingLookup interface {
	ActiveShippingMethod(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.ShippingMethod, error)
}

// Service places orders.
type Service interface {
	PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error)
}

// PlaceOrderInput is a checkout request. A nil BillingAddressID, or one equal
// to the shipping address, bills to the shipping address.
type PlaceOrderInput struct {
	UserID            uuid.UUID
	ShippingAddressID uuid.UUID
	BillingAddressID  *uuid.UUID
	PaymentMethod     enums.PaymentMethod
	ShippingMethodID  uuid.UUID
}

type ServiceParams struct {
	Tx                    txRunner
	Addresses             addressValidator
	Shipping              shippingLookup
	Cart                  *cart.Repository
	Products              *products.Repository
	Inventory             *inventory.Repository
	Orders                *orders.Repository
	Events                outbox.Emitter
	Metrics               *metrics.CheckoutMetrics
	Logger                *logger.Logger
	FreeShippingThreshold decimal.Decimal
	Timeout               time.Duration
}

type service struct {
	tx        txRunner
	addresses addressValidator
	shipping  shippingLookup
	cart      *cart.Repository
	products  *products.Repository
	inventory *inventory.Repository
	orders    *orders.Repository
	events    outbox.Emitter
	metrics   *metrics.CheckoutMetrics
	logg      *logger.Logger
	threshold decimal.Decimal
	timeout   time.Duration
}

// NewService builds the checkout service.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("tx runner required")
	case params.Addresses == nil:
		return nil, fmt.Errorf("address validator required")
	case params.Shipping == nil:
		return nil, fmt.Errorf("shipping lookup required")
	case params.Cart == nil:
		return nil, fmt.Errorf("cart repository required")
	case params.Products == nil:
		return nil, fmt.Errorf("product repository required")
	case params.Inventory == nil:
		return nil, fmt.Errorf("inventory repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Events == nil:
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		tx:        params.Tx,
		addresses: params.Addresses,
		shipping:  params.Shipping,
		cart:      params.Cart,
		products:  params.Products,
		inventory: params.Inventory,
		orders:    params.Orders,
		events:    params.Events,
		metrics:   params.Metrics,
		logg:      logg,
		threshold: params.FreeShippingThreshold,
		timeout:   params.Timeout,
	}, nil
}

// PlaceOrder turns the user's cart into an order in a single transaction.
// Either the order, its lines, the stock decrements, the emptied cart and the
// order.placed event all commit, or none of them do.
func (s *service) PlaceOrder(ctx context.Context, input PlaceOrderInput) (*models.Order, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id is required")
	}
	if !input.PaymentMethod.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment method must be one of card, paypal, bank_transfer")
	}
	ctx = s.logg.WithUserID(ctx, input.UserID.String())

	var placed *models.Order
	err := s.tx.WithTxTimeout(ctx, s.timeout, func(tx *gorm.DB) error {
		order, err := s.assemble(ctx, tx, input)
		if err != nil {
			return err
		}
		placed = order
		return nil
	})
	if err != nil {
		err = db.Classify(err, "place order")
		s.recordAbort(ctx, err)
		return nil, err
	}

	s.metrics.IncPlaced()
	ctx = s.logg.WithOrderID(ctx, placed.ID.String())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"total": placed.TotalPrice.StringFixed(2),
		"lines": len(placed.Items),
	}), "order placed")
	return placed, nil
}

func (s *service) assemble(ctx context.Context, tx *gorm.DB, input PlaceOrderInput) (*models.Order, error) {
	// 1. shipping method
	method, err := s.shipping.ActiveShippingMethod(ctx, tx, input.ShippingMethodID)
	if err != nil {
		return nil, err
	}

	// 2-3. addresses
	shippingAddr, err := s.addresses.ValidatedShippingAddress(ctx, tx, input.UserID, input.ShippingAddressID)
	if err != nil {
		return nil, err
	}
	billingID := shippingAddr.ID
	if input.BillingAddressID != nil && *input.BillingAddressID != uuid.Nil && *input.BillingAddressID != shippingAddr.ID {
		billingAddr, err := s.addresses.ValidatedBillingAddress(ctx, tx, input.UserID, *input.BillingAddressID)
		if err != nil {
			return nil, err
		}
		billingID = billingAddr.ID
	}

	// 4. cart
	lines, err := s.cart.WithTx(tx).ListLines(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeEmptyCart, "cart is empty")
	}

	// 5. unlocked pre-check
	ids := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.ProductID)
	}
	catalog, err := s.products.WithTx(tx).FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	var short []string
	for _, line := range lines {
		product, ok := catalog[line.ProductID]
		if !ok || !product.IsActive || line.Quantity > product.Stock {
			short = append(short, displayName(product, line.ProductID))
		}
	}
	if len(short) > 0 {
		return nil, outOfStock(short)
	}

	// 6. pricing
	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(catalog[line.ProductID].Price.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	shippingCost := ShippingCost(subtotal, s.threshold, method.BasePrice)

	// 7. header
	order := &models.Order{
		UserID:            input.UserID,
		Subtotal:          subtotal.Round(2),
		ShippingCost:      shippingCost.Round(2),
		TotalPrice:        subtotal.Add(shippingCost).Round(2),
		ShippingAddressID: shippingAddr.ID,
		BillingAddressID:  billingID,
		PaymentMethod:     input.PaymentMethod,
		ShippingMethodID:  method.ID,
		Status:            enums.OrderStatusPending,
	}
	ordersRepo := s.orders.WithTx(tx)
	if err := ordersRepo.CreateOrder(ctx, order); err != nil {
		return nil, err
	}

	// 8. frozen lines
	items := make([]models.OrderItem, 0, len(lines))
	for _, line := range lines {
		product := catalog[line.ProductID]
		items = append(items, models.OrderItem{
			OrderID:     order.ID,
			ProductID:   line.ProductID,
			ProductName: product.Name,
			Quantity:    line.Quantity,
			Price:       product.Price,
		})
	}
	if err := ordersRepo.CreateItems(ctx, items); err != nil {
		return nil, err
	}
	order.Items = items

	// 9. locked decrement in ascending product id order
	if err := s.decrement(ctx, tx, items); err != nil {
		return nil, err
	}

	// 10. cart
	if err := s.cart.WithTx(tx).DeleteAll(ctx, input.UserID); err != nil {
		return nil, err
	}

	if err := s.events.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderPlaced,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         &outbox.ActorRef{UserID: input.UserID, Role: enums.UserRoleCustomer.String()},
		Data:          placedEvent(order),
	}); err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) decrement(ctx context.Context, tx *gorm.DB, items []models.OrderItem) error {
	byProduct := make(map[uuid.UUID]models.OrderItem, len(items))
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		byProduct[item.ProductID] = item
		ids = append(ids, item.ProductID)
	}

	ledger := s.inventory.WithTx(tx)
	var short []string
	for _, id := range inventory.SortedIDs(ids) {
		item := byProduct[id]
		product, err := ledger.LockAndGetStock(ctx, id)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				short = append(short, item.ProductName)
				continue
			}
			return err
		}
		if !product.IsActive || product.Stock < item.Quantity {
			short = append(short, item.ProductName)
			continue
		}
		if err := ledger.DecrementStock(ctx, id, item.Quantity); err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
				short = append(short, item.ProductName)
				continue
			}
			return err
		}
	}
	if len(short) > 0 {
		return outOfStock(short)
	}
	return nil
}

func (s *service) recordAbort(ctx context.Context, err error) {
	code := pkgerrors.CodeOf(err)
	s.metrics.IncAborted(string(code))
	ctx = s.logg.WithField(ctx, "code", code)
	switch pkgerrors.MetadataFor(code).Class {
	case pkgerrors.ClassValidation:
		s.logg.Info(ctx, "checkout rejected")
	case pkgerrors.ClassConflict:
		s.logg.Warn(ctx, "checkout aborted")
	case pkgerrors.ClassIntegrity:
		s.logg.Error(ctx, "checkout integrity violation", err)
	default:
		s.logg.Error(ctx, "checkout failed", err)
	}
}

// ShippingCost is free once subtotal reaches threshold, otherwise the
// method's base price.
func ShippingCost(subtotal, threshold, basePrice decimal.Decimal) decimal.Decimal {
	if subtotal.GreaterThanOrEqual(threshold) {
		return decimal.Zero
	}
	return basePrice
}

func outOfStock(names []string) error {
	sort.Strings(names)
	return pkgerrors.New(pkgerrors.CodeOutOfStock, "some products are out of stock").
		WithDetails(map[string]any{"products": names})
}

func displayName(product models.Product, id uuid.UUID) string {
	if product.Name != "" {
		return product.Name
	}
	return id.String()
}

func placedEvent(order *models.Order) outbox.OrderPlacedEvent {
	lines := make([]outbox.OrderPlacedLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, outbox.OrderPlacedLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}
	return outbox.OrderPlacedEvent{
		OrderID:       order.ID,
		UserID:        order.UserID,
		Subtotal:      order.Subtotal,
		ShippingCost:  order.ShippingCost,
		Total:         order.TotalPrice,
		PaymentMethod: order.PaymentMethod,
		Lines:         lines,
	}
}
