package models

// All lists every persisted model, in dependency order, for AutoMigrate in
// dev sqlite mode and tests.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&ShippingMethod{},
		&Address{},
		&CartItem{},
		&PendingCart{},
		&Order{},
		&OrderItem{},
		&OutboxEvent{},
	}
}
