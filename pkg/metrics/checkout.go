package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reconciliation kinds reported by cart views.
const (
	ReconcileDiscontinued = "discontinued"
	ReconcileOutOfStock   = "out_of_stock"
	ReconcileClamped      = "clamped"
)

// CheckoutMetrics tracks order placement and cart reconciliation.
type CheckoutMetrics struct {
	placed          prometheus.Counter
	aborted         *prometheus.CounterVec
	reconciliations *prometheus.CounterVec
	merged          *prometheus.CounterVec
}

// NewCheckoutMetrics registers the checkout collectors. A nil registerer
// yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	placed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "storefront_orders_placed_total",
		Help: "Orders committed by checkout.",
	})
	aborted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_checkout_aborted_total",
		Help: "Checkout attempts rolled back, by error code.",
	}, []string{"reason"})
	reconciliations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_reconciliations_total",
		Help: "Cart lines changed while loading a cart view.",
	}, []string{"kind"})
	merged := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storefront_cart_merge_items_total",
		Help: "Guest cart lines merged at login, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(placed, aborted, reconciliations, merged)
	return &CheckoutMetrics{
		placed:          placed,
		aborted:         aborted,
		reconciliations: reconciliations,
		merged:          merged,
	}
}

func (m *CheckoutMetrics) IncPlaced() {
	if m == nil || m.placed == nil {
		return
	}
	m.placed.Inc()
}

func (m *CheckoutMetrics) IncAborted(reason string) {
	if m == nil || m.aborted == nil {
		return
	}
	m.aborted.WithLabelValues(normalizeLabel(reason)).Inc()
}

// AddReconciled counts n lines reconciled as kind; n <= 0 is ignored.
func (m *CheckoutMetrics) AddReconciled(kind string, n int) {
	if m == nil || m.reconciliations == nil || n <= 0 {
		return
	}
	m.reconciliations.WithLabelValues(normalizeLabel(kind)).Add(float64(n))
}

func (m *CheckoutMetrics) IncMerged(ok bool) {
	if m == nil || m.merged == nil {
		return
	}
	outcome := "merged"
	if !ok {
		outcome = "failed"
	}
	m.merged.WithLabelValues(outcome).Inc()
}
