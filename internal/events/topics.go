package events

// Event names accepted by the analytics pipeline.
const (
	NameViewItem       = "view_item"
	NameAddToCart      = "add_to_cart"
	NameRemoveFromCart = "remove_from_cart"
	NameBeginCheckout  = "begin_checkout"
	NamePurchase       = "purchase"
)

// TaskForward is the asynq task type used to forward events to the measurement backend.
const TaskForward = "analytics:forward"

// DefaultNames returns the canonical list of event names.
func DefaultNames() []string {
	return []string{
		NameViewItem,
		NameAddToCart,
		NameRemoveFromCart,
		NameBeginCheckout,
		NamePurchase,
	}
}

// ClientNames returns the names browsers are allowed to report directly.
func ClientNames() []string {
	return []string{NameViewItem, NameAddToCart, NameRemoveFromCart}
}

// KnownName reports whether name is one of DefaultNames.
func KnownName(name string) bool {
	for _, n := range DefaultNames() {
		if n == name {
			return true
		}
	}
	return false
}
