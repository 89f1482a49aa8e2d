package numerator

// Counter names. Purchases and deliveries share one counter so that the
// purchase booked at the receiving store carries the delivery's number.
const (
	CounterPurchases      = "purchases"
	CounterRejections     = "rejections"
	CounterInternalOrders = "internal-orders"
)
