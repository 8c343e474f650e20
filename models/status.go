package models

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderLocked    OrderStatus = "locked"
	OrderFulfilled OrderStatus = "fulfilled"
	OrderCancelled OrderStatus = "cancelled"
)

var orderNext = map[OrderStatus]map[OrderStatus]bool{
	OrderPending:   {OrderLocked: true, OrderCancelled: true},
	OrderLocked:    {OrderFulfilled: true, OrderCancelled: true},
	OrderFulfilled: {},
	OrderCancelled: {},
}

// CanTransition reports whether an order may move from one status to another.
// Orders only move forward.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	return orderNext[s][to]
}

func (s OrderStatus) Terminal() bool {
	return s == OrderFulfilled || s == OrderCancelled
}

type SubscriptionStatus string

const (
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionPaused    SubscriptionStatus = "paused"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionCompleted SubscriptionStatus = "completed"
)

var subscriptionNext = map[SubscriptionStatus]map[SubscriptionStatus]bool{
	SubscriptionActive:    {SubscriptionPaused: true, SubscriptionCancelled: true, SubscriptionCompleted: true},
	SubscriptionPaused:    {SubscriptionActive: true, SubscriptionCancelled: true, SubscriptionCompleted: true},
	SubscriptionCancelled: {},
	SubscriptionCompleted: {},
}

func (s SubscriptionStatus) CanTransition(to SubscriptionStatus) bool {
	return subscriptionNext[s][to]
}
