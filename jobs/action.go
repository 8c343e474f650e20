// Package jobs runs deferred actions: work that must happen at a point in
// time after the request that caused it has returned.
package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

type Kind string

const (
	KindOrderReminder         Kind = "order_reminder"
	KindOrderLock             Kind = "order_lock"
	KindOrderLockedNotice     Kind = "order_locked_notice"
	KindOrderFulfilledNotice  Kind = "order_fulfilled_notice"
	KindChargeSubscription    Kind = "charge_subscription"
	KindChargeOrderAddons     Kind = "charge_order_addons"
	KindRefundPayment         Kind = "refund_payment"
	KindPaymentFailedNotice   Kind = "payment_failed_notice"
	KindSubscriptionCompleted Kind = "subscription_completed"
)

// Action is a deferred unit of work. The set of implementations is closed;
// consumers switch over the concrete types below.
type Action interface {
	Kind() Kind
	Queue() QueueName
	sealed()
}

// OrderReminder tells the member their order closes for edits soon
type OrderReminder struct {
	OrderID uint `json:"order_id"`
}

// OrderLock freezes an order at its cutoff
type OrderLock struct {
	OrderID uint `json:"order_id"`
}

// OrderLockedNotice tells the member their order is locked in
type OrderLockedNotice struct {
	OrderID uint `json:"order_id"`
}

// OrderFulfilledNotice tells the member their box was handed over
type OrderFulfilledNotice struct {
	OrderID uint `json:"order_id"`
}

// ChargeSubscription collects payment for a new subscription term
type ChargeSubscription struct {
	SubscriptionID uint `json:"subscription_id"`
}

// ChargeOrderAddons bills the add-ons of an order once it is locked
type ChargeOrderAddons struct {
	OrderID uint `json:"order_id"`
}

// RefundPayment returns the unused part of a term
type RefundPayment struct {
	SubscriptionID uint            `json:"subscription_id"`
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason"`
}

// PaymentFailedNotice tells the member a charge was declined
type PaymentFailedNotice struct {
	SubscriptionID uint   `json:"subscription_id"`
	PaymentID      uint   `json:"payment_id"`
	Reason         string `json:"reason"`
}

// SubscriptionCompleted follows up once the last box of a term is fulfilled
type SubscriptionCompleted struct {
	SubscriptionID uint `json:"subscription_id"`
}

func NewOrderReminder(orderID uint) OrderReminder { return OrderReminder{OrderID: orderID} }

func NewOrderLock(orderID uint) OrderLock { return OrderLock{OrderID: orderID} }

func NewOrderLockedNotice(orderID uint) OrderLockedNotice {
	return OrderLockedNotice{OrderID: orderID}
}

func NewOrderFulfilledNotice(orderID uint) OrderFulfilledNotice {
	return OrderFulfilledNotice{OrderID: orderID}
}

func NewChargeSubscription(subscriptionID uint) ChargeSubscription {
	return ChargeSubscription{SubscriptionID: subscriptionID}
}

func NewChargeOrderAddons(orderID uint) ChargeOrderAddons {
	return ChargeOrderAddons{OrderID: orderID}
}

func NewRefundPayment(subscriptionID uint, amount decimal.Decimal, reason string) RefundPayment {
	return RefundPayment{SubscriptionID: subscriptionID, Amount: amount, Reason: reason}
}

func NewPaymentFailedNotice(subscriptionID, paymentID uint, reason string) PaymentFailedNotice {
	return PaymentFailedNotice{SubscriptionID: subscriptionID, PaymentID: paymentID, Reason: reason}
}

func NewSubscriptionCompleted(subscriptionID uint) SubscriptionCompleted {
	return SubscriptionCompleted{SubscriptionID: subscriptionID}
}

func (OrderReminder) Kind() Kind         { return KindOrderReminder }
func (OrderLock) Kind() Kind             { return KindOrderLock }
func (OrderLockedNotice) Kind() Kind     { return KindOrderLockedNotice }
func (OrderFulfilledNotice) Kind() Kind  { return KindOrderFulfilledNotice }
func (ChargeSubscription) Kind() Kind    { return KindChargeSubscription }
func (ChargeOrderAddons) Kind() Kind     { return KindChargeOrderAddons }
func (RefundPayment) Kind() Kind         { return KindRefundPayment }
func (PaymentFailedNotice) Kind() Kind   { return KindPaymentFailedNotice }
func (SubscriptionCompleted) Kind() Kind { return KindSubscriptionCompleted }

func (OrderReminder) Queue() QueueName         { return QueueNotifications }
func (OrderLock) Queue() QueueName             { return QueueOrders }
func (OrderLockedNotice) Queue() QueueName     { return QueueNotifications }
func (OrderFulfilledNotice) Queue() QueueName  { return QueueNotifications }
func (ChargeSubscription) Queue() QueueName    { return QueuePayments }
func (ChargeOrderAddons) Queue() QueueName     { return QueuePayments }
func (RefundPayment) Queue() QueueName         { return QueuePayments }
func (PaymentFailedNotice) Queue() QueueName   { return QueueNotifications }
func (SubscriptionCompleted) Queue() QueueName { return QueueSubscriptions }

func (OrderReminder) sealed()         {}
func (OrderLock) sealed()             {}
func (OrderLockedNotice) sealed()     {}
func (OrderFulfilledNotice) sealed()  {}
func (ChargeSubscription) sealed()    {}
func (ChargeOrderAddons) sealed()     {}
func (RefundPayment) sealed()         {}
func (PaymentFailedNotice) sealed()   {}
func (SubscriptionCompleted) sealed() {}

type envelope struct {
	Kind    Kind            `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Encode serializes an action with its kind tag
func Encode(a Action) ([]byte, error) {
	if a == nil {
		return nil, fmt.Errorf("action cannot be nil")
	}
	payload, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s payload: %w", a.Kind(), err)
	}
	return json.Marshal(envelope{Kind: a.Kind(), Payload: payload})
}

// Decode is the inverse of Encode. Unknown kinds are an error.
func Decode(data []byte) (Action, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode action envelope: %w", err)
	}

	switch env.Kind {
	case KindOrderReminder:
		return decodeAs[OrderReminder](env)
	case KindOrderLock:
		return decodeAs[OrderLock](env)
	case KindOrderLockedNotice:
		return decodeAs[OrderLockedNotice](env)
	case KindOrderFulfilledNotice:
		return decodeAs[OrderFulfilledNotice](env)
	case KindChargeSubscription:
		return decodeAs[ChargeSubscription](env)
	case KindChargeOrderAddons:
		return decodeAs[ChargeOrderAddons](env)
	case KindRefundPayment:
		return decodeAs[RefundPayment](env)
	case KindPaymentFailedNotice:
		return decodeAs[PaymentFailedNotice](env)
	case KindSubscriptionCompleted:
		return decodeAs[SubscriptionCompleted](env)
	default:
		return nil, fmt.Errorf("unknown action kind %q", env.Kind)
	}
}

func decodeAs[T Action](env envelope) (Action, error) {
	var a T
	if err := json.Unmarshal(env.Payload, &a); err != nil {
		return nil, fmt.Errorf("failed to decode %s payload: %w", env.Kind, err)
	}
	return a, nil
}
