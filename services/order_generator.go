package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/kendall-kelly/csa-share-api/models"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OrderGenerator creates every order of a subscription's term up front
type OrderGenerator struct {
	db       *gorm.DB
	catalog  *catalog.Catalog
	cutoffs  *CutoffScheduler
	location *time.Location
	log      *zap.Logger
}

func NewOrderGenerator(db *gorm.DB, cat *catalog.Catalog, cutoffs *CutoffScheduler, loc *time.Location, log *zap.Logger) *OrderGenerator {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &OrderGenerator{db: db, catalog: cat, cutoffs: cutoffs, location: loc, log: log}
}

// NextFulfillmentDate returns midnight (in loc) of the first weekday on or
// after periodStart + week*7 days. The search only moves forward.
func NextFulfillmentDate(periodStart time.Time, week int, weekday time.Weekday, loc *time.Location) time.Time {
	start := periodStart.In(loc)
	base := time.Date(start.Year(), start.Month(), start.Day()+week*7, 0, 0, 0, 0, loc)
	daysToAdd := (int(weekday) - int(base.Weekday()) + 7) % 7
	return base.AddDate(0, 0, daysToAdd)
}

// DateOnly keeps the calendar date of t as midnight UTC, the form stored in
// date columns.
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FulfillmentDateTime combines a fulfillment date with the schedule's time of day
func FulfillmentDateTime(date time.Time, schedule catalog.Schedule) (time.Time, error) {
	hour, minute, err := schedule.Clock()
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(date.Year(), date.Month(), date.Day(), hour, minute, 0, 0, date.Location()), nil
}

// BuildOrders computes the orders for a subscription without persisting them
func (g *OrderGenerator) BuildOrders(sub *models.Subscription) ([]models.Order, catalog.Schedule, error) {
	option, err := g.catalog.FulfillmentOption(sub.FulfillmentType)
	if err != nil {
		return nil, catalog.Schedule{}, newError(CodeInvalidFulfillmentType,
			fmt.Sprintf("no fulfillment schedule for type %q", sub.FulfillmentType))
	}
	schedule, err := option.FirstActiveSchedule()
	if err != nil {
		return nil, catalog.Schedule{}, newError(CodeNoSchedulesAvailable,
			fmt.Sprintf("no active fulfillment schedule for type %q", sub.FulfillmentType))
	}

	orders := make([]models.Order, 0, sub.TotalOrders)
	for week := 0; week < sub.TotalOrders; week++ {
		date := NextFulfillmentDate(sub.PeriodStart, week, schedule.DayOfWeek, g.location)
		at, err := FulfillmentDateTime(date, schedule)
		if err != nil {
			return nil, schedule, newError(CodeNoSchedulesAvailable, err.Error())
		}

		orders = append(orders, models.Order{
			SubscriptionID:  sub.ID,
			Week:            week + 1,
			UserID:          sub.UserID,
			BoxSize:         sub.BoxSize,
			FulfillmentType: sub.FulfillmentType,
			FulfillmentDate: DateOnly(date),
			FulfillmentTime: schedule.Time,
			CutoffDatetime:  at.Add(-schedule.CutoffBefore()).UTC(),
			Status:          models.OrderPending,
			TotalAmount:     sub.BoxPrice,
		})
	}
	return orders, schedule, nil
}

// GenerateOrders persists one pending order per week of the subscription's
// term and registers their cutoff actions. Calling it again for the same
// subscription returns the existing orders and re-registers their actions.
func (g *OrderGenerator) GenerateOrders(ctx context.Context, subscriptionID uint) ([]models.Order, error) {
	var orders []models.Order

	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		orders, err = g.generateTx(tx, subscriptionID)
		return err
	})
	if err != nil {
		return nil, err
	}

	g.scheduleCutoffs(ctx, orders)
	return orders, nil
}

// generateTx does the database part of GenerateOrders inside tx. Callers
// that create the subscription in the same transaction must call
// scheduleCutoffs after commit.
func (g *OrderGenerator) generateTx(tx *gorm.DB, subscriptionID uint) ([]models.Order, error) {
	var sub models.Subscription
	if err := tx.First(&sub, subscriptionID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(CodeNotFound, fmt.Sprintf("subscription %d not found", subscriptionID))
		}
		return nil, fmt.Errorf("failed to load subscription: %w", err)
	}
	if sub.Status == models.SubscriptionCancelled || sub.Status == models.SubscriptionCompleted {
		return nil, newError(CodeInvalidState, fmt.Sprintf("subscription %d is %s", sub.ID, sub.Status))
	}

	var existing []models.Order
	if err := tx.Where("subscription_id = ?", sub.ID).Order("week ASC").Find(&existing).Error; err != nil {
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	if len(existing) > 0 {
		return existing, nil
	}

	orders, _, err := g.BuildOrders(&sub)
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return orders, nil
	}
	if err := tx.Create(&orders).Error; err != nil {
		return nil, fmt.Errorf("failed to create orders: %w", err)
	}

	g.log.Info("orders generated",
		zap.Uint("subscription_id", sub.ID),
		zap.Int("count", len(orders)),
		zap.Time("first_fulfillment", orders[0].FulfillmentDate),
	)
	return orders, nil
}

func (g *OrderGenerator) scheduleCutoffs(ctx context.Context, orders []models.Order) {
	for _, o := range orders {
		if o.Status != models.OrderPending {
			continue
		}
		g.cutoffs.ScheduleOrderCutoff(ctx, o.ID, o.CutoffDatetime)
	}
}
