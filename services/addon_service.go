package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/kendall-kelly/csa-share-api/clock"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const maxAddonQuantity = 10

func AddonChargeKey(orderID uint) string { return fmt.Sprintf("charge-addons-%d", orderID) }

// AddonSelection is one line of a member's add-on choice
type AddonSelection struct {
	Name     string
	Quantity int
}

// AddonService puts catalog add-ons into a single week's box. Selections
// share the edit window of order notes and are billed once the order locks.
type AddonService struct {
	db      *gorm.DB
	catalog *catalog.Catalog
	clock   clock.Clock
	log     *zap.Logger
}

func NewAddonService(db *gorm.DB, cat *catalog.Catalog, clk clock.Clock, log *zap.Logger) *AddonService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AddonService{db: db, catalog: cat, clock: clk, log: log}
}

// SetOrderAddons replaces the add-ons of a pending order before its cutoff.
// An empty selection clears them.
func (s *AddonService) SetOrderAddons(ctx context.Context, orderID, requesterID uint, selections []AddonSelection) (*models.Order, error) {
	lines, total, err := s.price(selections)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now().UTC()

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := findOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.UserID != requesterID {
			return newError(CodeForbidden, "you can only modify your own orders")
		}
		if !order.Editable(now) {
			return newError(CodeEditWindowClosed, "order can no longer be modified")
		}

		res := tx.Model(&models.Order{}).
			Where("id = ? AND status = ? AND cutoff_datetime > ?", orderID, models.OrderPending, now).
			Update("addon_amount", total)
		if res.Error != nil {
			return fmt.Errorf("failed to update order: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return newError(CodeEditWindowClosed, "order can no longer be modified")
		}

		if err := tx.Where("order_id = ?", orderID).Delete(&models.OrderAddon{}).Error; err != nil {
			return fmt.Errorf("failed to clear add-ons: %w", err)
		}
		if len(lines) == 0 {
			return nil
		}
		for i := range lines {
			lines[i].OrderID = orderID
		}
		if err := tx.Create(&lines).Error; err != nil {
			return fmt.Errorf("failed to save add-ons: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("order add-ons updated",
		zap.Uint("order_id", orderID),
		zap.Int("lines", len(lines)),
		zap.String("amount", total.StringFixed(2)),
	)
	return findOrderWithAddons(s.db.WithContext(ctx), orderID)
}

// price resolves selections against the catalog at today's prices
func (s *AddonService) price(selections []AddonSelection) ([]models.OrderAddon, decimal.Decimal, error) {
	total := decimal.Zero
	seen := make(map[string]bool, len(selections))
	lines := make([]models.OrderAddon, 0, len(selections))

	for _, sel := range selections {
		if sel.Quantity < 1 || sel.Quantity > maxAddonQuantity {
			return nil, total, newError(CodeValidation,
				fmt.Sprintf("quantity of %q must be between 1 and %d", sel.Name, maxAddonQuantity))
		}
		if seen[sel.Name] {
			return nil, total, newError(CodeValidation, fmt.Sprintf("add-on %q is listed twice", sel.Name))
		}
		seen[sel.Name] = true

		addon, err := s.catalog.Addon(sel.Name)
		if err != nil {
			return nil, total, newError(CodeValidation, err.Error())
		}

		line := addon.Price.Mul(decimal.NewFromInt(int64(sel.Quantity)))
		lines = append(lines, models.OrderAddon{
			Name:       addon.Name,
			Quantity:   sel.Quantity,
			UnitPrice:  addon.Price,
			TotalPrice: line,
		})
		total = total.Add(line)
	}
	return lines, total, nil
}

func findOrderWithAddons(db *gorm.DB, id uint) (*models.Order, error) {
	var order models.Order
	err := db.Preload("Addons", func(q *gorm.DB) *gorm.DB { return q.Order("name ASC") }).
		First(&order, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, newError(CodeNotFound, fmt.Sprintf("order %d not found", id))
		}
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}
