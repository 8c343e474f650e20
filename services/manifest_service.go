package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/kendall-kelly/csa-share-api/models"
	"go.uber.org/zap"
)

// Manifest describes an uploaded fulfillment sheet
type Manifest struct {
	Date            string    `json:"date"`
	FulfillmentType string    `json:"fulfillment_type"`
	Orders          int       `json:"orders"`
	Key             string    `json:"key"`
	URL             string    `json:"url"`
	ExpiresAt       time.Time `json:"expires_at"`
}

var manifestHeader = []string{
	"order_id", "subscription_id", "week", "member", "email", "phone",
	"address", "box_size", "fulfillment_time", "status", "notes", "addons",
}

// ManifestService builds the packing sheet staff work from on fulfillment day
type ManifestService struct {
	orders  *OrderService
	storage S3Interface
	log     *zap.Logger
}

func NewManifestService(orders *OrderService, storage S3Interface, log *zap.Logger) *ManifestService {
	if log == nil {
		log = zap.NewNop()
	}
	return &ManifestService{orders: orders, storage: storage, log: log}
}

// ManifestKey is the object key of a manifest
func ManifestKey(date time.Time, fulfillmentType string) string {
	return fmt.Sprintf("manifests/%s/%s.csv", date.Format(time.DateOnly), fulfillmentType)
}

// GenerateManifest writes the locked and fulfilled orders for a date and
// fulfillment type to storage and returns a presigned link to the file.
func (s *ManifestService) GenerateManifest(ctx context.Context, date time.Time, fulfillmentType string) (*Manifest, error) {
	if fulfillmentType != catalog.FulfillmentDelivery && fulfillmentType != catalog.FulfillmentPickup {
		return nil, newError(CodeInvalidFulfillmentType, fmt.Sprintf("unknown fulfillment type %q", fulfillmentType))
	}

	orders, err := s.orders.OrdersForDate(ctx, date, fulfillmentType, models.OrderLocked, models.OrderFulfilled)
	if err != nil {
		return nil, err
	}

	body, err := renderManifest(orders)
	if err != nil {
		return nil, err
	}

	key := ManifestKey(date, fulfillmentType)
	if err := s.storage.PutObject(ctx, key, body, "text/csv"); err != nil {
		return nil, err
	}
	url, err := s.storage.GetPresignedURL(ctx, key)
	if err != nil {
		return nil, err
	}

	s.log.Info("manifest generated",
		zap.String("key", key),
		zap.Int("orders", len(orders)),
	)

	return &Manifest{
		Date:            date.Format(time.DateOnly),
		FulfillmentType: fulfillmentType,
		Orders:          len(orders),
		Key:             key,
		URL:             url,
		ExpiresAt:       s.orders.now().Add(PresignExpiry),
	}, nil
}

// DeleteManifest removes a stored manifest. Deleting one that was never
// generated is not an error.
func (s *ManifestService) DeleteManifest(ctx context.Context, date time.Time, fulfillmentType string) error {
	if fulfillmentType != catalog.FulfillmentDelivery && fulfillmentType != catalog.FulfillmentPickup {
		return newError(CodeInvalidFulfillmentType, fmt.Sprintf("unknown fulfillment type %q", fulfillmentType))
	}
	key := ManifestKey(date, fulfillmentType)
	if err := s.storage.DeleteObject(ctx, key); err != nil {
		return err
	}
	s.log.Info("manifest deleted", zap.String("key", key))
	return nil
}

func renderManifest(orders []models.Order) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(manifestHeader); err != nil {
		return nil, err
	}
	for _, o := range orders {
		var name, email, phone, address string
		if o.User != nil {
			name, email, phone, address = o.User.Name, o.User.Email, o.User.Phone, o.User.Address
		}
		row := []string{
			strconv.FormatUint(uint64(o.ID), 10),
			strconv.FormatUint(uint64(o.SubscriptionID), 10),
			strconv.Itoa(o.Week),
			name,
			email,
			phone,
			address,
			o.BoxSize,
			o.FulfillmentTime,
			string(o.Status),
			o.Notes,
			packList(o.Addons),
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	return buf.Bytes(), nil
}

// packList renders add-ons as "eggs x2; honey x1"
func packList(addons []models.OrderAddon) string {
	items := make([]string, 0, len(addons))
	for _, a := range addons {
		items = append(items, fmt.Sprintf("%s x%d", a.Name, a.Quantity))
	}
	return strings.Join(items, "; ")
}
