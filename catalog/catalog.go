// Package catalog holds the farm's box sizes, fulfillment schedules, payment
// intervals and weekly add-ons. The catalog is read-only once loaded.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	FulfillmentDelivery = "delivery"
	FulfillmentPickup   = "pickup"
)

var (
	ErrUnknownBoxSize         = errors.New("unknown box size")
	ErrUnknownFulfillmentType = errors.New("unknown fulfillment type")
	ErrUnknownPaymentInterval = errors.New("unknown payment interval")
	ErrNoActiveSchedule       = errors.New("no active fulfillment schedule")
	ErrUnknownAddon           = errors.New("unknown add-on")
	ErrAddonUnavailable       = errors.New("add-on is not available")
)

// Schedule is one recurring fulfillment slot
type Schedule struct {
	DayOfWeek         time.Weekday `yaml:"day_of_week"`
	Time              string       `yaml:"time"`
	CutoffHoursBefore int          `yaml:"cutoff_hours_before"`
	Active            bool         `yaml:"active"`
}

// Clock returns the hour and minute of the slot's "HH:MM" time
func (s Schedule) Clock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", s.Time)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid fulfillment time %q: %w", s.Time, err)
	}
	return t.Hour(), t.Minute(), nil
}

// CutoffBefore is how long before fulfillment the order locks
func (s Schedule) CutoffBefore() time.Duration {
	return time.Duration(s.CutoffHoursBefore) * time.Hour
}

type FulfillmentOption struct {
	Type      string     `yaml:"type"`
	Schedules []Schedule `yaml:"schedules"`
}

// FirstActiveSchedule returns the first active row. Later active rows are
// never used for order generation.
func (o FulfillmentOption) FirstActiveSchedule() (Schedule, error) {
	for _, s := range o.Schedules {
		if s.Active {
			return s, nil
		}
	}
	return Schedule{}, fmt.Errorf("%w for %s", ErrNoActiveSchedule, o.Type)
}

type BoxSize struct {
	Name  string          `yaml:"name"`
	Price decimal.Decimal `yaml:"-"`
}

type PaymentInterval struct {
	Weeks    int             `yaml:"weeks"`
	Discount decimal.Decimal `yaml:"-"`
}

// Addon is an extra a member can put in a single week's box
type Addon struct {
	Name        string
	Description string
	Price       decimal.Decimal
	Available   bool
}

// Catalog is the lookup table consulted when subscriptions are created and
// their orders generated.
type Catalog struct {
	BoxSizes           []BoxSize
	FulfillmentOptions []FulfillmentOption
	PaymentIntervals   []PaymentInterval
	Addons             []Addon
}

// Default returns the farm's standard catalog
func Default() *Catalog {
	return &Catalog{
		BoxSizes: []BoxSize{
			{Name: "small", Price: decimal.RequireFromString("25.00")},
			{Name: "large", Price: decimal.RequireFromString("40.00")},
		},
		FulfillmentOptions: []FulfillmentOption{
			{
				Type: FulfillmentDelivery,
				Schedules: []Schedule{
					{DayOfWeek: time.Wednesday, Time: "10:00", CutoffHoursBefore: 48, Active: true},
					{DayOfWeek: time.Saturday, Time: "10:00", CutoffHoursBefore: 48, Active: true},
				},
			},
			{
				Type: FulfillmentPickup,
				Schedules: []Schedule{
					{DayOfWeek: time.Tuesday, Time: "14:00", CutoffHoursBefore: 24, Active: true},
					{DayOfWeek: time.Friday, Time: "14:00", CutoffHoursBefore: 24, Active: true},
				},
			},
		},
		PaymentIntervals: []PaymentInterval{
			{Weeks: 4, Discount: decimal.Zero},
			{Weeks: 8, Discount: decimal.RequireFromString("0.05")},
			{Weeks: 12, Discount: decimal.RequireFromString("0.10")},
		},
		Addons: []Addon{
			{Name: "eggs", Description: "A dozen pasture-raised eggs", Price: decimal.RequireFromString("6.00"), Available: true},
			{Name: "honey", Description: "12oz jar of wildflower honey", Price: decimal.RequireFromString("9.00"), Available: true},
			{Name: "sourdough", Description: "Whole wheat sourdough loaf", Price: decimal.RequireFromString("7.50"), Available: true},
			{Name: "flowers", Description: "Cut flower bouquet", Price: decimal.RequireFromString("15.00"), Available: false},
		},
	}
}

func (c *Catalog) BoxSize(name string) (BoxSize, error) {
	for _, b := range c.BoxSizes {
		if b.Name == name {
			return b, nil
		}
	}
	return BoxSize{}, fmt.Errorf("%w: %q", ErrUnknownBoxSize, name)
}

func (c *Catalog) FulfillmentOption(fulfillmentType string) (FulfillmentOption, error) {
	for _, o := range c.FulfillmentOptions {
		if o.Type == fulfillmentType {
			return o, nil
		}
	}
	return FulfillmentOption{}, fmt.Errorf("%w: %q", ErrUnknownFulfillmentType, fulfillmentType)
}

func (c *Catalog) PaymentInterval(weeks int) (PaymentInterval, error) {
	for _, p := range c.PaymentIntervals {
		if p.Weeks == weeks {
			return p, nil
		}
	}
	return PaymentInterval{}, fmt.Errorf("%w: %d weeks", ErrUnknownPaymentInterval, weeks)
}

// Addon returns an add-on that can be ordered now
func (c *Catalog) Addon(name string) (Addon, error) {
	for _, a := range c.Addons {
		if a.Name == name {
			if !a.Available {
				return Addon{}, fmt.Errorf("%w: %q", ErrAddonUnavailable, name)
			}
			return a, nil
		}
	}
	return Addon{}, fmt.Errorf("%w: %q", ErrUnknownAddon, name)
}

// Price returns the per-box price for a size after the interval discount,
// rounded to cents.
func (c *Catalog) Price(size string, weeks int) (decimal.Decimal, error) {
	box, err := c.BoxSize(size)
	if err != nil {
		return decimal.Zero, err
	}
	interval, err := c.PaymentInterval(weeks)
	if err != nil {
		return decimal.Zero, err
	}
	return box.Price.Mul(decimal.NewFromInt(1).Sub(interval.Discount)).Round(2), nil
}

// Validate rejects catalogs that could never produce an order
func (c *Catalog) Validate() error {
	if len(c.BoxSizes) == 0 {
		return errors.New("catalog has no box sizes")
	}
	for _, b := range c.BoxSizes {
		if b.Name == "" || !b.Price.IsPositive() {
			return fmt.Errorf("box size %q needs a name and a positive price", b.Name)
		}
	}
	if len(c.PaymentIntervals) == 0 {
		return errors.New("catalog has no payment intervals")
	}
	for _, p := range c.PaymentIntervals {
		if p.Weeks <= 0 {
			return fmt.Errorf("payment interval must be at least one week, got %d", p.Weeks)
		}
		if p.Discount.IsNegative() || p.Discount.GreaterThanOrEqual(decimal.NewFromInt(1)) {
			return fmt.Errorf("payment interval %d has discount %s outside [0, 1)", p.Weeks, p.Discount)
		}
	}
	seen := make(map[string]bool, len(c.Addons))
	for _, a := range c.Addons {
		if a.Name == "" || !a.Price.IsPositive() {
			return fmt.Errorf("add-on %q needs a name and a positive price", a.Name)
		}
		if seen[a.Name] {
			return fmt.Errorf("add-on %q is listed twice", a.Name)
		}
		seen[a.Name] = true
	}
	for _, o := range c.FulfillmentOptions {
		for _, s := range o.Schedules {
			if s.DayOfWeek < time.Sunday || s.DayOfWeek > time.Saturday {
				return fmt.Errorf("%s schedule has day of week %d outside 0-6", o.Type, s.DayOfWeek)
			}
			if _, _, err := s.Clock(); err != nil {
				return fmt.Errorf("%s schedule: %w", o.Type, err)
			}
			if s.CutoffHoursBefore < 0 {
				return fmt.Errorf("%s schedule has negative cutoff", o.Type)
			}
		}
	}
	return nil
}

type fileBoxSize struct {
	Name  string `yaml:"name"`
	Price string `yaml:"price"`
}

type fileInterval struct {
	Weeks    int    `yaml:"weeks"`
	Discount string `yaml:"discount"`
}

type fileAddon struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Price       string `yaml:"price"`
	Available   *bool  `yaml:"available"`
}

type fileCatalog struct {
	BoxSizes           []fileBoxSize       `yaml:"box_sizes"`
	FulfillmentOptions []FulfillmentOption `yaml:"fulfillment_options"`
	PaymentIntervals   []fileInterval      `yaml:"payment_intervals"`
	Addons             []fileAddon         `yaml:"addons"`
}

// Load reads a catalog from a YAML file. Money values are strings so they
// parse exactly.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(data)
}

func Parse(data []byte) (*Catalog, error) {
	var raw fileCatalog
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}

	c := &Catalog{FulfillmentOptions: raw.FulfillmentOptions}
	for _, b := range raw.BoxSizes {
		price, err := decimal.NewFromString(b.Price)
		if err != nil {
			return nil, fmt.Errorf("box size %q price: %w", b.Name, err)
		}
		c.BoxSizes = append(c.BoxSizes, BoxSize{Name: b.Name, Price: price})
	}
	for _, p := range raw.PaymentIntervals {
		discount := decimal.Zero
		if p.Discount != "" {
			d, err := decimal.NewFromString(p.Discount)
			if err != nil {
				return nil, fmt.Errorf("payment interval %d discount: %w", p.Weeks, err)
			}
			discount = d
		}
		c.PaymentIntervals = append(c.PaymentIntervals, PaymentInterval{Weeks: p.Weeks, Discount: discount})
	}

	for _, a := range raw.Addons {
		price, err := decimal.NewFromString(a.Price)
		if err != nil {
			return nil, fmt.Errorf("add-on %q price: %w", a.Name, err)
		}
		// add-ons are on offer unless the file says otherwise
		available := a.Available == nil || *a.Available
		c.Addons = append(c.Addons, Addon{Name: a.Name, Description: a.Description, Price: price, Available: available})
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
