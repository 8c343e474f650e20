package catalog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalogIsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestPrice(t *testing.T) {
	c := Default()

	tests := []struct {
		size  string
		weeks int
		want  string
	}{
		{"small", 4, "25"},
		{"small", 8, "23.75"},
		{"small", 12, "22.5"},
		{"large", 4, "40"},
		{"large", 8, "38"},
		{"large", 12, "36"},
	}

	for _, tt := range tests {
		got, err := c.Price(tt.size, tt.weeks)
		require.NoError(t, err)
		assert.True(t, decimal.RequireFromString(tt.want).Equal(got), "%s/%d: got %s", tt.size, tt.weeks, got)
	}
}

func TestLookupErrors(t *testing.T) {
	c := Default()

	_, err := c.BoxSize("medium")
	assert.ErrorIs(t, err, ErrUnknownBoxSize)

	_, err = c.PaymentInterval(6)
	assert.ErrorIs(t, err, ErrUnknownPaymentInterval)

	_, err = c.FulfillmentOption("drone")
	assert.ErrorIs(t, err, ErrUnknownFulfillmentType)

	_, err = c.Price("small", 6)
	assert.ErrorIs(t, err, ErrUnknownPaymentInterval)
}

func TestFirstActiveSchedule(t *testing.T) {
	opt, err := Default().FulfillmentOption("pickup")
	require.NoError(t, err)

	s, err := opt.FirstActiveSchedule()
	require.NoError(t, err)
	assert.Equal(t, time.Tuesday, s.DayOfWeek)
	assert.Equal(t, "14:00", s.Time)
	assert.Equal(t, 24*time.Hour, s.CutoffBefore())

	opt.Schedules[0].Active = false
	s, err = opt.FirstActiveSchedule()
	require.NoError(t, err)
	assert.Equal(t, time.Friday, s.DayOfWeek)

	opt.Schedules[1].Active = false
	_, err = opt.FirstActiveSchedule()
	assert.ErrorIs(t, err, ErrNoActiveSchedule)
}

func TestScheduleClock(t *testing.T) {
	h, m, err := Schedule{Time: "09:30"}.Clock()
	require.NoError(t, err)
	assert.Equal(t, 9, h)
	assert.Equal(t, 30, m)

	_, _, err = Schedule{Time: "half past nine"}.Clock()
	assert.Error(t, err)
}

const sampleYAML = `
box_sizes:
  - name: family
    price: "55.50"
fulfillment_options:
  - type: pickup
    schedules:
      - day_of_week: 4
        time: "16:30"
        cutoff_hours_before: 36
        active: true
payment_intervals:
  - weeks: 6
    discount: "0.03"
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleYAML), 0o600))

	c, err := Load(path)
	require.NoError(t, err)

	price, err := c.Price("family", 6)
	require.NoError(t, err)
	assert.Equal(t, "53.84", price.StringFixed(2))

	opt, err := c.FulfillmentOption("pickup")
	require.NoError(t, err)
	s, err := opt.FirstActiveSchedule()
	require.NoError(t, err)
	assert.Equal(t, time.Thursday, s.DayOfWeek)
	assert.Equal(t, 36, s.CutoffHoursBefore)
}

func TestAddonLookup(t *testing.T) {
	c := Default()

	eggs, err := c.Addon("eggs")
	require.NoError(t, err)
	assert.Equal(t, "6.00", eggs.Price.StringFixed(2))

	_, err = c.Addon("flowers")
	assert.ErrorIs(t, err, ErrAddonUnavailable)

	_, err = c.Addon("goat")
	assert.ErrorIs(t, err, ErrUnknownAddon)
}

func TestParseAddons(t *testing.T) {
	doc := "box_sizes: [{name: small, price: \"10\"}]\npayment_intervals: [{weeks: 4}]\n" +
		"addons:\n" +
		"  - {name: jam, description: Strawberry jam, price: \"4.25\"}\n" +
		"  - {name: cider, price: \"8\", available: false}\n"

	c, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, c.Addons, 2)
	assert.True(t, c.Addons[0].Available, "available unless stated")
	assert.Equal(t, "Strawberry jam", c.Addons[0].Description)
	assert.False(t, c.Addons[1].Available)

	_, err = c.Addon("cider")
	assert.ErrorIs(t, err, ErrAddonUnavailable)
}

func TestParseRejectsInvalidCatalog(t *testing.T) {
	const base = "box_sizes: [{name: small, price: \"10\"}]\npayment_intervals: [{weeks: 4}]\n"
	tests := map[string]string{
		"bad price":     "box_sizes: [{name: small, price: lots}]\npayment_intervals: [{weeks: 4}]",
		"no intervals":  "box_sizes: [{name: small, price: \"10\"}]",
		"full discount": "box_sizes: [{name: small, price: \"10\"}]\npayment_intervals: [{weeks: 4, discount: \"1\"}]",
		"bad time":      base + "fulfillment_options: [{type: pickup, schedules: [{day_of_week: 2, time: \"25:00\", active: true}]}]",
		"bad weekday":   base + "fulfillment_options: [{type: pickup, schedules: [{day_of_week: 9, time: \"10:00\", active: true}]}]",
		"free add-on":   base + "addons: [{name: eggs, price: \"0\"}]",
		"twin add-ons":  base + "addons: [{name: eggs, price: \"6\"}, {name: eggs, price: \"5\"}]",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
