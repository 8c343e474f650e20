package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/csa-share-api/catalog"
)

type boxSizeView struct {
	Name  string `json:"name"`
	Price string `json:"price"`
}

type intervalView struct {
	Weeks    int      `json:"weeks"`
	Discount string   `json:"discount"`
	Prices   []string `json:"box_prices"`
}

type scheduleView struct {
	DayOfWeek         string `json:"day_of_week"`
	Time              string `json:"time"`
	CutoffHoursBefore int    `json:"cutoff_hours_before"`
	Active            bool   `json:"active"`
}

type addonView struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Price       string `json:"price"`
}

type CatalogController struct {
	catalog *catalog.Catalog
}

func NewCatalogController(cat *catalog.Catalog) *CatalogController {
	return &CatalogController{catalog: cat}
}

// GetCatalog handles GET /api/v1/catalog - lists what can be bought
func (cc *CatalogController) GetCatalog(c *gin.Context) {
	boxes := make([]boxSizeView, 0, len(cc.catalog.BoxSizes))
	for _, b := range cc.catalog.BoxSizes {
		boxes = append(boxes, boxSizeView{Name: b.Name, Price: b.Price.StringFixed(2)})
	}

	intervals := make([]intervalView, 0, len(cc.catalog.PaymentIntervals))
	for _, p := range cc.catalog.PaymentIntervals {
		view := intervalView{Weeks: p.Weeks, Discount: p.Discount.String()}
		for _, b := range cc.catalog.BoxSizes {
			price, err := cc.catalog.Price(b.Name, p.Weeks)
			if err != nil {
				continue
			}
			view.Prices = append(view.Prices, b.Name+":"+price.StringFixed(2))
		}
		intervals = append(intervals, view)
	}

	fulfillment := make(map[string][]scheduleView, len(cc.catalog.FulfillmentOptions))
	for _, o := range cc.catalog.FulfillmentOptions {
		for _, s := range o.Schedules {
			fulfillment[o.Type] = append(fulfillment[o.Type], scheduleView{
				DayOfWeek:         s.DayOfWeek.String(),
				Time:              s.Time,
				CutoffHoursBefore: s.CutoffHoursBefore,
				Active:            s.Active,
			})
		}
	}

	// add-ons that are out of season are left off
	addons := make([]addonView, 0, len(cc.catalog.Addons))
	for _, a := range cc.catalog.Addons {
		if a.Available {
			addons = append(addons, addonView{Name: a.Name, Description: a.Description, Price: a.Price.StringFixed(2)})
		}
	}

	respondData(c, http.StatusOK, gin.H{
		"box_sizes":         boxes,
		"payment_intervals": intervals,
		"fulfillment":       fulfillment,
		"addons":            addons,
	})
}
