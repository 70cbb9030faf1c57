package core

import (
	"fmt"
	"math"
)

type PlanID string

const (
	Plan30Days  PlanID = "30days"
	Plan90Days  PlanID = "90days"
	Plan180Days PlanID = "180days"
	Plan365Days PlanID = "365days"
)

// PlanTier is a static catalog entry. Prices are in minor currency units.
//
// The catalog is a display mirror; the backend computes the charged amount.
type PlanTier struct {
	ID                      PlanID `json:"id"`
	Name                    string `json:"name"`
	BasePrice               int64  `json:"basePrice"`
	PeriodDays              int    `json:"periodDays"`
	PricePerDevicePerPeriod int64  `json:"pricePerDevicePerPeriod"`
	IsFeatured              bool   `json:"isFeatured"`
	DiscountLabel           string `json:"discountLabel,omitempty"`
}

type Catalog []PlanTier

// DefaultPlan is preselected on the plan-selection screen.
const DefaultPlan = Plan180Days

func DefaultCatalog() Catalog {
	return Catalog{
		{ID: Plan30Days, Name: "30 days", BasePrice: 100, PeriodDays: 30, PricePerDevicePerPeriod: 100},
		{ID: Plan90Days, Name: "90 days", BasePrice: 270, PeriodDays: 90, PricePerDevicePerPeriod: 90, DiscountLabel: "-10%"},
		{ID: Plan180Days, Name: "180 days", BasePrice: 480, PeriodDays: 180, PricePerDevicePerPeriod: 80, IsFeatured: true, DiscountLabel: "-20%"},
		{ID: Plan365Days, Name: "365 days", BasePrice: 850, PeriodDays: 365, PricePerDevicePerPeriod: 70, DiscountLabel: "-30%"},
	}
}

func (c Catalog) Lookup(id PlanID) (PlanTier, error) {
	for _, p := range c {
		if p.ID == id {
			return p, nil
		}
	}
	return PlanTier{}, fmt.Errorf("%w: %q", ErrInvalidPlan, id)
}

type DiscountType string

const (
	DiscountPercentage DiscountType = "percentage"
	DiscountFixed      DiscountType = "fixed"
)

const basisPointsPerWhole = 10000

// Discount is a validated discount in integer form.
//
// For DiscountPercentage, Value is in basis points (1050 = 10.5%).
// For DiscountFixed, Value is in minor currency units.
type Discount struct {
	Type  DiscountType `json:"type"`
	Value int64        `json:"value"`
}

// NewDiscount converts the backend's numeric discount terms. Percentages must
// be within [0, 100]; fixed amounts must be non-negative.
func NewDiscount(t DiscountType, raw float64) (Discount, error) {
	if math.IsNaN(raw) || math.IsInf(raw, 0) || raw < 0 {
		return Discount{}, fmt.Errorf("%w: value %v", ErrInvalidDiscount, raw)
	}
	switch t {
	case DiscountPercentage:
		if raw > 100 {
			return Discount{}, fmt.Errorf("%w: percentage %v", ErrInvalidDiscount, raw)
		}
		return Discount{Type: t, Value: int64(math.Round(raw * 100))}, nil
	case DiscountFixed:
		return Discount{Type: t, Value: int64(math.Round(raw))}, nil
	default:
		return Discount{}, fmt.Errorf("%w: type %q", ErrInvalidDiscount, t)
	}
}

// Apply returns total after the discount, never below zero. Percentages
// round half up to the nearest minor unit.
func (d Discount) Apply(total int64) int64 {
	switch d.Type {
	case DiscountPercentage:
		bp := min(max(d.Value, 0), basisPointsPerWhole)
		return (total*(basisPointsPerWhole-bp) + basisPointsPerWhole/2) / basisPointsPerWhole
	case DiscountFixed:
		return max(total-d.Value, 0)
	default:
		return total
	}
}

// Percent returns the percentage for display; zero for fixed discounts.
func (d Discount) Percent() float64 {
	if d.Type != DiscountPercentage {
		return 0
	}
	return float64(d.Value) / 100
}

// Quote is a price estimate for one plan and device count.
type Quote struct {
	Plan           PlanID    `json:"plan"`
	Devices        int       `json:"devices"`
	Subtotal       int64     `json:"subtotal"`
	PerPeriod      int64     `json:"perPeriod"`
	Discount       *Discount `json:"discount,omitempty"`
	DiscountAmount int64     `json:"discountAmount"`
	Total          int64     `json:"total"`
}

// Total is plan.BasePrice × devices.
func Total(plan PlanTier, devices int) int64 {
	return plan.BasePrice * int64(devices)
}

// Calculate prices a plan. The result depends only on its arguments, so
// recomputing after every device-count change never drifts.
func Calculate(plan PlanTier, devices int, discount *Discount) (Quote, error) {
	if devices < 1 {
		return Quote{}, fmt.Errorf("%w: %d", ErrInvalidDeviceCount, devices)
	}

	subtotal := Total(plan, devices)
	q := Quote{
		Plan:      plan.ID,
		Devices:   devices,
		Subtotal:  subtotal,
		PerPeriod: plan.PricePerDevicePerPeriod * int64(devices),
		Total:     subtotal,
	}
	if discount != nil {
		d := *discount
		q.Discount = &d
		q.Total = d.Apply(subtotal)
		q.DiscountAmount = subtotal - q.Total
	}
	return q, nil
}
