package core

import (
	"fmt"
	"strings"
	"sync"
)

// DefaultMaxDevices matches the device selector on the plan screen.
const DefaultMaxDevices = 4

// PurchaseIntent is one in-progress checkout selection.
//
// A discount is only ever attached for the exact promo code currently held;
// changing the code drops it before any new validation can finish.
type PurchaseIntent struct {
	mu         sync.Mutex
	planID     PlanID
	devices    int
	maxDevices int
	promoCode  string
	discount   *Discount
}

// IntentSnapshot is an immutable copy of a PurchaseIntent.
type IntentSnapshot struct {
	PlanID    PlanID    `json:"planId"`
	Devices   int       `json:"deviceCount"`
	PromoCode string    `json:"promoCode,omitempty"`
	Discount  *Discount `json:"appliedDiscount,omitempty"`
}

func NewPurchaseIntent(plan PlanID, devices int) (*PurchaseIntent, error) {
	intent := &PurchaseIntent{maxDevices: DefaultMaxDevices}
	if err := intent.SelectPlan(plan); err != nil {
		return nil, err
	}
	if err := intent.SetDevices(devices); err != nil {
		return nil, err
	}
	return intent, nil
}

// SetMaxDevices changes the device upper bound; zero or less removes it.
func (i *PurchaseIntent) SetMaxDevices(n int) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.maxDevices = n
}

func (i *PurchaseIntent) SelectPlan(plan PlanID) error {
	if plan == "" {
		return fmt.Errorf("%w: empty plan", ErrInvalidPlan)
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.planID = plan
	return nil
}

func (i *PurchaseIntent) SetDevices(n int) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if n < 1 || (i.maxDevices > 0 && n > i.maxDevices) {
		return fmt.Errorf("%w: %d", ErrInvalidDeviceCount, n)
	}
	i.devices = n
	return nil
}

// NormalizePromoCode trims and upper-cases a user-entered code.
func NormalizePromoCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// SetPromoCode replaces the held code. Any discount applied for a different
// code is cleared immediately.
func (i *PurchaseIntent) SetPromoCode(code string) {
	code = NormalizePromoCode(code)
	i.mu.Lock()
	defer i.mu.Unlock()
	if code != i.promoCode {
		i.discount = nil
	}
	i.promoCode = code
}

func (i *PurchaseIntent) PromoCode() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.promoCode
}

// ApplyDiscount attaches d if code is still the held code.
func (i *PurchaseIntent) ApplyDiscount(code string, d Discount) error {
	code = NormalizePromoCode(code)
	i.mu.Lock()
	defer i.mu.Unlock()
	if code == "" || code != i.promoCode {
		return ErrStaleDiscount
	}
	i.discount = &d
	return nil
}

// ClearDiscount drops the discount if it belongs to code.
func (i *PurchaseIntent) ClearDiscount(code string) {
	code = NormalizePromoCode(code)
	i.mu.Lock()
	defer i.mu.Unlock()
	if code == i.promoCode {
		i.discount = nil
	}
}

func (i *PurchaseIntent) Discount() (Discount, bool) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.discount == nil {
		return Discount{}, false
	}
	return *i.discount, true
}

// Snapshot copies the intent. PromoCode is only set when a discount is
// applied for it, since an unvalidated code must never reach checkout.
func (i *PurchaseIntent) Snapshot() IntentSnapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	s := IntentSnapshot{PlanID: i.planID, Devices: i.devices}
	if i.discount != nil {
		d := *i.discount
		s.Discount = &d
		s.PromoCode = i.promoCode
	}
	return s
}

// Quote prices the intent against catalog.
func (i *PurchaseIntent) Quote(catalog Catalog) (Quote, error) {
	s := i.Snapshot()
	plan, err := catalog.Lookup(s.PlanID)
	if err != nil {
		return Quote{}, err
	}
	return Calculate(plan, s.Devices, s.Discount)
}
