package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tenPercent() Discount {
	return Discount{Type: DiscountPercentage, Value: 1000}
}

// Requirement: changing the promo code clears any applied discount before a
// new validation can complete.
func TestPurchaseIntent_ChangingCodeClearsDiscount(t *testing.T) {
	// Arrange
	intent, err := NewPurchaseIntent(Plan180Days, 2)
	require.NoError(t, err)
	intent.SetPromoCode("x")
	require.NoError(t, intent.ApplyDiscount("X", tenPercent()))

	// Act
	intent.SetPromoCode("Y")

	// Assert
	_, ok := intent.Discount()
	assert.False(t, ok)
	assert.Empty(t, intent.Snapshot().PromoCode)
}

// Requirement: a validation result for a code that is no longer held is rejected.
func TestPurchaseIntent_StaleValidation(t *testing.T) {
	// Arrange
	intent, err := NewPurchaseIntent(Plan180Days, 1)
	require.NoError(t, err)
	intent.SetPromoCode("FIRST")
	intent.SetPromoCode("SECOND")

	// Act
	err = intent.ApplyDiscount("FIRST", tenPercent())

	// Assert
	require.ErrorIs(t, err, ErrStaleDiscount)
	_, ok := intent.Discount()
	assert.False(t, ok)
}

// Requirement: setting the same code again keeps the discount.
func TestPurchaseIntent_SameCodeKeepsDiscount(t *testing.T) {
	intent, err := NewPurchaseIntent(Plan90Days, 1)
	require.NoError(t, err)
	intent.SetPromoCode("save10")
	require.NoError(t, intent.ApplyDiscount("SAVE10", tenPercent()))

	intent.SetPromoCode("  save10 ")

	d, ok := intent.Discount()
	assert.True(t, ok)
	assert.Equal(t, tenPercent(), d)
	assert.Equal(t, "SAVE10", intent.Snapshot().PromoCode)
}

// Requirement: device count stays within [1, max].
func TestPurchaseIntent_SetDevices(t *testing.T) {
	tests := []struct {
		name    string
		max     int
		devices int
		wantErr bool
	}{
		{name: "one", max: DefaultMaxDevices, devices: 1},
		{name: "max", max: DefaultMaxDevices, devices: 4},
		{name: "zero", max: DefaultMaxDevices, devices: 0, wantErr: true},
		{name: "above max", max: DefaultMaxDevices, devices: 5, wantErr: true},
		{name: "unbounded", max: 0, devices: 100},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			intent, err := NewPurchaseIntent(Plan30Days, 1)
			require.NoError(t, err)
			intent.SetMaxDevices(test.max)

			err = intent.SetDevices(test.devices)

			if test.wantErr {
				require.ErrorIs(t, err, ErrInvalidDeviceCount)
				assert.Equal(t, 1, intent.Snapshot().Devices)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.devices, intent.Snapshot().Devices)
		})
	}
}

// Requirement: the quote follows device changes and the applied discount.
func TestPurchaseIntent_Quote(t *testing.T) {
	// Arrange
	intent, err := NewPurchaseIntent(Plan180Days, 2)
	require.NoError(t, err)

	// Act
	before, err := intent.Quote(DefaultCatalog())
	require.NoError(t, err)
	intent.SetPromoCode("X")
	require.NoError(t, intent.ApplyDiscount("X", tenPercent()))
	after, err := intent.Quote(DefaultCatalog())
	require.NoError(t, err)

	// Assert
	assert.Equal(t, int64(960), before.Total)
	assert.Equal(t, int64(864), after.Total)
}

func TestPortal_NewIntent(t *testing.T) {
	p := &Portal{Catalog: DefaultCatalog()}

	intent := p.NewIntent()

	s := intent.Snapshot()
	assert.Equal(t, DefaultPlan, s.PlanID)
	assert.Equal(t, 1, s.Devices)
	require.ErrorIs(t, intent.SetDevices(DefaultMaxDevices+1), ErrInvalidDeviceCount)
}
