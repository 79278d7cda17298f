package payments

// Per-country minimum charge in minor units. Zero-decimal and high-minimum
// markets need at least 100; everywhere else a single unit passes.
var amountFloors = map[string]int64{
	"US": 1,
	"CA": 1,
	"JP": 100,
	"GB": 100,
	"AU": 100,
}

const defaultAmountFloor = 1

// MinimumAmount returns the processor's minimum charge for a country.
func MinimumAmount(country string) int64 {
	if floor, ok := amountFloors[country]; ok {
		return floor
	}
	return defaultAmountFloor
}

// ValidateAmount checks the requested amount against the per-country floor.
func ValidateAmount(amountCents int64, country string) error {
	if amountCents < MinimumAmount(country) {
		return ErrAmountTooSmall
	}
	return nil
}

// FeedConfig is the per-feed payment policy derived from the form
// configuration.
type FeedConfig struct {
	// AuthorizeOnly defers capture to a later manual admin action. The
	// processor expires uncaptured authorizations after six days.
	AuthorizeOnly bool

	// CreateCustomer links the payment to a customer profile (best effort).
	CreateCustomer bool

	// CreateOrder links the payment to an order object (best effort).
	CreateOrder bool

	Note string
}
