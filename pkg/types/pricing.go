package types

// PricingEntry is one row of the structured pricing catalog: a named
// service with its price band and the currency/unit it is quoted in. The
// catalog is static and loaded read-only at startup; the Calibrator uses it
// to authoritatively override a Reasoner's pricing claims.
type PricingEntry struct {
	ServiceID   string
	ServiceName string
	Category    string // e.g. "immigration", "tax", "corporate"
	MinPriceIDR float64
	MaxPriceIDR float64
	Unit        string // e.g. "per application", "per year"
	Notes       string
}
