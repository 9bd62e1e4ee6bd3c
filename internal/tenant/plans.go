package tenant

// Tier identifies a pricing tier. Tiers are a closed enumeration with
// explicit feature records: an unknown tier fails at resolution time instead
// of silently defaulting.
type Tier string

const (
	TierFree    Tier = "free"
	TierPro     Tier = "pro"
	TierPremium Tier = "premium"
)

// Unlimited marks a monthly limit with no cap.
const Unlimited = -1

// PlanConfig defines the limits and features of a pricing tier.
type PlanConfig struct {
	Tier Tier   `json:"tier"`
	Name string `json:"name"`
	// Monthly resource caps; Unlimited (-1) means no cap.
	MonthlyAppointmentLimit int `json:"monthly_appointment_limit"`
	MonthlyInvoiceLimit     int `json:"monthly_invoice_limit"`
	// Feature flags
	CustomLogo      bool `json:"custom_logo"`
	Automation      bool `json:"automation"`
	PrioritySupport bool `json:"priority_support"`
	// MonthlyPriceCents is the subscription price in centavos.
	MonthlyPriceCents int64 `json:"monthly_price_cents"`
}

// plans is the hardcoded plan catalogue.
var plans = map[Tier]PlanConfig{
	TierFree: {
		Tier:                    TierFree,
		Name:                    "Gratuito",
		MonthlyAppointmentLimit: 20,
		MonthlyInvoiceLimit:     10,
	},
	TierPro: {
		Tier:                    TierPro,
		Name:                    "Profissional",
		MonthlyAppointmentLimit: 200,
		MonthlyInvoiceLimit:     100,
		CustomLogo:              true,
		MonthlyPriceCents:       4990,
	},
	TierPremium: {
		Tier:                    TierPremium,
		Name:                    "Premium",
		MonthlyAppointmentLimit: Unlimited,
		MonthlyInvoiceLimit:     Unlimited,
		CustomLogo:              true,
		Automation:              true,
		PrioritySupport:         true,
		MonthlyPriceCents:       9990,
	},
}

// PlanFor resolves a tier to its configuration. Unknown tiers are an error,
// never a silent default.
func PlanFor(t Tier) (PlanConfig, error) {
	cfg, ok := plans[t]
	if !ok {
		return PlanConfig{}, ErrUnknownTier
	}
	return cfg, nil
}

// ValidTier returns true if the tier is recognised.
func ValidTier(t Tier) bool {
	_, ok := plans[t]
	return ok
}

// AllPlans returns the catalogue in ascending price order.
func AllPlans() []PlanConfig {
	return []PlanConfig{plans[TierFree], plans[TierPro], plans[TierPremium]}
}
