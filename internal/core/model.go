package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// PropertyType is the display category of a saleable unit. Upstream CRM codes
// (flat, comm, garage, storageroom) are translated to these values during
// replication; unknown codes pass through unchanged.
type PropertyType string

const (
	PropertyFlat       PropertyType = "Квартира"
	PropertyCommercial PropertyType = "Коммерческое помещение"
	PropertyParking    PropertyType = "Парковка"
	PropertyStorage    PropertyType = "Кладовое помещение"
)

// PropertyTypes lists all categories in display order.
var PropertyTypes = []PropertyType{PropertyFlat, PropertyCommercial, PropertyParking, PropertyStorage}

// PaymentMethod distinguishes the two discount-row payment axes.
type PaymentMethod string

const (
	FullPayment PaymentMethod = "100% оплата"
	Mortgage    PaymentMethod = "Ипотека"
)

// PaymentMethods lists both methods in display order.
var PaymentMethods = []PaymentMethod{FullPayment, Mortgage}

var categoryDisplay = map[string]string{
	"flat":        string(PropertyFlat),
	"comm":        string(PropertyCommercial),
	"garage":      string(PropertyParking),
	"storageroom": string(PropertyStorage),
}

// CategoryToDisplay translates an upstream category code into the display
// value. The second result is false for unmapped codes, which come back as-is.
func CategoryToDisplay(code string) (string, bool) {
	if display, ok := categoryDisplay[code]; ok {
		return display, true
	}
	return code, false
}

// Pricing constants shared by the offer engine, budget search, and the
// installment calculators. Amounts are UZS.
var (
	ReservationFee = decimal.NewFromInt(3_000_000)

	MaxMortgageBodyStandard = decimal.NewFromInt(420_000_000)
	MaxMortgageBodyExtended = decimal.NewFromInt(840_000_000)

	MinDPFractionStandard = decimal.NewFromFloat(0.15)
	MinDPFractionExtended = decimal.NewFromFloat(0.25)
)

// ActiveUnitStatuses are the inventory statuses considered saleable by the
// budget search and remainder summaries.
var ActiveUnitStatuses = []string{"Маркетинговый резерв", "Подбор"}

// MortgageVariant selects between the standard and extended mortgage products.
type MortgageVariant string

const (
	MortgageStandard MortgageVariant = "standard"
	MortgageExtended MortgageVariant = "extended"
)

// BodyCap returns the maximum mortgage body for the variant.
func (v MortgageVariant) BodyCap() decimal.Decimal {
	if v == MortgageExtended {
		return MaxMortgageBodyExtended
	}
	return MaxMortgageBodyStandard
}

// MinDPFraction returns the minimum down-payment fraction for the variant.
func (v MortgageVariant) MinDPFraction() decimal.Decimal {
	if v == MortgageExtended {
		return MinDPFractionExtended
	}
	return MinDPFractionStandard
}

// ── Replicated mirror entities ────────────────────────────────────────────────

type House struct {
	ID      int64   `json:"id"`
	Project string  `json:"complex_name"`
	Name    string  `json:"name"`
	Geo     *string `json:"geo,omitempty"`
}

type Unit struct {
	ID       int64            `json:"id"`
	HouseID  int64            `json:"house_id"`
	Category string           `json:"category"`
	Floor    *int             `json:"floor"`
	Rooms    *int             `json:"rooms"`
	PriceM2  *decimal.Decimal `json:"price_per_sqm"`
	Status   *string          `json:"status"`
	Price    *decimal.Decimal `json:"price"`
	Area     *decimal.Decimal `json:"area"`
}

type Deal struct {
	ID              int64
	UnitID          int64
	Status          *string
	ManagerID       *int64
	AgreementDate   *time.Time
	PreliminaryDate *time.Time
	Sum             *decimal.Decimal
	ModifiedAt      *time.Time
}

type FinanceOp struct {
	ID        int64
	UnitID    int64
	Amount    *decimal.Decimal
	Status    *string
	Type      *string
	BookedOn  *time.Time
	DueOn     *time.Time
	ManagerID *int64
}

type Lead struct {
	ID           int64
	CreatedOn    *time.Time
	Status       *string
	CustomStatus *string
}

type LeadStatusEvent struct {
	ID        int64
	LeadID    int64
	EventTime *time.Time
	ToStatus  *string
	ToCustom  *string
	ManagerID *int64
}

// Manager identity is the trimmed full name; the upstream id of the first
// occurrence per name is retained for reference only.
type Manager struct {
	ID        int64
	FullName  string
	PostTitle *string
}

// ── Discount matrix ───────────────────────────────────────────────────────────

type DiscountVersion struct {
	ID                 int64     `json:"id"`
	Number             int       `json:"version_number"`
	Comment            *string   `json:"comment"`
	IsActive           bool      `json:"is_active"`
	WasEverActivated   bool      `json:"was_ever_activated"`
	ChangesSummaryJSON *string   `json:"changes_summary,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
}

// DiscountRow holds the coefficient set for one (version, project, property
// type, payment method) key. Coefficients are fractions in [0,1].
type DiscountRow struct {
	ID            int64         `json:"id"`
	VersionID     int64         `json:"version_id"`
	Project       string        `json:"complex_name"`
	PropertyType  PropertyType  `json:"property_type"`
	PaymentMethod PaymentMethod `json:"payment_method"`

	MPP         decimal.Decimal `json:"mpp"`
	ROP         decimal.Decimal `json:"rop"`
	KD          decimal.Decimal `json:"kd"`
	OPT         decimal.Decimal `json:"opt"`
	GD          decimal.Decimal `json:"gd"`
	Holding     decimal.Decimal `json:"holding"`
	Shareholder decimal.Decimal `json:"shareholder"`
	Action      decimal.Decimal `json:"action"`

	CadastreDate *time.Time `json:"cadastre_date"`
}

// CoefficientNames lists the coefficient columns in their canonical order.
var CoefficientNames = []string{"mpp", "rop", "kd", "opt", "gd", "holding", "shareholder", "action"}

// Coefficient returns the named coefficient, zero for unknown names.
func (r DiscountRow) Coefficient(name string) decimal.Decimal {
	switch name {
	case "mpp":
		return r.MPP
	case "rop":
		return r.ROP
	case "kd":
		return r.KD
	case "opt":
		return r.OPT
	case "gd":
		return r.GD
	case "holding":
		return r.Holding
	case "shareholder":
		return r.Shareholder
	case "action":
		return r.Action
	}
	return decimal.Zero
}

// SetCoefficient assigns the named coefficient; unknown names are ignored.
func (r *DiscountRow) SetCoefficient(name string, v decimal.Decimal) {
	switch name {
	case "mpp":
		r.MPP = v
	case "rop":
		r.ROP = v
	case "kd":
		r.KD = v
	case "opt":
		r.OPT = v
	case "gd":
		r.GD = v
	case "holding":
		r.Holding = v
	case "shareholder":
		r.Shareholder = v
	case "action":
		r.Action = v
	}
}

// ProjectNote is the per-project free text attached to a discount version.
type ProjectNote struct {
	ID        int64   `json:"id"`
	VersionID int64   `json:"version_id"`
	Project   string  `json:"complex_name"`
	Note      *string `json:"note"`
}

// ── Planning entities ─────────────────────────────────────────────────────────

type SalesPlan struct {
	ID           int64           `json:"id"`
	Project      string          `json:"complex_name"`
	PropertyType string          `json:"property_type"`
	Year         int             `json:"year"`
	Month        int             `json:"month"`
	PlanUnits    int             `json:"plan_units"`
	PlanVolume   decimal.Decimal `json:"plan_volume"`
	PlanIncome   decimal.Decimal `json:"plan_income"`
}

type ManagerPlan struct {
	ID         int64           `json:"id"`
	ManagerID  int64           `json:"manager_id"`
	Year       int             `json:"year"`
	Month      int             `json:"month"`
	PlanVolume decimal.Decimal `json:"plan_volume"`
	PlanIncome decimal.Decimal `json:"plan_income"`
}

// CashbackCell is one cell of the zero-rate mortgage cashback matrix, keyed
// by (term months, down-payment percent). Cashback is a fraction of contract
// value.
type CashbackCell struct {
	TermMonths int             `json:"term_months"`
	DPPercent  int             `json:"dp_percent"`
	Cashback   decimal.Decimal `json:"cashback_percent"`
}

// ── Exclusions ────────────────────────────────────────────────────────────────

type ExcludedUnit struct {
	UnitID    int64     `json:"unit_id"`
	Comment   *string   `json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

type ExcludedProject struct {
	ID      int64  `json:"id"`
	Project string `json:"complex_name"`
}

// ── Singletons ────────────────────────────────────────────────────────────────

// RateSource selects which stored rate is effective.
type RateSource string

const (
	RateSourceCBU    RateSource = "cbu"
	RateSourceManual RateSource = "manual"
)

// CurrencySettings is the process-wide singleton row (id = 1) holding the
// USD→UZS rate state.
type CurrencySettings struct {
	Source         RateSource      `json:"source"`
	CBURate        decimal.Decimal `json:"cbu_rate"`
	ManualRate     decimal.Decimal `json:"manual_rate"`
	EffectiveRate  decimal.Decimal `json:"effective_rate"`
	CBULastUpdated *time.Time      `json:"cbu_last_updated"`
}

// CalculatorSettings is the process-wide singleton row (id = 1) of installment
// calculator tunables. Whitelists are comma-separated unit ids.
type CalculatorSettings struct {
	StandardInstallmentWhitelist string          `json:"standard_installment_whitelist"`
	DPInstallmentWhitelist       string          `json:"dp_installment_whitelist"`
	ZeroMortgageWhitelist        string          `json:"zero_mortgage_whitelist"`
	DPInstallmentMaxTerm         int             `json:"dp_installment_max_term"`
	TimeValueRateAnnual          decimal.Decimal `json:"time_value_rate_annual"`
	MinStandardInstallmentDPPct  decimal.Decimal `json:"min_standard_installment_dp_pct"`
}
