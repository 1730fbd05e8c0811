package app

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
)

// DiscountVersionDetail bundles a version with its rows and project notes,
// which the UI always shows together.
type DiscountVersionDetail struct {
	Version *core.DiscountVersion `json:"version"`
	Rows    []core.DiscountRow    `json:"rows"`
	Notes   []core.ProjectNote    `json:"notes"`
}

// ImportOutcome reports how many spreadsheet rows landed as inserts vs updates.
type ImportOutcome struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
}

// ApplicationService is the single interface all UI adapters (Web, CLI) call.
// It decouples presentation from business logic. Implementations must contain
// no fmt.Println and no display logic of any kind.
type ApplicationService interface {
	// UnitOffer builds the full offer card for one unit: every purchase
	// option priced under the active discount version.
	UnitOffer(ctx context.Context, unitID int64) (*core.UnitOffer, error)

	// SearchByBudget returns units affordable within the budget, grouped by
	// project, payment method and room count.
	SearchByBudget(ctx context.Context, req core.BudgetSearchRequest) (map[string]*core.ProjectMatches, error)

	// StandardInstallment computes an interest-adjusted installment plan.
	StandardInstallment(ctx context.Context, req core.StandardInstallmentRequest) (*core.InstallmentPlan, error)

	// DPInstallment splits the mortgage down payment into monthly parts.
	DPInstallment(ctx context.Context, req core.DPInstallmentRequest) (*core.DPInstallmentPlan, error)

	// ZeroMortgage computes the cashback-financed zero-rate mortgage plan.
	ZeroMortgage(ctx context.Context, req core.ZeroMortgageRequest) (*core.ZeroMortgagePlan, error)

	// DiscountSummary returns the per-project digest of the active version.
	DiscountSummary(ctx context.Context) (map[string]core.ProjectDiscountSummary, error)

	// ListDiscountVersions returns all versions, newest first.
	ListDiscountVersions(ctx context.Context) ([]core.DiscountVersion, error)

	// DiscountVersion returns one version with its rows and notes.
	DiscountVersion(ctx context.Context, versionID int64) (*DiscountVersionDetail, error)

	// CreateDiscountDraft creates an empty draft version.
	CreateDiscountDraft(ctx context.Context, comment string) (*core.DiscountVersion, error)

	// CloneActiveDiscounts copies the active version into a new draft.
	CloneActiveDiscounts(ctx context.Context) (*core.DiscountVersion, error)

	// UpdateDiscountDraft applies cell edits to a draft. Returns the number
	// of coefficients actually changed.
	UpdateDiscountDraft(ctx context.Context, versionID int64, edits []core.DiscountEdit, changesJSON string) (int, error)

	// ActivateDiscountVersion swaps the active flag to the given version and
	// fans the change notice out to e-mail subscribers and Telegram.
	// Notification failures are logged, never returned.
	ActivateDiscountVersion(ctx context.Context, versionID int64, comment string) error

	// DeleteDiscountDraft removes a never-activated draft.
	DeleteDiscountDraft(ctx context.Context, versionID int64) error

	// SetProjectNote attaches a free-form note to a project within a version.
	SetProjectNote(ctx context.Context, versionID int64, project, note string) error

	// DiscountTemplate renders the discount spreadsheet pre-filled from the
	// active version, one row per project/type/method combination.
	DiscountTemplate(ctx context.Context) ([]byte, error)

	// ImportDiscountWorkbook parses an uploaded spreadsheet and upserts its
	// rows into the given draft.
	ImportDiscountWorkbook(ctx context.Context, versionID int64, r io.Reader) (*ImportOutcome, error)

	// CurrencySettings returns the rate source and stored rates.
	CurrencySettings(ctx context.Context) (*core.CurrencySettings, error)

	// SetRateSource switches between the manual and CBU rate.
	SetRateSource(ctx context.Context, source core.RateSource) error

	// SetManualRate stores an operator-entered UZS-per-USD rate.
	SetManualRate(ctx context.Context, rate decimal.Decimal) error

	// RefreshCBURate pulls today's rate from the central bank.
	RefreshCBURate(ctx context.Context) (decimal.Decimal, error)

	// RateOn returns the rate that applied on a past date.
	RateOn(ctx context.Context, day time.Time) (decimal.Decimal, error)

	// CalculatorSettings returns whitelists, term bounds and rate knobs.
	CalculatorSettings(ctx context.Context) (*core.CalculatorSettings, error)

	// UpdateCalculatorSettings replaces the whole settings row.
	UpdateCalculatorSettings(ctx context.Context, s core.CalculatorSettings) error

	// ListExcludedUnits returns units hidden from budget search.
	ListExcludedUnits(ctx context.Context) ([]core.ExcludedUnit, error)

	// ExcludeUnit hides a unit from budget search.
	ExcludeUnit(ctx context.Context, unitID int64, comment string) error

	// IncludeUnit returns a unit to budget search.
	IncludeUnit(ctx context.Context, unitID int64) error

	// ListExcludedProjects returns projects hidden from public surfaces.
	ListExcludedProjects(ctx context.Context) ([]core.ExcludedProject, error)

	// ToggleProjectExclusion flips a project's exclusion. Returns true when
	// the project ends up excluded.
	ToggleProjectExclusion(ctx context.Context, project string) (bool, error)

	// RunSync replicates the upstream CRM into the mirror. full wipes the
	// mirror first.
	RunSync(ctx context.Context, full bool) ([]core.TableOutcome, error)

	// SyncHistory returns recent replication runs, newest first.
	SyncHistory(ctx context.Context, limit int) ([]core.SyncRun, error)

	// FunnelMetrics returns stage-to-stage conversion counts for leads
	// created in the period.
	FunnelMetrics(ctx context.Context, from, to *time.Time) (*core.ConversionMetrics, error)

	// FunnelFlowTree returns the status-path tree for leads in the period.
	FunnelFlowTree(ctx context.Context, from, to *time.Time) (*core.FlowNode, error)

	// FunnelDeadEnds returns terminal statuses ranked by stuck lead count.
	FunnelDeadEnds(ctx context.Context, from, to *time.Time) (*core.DeadEndSummary, error)

	// LeadsDetails resolves lead IDs into display rows.
	LeadsDetails(ctx context.Context, ids []int64) ([]core.LeadDetail, error)

	// SaveSalesPlan upserts a per-project monthly plan.
	SaveSalesPlan(ctx context.Context, plan core.SalesPlan) error

	// SalesPlans returns plans for a month.
	SalesPlans(ctx context.Context, year, month int) ([]core.SalesPlan, error)

	// SaveManagerPlan upserts a per-manager monthly plan.
	SaveManagerPlan(ctx context.Context, plan core.ManagerPlan) error

	// ManagerPlans returns manager plans for a month.
	ManagerPlans(ctx context.Context, year, month int) ([]core.ManagerPlan, error)

	// CashbackMatrix returns the zero-mortgage cashback grid.
	CashbackMatrix(ctx context.Context) ([]core.CashbackCell, error)

	// ReplaceCashbackMatrix swaps the whole cashback grid atomically.
	ReplaceCashbackMatrix(ctx context.Context, cells []core.CashbackCell) error

	// CashbackTemplate renders the cashback grid as a spreadsheet.
	CashbackTemplate(ctx context.Context) ([]byte, error)

	// ImportCashbackWorkbook parses an uploaded grid and replaces the matrix.
	ImportCashbackWorkbook(ctx context.Context, r io.Reader) (int, error)

	// PlanFactReport compares monthly plans against closed deals.
	PlanFactReport(ctx context.Context, year, month int) ([]core.PlanFactRow, error)

	// RemainderSummary returns unsold stock per project and type.
	RemainderSummary(ctx context.Context) ([]core.ProjectRemainder, error)

	// Subscribers returns notification e-mail addresses.
	Subscribers(ctx context.Context) ([]string, error)

	// Subscribe adds an address to the notification list.
	Subscribe(ctx context.Context, email string) error

	// Unsubscribe removes an address from the notification list.
	Unsubscribe(ctx context.Context, email string) error
}
