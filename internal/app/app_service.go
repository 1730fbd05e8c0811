package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/shopspring/decimal"

	"github.com/DieForGlory/portal-analytics-sub000/internal/adapters/excel"
	"github.com/DieForGlory/portal-analytics-sub000/internal/adapters/mailer"
	"github.com/DieForGlory/portal-analytics-sub000/internal/adapters/telegram"
	"github.com/DieForGlory/portal-analytics-sub000/internal/core"
	"github.com/DieForGlory/portal-analytics-sub000/internal/db"
)

type appService struct {
	stores        *db.Stores
	currency      core.CurrencyService
	settings      core.SettingsService
	exclusions    core.ExclusionService
	discounts     core.DiscountService
	pricing       core.PricingService
	selection     core.SelectionService
	installments  core.InstallmentService
	sync          core.SyncService
	funnel        core.FunnelService
	planning      core.PlanningService
	reporting     core.ReportingService
	notifications core.NotificationService
	tg            *telegram.Client
	mail          *mailer.Mailer
}

// NewAppService constructs an appService that satisfies ApplicationService.
func NewAppService(
	stores *db.Stores,
	currency core.CurrencyService,
	settings core.SettingsService,
	exclusions core.ExclusionService,
	discounts core.DiscountService,
	pricing core.PricingService,
	selection core.SelectionService,
	installments core.InstallmentService,
	sync core.SyncService,
	funnel core.FunnelService,
	planning core.PlanningService,
	reporting core.ReportingService,
	notifications core.NotificationService,
	tg *telegram.Client,
	mail *mailer.Mailer,
) ApplicationService {
	return &appService{
		stores:        stores,
		currency:      currency,
		settings:      settings,
		exclusions:    exclusions,
		discounts:     discounts,
		pricing:       pricing,
		selection:     selection,
		installments:  installments,
		sync:          sync,
		funnel:        funnel,
		planning:      planning,
		reporting:     reporting,
		notifications: notifications,
		tg:            tg,
		mail:          mail,
	}
}

func (s *appService) UnitOffer(ctx context.Context, unitID int64) (*core.UnitOffer, error) {
	return s.pricing.BuildUnitOffer(ctx, unitID)
}

func (s *appService) SearchByBudget(ctx context.Context, req core.BudgetSearchRequest) (map[string]*core.ProjectMatches, error) {
	return s.selection.FindByBudget(ctx, req)
}

func (s *appService) StandardInstallment(ctx context.Context, req core.StandardInstallmentRequest) (*core.InstallmentPlan, error) {
	return s.installments.StandardInstallment(ctx, req)
}

func (s *appService) DPInstallment(ctx context.Context, req core.DPInstallmentRequest) (*core.DPInstallmentPlan, error) {
	return s.installments.DPInstallment(ctx, req)
}

func (s *appService) ZeroMortgage(ctx context.Context, req core.ZeroMortgageRequest) (*core.ZeroMortgagePlan, error) {
	return s.installments.ZeroMortgage(ctx, req)
}

func (s *appService) DiscountSummary(ctx context.Context) (map[string]core.ProjectDiscountSummary, error) {
	return s.discounts.ActiveSummary(ctx)
}

func (s *appService) ListDiscountVersions(ctx context.Context) ([]core.DiscountVersion, error) {
	return s.discounts.ListVersions(ctx)
}

func (s *appService) DiscountVersion(ctx context.Context, versionID int64) (*DiscountVersionDetail, error) {
	version, err := s.discounts.Version(ctx, versionID)
	if err != nil {
		return nil, err
	}
	rows, err := s.discounts.Rows(ctx, versionID)
	if err != nil {
		return nil, err
	}
	notes, err := s.discounts.Notes(ctx, versionID)
	if err != nil {
		return nil, err
	}
	return &DiscountVersionDetail{Version: version, Rows: rows, Notes: notes}, nil
}

func (s *appService) CreateDiscountDraft(ctx context.Context, comment string) (*core.DiscountVersion, error) {
	return s.discounts.CreateBlankVersion(ctx, comment)
}

func (s *appService) CloneActiveDiscounts(ctx context.Context) (*core.DiscountVersion, error) {
	return s.discounts.CloneActiveForEdit(ctx)
}

func (s *appService) UpdateDiscountDraft(ctx context.Context, versionID int64, edits []core.DiscountEdit, changesJSON string) (int, error) {
	return s.discounts.UpdateDraft(ctx, versionID, edits, changesJSON)
}

// ActivateDiscountVersion performs the swap, then notifies subscribers.
// Notification channels are best-effort: a broken SMTP server must not
// roll back an already-activated version.
func (s *appService) ActivateDiscountVersion(ctx context.Context, versionID int64, comment string) error {
	notice, err := s.discounts.Activate(ctx, versionID, comment)
	if err != nil {
		return err
	}
	if notice == nil {
		return nil
	}

	if s.mail != nil && s.mail.Configured() {
		recipients, err := s.notifications.Recipients(ctx)
		if err != nil {
			log.Printf("discount notice: load recipients: %v", err)
		} else if len(recipients) > 0 {
			if err := s.mail.Send(notice.Subject, notice.HTML, recipients); err != nil {
				log.Printf("discount notice: send mail: %v", err)
			}
		}
	}
	if s.tg != nil && s.tg.Configured() {
		if err := s.tg.SendMessage(ctx, notice.HTML); err != nil {
			log.Printf("discount notice: telegram: %v", err)
		}
	}
	return nil
}

func (s *appService) DeleteDiscountDraft(ctx context.Context, versionID int64) error {
	return s.discounts.DeleteDraft(ctx, versionID)
}

func (s *appService) SetProjectNote(ctx context.Context, versionID int64, project, note string) error {
	return s.discounts.SetProjectNote(ctx, versionID, project, note)
}

func (s *appService) DiscountTemplate(ctx context.Context) ([]byte, error) {
	projects, err := s.projectNames(ctx)
	if err != nil {
		return nil, err
	}
	var rows []core.DiscountRow
	switch active, err := s.discounts.ActiveVersion(ctx); {
	case err == nil:
		if rows, err = s.discounts.Rows(ctx, active.ID); err != nil {
			return nil, err
		}
	case !errors.Is(err, core.ErrNotFound):
		return nil, err
	}
	f, err := excel.BuildDiscountTemplate(projects, rows)
	if err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render discount template: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *appService) ImportDiscountWorkbook(ctx context.Context, versionID int64, r io.Reader) (*ImportOutcome, error) {
	rows, err := excel.ParseDiscountWorkbook(r)
	if err != nil {
		return nil, err
	}
	created, updated, err := s.discounts.ImportRows(ctx, versionID, rows)
	if err != nil {
		return nil, err
	}
	return &ImportOutcome{Created: created, Updated: updated}, nil
}

func (s *appService) CurrencySettings(ctx context.Context) (*core.CurrencySettings, error) {
	return s.currency.Settings(ctx)
}

func (s *appService) SetRateSource(ctx context.Context, source core.RateSource) error {
	return s.currency.SetSource(ctx, source)
}

func (s *appService) SetManualRate(ctx context.Context, rate decimal.Decimal) error {
	return s.currency.SetManualRate(ctx, rate)
}

func (s *appService) RefreshCBURate(ctx context.Context) (decimal.Decimal, error) {
	return s.currency.RefreshCBU(ctx)
}

func (s *appService) RateOn(ctx context.Context, day time.Time) (decimal.Decimal, error) {
	return s.currency.RateOn(ctx, day)
}

func (s *appService) CalculatorSettings(ctx context.Context) (*core.CalculatorSettings, error) {
	return s.settings.Get(ctx)
}

func (s *appService) UpdateCalculatorSettings(ctx context.Context, cs core.CalculatorSettings) error {
	return s.settings.Update(ctx, cs)
}

func (s *appService) ListExcludedUnits(ctx context.Context) ([]core.ExcludedUnit, error) {
	return s.exclusions.ListExcludedUnits(ctx)
}

func (s *appService) ExcludeUnit(ctx context.Context, unitID int64, comment string) error {
	return s.exclusions.ExcludeUnit(ctx, unitID, comment)
}

func (s *appService) IncludeUnit(ctx context.Context, unitID int64) error {
	return s.exclusions.IncludeUnit(ctx, unitID)
}

func (s *appService) ListExcludedProjects(ctx context.Context) ([]core.ExcludedProject, error) {
	return s.exclusions.ListExcludedProjects(ctx)
}

func (s *appService) ToggleProjectExclusion(ctx context.Context, project string) (bool, error) {
	return s.exclusions.ToggleProject(ctx, project)
}

func (s *appService) RunSync(ctx context.Context, full bool) ([]core.TableOutcome, error) {
	if full {
		return s.sync.FullRefresh(ctx)
	}
	return s.sync.IncrementalSync(ctx)
}

func (s *appService) SyncHistory(ctx context.Context, limit int) ([]core.SyncRun, error) {
	return s.sync.RecentRuns(ctx, limit)
}

func (s *appService) FunnelMetrics(ctx context.Context, from, to *time.Time) (*core.ConversionMetrics, error) {
	return s.funnel.ConversionMetrics(ctx, from, to)
}

func (s *appService) FunnelFlowTree(ctx context.Context, from, to *time.Time) (*core.FlowNode, error) {
	return s.funnel.FlowTree(ctx, from, to)
}

func (s *appService) FunnelDeadEnds(ctx context.Context, from, to *time.Time) (*core.DeadEndSummary, error) {
	return s.funnel.DeadEndSummary(ctx, from, to)
}

func (s *appService) LeadsDetails(ctx context.Context, ids []int64) ([]core.LeadDetail, error) {
	return s.funnel.LeadsDetails(ctx, ids)
}

func (s *appService) SaveSalesPlan(ctx context.Context, plan core.SalesPlan) error {
	return s.planning.UpsertSalesPlan(ctx, plan)
}

func (s *appService) SalesPlans(ctx context.Context, year, month int) ([]core.SalesPlan, error) {
	return s.planning.SalesPlans(ctx, year, month)
}

func (s *appService) SaveManagerPlan(ctx context.Context, plan core.ManagerPlan) error {
	return s.planning.UpsertManagerPlan(ctx, plan)
}

func (s *appService) ManagerPlans(ctx context.Context, year, month int) ([]core.ManagerPlan, error) {
	return s.planning.ManagerPlans(ctx, year, month)
}

func (s *appService) CashbackMatrix(ctx context.Context) ([]core.CashbackCell, error) {
	return s.planning.CashbackMatrix(ctx)
}

func (s *appService) ReplaceCashbackMatrix(ctx context.Context, cells []core.CashbackCell) error {
	return s.planning.ReplaceCashbackMatrix(ctx, cells)
}

func (s *appService) CashbackTemplate(ctx context.Context) ([]byte, error) {
	cells, err := s.planning.CashbackMatrix(ctx)
	if err != nil {
		return nil, err
	}
	f, err := excel.BuildCashbackTemplate(cells)
	if err != nil {
		return nil, err
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("render cashback template: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *appService) ImportCashbackWorkbook(ctx context.Context, r io.Reader) (int, error) {
	cells, err := excel.ParseCashbackWorkbook(r)
	if err != nil {
		return 0, err
	}
	if err := s.planning.ReplaceCashbackMatrix(ctx, cells); err != nil {
		return 0, err
	}
	return len(cells), nil
}

func (s *appService) PlanFactReport(ctx context.Context, year, month int) ([]core.PlanFactRow, error) {
	return s.reporting.PlanFact(ctx, year, month)
}

func (s *appService) RemainderSummary(ctx context.Context) ([]core.ProjectRemainder, error) {
	return s.reporting.RemainderSummary(ctx)
}

func (s *appService) Subscribers(ctx context.Context) ([]string, error) {
	return s.notifications.Recipients(ctx)
}

func (s *appService) Subscribe(ctx context.Context, email string) error {
	return s.notifications.Subscribe(ctx, email)
}

func (s *appService) Unsubscribe(ctx context.Context, email string) error {
	return s.notifications.Unsubscribe(ctx, email)
}

// projectNames lists every project known to the mirror, alphabetically.
func (s *appService) projectNames(ctx context.Context) ([]string, error) {
	rows, err := s.stores.Default.Query(ctx,
		"SELECT DISTINCT complex_name FROM houses ORDER BY complex_name")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan project name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}
