package core

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// coefficientEpsilon is the smallest coefficient change worth persisting.
// Edits below it are ignored so a form round-trip does not dirty the draft.
var coefficientEpsilon = decimal.New(1, -9)

// DiscountEdit is one user edit to a draft row. Value arrives as a
// percentage and is stored as a fraction.
type DiscountEdit struct {
	Project       string
	PropertyType  PropertyType
	PaymentMethod PaymentMethod
	Field         string
	ValuePct      decimal.Decimal
}

// ActivationNotice is the notification payload produced when activating a
// version replaces a previously active one.
type ActivationNotice struct {
	Subject string
	HTML    string
}

// DiscountService owns the versioned discount matrix: draft lifecycle,
// cloning, activation, and per-project notes. Exactly one version is active
// at any observable moment; activation swaps the flag atomically.
type DiscountService interface {
	ActiveVersion(ctx context.Context) (*DiscountVersion, error)
	Version(ctx context.Context, versionID int64) (*DiscountVersion, error)
	ListVersions(ctx context.Context) ([]DiscountVersion, error)
	Rows(ctx context.Context, versionID int64) ([]DiscountRow, error)
	Notes(ctx context.Context, versionID int64) ([]ProjectNote, error)

	CreateBlankVersion(ctx context.Context, comment string) (*DiscountVersion, error)
	CloneActiveForEdit(ctx context.Context) (*DiscountVersion, error)
	UpdateDraft(ctx context.Context, versionID int64, edits []DiscountEdit, changesJSON string) (int, error)
	// ImportRows upserts whole rows into a draft (spreadsheet import path).
	// Returns (created, updated).
	ImportRows(ctx context.Context, versionID int64, rows []DiscountRow) (int, int, error)
	Activate(ctx context.Context, versionID int64, comment string) (*ActivationNotice, error)
	DeleteDraft(ctx context.Context, versionID int64) error
	SetProjectNote(ctx context.Context, versionID int64, project, note string) error

	ActiveSummary(ctx context.Context) (map[string]ProjectDiscountSummary, error)
}

type discountService struct {
	planning *pgxpool.Pool
	mirror   *pgxpool.Pool
	currency CurrencyService
}

// NewDiscountService wires the planning store (versions, rows, notes) with
// the replicated mirror and the currency oracle, both needed only by
// ActiveSummary.
func NewDiscountService(planning, mirror *pgxpool.Pool, currency CurrencyService) DiscountService {
	return &discountService{planning: planning, mirror: mirror, currency: currency}
}

const versionColumns = `id, version_number, comment, is_active, was_ever_activated, changes_summary_json, created_at`

func scanVersion(row pgx.Row) (*DiscountVersion, error) {
	var v DiscountVersion
	err := row.Scan(&v.ID, &v.Number, &v.Comment, &v.IsActive, &v.WasEverActivated, &v.ChangesSummaryJSON, &v.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *discountService) ActiveVersion(ctx context.Context) (*DiscountVersion, error) {
	v, err := scanVersion(s.planning.QueryRow(ctx,
		"SELECT "+versionColumns+" FROM discount_versions WHERE is_active = true"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active discount version", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to load active version: %w", err)
	}
	return v, nil
}

func (s *discountService) Version(ctx context.Context, versionID int64) (*DiscountVersion, error) {
	v, err := scanVersion(s.planning.QueryRow(ctx,
		"SELECT "+versionColumns+" FROM discount_versions WHERE id = $1", versionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: discount version %d", ErrNotFound, versionID)
		}
		return nil, fmt.Errorf("failed to load version %d: %w", versionID, err)
	}
	return v, nil
}

func (s *discountService) ListVersions(ctx context.Context) ([]DiscountVersion, error) {
	rows, err := s.planning.Query(ctx,
		"SELECT "+versionColumns+" FROM discount_versions ORDER BY version_number DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to query versions: %w", err)
	}
	defer rows.Close()

	var out []DiscountVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		out = append(out, *v)
	}
	return out, rows.Err()
}

const rowColumns = `id, version_id, complex_name, property_type, payment_method,
	mpp, rop, kd, opt, gd, holding, shareholder, action, cadastre_date`

func scanDiscountRow(row pgx.Row) (*DiscountRow, error) {
	var d DiscountRow
	err := row.Scan(&d.ID, &d.VersionID, &d.Project, &d.PropertyType, &d.PaymentMethod,
		&d.MPP, &d.ROP, &d.KD, &d.OPT, &d.GD, &d.Holding, &d.Shareholder, &d.Action, &d.CadastreDate)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *discountService) Rows(ctx context.Context, versionID int64) ([]DiscountRow, error) {
	rows, err := s.planning.Query(ctx,
		"SELECT "+rowColumns+" FROM discounts WHERE version_id = $1 ORDER BY complex_name, property_type, payment_method",
		versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query discount rows: %w", err)
	}
	defer rows.Close()

	var out []DiscountRow
	for rows.Next() {
		d, err := scanDiscountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discount row: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (s *discountService) Notes(ctx context.Context, versionID int64) ([]ProjectNote, error) {
	rows, err := s.planning.Query(ctx,
		"SELECT id, version_id, complex_name, comment FROM project_notes WHERE version_id = $1 ORDER BY complex_name",
		versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query project notes: %w", err)
	}
	defer rows.Close()

	var out []ProjectNote
	for rows.Next() {
		var n ProjectNote
		if err := rows.Scan(&n.ID, &n.VersionID, &n.Project, &n.Note); err != nil {
			return nil, fmt.Errorf("failed to scan project note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *discountService) CreateBlankVersion(ctx context.Context, comment string) (*DiscountVersion, error) {
	v, err := scanVersion(s.planning.QueryRow(ctx, `
		INSERT INTO discount_versions (version_number, comment)
		SELECT COALESCE(MAX(version_number), 0) + 1, NULLIF($1, '') FROM discount_versions
		RETURNING `+versionColumns, comment))
	if err != nil {
		return nil, fmt.Errorf("failed to create blank version: %w", err)
	}
	return v, nil
}

func (s *discountService) CloneActiveForEdit(ctx context.Context) (*DiscountVersion, error) {
	tx, err := s.planning.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	active, err := scanVersion(tx.QueryRow(ctx,
		"SELECT "+versionColumns+" FROM discount_versions WHERE is_active = true"))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: no active version to clone", ErrInvalidState)
		}
		return nil, fmt.Errorf("failed to load active version: %w", err)
	}

	comment := fmt.Sprintf("Черновик на основе v.%d", active.Number)
	draft, err := scanVersion(tx.QueryRow(ctx, `
		INSERT INTO discount_versions (version_number, comment)
		SELECT COALESCE(MAX(version_number), 0) + 1, $1 FROM discount_versions
		RETURNING `+versionColumns, comment))
	if err != nil {
		return nil, fmt.Errorf("failed to create draft version: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO discounts (version_id, complex_name, property_type, payment_method,
			mpp, rop, kd, opt, gd, holding, shareholder, action, cadastre_date)
		SELECT $1, complex_name, property_type, payment_method,
			mpp, rop, kd, opt, gd, holding, shareholder, action, cadastre_date
		FROM discounts WHERE version_id = $2
	`, draft.ID, active.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to copy discount rows: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO project_notes (version_id, complex_name, comment)
		SELECT $1, complex_name, comment FROM project_notes WHERE version_id = $2
	`, draft.ID, active.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to copy project notes: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit clone: %w", err)
	}
	return draft, nil
}

func (s *discountService) UpdateDraft(ctx context.Context, versionID int64, edits []DiscountEdit, changesJSON string) (int, error) {
	tx, err := s.planning.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	target, err := s.lockVersion(ctx, tx, versionID)
	if err != nil {
		return 0, err
	}
	// Activation is a one-way door: once a version has carried the active
	// flag its rows are frozen, even after a newer version replaces it.
	if target.IsActive || target.WasEverActivated {
		return 0, fmt.Errorf("%w: version %d has been activated and can no longer be edited", ErrInvalidState, target.Number)
	}

	hundred := decimal.NewFromInt(100)
	updated := 0
	for _, e := range edits {
		field := strings.ToLower(strings.TrimSpace(e.Field))
		if !isCoefficient(field) {
			return 0, fmt.Errorf("%w: unknown coefficient %q", ErrInvalidInput, e.Field)
		}
		fraction := e.ValuePct.Div(hundred)

		var current decimal.Decimal
		err := tx.QueryRow(ctx,
			"SELECT "+field+" FROM discounts WHERE version_id = $1 AND complex_name = $2 AND property_type = $3 AND payment_method = $4",
			versionID, e.Project, e.PropertyType, e.PaymentMethod,
		).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("failed to load coefficient %s: %w", field, err)
		}

		if current.Sub(fraction).Abs().LessThanOrEqual(coefficientEpsilon) {
			continue
		}

		_, err = tx.Exec(ctx,
			"UPDATE discounts SET "+field+" = $1 WHERE version_id = $2 AND complex_name = $3 AND property_type = $4 AND payment_method = $5",
			fraction, versionID, e.Project, e.PropertyType, e.PaymentMethod)
		if err != nil {
			return 0, fmt.Errorf("failed to update coefficient %s: %w", field, err)
		}
		updated++
	}

	// The change summary is supplied by the editing UI and stored verbatim.
	_, err = tx.Exec(ctx,
		"UPDATE discount_versions SET changes_summary_json = NULLIF($1, '') WHERE id = $2",
		changesJSON, versionID)
	if err != nil {
		return 0, fmt.Errorf("failed to store change summary: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("failed to commit draft update: %w", err)
	}
	return updated, nil
}

func (s *discountService) ImportRows(ctx context.Context, versionID int64, rows []DiscountRow) (int, int, error) {
	tx, err := s.planning.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	target, err := s.lockVersion(ctx, tx, versionID)
	if err != nil {
		return 0, 0, err
	}
	if target.IsActive || target.WasEverActivated {
		return 0, 0, fmt.Errorf("%w: version %d has been activated and can no longer be edited", ErrInvalidState, target.Number)
	}

	created, updated := 0, 0
	for _, r := range rows {
		var inserted bool
		err := tx.QueryRow(ctx, `
			INSERT INTO discounts (version_id, complex_name, property_type, payment_method,
				mpp, rop, kd, opt, gd, holding, shareholder, action, cadastre_date)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (version_id, complex_name, property_type, payment_method) DO UPDATE SET
				mpp = EXCLUDED.mpp, rop = EXCLUDED.rop, kd = EXCLUDED.kd, opt = EXCLUDED.opt,
				gd = EXCLUDED.gd, holding = EXCLUDED.holding, shareholder = EXCLUDED.shareholder,
				action = EXCLUDED.action, cadastre_date = EXCLUDED.cadastre_date
			RETURNING (xmax = 0)
		`, versionID, r.Project, r.PropertyType, r.PaymentMethod,
			r.MPP, r.ROP, r.KD, r.OPT, r.GD, r.Holding, r.Shareholder, r.Action, r.CadastreDate).Scan(&inserted)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to upsert discount row for %s: %w", r.Project, err)
		}
		if inserted {
			created++
		} else {
			updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit import: %w", err)
	}
	return created, updated, nil
}

func (s *discountService) Activate(ctx context.Context, versionID int64, comment string) (*ActivationNotice, error) {
	tx, err := s.planning.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	target, err := s.lockVersion(ctx, tx, versionID)
	if err != nil {
		return nil, err
	}

	var prev *DiscountVersion
	prev, err = scanVersion(tx.QueryRow(ctx,
		"SELECT "+versionColumns+" FROM discount_versions WHERE is_active = true FOR UPDATE"))
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("failed to load previously active version: %w", err)
		}
		prev = nil
	}

	var prevRows []DiscountRow
	if prev != nil && prev.ID != target.ID {
		prevRows, err = s.rowsInTx(ctx, tx, prev.ID)
		if err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx,
			"UPDATE discount_versions SET is_active = false WHERE id = $1", prev.ID); err != nil {
			return nil, fmt.Errorf("failed to deactivate version %d: %w", prev.Number, err)
		}
	}

	if comment != "" {
		if _, err := tx.Exec(ctx,
			"UPDATE discount_versions SET comment = $1 WHERE id = $2", comment, target.ID); err != nil {
			return nil, fmt.Errorf("failed to update activation comment: %w", err)
		}
	}
	if _, err := tx.Exec(ctx,
		"UPDATE discount_versions SET is_active = true, was_ever_activated = true WHERE id = $1",
		target.ID); err != nil {
		return nil, fmt.Errorf("failed to activate version %d: %w", target.Number, err)
	}

	var notice *ActivationNotice
	if prev != nil && prev.ID != target.ID {
		newRows, err := s.rowsInTx(ctx, tx, target.ID)
		if err != nil {
			return nil, err
		}
		diff := BuildVersionDiff(prevRows, newRows)
		notice = &ActivationNotice{
			Subject: fmt.Sprintf("Активирована новая версия скидок №%d", target.Number),
			HTML:    diff.RenderHTML(prev.Number, target.Number, target.ChangesSummaryJSON),
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit activation: %w", err)
	}
	return notice, nil
}

func (s *discountService) DeleteDraft(ctx context.Context, versionID int64) error {
	tx, err := s.planning.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	target, err := s.lockVersion(ctx, tx, versionID)
	if err != nil {
		return err
	}
	if target.WasEverActivated {
		return fmt.Errorf("%w: version %d has been activated and cannot be deleted", ErrInvalidState, target.Number)
	}

	// Rows and notes go with the draft; no dangling children remain.
	if _, err := tx.Exec(ctx, "DELETE FROM discounts WHERE version_id = $1", versionID); err != nil {
		return fmt.Errorf("failed to delete draft rows: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM project_notes WHERE version_id = $1", versionID); err != nil {
		return fmt.Errorf("failed to delete draft notes: %w", err)
	}
	if _, err := tx.Exec(ctx, "DELETE FROM discount_versions WHERE id = $1", versionID); err != nil {
		return fmt.Errorf("failed to delete draft version: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit draft deletion: %w", err)
	}
	return nil
}

func (s *discountService) SetProjectNote(ctx context.Context, versionID int64, project, note string) error {
	if strings.TrimSpace(project) == "" {
		return fmt.Errorf("%w: project name required", ErrInvalidInput)
	}
	if _, err := s.Version(ctx, versionID); err != nil {
		return err
	}
	_, err := s.planning.Exec(ctx, `
		INSERT INTO project_notes (version_id, complex_name, comment)
		VALUES ($1, $2, NULLIF($3, ''))
		ON CONFLICT (version_id, complex_name) DO UPDATE SET comment = EXCLUDED.comment
	`, versionID, project, note)
	if err != nil {
		return fmt.Errorf("failed to upsert project note: %w", err)
	}
	return nil
}

func (s *discountService) lockVersion(ctx context.Context, tx pgx.Tx, versionID int64) (*DiscountVersion, error) {
	v, err := scanVersion(tx.QueryRow(ctx,
		"SELECT "+versionColumns+" FROM discount_versions WHERE id = $1 FOR UPDATE", versionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: discount version %d", ErrNotFound, versionID)
		}
		return nil, fmt.Errorf("failed to lock version %d: %w", versionID, err)
	}
	return v, nil
}

func (s *discountService) rowsInTx(ctx context.Context, tx pgx.Tx, versionID int64) ([]DiscountRow, error) {
	rows, err := tx.Query(ctx,
		"SELECT "+rowColumns+" FROM discounts WHERE version_id = $1", versionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query discount rows: %w", err)
	}
	defer rows.Close()

	var out []DiscountRow
	for rows.Next() {
		d, err := scanDiscountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan discount row: %w", err)
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func isCoefficient(name string) bool {
	for _, c := range CoefficientNames {
		if c == name {
			return true
		}
	}
	return false
}

// ParsePropertyType validates a display value.
func ParsePropertyType(v string) (PropertyType, error) {
	for _, pt := range PropertyTypes {
		if string(pt) == v {
			return pt, nil
		}
	}
	return "", fmt.Errorf("%w: unknown property type %q", ErrInvalidInput, v)
}

// ParsePaymentMethod validates a display value.
func ParsePaymentMethod(v string) (PaymentMethod, error) {
	for _, pm := range PaymentMethods {
		if string(pm) == v {
			return pm, nil
		}
	}
	return "", fmt.Errorf("%w: unknown payment method %q", ErrInvalidInput, v)
}

// ParseMortgageVariant validates a variant name, defaulting to standard.
func ParseMortgageVariant(v string) (MortgageVariant, error) {
	switch v {
	case "", string(MortgageStandard):
		return MortgageStandard, nil
	case string(MortgageExtended):
		return MortgageExtended, nil
	}
	return "", fmt.Errorf("%w: unknown mortgage variant %q", ErrInvalidInput, v)
}
