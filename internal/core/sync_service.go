package core

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// TableOutcome is the per-table result of one replication pass.
type TableOutcome struct {
	Table   string `json:"table"`
	Added   int    `json:"added"`
	Updated int    `json:"updated"`
	Deleted int    `json:"deleted"`
	Err     string `json:"error,omitempty"`
}

// SyncRun is one sync_log entry.
type SyncRun struct {
	ID         int64     `json:"id"`
	Table      string    `json:"table"`
	Added      int       `json:"added"`
	Updated    int       `json:"updated"`
	Deleted    int       `json:"deleted"`
	Error      *string   `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// SyncService replicates the upstream CRM tables into the local mirror using
// content hashes for change detection. Each table is applied in its own
// transaction; a table failure is recorded in its outcome and the run moves
// on to the next table.
type SyncService interface {
	IncrementalSync(ctx context.Context) ([]TableOutcome, error)
	// FullRefresh empties the mirror and re-fills it from scratch.
	FullRefresh(ctx context.Context) ([]TableOutcome, error)
	RecentRuns(ctx context.Context, limit int) ([]SyncRun, error)
}

type syncService struct {
	source *pgxpool.Pool
	mirror *pgxpool.Pool
}

func NewSyncService(source, mirror *pgxpool.Pool) SyncService {
	return &syncService{source: source, mirror: mirror}
}

// sourceRow is one upstream record flattened into destination-column values.
// Fields hold concrete values or nil; hashing and inserts share them.
type sourceRow struct {
	ID     int64
	Fields map[string]any
}

type tableSpec struct {
	name    string
	columns []string
	load    func(ctx context.Context, src *pgxpool.Pool) ([]sourceRow, error)
}

// Parent tables sync before their children so foreign keys resolve.
func tableSpecs() []tableSpec {
	return []tableSpec{
		{
			name:    "houses",
			columns: []string{"complex_name", "name", "geo"},
			load: func(ctx context.Context, src *pgxpool.Pool) ([]sourceRow, error) {
				return loadRows(ctx, src, `
					SELECT id, complex_name, name, geo_house
					FROM estate_houses WHERE complex_name IS NOT NULL`,
					[]string{"complex_name", "name", "geo"},
					func() []any {
						return []any{new(*string), new(*string), new(*string)}
					})
			},
		},
		{
			name:    "units",
			columns: []string{"house_id", "category", "floor", "rooms", "price_m2", "status", "price", "area"},
			load: func(ctx context.Context, src *pgxpool.Pool) ([]sourceRow, error) {
				rows, err := loadRows(ctx, src, `
					SELECT id, house_id, estate_sell_category, estate_floor, estate_rooms,
					       estate_price_m2, estate_sell_status_name, estate_price, estate_area
					FROM estate_sells`,
					[]string{"house_id", "category", "floor", "rooms", "price_m2", "status", "price", "area"},
					func() []any {
						return []any{new(*int64), new(*string), new(*int64), new(*int64),
							new(*decimal.Decimal), new(*string), new(*decimal.Decimal), new(*decimal.Decimal)}
					})
				if err != nil {
					return nil, err
				}
				// Category codes become display values here, before hashing,
				// so the mirror and the hash always agree.
				for _, r := range rows {
					code, ok := r.Fields["category"].(string)
					if !ok {
						continue
					}
					display, known := CategoryToDisplay(code)
					if !known {
						log.Printf("sync units: unmapped category code %q on unit %d", code, r.ID)
					}
					r.Fields["category"] = display
				}
				return rows, nil
			},
		},
		{
			name:    "leads",
			columns: []string{"created_on", "status", "custom_status"},
			load: func(ctx context.Context, src *pgxpool.Pool) ([]sourceRow, error) {
				return loadRows(ctx, src, `
					SELECT id, date_added, status_name, custom_status_name
					FROM estate_buys`,
					[]string{"created_on", "status", "custom_status"},
					func() []any {
						return []any{new(*time.Time), new(*string), new(*string)}
					})
			},
		},
		{
			name:    "lead_status_events",
			columns: []string{"lead_id", "event_time", "to_status", "to_custom", "manager_id"},
			load: func(ctx context.Context, src *pgxpool.Pool) ([]sourceRow, error) {
				return loadRows(ctx, src, `
					SELECT id, estate_buy_id, log_date, status_to_name, status_custom_to_name, users_id
					FROM estate_buys_statuses_log`,
					[]string{"lead_id", "event_time", "to_status", "to_custom", "manager_id"},
					func() []any {
						return []any{new(*int64), new(*time.Time), new(*string), new(*string), new(*int64)}
					})
			},
		},
		{
			name:    "deals",
			columns: []string{"unit_id", "status", "manager_id", "agreement_date", "preliminary_date", "sum", "modified_at"},
			load: func(ctx context.Context, src *pgxpool.Pool) ([]sourceRow, error) {
				return loadRows(ctx, src, `
					SELECT id, estate_sell_id, deal_status_name, deal_manager_id,
					       agreement_date, preliminary_date, deal_sum, date_modified
					FROM estate_deals`,
					[]string{"unit_id", "status", "manager_id", "agreement_date", "preliminary_date", "sum", "modified_at"},
					func() []any {
						return []any{new(*int64), new(*string), new(*int64),
							new(*time.Time), new(*time.Time), new(*decimal.Decimal), new(*time.Time)}
					})
			},
		},
		{
			name:    "finance_operations",
			columns: []string{"unit_id", "amount", "status", "type", "booked_on", "due_on", "manager_id"},
			load: func(ctx context.Context, src *pgxpool.Pool) ([]sourceRow, error) {
				return loadRows(ctx, src, `
					SELECT id, estate_sell_id, summa, status_name, types_name, date_added, date_to, respons_manager_id
					FROM finances`,
					[]string{"unit_id", "amount", "status", "type", "booked_on", "due_on", "manager_id"},
					func() []any {
						return []any{new(*int64), new(*decimal.Decimal), new(*string), new(*string),
							new(*time.Time), new(*time.Time), new(*int64)}
					})
			},
		},
	}
}

// loadRows scans an upstream query into sourceRows. newDest allocates the
// typed destinations for one row in column order, id excluded.
func loadRows(ctx context.Context, src *pgxpool.Pool, query string, columns []string, newDest func() []any) ([]sourceRow, error) {
	rows, err := src.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query source: %w", err)
	}
	defer rows.Close()

	var out []sourceRow
	for rows.Next() {
		var id int64
		dest := newDest()
		scanArgs := append([]any{&id}, dest...)
		if err := rows.Scan(scanArgs...); err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		fields := make(map[string]any, len(columns))
		for i, col := range columns {
			fields[col] = deref(dest[i])
		}
		out = append(out, sourceRow{ID: id, Fields: fields})
	}
	return out, rows.Err()
}

func deref(p any) any {
	switch v := p.(type) {
	case **string:
		if *v == nil {
			return nil
		}
		return **v
	case **int64:
		if *v == nil {
			return nil
		}
		return **v
	case **decimal.Decimal:
		if *v == nil {
			return nil
		}
		return **v
	case **time.Time:
		if *v == nil {
			return nil
		}
		return **v
	}
	return p
}

func (s *syncService) IncrementalSync(ctx context.Context) ([]TableOutcome, error) {
	var outcomes []TableOutcome
	for _, spec := range tableSpecs() {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		outcome, err := s.syncTable(ctx, spec)
		if err != nil {
			outcome = TableOutcome{Table: spec.name, Err: err.Error()}
		}
		outcomes = append(outcomes, outcome)
	}

	outcome, err := s.syncManagers(ctx)
	if err != nil {
		outcome = TableOutcome{Table: "managers", Err: err.Error()}
	}
	return append(outcomes, outcome), nil
}

func (s *syncService) FullRefresh(ctx context.Context) ([]TableOutcome, error) {
	tx, err := s.mirror.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Children before parents.
	for _, table := range []string{
		"finance_operations", "deals", "lead_status_events", "units", "houses", "leads", "managers",
	} {
		if _, err := tx.Exec(ctx, "DELETE FROM "+table); err != nil {
			return nil, fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit mirror wipe: %w", err)
	}
	return s.IncrementalSync(ctx)
}

func (s *syncService) syncTable(ctx context.Context, spec tableSpec) (TableOutcome, error) {
	started := time.Now()
	sourceRows, err := spec.load(ctx, s.source)
	if err != nil {
		s.logRun(ctx, spec.name, TableOutcome{Table: spec.name}, started, err)
		return TableOutcome{}, fmt.Errorf("sync %s: %w", spec.name, err)
	}

	outcome, err := s.apply(ctx, spec, sourceRows)
	s.logRun(ctx, spec.name, outcome, started, err)
	if err != nil {
		return TableOutcome{}, fmt.Errorf("sync %s: %w", spec.name, err)
	}
	log.Printf("sync %s: added=%d updated=%d deleted=%d",
		spec.name, outcome.Added, outcome.Updated, outcome.Deleted)
	return outcome, nil
}

func (s *syncService) apply(ctx context.Context, spec tableSpec, sourceRows []sourceRow) (TableOutcome, error) {
	outcome := TableOutcome{Table: spec.name}

	tx, err := s.mirror.Begin(ctx)
	if err != nil {
		return outcome, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	localHashes, err := loadLocalHashes(ctx, tx, spec.name)
	if err != nil {
		return outcome, err
	}

	insertSQL := buildInsert(spec.name, spec.columns)
	updateSQL := buildUpdate(spec.name, spec.columns)

	seen := make(map[int64]bool, len(sourceRows))
	for _, row := range sourceRows {
		seen[row.ID] = true
		newHash := RowHash(row.Fields)

		oldHash, exists := localHashes[row.ID]
		if exists && oldHash == newHash {
			continue
		}

		args := make([]any, 0, len(spec.columns)+2)
		args = append(args, row.ID)
		for _, col := range spec.columns {
			args = append(args, row.Fields[col])
		}
		args = append(args, newHash)

		if exists {
			if _, err := tx.Exec(ctx, updateSQL, args...); err != nil {
				return outcome, fmt.Errorf("failed to update row %d: %w", row.ID, err)
			}
			outcome.Updated++
		} else {
			if _, err := tx.Exec(ctx, insertSQL, args...); err != nil {
				return outcome, fmt.Errorf("failed to insert row %d: %w", row.ID, err)
			}
			outcome.Added++
		}
	}

	var gone []int64
	for id := range localHashes {
		if !seen[id] {
			gone = append(gone, id)
		}
	}
	if len(gone) > 0 {
		tag, err := tx.Exec(ctx, "DELETE FROM "+spec.name+" WHERE id = ANY($1)", gone)
		if err != nil {
			return outcome, fmt.Errorf("failed to delete vanished rows: %w", err)
		}
		outcome.Deleted = int(tag.RowsAffected())
	}

	if err := tx.Commit(ctx); err != nil {
		return outcome, fmt.Errorf("failed to commit sync: %w", err)
	}
	return outcome, nil
}

// syncManagers dedupes upstream users by trimmed full name; the first
// occurrence in ascending id order wins and keeps its upstream id.
func (s *syncService) syncManagers(ctx context.Context) (TableOutcome, error) {
	started := time.Now()
	outcome := TableOutcome{Table: "managers"}

	rows, err := s.source.Query(ctx,
		"SELECT id, users_name, post_title FROM users ORDER BY id")
	if err != nil {
		err = fmt.Errorf("failed to query source users: %w", err)
		s.logRun(ctx, "managers", outcome, started, err)
		return TableOutcome{}, fmt.Errorf("sync managers: %w", err)
	}

	type sourceManager struct {
		id   int64
		post *string
		hash string
	}
	byName := make(map[string]sourceManager)
	var order []string
	for rows.Next() {
		var id int64
		var name, post *string
		if err := rows.Scan(&id, &name, &post); err != nil {
			rows.Close()
			err = fmt.Errorf("failed to scan source user: %w", err)
			s.logRun(ctx, "managers", outcome, started, err)
			return TableOutcome{}, fmt.Errorf("sync managers: %w", err)
		}
		if name == nil {
			continue
		}
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			continue
		}
		if _, ok := byName[trimmed]; ok {
			continue
		}
		var postVal any
		if post != nil {
			postVal = *post
		}
		byName[trimmed] = sourceManager{
			id:   id,
			post: post,
			hash: RowHash(map[string]any{"full_name": trimmed, "post_title": postVal}),
		}
		order = append(order, trimmed)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		s.logRun(ctx, "managers", outcome, started, err)
		return TableOutcome{}, fmt.Errorf("sync managers: %w", err)
	}

	err = func() error {
		tx, err := s.mirror.Begin(ctx)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer tx.Rollback(ctx)

		local := make(map[string]string)
		dbRows, err := tx.Query(ctx, "SELECT full_name, data_hash FROM managers")
		if err != nil {
			return fmt.Errorf("failed to load local managers: %w", err)
		}
		for dbRows.Next() {
			var name, hash string
			if err := dbRows.Scan(&name, &hash); err != nil {
				dbRows.Close()
				return fmt.Errorf("failed to scan local manager: %w", err)
			}
			local[name] = hash
		}
		dbRows.Close()
		if err := dbRows.Err(); err != nil {
			return err
		}

		for _, name := range order {
			src := byName[name]
			oldHash, exists := local[name]
			switch {
			case !exists:
				_, err := tx.Exec(ctx,
					"INSERT INTO managers (id, full_name, post_title, data_hash) VALUES ($1, $2, $3, $4)",
					src.id, name, src.post, src.hash)
				if err != nil {
					return fmt.Errorf("failed to insert manager %q: %w", name, err)
				}
				outcome.Added++
			case oldHash != src.hash:
				_, err := tx.Exec(ctx,
					"UPDATE managers SET post_title = $1, data_hash = $2 WHERE full_name = $3",
					src.post, src.hash, name)
				if err != nil {
					return fmt.Errorf("failed to update manager %q: %w", name, err)
				}
				outcome.Updated++
			}
		}

		for name := range local {
			if _, ok := byName[name]; !ok {
				if _, err := tx.Exec(ctx, "DELETE FROM managers WHERE full_name = $1", name); err != nil {
					return fmt.Errorf("failed to delete manager %q: %w", name, err)
				}
				outcome.Deleted++
			}
		}
		return tx.Commit(ctx)
	}()

	s.logRun(ctx, "managers", outcome, started, err)
	if err != nil {
		return TableOutcome{}, fmt.Errorf("sync managers: %w", err)
	}
	log.Printf("sync managers: added=%d updated=%d deleted=%d",
		outcome.Added, outcome.Updated, outcome.Deleted)
	return outcome, nil
}

func (s *syncService) RecentRuns(ctx context.Context, limit int) ([]SyncRun, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.mirror.Query(ctx, `
		SELECT id, table_name, added, updated, deleted, error, started_at, finished_at
		FROM sync_log ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sync log: %w", err)
	}
	defer rows.Close()

	var out []SyncRun
	for rows.Next() {
		var r SyncRun
		if err := rows.Scan(&r.ID, &r.Table, &r.Added, &r.Updated, &r.Deleted, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sync log entry: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// logRun appends a sync_log entry; logging failures must not mask the sync
// result, they are only printed.
func (s *syncService) logRun(ctx context.Context, table string, outcome TableOutcome, started time.Time, runErr error) {
	var errText *string
	if runErr != nil {
		msg := runErr.Error()
		errText = &msg
	}
	_, err := s.mirror.Exec(ctx, `
		INSERT INTO sync_log (table_name, added, updated, deleted, error, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		table, outcome.Added, outcome.Updated, outcome.Deleted, errText, started, time.Now())
	if err != nil {
		log.Printf("sync log write failed for %s: %v", table, err)
	}
}

func loadLocalHashes(ctx context.Context, tx pgx.Tx, table string) (map[int64]string, error) {
	rows, err := tx.Query(ctx, "SELECT id, data_hash FROM "+table)
	if err != nil {
		return nil, fmt.Errorf("failed to load local hashes: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var id int64
		var hash string
		if err := rows.Scan(&id, &hash); err != nil {
			return nil, fmt.Errorf("failed to scan local hash: %w", err)
		}
		out[id] = hash
	}
	return out, rows.Err()
}

func buildInsert(table string, columns []string) string {
	cols := append(append([]string{"id"}, columns...), "data_hash")
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

func buildUpdate(table string, columns []string) string {
	sets := make([]string, 0, len(columns)+1)
	for i, col := range columns {
		sets = append(sets, fmt.Sprintf("%s = $%d", col, i+2))
	}
	sets = append(sets, fmt.Sprintf("data_hash = $%d", len(columns)+2))
	return fmt.Sprintf("UPDATE %s SET %s WHERE id = $1", table, strings.Join(sets, ", "))
}
