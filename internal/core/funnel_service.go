package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Status literals of the upstream CRM funnel.
const (
	stageNonTarget    = "Нецелевой"
	stageSelection    = "Подбор"
	stageRefusal      = "Отказ"
	stageBooking      = "Бронь"
	stageDealActive   = "Сделка в работе"
	stageDealDone     = "Сделка проведена"
	customMeetingSet  = "Назначенная встреча"
	customVisitHeld   = "Визит состоялся"
	customVisitFailed = "Визит не состоялся"

	noStatusLabel   = "Без статуса"
	otherPathsLabel = "Прочие пути"
	rootNodeLabel   = "Заявки, созданные за период"
)

// StageCount wraps a bare count for the JSON shape of the metrics payload.
type StageCount struct {
	Count int `json:"count"`
}

type SelectionConversion struct {
	Base      int `json:"base_count"`
	ToRefusal int `json:"to_otkaz"`
	ToMeeting int `json:"to_vstrecha"`
	ToBooking int `json:"to_bron"`
	Stuck     int `json:"stuck"`
}

type MeetingConversion struct {
	Base         int `json:"base_count"`
	ToVisitHeld  int `json:"to_sostoyalas"`
	ToVisitMiss  int `json:"to_nesostoyalas"`
	ToBooking    int `json:"to_bron"`
	ToRefusal    int `json:"to_otkaz"`
	Stuck        int `json:"stuck"`
}

type VisitConversion struct {
	Base      int `json:"base_count"`
	ToBooking int `json:"to_bron"`
	ToRefusal int `json:"to_otkaz"`
	Stuck     int `json:"stuck"`
}

type BookingConversion struct {
	Base      int `json:"base_count"`
	ToDeal    int `json:"to_sdelka"`
	ToRefusal int `json:"to_otkaz"`
	Stuck     int `json:"stuck"`
}

type StageBreakdown struct {
	FromSelection SelectionConversion `json:"from_podbor"`
	FromMeeting   MeetingConversion   `json:"from_vstrecha"`
	FromVisit     VisitConversion     `json:"from_vizit"`
	FromBooking   BookingConversion   `json:"from_bron"`
}

// ConversionMetrics is the target/non-target split plus per-stage conversion
// counts for a creation-date cohort. Metrics is nil for an empty cohort.
type ConversionMetrics struct {
	TotalLeads int             `json:"total_leads"`
	NonTarget  StageCount      `json:"nontarget_leads"`
	Target     StageCount      `json:"target_leads"`
	Deals      StageCount      `json:"deals"`
	Metrics    *StageBreakdown `json:"metrics,omitempty"`
}

// FlowNode is one node of the reconstructed status-path tree. IDs carries the
// leads that passed through this node.
type FlowNode struct {
	Name     string      `json:"name"`
	Count    int         `json:"count"`
	IDs      []int64     `json:"ids"`
	Children []*FlowNode `json:"children"`

	childIndex map[string]*FlowNode
}

// StatusCount is one terminal status with its lead count.
type StatusCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// DeadEndSummary lists where cohort leads currently sit, most common first.
type DeadEndSummary struct {
	TotalLeads  int           `json:"total_leads"`
	Summary     []StatusCount `json:"summary"`
	ChartLabels []string      `json:"chart_labels"`
	ChartValues []int         `json:"chart_values"`
}

// LeadDetail is the drill-down row behind a tree node.
type LeadDetail struct {
	ID        int64  `json:"id"`
	CreatedOn string `json:"date_added"`
}

// FunnelService reconstructs lead journeys from the replicated status log.
type FunnelService interface {
	ConversionMetrics(ctx context.Context, from, to *time.Time) (*ConversionMetrics, error)
	FlowTree(ctx context.Context, from, to *time.Time) (*FlowNode, error)
	DeadEndSummary(ctx context.Context, from, to *time.Time) (*DeadEndSummary, error)
	LeadsDetails(ctx context.Context, ids []int64) ([]LeadDetail, error)
}

type funnelService struct {
	mirror *pgxpool.Pool
}

func NewFunnelService(mirror *pgxpool.Pool) FunnelService {
	return &funnelService{mirror: mirror}
}

// FormatStatus renders a (status, custom status) pair the way the funnel
// displays it: "status: custom", bare status, or "Без статуса".
func FormatStatus(status, custom *string) string {
	s := ""
	if status != nil {
		s = strings.TrimSpace(*status)
	}
	c := ""
	if custom != nil {
		c = strings.TrimSpace(*custom)
	}
	if s == "" {
		return noStatusLabel
	}
	if c != "" {
		return s + ": " + c
	}
	return s
}

type statusPair struct {
	status string
	custom string
}

type cohortEvents struct {
	leadIDs []int64
	// chronological status pairs per lead, trimmed
	ordered map[int64][]statusPair
}

func (c *cohortEvents) pairSet(leadID int64) map[statusPair]bool {
	set := make(map[statusPair]bool)
	for _, p := range c.ordered[leadID] {
		set[p] = true
	}
	return set
}

func (s *funnelService) loadCohort(ctx context.Context, from, to *time.Time) (*cohortEvents, error) {
	query := "SELECT id FROM leads WHERE 1=1"
	var args []any
	if from != nil {
		args = append(args, *from)
		query += fmt.Sprintf(" AND created_on >= $%d", len(args))
	}
	if to != nil {
		args = append(args, *to)
		query += fmt.Sprintf(" AND created_on <= $%d", len(args))
	}

	rows, err := s.mirror.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead cohort: %w", err)
	}
	defer rows.Close()

	cohort := &cohortEvents{ordered: make(map[int64][]statusPair)}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan lead id: %w", err)
		}
		cohort.leadIDs = append(cohort.leadIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cohort.leadIDs) == 0 {
		return cohort, nil
	}

	eventRows, err := s.mirror.Query(ctx, `
		SELECT lead_id, to_status, to_custom
		FROM lead_status_events
		WHERE lead_id = ANY($1)
		ORDER BY lead_id, event_time
	`, cohort.leadIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query status events: %w", err)
	}
	defer eventRows.Close()

	for eventRows.Next() {
		var leadID int64
		var status, custom *string
		if err := eventRows.Scan(&leadID, &status, &custom); err != nil {
			return nil, fmt.Errorf("failed to scan status event: %w", err)
		}
		pair := statusPair{trimmed(status), trimmed(custom)}
		cohort.ordered[leadID] = append(cohort.ordered[leadID], pair)
	}
	return cohort, eventRows.Err()
}

func trimmed(v *string) string {
	if v == nil {
		return ""
	}
	return strings.TrimSpace(*v)
}

func (s *funnelService) ConversionMetrics(ctx context.Context, from, to *time.Time) (*ConversionMetrics, error) {
	cohort, err := s.loadCohort(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(cohort.leadIDs) == 0 {
		return &ConversionMetrics{}, nil
	}

	sets := make(map[int64]map[statusPair]bool, len(cohort.leadIDs))
	for _, id := range cohort.leadIDs {
		sets[id] = cohort.pairSet(id)
	}
	has := func(id int64, status string) bool {
		for p := range sets[id] {
			if p.status == status {
				return true
			}
		}
		return false
	}
	hasCustom := func(id int64, status, custom string) bool {
		return sets[id][statusPair{status, custom}]
	}
	isDeal := func(id int64) bool {
		return has(id, stageDealActive) || has(id, stageDealDone)
	}

	var target, nonTarget, deals []int64
	for _, id := range cohort.leadIDs {
		if has(id, stageNonTarget) {
			nonTarget = append(nonTarget, id)
			continue
		}
		target = append(target, id)
		if isDeal(id) {
			deals = append(deals, id)
		}
	}

	filter := func(ids []int64, pred func(int64) bool) []int64 {
		var out []int64
		for _, id := range ids {
			if pred(id) {
				out = append(out, id)
			}
		}
		return out
	}
	union := func(groups ...[]int64) int {
		seen := make(map[int64]bool)
		for _, g := range groups {
			for _, id := range g {
				seen[id] = true
			}
		}
		return len(seen)
	}

	selectionBase := filter(target, func(id int64) bool { return has(id, stageSelection) })
	selToRefusal := filter(selectionBase, func(id int64) bool { return has(id, stageRefusal) })
	selToMeeting := filter(selectionBase, func(id int64) bool { return hasCustom(id, stageSelection, customMeetingSet) })
	selToBooking := filter(selectionBase, func(id int64) bool { return has(id, stageBooking) })

	meetingBase := filter(target, func(id int64) bool { return hasCustom(id, stageSelection, customMeetingSet) })
	meetToHeld := filter(meetingBase, func(id int64) bool { return hasCustom(id, stageSelection, customVisitHeld) })
	meetToMiss := filter(meetingBase, func(id int64) bool { return hasCustom(id, stageSelection, customVisitFailed) })
	meetToBooking := filter(meetingBase, func(id int64) bool { return has(id, stageBooking) })
	meetToRefusal := filter(meetingBase, func(id int64) bool { return has(id, stageRefusal) })

	visitBase := filter(meetingBase, func(id int64) bool { return hasCustom(id, stageSelection, customVisitHeld) })
	visitToBooking := filter(visitBase, func(id int64) bool { return has(id, stageBooking) })
	visitToRefusal := filter(visitBase, func(id int64) bool { return has(id, stageRefusal) })

	bookingBase := filter(target, func(id int64) bool { return has(id, stageBooking) })
	bookToDeal := filter(bookingBase, isDeal)
	bookToRefusal := filter(bookingBase, func(id int64) bool { return has(id, stageRefusal) })

	return &ConversionMetrics{
		TotalLeads: len(cohort.leadIDs),
		NonTarget:  StageCount{len(nonTarget)},
		Target:     StageCount{len(target)},
		Deals:      StageCount{len(deals)},
		Metrics: &StageBreakdown{
			FromSelection: SelectionConversion{
				Base:      len(selectionBase),
				ToRefusal: len(selToRefusal),
				ToMeeting: len(selToMeeting),
				ToBooking: len(selToBooking),
				Stuck:     len(selectionBase) - union(selToRefusal, selToMeeting, selToBooking),
			},
			FromMeeting: MeetingConversion{
				Base:        len(meetingBase),
				ToVisitHeld: len(meetToHeld),
				ToVisitMiss: len(meetToMiss),
				ToBooking:   len(meetToBooking),
				ToRefusal:   len(meetToRefusal),
				Stuck:       len(meetingBase) - union(meetToHeld, meetToMiss, meetToBooking, meetToRefusal),
			},
			FromVisit: VisitConversion{
				Base:      len(visitBase),
				ToBooking: len(visitToBooking),
				ToRefusal: len(visitToRefusal),
				Stuck:     len(visitBase) - union(visitToBooking, visitToRefusal),
			},
			FromBooking: BookingConversion{
				Base:      len(bookingBase),
				ToDeal:    len(bookToDeal),
				ToRefusal: len(bookToRefusal),
				Stuck:     len(bookingBase) - union(bookToDeal, bookToRefusal),
			},
		},
	}, nil
}

func (s *funnelService) FlowTree(ctx context.Context, from, to *time.Time) (*FlowNode, error) {
	cohort, err := s.loadCohort(ctx, from, to)
	if err != nil {
		return nil, err
	}

	root := &FlowNode{Name: rootNodeLabel, IDs: cohort.leadIDs, childIndex: make(map[string]*FlowNode)}
	if len(cohort.leadIDs) == 0 {
		root.IDs, root.Children = []int64{}, []*FlowNode{}
		return root, nil
	}

	for _, id := range cohort.leadIDs {
		// Collapse consecutive repeats of the same displayed status.
		var path []string
		for _, p := range cohort.ordered[id] {
			var sp, cp *string
			if p.status != "" {
				sp = &p.status
			}
			if p.custom != "" {
				cp = &p.custom
			}
			label := FormatStatus(sp, cp)
			if len(path) == 0 || path[len(path)-1] != label {
				path = append(path, label)
			}
		}

		node := root
		for _, stage := range path {
			child := node.childIndex[stage]
			if child == nil {
				child = &FlowNode{Name: stage, childIndex: make(map[string]*FlowNode)}
				node.childIndex[stage] = child
			}
			child.IDs = append(child.IDs, id)
			node = child
		}
	}

	finalizeTree(root, 1.0)
	return root, nil
}

// finalizeTree counts nodes, folds minority siblings below thresholdPercent
// of the parent into an aggregate node (only when more than one minority
// exists), and orders children by descending count.
func finalizeTree(node *FlowNode, thresholdPercent float64) {
	node.Count = len(node.IDs)

	children := make([]*FlowNode, 0, len(node.childIndex))
	for _, child := range node.childIndex {
		finalizeTree(child, thresholdPercent)
		children = append(children, child)
	}
	node.childIndex = nil

	threshold := float64(node.Count) * thresholdPercent / 100.0
	var main, minor []*FlowNode
	for _, child := range children {
		if float64(child.Count) >= threshold {
			main = append(main, child)
		} else {
			minor = append(minor, child)
		}
	}

	if len(minor) > 1 {
		other := &FlowNode{Name: otherPathsLabel, Children: []*FlowNode{}}
		for _, child := range minor {
			other.Count += child.Count
			other.IDs = append(other.IDs, child.IDs...)
		}
		main = append(main, other)
	} else {
		main = append(main, minor...)
	}

	sort.SliceStable(main, func(i, j int) bool {
		if main[i].Count != main[j].Count {
			return main[i].Count > main[j].Count
		}
		return main[i].Name < main[j].Name
	})
	if main == nil {
		main = []*FlowNode{}
	}
	node.Children = main
}

func (s *funnelService) DeadEndSummary(ctx context.Context, from, to *time.Time) (*DeadEndSummary, error) {
	cohort, err := s.loadCohort(ctx, from, to)
	if err != nil {
		return nil, err
	}
	if len(cohort.leadIDs) == 0 {
		return &DeadEndSummary{Summary: []StatusCount{}}, nil
	}

	counts := make(map[string]int)
	for _, id := range cohort.leadIDs {
		pairs := cohort.ordered[id]
		if len(pairs) == 0 {
			continue
		}
		last := pairs[len(pairs)-1]
		var sp, cp *string
		if last.status != "" {
			sp = &last.status
		}
		if last.custom != "" {
			cp = &last.custom
		}
		counts[FormatStatus(sp, cp)]++
	}

	summary := make([]StatusCount, 0, len(counts))
	for name, count := range counts {
		summary = append(summary, StatusCount{Name: name, Count: count})
	}
	sort.SliceStable(summary, func(i, j int) bool {
		if summary[i].Count != summary[j].Count {
			return summary[i].Count > summary[j].Count
		}
		return summary[i].Name < summary[j].Name
	})

	top := summary
	if len(top) > 10 {
		top = top[:10]
	}
	out := &DeadEndSummary{TotalLeads: len(cohort.leadIDs), Summary: summary}
	for _, item := range top {
		out.ChartLabels = append(out.ChartLabels, item.Name)
		out.ChartValues = append(out.ChartValues, item.Count)
	}
	return out, nil
}

func (s *funnelService) LeadsDetails(ctx context.Context, ids []int64) ([]LeadDetail, error) {
	if len(ids) == 0 {
		return []LeadDetail{}, nil
	}
	rows, err := s.mirror.Query(ctx,
		"SELECT id, created_on FROM leads WHERE id = ANY($1) ORDER BY id", ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query lead details: %w", err)
	}
	defer rows.Close()

	var out []LeadDetail
	for rows.Next() {
		var id int64
		var created *time.Time
		if err := rows.Scan(&id, &created); err != nil {
			return nil, fmt.Errorf("failed to scan lead detail: %w", err)
		}
		detail := LeadDetail{ID: id}
		if created != nil {
			detail.CreatedOn = created.Format("02.01.2006")
		}
		out = append(out, detail)
	}
	return out, rows.Err()
}
