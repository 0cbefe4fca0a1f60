// Package aggregate merges a precomputed historical summary with the
// current day's raw records into one consistent view.
//
// The historical rollup is produced out-of-band and covers every closed
// day of the period; this package only folds today on top. Combination is
// pure: inputs are never mutated and the same inputs always produce the
// same output, so the merge can be recomputed on every request.
package aggregate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"feedtrack/internal/logging"
	"feedtrack/internal/record"
	"feedtrack/internal/resolve"
)

const (
	// topLimit caps every ranked list in a summary.
	topLimit = 10

	// mergeLimit is how many of today's entries feed the merge with the
	// historical list. Wider than topLimit so a category that is mid-table
	// both historically and today still surfaces in the combined top 10.
	mergeLimit = 20

	unknownKey = "unknown"
)

// Metadata describes the period a summary covers.
type Metadata struct {
	Period        string `json:"period"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	GeneratedAt   string `json:"generated_at"`
	TotalDays     int    `json:"total_days"`
	TotalRecords  int    `json:"total_records"`
	IncludesToday bool   `json:"includes_today"`
}

// KPIs are the headline figures of a summary.
type KPIs struct {
	TotalIncidents int     `json:"total_incidents"`
	Pending        int     `json:"pending"`
	Resolved       int     `json:"resolved"`
	DailyAverage   float64 `json:"daily_average"`
	ResolutionRate float64 `json:"resolution_rate"`
}

// DayPoint is one day in the daily trend, dates in YYYY-MM-DD form.
type DayPoint struct {
	Date     string `json:"date"`
	Total    int    `json:"total"`
	Pending  int    `json:"pending"`
	Resolved int    `json:"resolved"`
}

// HourPoint is one bucket of the 24-slot hourly trend, hour as "NN:00".
type HourPoint struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

// Trends groups the time-bucketed series.
type Trends struct {
	ByDay  []DayPoint  `json:"by_day"`
	ByHour []HourPoint `json:"by_hour"`
}

// StatusSlice is one status in the distribution.
type StatusSlice struct {
	Status     string  `json:"status"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Distribution groups the per-status breakdown.
type Distribution struct {
	ByStatus []StatusSlice `json:"by_status"`
}

// ViolationCount is one entry in the ranked violation list.
type ViolationCount struct {
	Violation  string  `json:"violation"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// MotiveCount is one entry in the ranked motive list.
type MotiveCount struct {
	Motive     string  `json:"motive"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// OffenderCount is one user in the offender ranking.
type OffenderCount struct {
	UserID              string `json:"user_id"`
	Count               int    `json:"count"`
	MostCommonViolation string `json:"most_common_violation"`
	MostCommonMotive    string `json:"most_common_motive"`
}

// ASINCount is one item in the ASIN rankings.
type ASINCount struct {
	ASIN                string `json:"asin"`
	Count               int    `json:"count"`
	MostCommonViolation string `json:"most_common_violation"`
	MostCommonMotive    string `json:"most_common_motive"`
}

// Summary is the full aggregate document, historical or combined.
// Insights is opaque to this core; it is carried through untouched.
type Summary struct {
	Metadata      Metadata        `json:"metadata"`
	KPIs          KPIs            `json:"kpis"`
	Trends        Trends          `json:"trends"`
	Distribution  Distribution    `json:"distribution"`
	TopViolations []ViolationCount `json:"top_violations"`
	TopMotives    []MotiveCount    `json:"top_motives"`
	TopASINs      []ASINCount      `json:"top_asins"`
	TopOffenders  []OffenderCount  `json:"top_offenders"`
	ASINOffenders []ASINCount      `json:"asin_offenders"`
	Insights      json.RawMessage  `json:"insights,omitempty"`
}

// periodFiles maps a period length in days to the rollup file holding it.
var periodFiles = map[int]string{
	3:   "summary_last_3_days.json",
	7:   "summary_last_week.json",
	30:  "summary_last_month.json",
	90:  "summary_last_3_months.json",
	180: "summary_last_6_months.json",
}

// PeriodFile returns the rollup file name for a period length. ok is false
// for 0 ("today only", no rollup exists) and for unknown lengths.
func PeriodFile(days int) (name string, ok bool) {
	name, ok = periodFiles[days]
	return name, ok
}

// Engine combines historical summaries with live records.
type Engine struct {
	resolver *resolve.Resolver
	now      func() time.Time
	logger   *slog.Logger
}

// NewEngine creates an Engine. The resolver is used only by LoadSummary
// and may be nil when Combine is all the caller needs.
func NewEngine(resolver *resolve.Resolver, logger *slog.Logger) *Engine {
	logger = logging.Default(logger)
	return &Engine{
		resolver: resolver,
		now:      time.Now,
		logger:   logger.With("component", "aggregate"),
	}
}

// LoadSummary reads the historical rollup for a period from the analytics
// path list. A period with no rollup file (days == 0 or an unknown length)
// returns nil with no error.
func (e *Engine) LoadSummary(ctx context.Context, paths []string, days int) (*Summary, error) {
	name, ok := PeriodFile(days)
	if !ok {
		return nil, nil
	}

	data, pathUsed, err := e.resolver.ReadFirst(ctx, paths, name)
	if err != nil {
		return nil, err
	}

	var s Summary
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode summary %q from %q: %w", name, pathUsed, err)
	}
	e.logger.Debug("loaded historical summary", "file", name, "path", pathUsed)
	return &s, nil
}

// Combine folds today's records into a historical summary. Three cases:
// no historical summary derives everything from today; no records for
// today returns a copy of the historical summary; otherwise KPIs are
// summed, today's day point is appended, the hourly buckets are added
// element-wise, the status distribution and the violation/motive rankings
// are merged per key, and the rolling-window rankings (offenders, ASINs,
// insights) are carried over from the historical summary unchanged, since
// one extra day cannot reproduce a ranking over the whole period.
func (e *Engine) Combine(historical *Summary, today *record.Collection) *Summary {
	if historical == nil {
		return e.summaryFromToday(today)
	}
	if today == nil || len(today.Errors) == 0 {
		return copySummary(historical)
	}

	total, pending, resolved := todayKPIs(today.Errors)
	hourly := todayHourly(today.Errors)

	out := copySummary(historical)
	out.Metadata.IncludesToday = true
	out.Metadata.TotalDays = historical.Metadata.TotalDays + 1
	out.Metadata.TotalRecords = historical.Metadata.TotalRecords + len(today.Errors)

	out.KPIs.TotalIncidents = historical.KPIs.TotalIncidents + total
	out.KPIs.Pending = historical.KPIs.Pending + pending
	out.KPIs.Resolved = historical.KPIs.Resolved + resolved
	out.KPIs.DailyAverage = float64(out.KPIs.TotalIncidents) / float64(out.Metadata.TotalDays)
	out.KPIs.ResolutionRate = rate(out.KPIs.Resolved, out.KPIs.TotalIncidents)

	out.Trends.ByDay = append(out.Trends.ByDay, todayTrend(today.Errors))
	out.Trends.ByHour = addHourly(historical.Trends.ByHour, hourly)

	out.Distribution.ByStatus = mergeStatuses(
		historical.Distribution.ByStatus,
		statusDistribution(today.Errors),
	)
	out.TopViolations = mergeViolations(
		historical.TopViolations,
		topViolations(today.Errors, mergeLimit),
	)
	out.TopMotives = mergeMotives(
		historical.TopMotives,
		topMotives(today.Errors, mergeLimit),
	)

	return out
}

// summaryFromToday derives a full single-day summary when no historical
// rollup applies (the "today" period).
func (e *Engine) summaryFromToday(today *record.Collection) *Summary {
	if today == nil || len(today.Errors) == 0 {
		return e.emptySummary()
	}

	total, pending, resolved := todayKPIs(today.Errors)
	hourly := todayHourly(today.Errors)
	date := e.now().UTC().Format("2006-01-02")

	byHour := zeroHours()
	for i := range byHour {
		byHour[i].Count = hourly[i]
	}

	return &Summary{
		Metadata: Metadata{
			Period:        "today",
			StartDate:     date,
			EndDate:       date,
			GeneratedAt:   e.now().UTC().Format(time.RFC3339),
			TotalDays:     1,
			TotalRecords:  len(today.Errors),
			IncludesToday: true,
		},
		KPIs: KPIs{
			TotalIncidents: total,
			Pending:        pending,
			Resolved:       resolved,
			DailyAverage:   float64(total), // single day: average is the total
			ResolutionRate: rate(resolved, total),
		},
		Trends: Trends{
			ByDay:  []DayPoint{todayTrend(today.Errors)},
			ByHour: byHour,
		},
		Distribution: Distribution{
			ByStatus: statusDistribution(today.Errors),
		},
		TopViolations: topViolations(today.Errors, topLimit),
		TopMotives:    topMotives(today.Errors, topLimit),
		TopASINs:      topASINs(today.Errors, topLimit),
		TopOffenders:  topOffenders(today.Errors, topLimit),
		// No rolling window exists for a single day; the per-ASIN ranking
		// doubles as the offender-by-ASIN view.
		ASINOffenders: topASINs(today.Errors, topLimit),
	}
}

// emptySummary is what a period with no data at all aggregates to.
func (e *Engine) emptySummary() *Summary {
	return &Summary{
		Metadata: Metadata{
			Period:      "empty",
			GeneratedAt: e.now().UTC().Format(time.RFC3339),
		},
		Trends: Trends{
			ByDay:  []DayPoint{},
			ByHour: zeroHours(),
		},
		Distribution:  Distribution{ByStatus: []StatusSlice{}},
		TopViolations: []ViolationCount{},
		TopMotives:    []MotiveCount{},
		TopASINs:      []ASINCount{},
		TopOffenders:  []OffenderCount{},
		ASINOffenders: []ASINCount{},
	}
}

// todayKPIs sums per-record quantity into the three headline counters.
// Statuses other than pending/done count toward the total only.
func todayKPIs(records []record.Record) (total, pending, resolved int) {
	for _, r := range records {
		q := quantity(r)
		total += q
		switch r.FeedbackStatus {
		case record.StatusPending:
			pending += q
		case record.StatusDone:
			resolved += q
		}
	}
	return total, pending, resolved
}

// todayTrend builds today's single day point. Anything not pending is
// treated as resolved here so the point's parts always sum to its total.
func todayTrend(records []record.Record) DayPoint {
	var p DayPoint
	for _, r := range records {
		q := quantity(r)
		p.Total += q
		if r.Pending() {
			p.Pending += q
		} else {
			p.Resolved += q
		}
	}
	p.Date = strings.ReplaceAll(records[0].Date, "/", "-")
	return p
}

// todayHourly buckets quantities into 24 hour slots. Records with an
// unparseable time are dropped from the hourly view only.
func todayHourly(records []record.Record) [24]int {
	var buckets [24]int
	for _, r := range records {
		if h := r.Hour(); h >= 0 {
			buckets[h] += quantity(r)
		}
	}
	return buckets
}

func statusDistribution(records []record.Record) []StatusSlice {
	counts, order := map[string]int{}, []string{}
	for _, r := range records {
		s := r.FeedbackStatus
		if s == "" {
			s = record.StatusPending
		}
		if _, seen := counts[s]; !seen {
			order = append(order, s)
		}
		counts[s] += quantity(r)
	}

	total := 0
	for _, c := range counts {
		total += c
	}

	out := make([]StatusSlice, 0, len(order))
	for _, s := range order {
		out = append(out, StatusSlice{Status: s, Count: counts[s], Percentage: rate(counts[s], total)})
	}
	return out
}

func topViolations(records []record.Record, limit int) []ViolationCount {
	counts, order := map[string]int{}, []string{}
	for _, r := range records {
		key := orUnknown(r.Violation)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key] += quantity(r)
	}
	return rankViolations(counts, order, limit)
}

func topMotives(records []record.Record, limit int) []MotiveCount {
	counts, order := map[string]int{}, []string{}
	for _, r := range records {
		key := orUnknown(r.FeedbackMotive)
		if _, seen := counts[key]; !seen {
			order = append(order, key)
		}
		counts[key] += quantity(r)
	}
	return rankMotives(counts, order, limit)
}

// keyProfile accumulates one offender's or ASIN's counts.
type keyProfile struct {
	count      int
	violations map[string]int
	motives    map[string]int
	vorder     []string
	morder     []string
}

func profile(records []record.Record, key func(record.Record) string) (map[string]*keyProfile, []string) {
	profiles, order := map[string]*keyProfile{}, []string{}
	for _, r := range records {
		k := orUnknown(key(r))
		p := profiles[k]
		if p == nil {
			p = &keyProfile{violations: map[string]int{}, motives: map[string]int{}}
			profiles[k] = p
			order = append(order, k)
		}
		p.count += quantity(r)

		v := orUnknown(r.Violation)
		if _, seen := p.violations[v]; !seen {
			p.vorder = append(p.vorder, v)
		}
		p.violations[v]++

		m := orUnknown(r.FeedbackMotive)
		if _, seen := p.motives[m]; !seen {
			p.morder = append(p.morder, m)
		}
		p.motives[m]++
	}
	return profiles, order
}

func topOffenders(records []record.Record, limit int) []OffenderCount {
	profiles, order := profile(records, func(r record.Record) string { return r.UserID })

	sort.SliceStable(order, func(i, j int) bool {
		return profiles[order[i]].count > profiles[order[j]].count
	})
	if len(order) > limit {
		order = order[:limit]
	}

	out := make([]OffenderCount, 0, len(order))
	for _, k := range order {
		p := profiles[k]
		out = append(out, OffenderCount{
			UserID:              k,
			Count:               p.count,
			MostCommonViolation: mostCommon(p.violations, p.vorder),
			MostCommonMotive:    mostCommon(p.motives, p.morder),
		})
	}
	return out
}

func topASINs(records []record.Record, limit int) []ASINCount {
	profiles, order := profile(records, func(r record.Record) string { return r.ASIN })

	sort.SliceStable(order, func(i, j int) bool {
		return profiles[order[i]].count > profiles[order[j]].count
	})
	if len(order) > limit {
		order = order[:limit]
	}

	out := make([]ASINCount, 0, len(order))
	for _, k := range order {
		p := profiles[k]
		out = append(out, ASINCount{
			ASIN:                k,
			Count:               p.count,
			MostCommonViolation: mostCommon(p.violations, p.vorder),
			MostCommonMotive:    mostCommon(p.motives, p.morder),
		})
	}
	return out
}

// mostCommon picks the highest-count key, first-seen order breaking ties.
func mostCommon(counts map[string]int, order []string) string {
	best, bestCount := "N/A", 0
	for _, k := range order {
		if counts[k] > bestCount {
			best, bestCount = k, counts[k]
		}
	}
	return best
}

// mergeStatuses combines two status distributions per key and recomputes
// percentages over the merged total.
func mergeStatuses(historical, today []StatusSlice) []StatusSlice {
	counts, order := map[string]int{}, []string{}
	add := func(s string, c int) {
		if _, seen := counts[s]; !seen {
			order = append(order, s)
		}
		counts[s] += c
	}
	for _, s := range historical {
		add(s.Status, s.Count)
	}
	for _, s := range today {
		add(s.Status, s.Count)
	}

	total := 0
	for _, c := range counts {
		total += c
	}

	out := make([]StatusSlice, 0, len(order))
	for _, s := range order {
		out = append(out, StatusSlice{Status: s, Count: counts[s], Percentage: rate(counts[s], total)})
	}
	return out
}

// mergeViolations combines two ranked violation lists per key, re-sorts
// by count descending (ties keep first-seen order) and truncates.
func mergeViolations(historical, today []ViolationCount) []ViolationCount {
	counts, order := map[string]int{}, []string{}
	add := func(k string, c int) {
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k] += c
	}
	for _, v := range historical {
		add(v.Violation, v.Count)
	}
	for _, v := range today {
		add(v.Violation, v.Count)
	}
	return rankViolations(counts, order, topLimit)
}

func mergeMotives(historical, today []MotiveCount) []MotiveCount {
	counts, order := map[string]int{}, []string{}
	add := func(k string, c int) {
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k] += c
	}
	for _, m := range historical {
		add(m.Motive, m.Count)
	}
	for _, m := range today {
		add(m.Motive, m.Count)
	}
	return rankMotives(counts, order, topLimit)
}

func rankViolations(counts map[string]int, order []string, limit int) []ViolationCount {
	total := 0
	for _, c := range counts {
		total += c
	}
	sorted := append([]string(nil), order...)
	sort.SliceStable(sorted, func(i, j int) bool { return counts[sorted[i]] > counts[sorted[j]] })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]ViolationCount, 0, len(sorted))
	for _, k := range sorted {
		out = append(out, ViolationCount{Violation: k, Count: counts[k], Percentage: rate(counts[k], total)})
	}
	return out
}

func rankMotives(counts map[string]int, order []string, limit int) []MotiveCount {
	total := 0
	for _, c := range counts {
		total += c
	}
	sorted := append([]string(nil), order...)
	sort.SliceStable(sorted, func(i, j int) bool { return counts[sorted[i]] > counts[sorted[j]] })
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]MotiveCount, 0, len(sorted))
	for _, k := range sorted {
		out = append(out, MotiveCount{Motive: k, Count: counts[k], Percentage: rate(counts[k], total)})
	}
	return out
}

// addHourly adds today's buckets element-wise onto the historical series,
// keeping the historical hour labels. A missing or short historical series
// defaults to zeroed buckets rather than aborting the merge.
func addHourly(historical []HourPoint, today [24]int) []HourPoint {
	out := zeroHours()
	for i := range out {
		if i < len(historical) {
			out[i] = historical[i]
		}
		out[i].Count += today[i]
	}
	return out
}

// zeroHours builds the canonical 24-slot hourly series.
func zeroHours() []HourPoint {
	out := make([]HourPoint, 24)
	for i := range out {
		out[i].Hour = fmt.Sprintf("%02d:00", i)
	}
	return out
}

// copySummary returns a summary whose slices do not alias the input's.
func copySummary(s *Summary) *Summary {
	out := *s
	out.Trends.ByDay = append([]DayPoint(nil), s.Trends.ByDay...)
	out.Trends.ByHour = append([]HourPoint(nil), s.Trends.ByHour...)
	out.Distribution.ByStatus = append([]StatusSlice(nil), s.Distribution.ByStatus...)
	out.TopViolations = append([]ViolationCount(nil), s.TopViolations...)
	out.TopMotives = append([]MotiveCount(nil), s.TopMotives...)
	out.TopASINs = append([]ASINCount(nil), s.TopASINs...)
	out.TopOffenders = append([]OffenderCount(nil), s.TopOffenders...)
	out.ASINOffenders = append([]ASINCount(nil), s.ASINOffenders...)
	out.Insights = append(json.RawMessage(nil), s.Insights...)
	return &out
}

func quantity(r record.Record) int {
	if r.Quantity > 0 {
		return r.Quantity
	}
	return 1
}

func rate(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func orUnknown(s string) string {
	if s == "" {
		return unknownKey
	}
	return s
}
