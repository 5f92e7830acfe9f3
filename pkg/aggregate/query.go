package aggregate

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/platinummonkey/heartbeat/pkg/heartbeat"
)

// EventsTable is the event log table queried by BuildSelect.
const EventsTable = "heartbeat_events"

// Dimension is a column results can be grouped by.
type Dimension string

const (
	ByDate    Dimension = "date"
	ByApp     Dimension = "app"
	ByVersion Dimension = "version"
)

var dimensionColumns = map[Dimension]string{
	ByDate:    "event_date",
	ByApp:     "app_id",
	ByVersion: "app_version",
}

// Column returns the event log column for d.
func (d Dimension) Column() (string, error) {
	col, ok := dimensionColumns[d]
	if !ok {
		return "", fmt.Errorf("unknown dimension %q", d)
	}
	return col, nil
}

// Order is the result ordering of a query.
type Order int

const (
	// KeyDesc orders by the group key, newest or largest first.
	KeyDesc Order = iota
	// DevicesDesc orders by device count descending, then key ascending.
	DevicesDesc
)

// Filter restricts the events a query counts. Zero fields do not filter,
// except Environment which is always applied.
type Filter struct {
	AppID       string
	Environment heartbeat.Environment
	// From and To bound the event date, both inclusive.
	From heartbeat.Date
	To   heartbeat.Date
}

// Query is one grouped distinct-device count.
type Query struct {
	// Name identifies the query shape in metrics, logs and cache keys.
	Name    string
	Filter  Filter
	GroupBy Dimension
	OrderBy Order
	// Limit caps the number of rows; zero means unlimited.
	Limit int
}

// Query names.
const (
	QueryDailySeries      = "daily_series"
	QueryLeaderboard      = "leaderboard"
	QueryVersionBreakdown = "version_breakdown"
)

// SeriesQuery counts devices per day for one app over the days window
// ending at today.
func SeriesQuery(appID string, env heartbeat.Environment, today heartbeat.Date, days int) Query {
	return Query{
		Name: QueryDailySeries,
		Filter: Filter{
			AppID:       appID,
			Environment: env,
			From:        today.AddDays(-(days - 1)),
			To:          today,
		},
		GroupBy: ByDate,
		OrderBy: KeyDesc,
		Limit:   days,
	}
}

// LeaderboardQuery counts devices per app on a single day.
func LeaderboardQuery(env heartbeat.Environment, day heartbeat.Date, limit int) Query {
	return Query{
		Name:    QueryLeaderboard,
		Filter:  Filter{Environment: env, From: day, To: day},
		GroupBy: ByApp,
		OrderBy: DevicesDesc,
		Limit:   limit,
	}
}

// VersionQuery counts devices per version for one app over the days
// window ending at today.
func VersionQuery(appID string, env heartbeat.Environment, today heartbeat.Date, days, limit int) Query {
	return Query{
		Name: QueryVersionBreakdown,
		Filter: Filter{
			AppID:       appID,
			Environment: env,
			From:        today.AddDays(-(days - 1)),
			To:          today,
		},
		GroupBy: ByVersion,
		OrderBy: DevicesDesc,
		Limit:   limit,
	}
}

// CacheKey is a stable key covering every field of q.
func (q Query) CacheKey() string {
	return strings.Join([]string{
		"agg",
		q.Name,
		string(q.Filter.Environment),
		q.Filter.AppID,
		string(q.Filter.From),
		string(q.Filter.To),
		string(q.GroupBy),
		strconv.Itoa(int(q.OrderBy)),
		strconv.Itoa(q.Limit),
	}, ":")
}

var collationName = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

type selectOptions struct {
	collation string
}

// SelectOption adjusts the SQL produced by BuildSelect.
type SelectOption func(*selectOptions)

// WithCollation makes the key tie-break of DevicesDesc compare under the
// named collation. Engines whose default collation is not byte order pass
// "C" so the rows kept at the limit match Engine ranking.
func WithCollation(name string) SelectOption {
	return func(o *selectOptions) {
		o.collation = name
	}
}

// BuildSelect compiles q to a SELECT over EventsTable. The grouped column
// is aliased "k" and the distinct device count "devices".
func BuildSelect(q Query, opts ...SelectOption) (sq.SelectBuilder, error) {
	col, err := q.GroupBy.Column()
	if err != nil {
		return sq.SelectBuilder{}, err
	}

	var o selectOptions
	for _, opt := range opts {
		opt(&o)
	}
	tieBreak := col + " ASC"
	if o.collation != "" {
		if !collationName.MatchString(o.collation) {
			return sq.SelectBuilder{}, fmt.Errorf("invalid collation %q", o.collation)
		}
		tieBreak = fmt.Sprintf(`%s COLLATE "%s" ASC`, col, o.collation)
	}

	b := sq.Select(col+" AS k", "COUNT(DISTINCT device_hash) AS devices").
		From(EventsTable).
		Where(sq.Eq{"environment": string(q.Filter.Environment)})

	if q.Filter.AppID != "" {
		b = b.Where(sq.Eq{"app_id": q.Filter.AppID})
	}
	if !q.Filter.From.IsZero() {
		b = b.Where(sq.GtOrEq{"event_date": string(q.Filter.From)})
	}
	if !q.Filter.To.IsZero() {
		b = b.Where(sq.LtOrEq{"event_date": string(q.Filter.To)})
	}

	b = b.GroupBy(col)

	switch q.OrderBy {
	case KeyDesc:
		b = b.OrderBy(col + " DESC")
	case DevicesDesc:
		b = b.OrderBy("devices DESC", tieBreak)
	default:
		return sq.SelectBuilder{}, fmt.Errorf("unknown order %d", q.OrderBy)
	}

	if q.Limit > 0 {
		b = b.Limit(uint64(q.Limit))
	}
	return b, nil
}
