// Package corpus queries the question bank that study unit filters select from.
package corpus

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dbsmedya/studyplan/internal/logger"
	"github.com/dbsmedya/studyplan/internal/sqlutil"
	"github.com/dbsmedya/studyplan/internal/types"
)

// Columns maps each facet to its column in the corpus table.
type Columns map[types.Facet]string

// DefaultColumns returns the column layout of the question table.
func DefaultColumns() Columns {
	return Columns{
		types.FacetSubjects:      "subject",
		types.FacetTopics:        "topic",
		types.FacetBoards:        "board",
		types.FacetYears:         "year",
		types.FacetOrganizations: "organization",
		types.FacetPositions:     "position",
		types.FacetSchooling:     "schooling",
		types.FacetModalities:    "modality",
	}
}

// Service answers count and option queries over a question table.
// Every failure is reported as types.ErrServiceUnavailable.
type Service struct {
	db      *sql.DB
	table   string
	columns Columns
	timeout time.Duration
	log     *logger.Logger
	group   singleflight.Group
}

// NewService creates a corpus service over the given table.
func NewService(db *sql.DB, table string, timeout time.Duration, log *logger.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection cannot be nil")
	}
	quoted, err := sqlutil.QuoteIdentifierSafe(table)
	if err != nil {
		return nil, fmt.Errorf("invalid corpus table: %w", err)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{
		db:      db,
		table:   quoted,
		columns: DefaultColumns(),
		timeout: timeout,
		log:     log,
	}, nil
}

// CountMatches returns the number of questions satisfying the filter.
func (s *Service) CountMatches(ctx context.Context, filter *types.FilterSet) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	where, args := s.whereClause(filter)
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", s.table, where)

	var count interface{}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count matches: %w: %w", types.ErrServiceUnavailable, err)
	}
	return types.ToInt64(count), nil
}

// ListOptions returns the distinct values of a facet among questions that
// satisfy the constraints. Identical concurrent requests share one query.
// The shared query is detached from any single caller: a caller that is
// cancelled returns its own context error while the others keep waiting.
func (s *Service) ListOptions(ctx context.Context, facet types.Facet, constraints *types.FilterSet) ([]string, error) {
	column, ok := s.columns[facet]
	if !ok {
		return nil, fmt.Errorf("unknown facet %q", facet)
	}

	key, err := flightKey(facet, constraints)
	if err != nil {
		return nil, err
	}

	flightCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (interface{}, error) {
		where, args := s.whereClause(constraints)
		col := sqlutil.QuoteIdentifier(column)
		query := fmt.Sprintf("SELECT DISTINCT %s FROM %s%s ORDER BY %s", col, s.table, where, col)
		return s.distinct(flightCtx, query, args)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("failed to list %s options: %w: %w", facet, types.ErrServiceUnavailable, ctx.Err())
	}
	if res.Err != nil {
		return nil, fmt.Errorf("failed to list %s options: %w", facet, res.Err)
	}
	if res.Shared {
		s.log.WithFacet(string(facet)).Debug("Shared in-flight option query")
	}
	return append([]string(nil), res.Val.([]string)...), nil
}

// ListTopicsForSubjects returns the distinct topics of questions in the given subjects.
func (s *Service) ListTopicsForSubjects(ctx context.Context, subjects []string) ([]string, error) {
	if len(subjects) == 0 {
		return nil, nil
	}
	in, args := sqlutil.InClause(s.columns[types.FacetSubjects], subjects)
	col := sqlutil.QuoteIdentifier(s.columns[types.FacetTopics])
	query := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s ORDER BY %s", col, s.table, in, col)

	topics, err := s.distinct(ctx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	return topics, nil
}

func (s *Service) distinct(ctx context.Context, query string, args []interface{}) ([]string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrServiceUnavailable, err)
	}
	defer rows.Close()

	var values []string
	for rows.Next() {
		var raw interface{}
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("%w: %w", types.ErrServiceUnavailable, err)
		}
		if v := types.ToString(raw); v != "" {
			values = append(values, v)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", types.ErrServiceUnavailable, err)
	}
	return values, nil
}

// whereClause builds " WHERE a IN (...) AND b IN (...)" for every constrained
// facet, in facet order, or "" when nothing is constrained.
func (s *Service) whereClause(filter *types.FilterSet) (string, []interface{}) {
	if filter.IsEmpty() {
		return "", nil
	}
	filter = filter.Normalize()

	var conditions []string
	var args []interface{}
	for _, facet := range types.AllFacets {
		column := s.columns[facet]
		var clause string
		var facetArgs []interface{}
		if facet == types.FacetYears {
			if len(filter.Years) == 0 {
				continue
			}
			clause, facetArgs = sqlutil.InClause(column, filter.Years)
		} else {
			values := filter.Values(facet)
			if len(values) == 0 {
				continue
			}
			clause, facetArgs = sqlutil.InClause(column, values)
		}
		conditions = append(conditions, clause)
		args = append(args, facetArgs...)
	}
	return " WHERE " + strings.Join(conditions, " AND "), args
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func flightKey(facet types.Facet, constraints *types.FilterSet) (string, error) {
	b, err := json.Marshal(constraints.Normalize())
	if err != nil {
		return "", fmt.Errorf("failed to encode constraints: %w", err)
	}
	return string(facet) + ":" + string(b), nil
}
