package postgres

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"modeldb-client/pkg/domain"
	"modeldb-client/pkg/ports"
)

// Querier is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type Querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// QuerySource describes the result of a SQL query as a dataset version.
type QuerySource struct {
	db        Querier
	query     string
	args      []any
	sourceURI string
	now       func() time.Time
}

var _ ports.DatasetSource = (*QuerySource)(nil)

type Option func(*QuerySource)

// WithArgs binds positional parameters ($1, $2, ...) to the query.
func WithArgs(args ...any) Option {
	return func(s *QuerySource) { s.args = args }
}

// WithDataSourceURI records where the query ran. Credentials are removed.
func WithDataSourceURI(uri string) Option {
	return func(s *QuerySource) { s.sourceURI = redact(uri) }
}

func NewQuerySource(db Querier, query string, opts ...Option) *QuerySource {
	s := &QuerySource{db: db, query: strings.TrimSpace(query), now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open connects a pool to dsn. The caller closes the pool.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return pool, nil
}

func (s *QuerySource) Type() domain.DatasetType { return domain.DatasetTypeQuery }

func (s *QuerySource) Describe(ctx context.Context) (domain.DatasetVersionInfo, error) {
	if s.query == "" {
		return domain.DatasetVersionInfo{}, domain.Validationf("dataset source", "", "query is required")
	}

	executed := s.now()
	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) AS q", strings.TrimSuffix(s.query, ";"))

	var n int64
	if err := s.db.QueryRow(ctx, countSQL, s.args...).Scan(&n); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "42") {
			return domain.DatasetVersionInfo{}, &domain.Error{Kind: domain.ErrValidation, Resource: "query", Key: s.query, Message: pgErr.Message, Err: err}
		}
		return domain.DatasetVersionInfo{}, fmt.Errorf("count query rows: %w", err)
	}

	info := &domain.QueryDatasetVersionInfo{
		Query:              s.query,
		DataSourceURI:      s.sourceURI,
		ExecutionTimestamp: domain.ToMillis(executed),
		NumRecords:         n,
	}
	if len(s.args) > 0 {
		info.QueryTemplate = s.query
		info.QueryParameters = make(map[string]string, len(s.args))
		for i, a := range s.args {
			info.QueryParameters[fmt.Sprintf("$%d", i+1)] = fmt.Sprint(a)
		}
	}
	return domain.DatasetVersionInfo{Type: domain.DatasetTypeQuery, Query: info}, nil
}

func redact(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	u.User = url.User(u.User.Username())
	return u.String()
}
