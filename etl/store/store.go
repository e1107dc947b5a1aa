// Package store persists processed invoice tables in Postgres and serves the
// read side of the API.
package store

import (
	"context"
	_ "embed"
	"strings"
	"time"

	"github.com/alapierre/go-factus-etl/etl/table"
	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

var logger = logrus.WithField("component", "etl.store")

var ErrNotFound = errors.New("invoice not found")

const tableName = "invoices"

//go:embed schema.sql
var schema string

// DB is the subset of *pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type Store struct {
	db DB
}

func New(db DB) *Store {
	return &Store{db: db}
}

// Connect opens a pool, checks it and applies the schema.
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "ping database")
	}
	if err := New(pool).Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// Migrate creates the invoices table if needed.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return errors.Wrap(err, "apply schema")
	}
	return nil
}

// SaveTable bulk inserts every row of t with COPY.
func (s *Store) SaveTable(ctx context.Context, t *table.Table) error {
	if t.Len() == 0 {
		return nil
	}

	rows := make([][]any, 0, t.Len())
	for _, r := range t.Rows {
		rows = append(rows, r.Values())
	}

	n, err := s.db.CopyFrom(ctx, pgx.Identifier{tableName}, table.Columns, pgx.CopyFromRows(rows))
	if err != nil {
		return errors.Wrapf(err, "copy %d rows into %s", len(rows), tableName)
	}
	logger.WithFields(logrus.Fields{
		"batch_id": t.BatchID,
		"rows":     n,
	}).Debug("batch persisted")
	return nil
}

// FindInvoices lists invoices, newest issue date first with undated ones last.
// A nil customerID lists all customers.
func (s *Store) FindInvoices(ctx context.Context, customerID *string) ([]table.Row, error) {
	query, args := listQuery(customerID)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "query invoices")
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (table.Row, error) {
		return scanRow(row)
	})
	if err != nil {
		return nil, errors.Wrap(err, "scan invoices")
	}
	return out, nil
}

// FindInvoice returns the latest stored row for externalID.
func (s *Store) FindInvoice(ctx context.Context, externalID string) (*table.Row, error) {
	query := selectColumns() + " WHERE external_id = $1 ORDER BY id DESC LIMIT 1"

	r, err := scanRow(s.db.QueryRow(ctx, query, externalID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrapf(err, "query invoice %s", externalID)
	}
	return &r, nil
}

func selectColumns() string {
	return "SELECT " + strings.Join(table.Columns, ", ") + " FROM " + tableName
}

func listQuery(customerID *string) (string, []any) {
	var (
		b    strings.Builder
		args []any
	)
	b.WriteString(selectColumns())
	if customerID != nil {
		args = append(args, *customerID)
		b.WriteString(" WHERE customer_id = $1")
	}
	b.WriteString(" ORDER BY issued_at DESC NULLS LAST, id DESC")
	return b.String(), args
}

func scanRow(row pgx.Row) (table.Row, error) {
	var (
		r      table.Row
		status string
	)
	err := row.Scan(
		&r.ExternalID,
		&r.CustomerID,
		&r.IssuedAt,
		&r.Total,
		&r.Currency,
		&r.TaxAmount,
		&r.FactusInvoiceID,
		&r.QRURL,
		&r.PDFURL,
		&status,
		&r.ErrorMessage,
	)
	if err != nil {
		return table.Row{}, err
	}
	r.Status = table.Status(status)
	if r.IssuedAt != nil {
		utc := r.IssuedAt.UTC()
		r.IssuedAt = &utc
	}
	return r, nil
}
