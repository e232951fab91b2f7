package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// stubPgxTx satisfies pgx.Tx for WithTx querier-swap assertions
type stubPgxTx struct{}

func (*stubPgxTx) Begin(ctx context.Context) (pgx.Tx, error) { return nil, nil }
func (*stubPgxTx) Commit(ctx context.Context) error          { return nil }
func (*stubPgxTx) Rollback(ctx context.Context) error        { return nil }
func (*stubPgxTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (*stubPgxTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (*stubPgxTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (*stubPgxTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return &pgconn.StatementDescription{}, nil
}
func (*stubPgxTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, nil
}
func (*stubPgxTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (*stubPgxTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row { return nil }
func (*stubPgxTx) Conn() *pgx.Conn                                               { return nil }
