package db

import (
	"context"
	"database/sql"
)

type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txKey struct{}

// WithTx はTxを開始して fn を実行する。fn が nil を返せば COMMIT、エラーなら ROLLBACK。
// ctx に既にTxがあればそれに相乗りする（inventory と rentals の Store を同一Txで使うため）。
func WithTx(ctx context.Context, conn *sql.DB, fn func(ctx context.Context) error) error {
	return WithTxOptions(ctx, conn, nil, fn)
}

// WithTxOptions は分離レベル等を指定して WithTx する。相乗り時は外側の設定のまま
func WithTxOptions(ctx context.Context, conn *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}

	tx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// ReadOnly は読み取り専用Txで fn を実行する
func ReadOnly(ctx context.Context, conn *sql.DB, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := conn.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return err
	}
	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func TxFromContext(ctx context.Context) *sql.Tx {
	tx, _ := ctx.Value(txKey{}).(*sql.Tx)
	return tx
}

// Conn: ctx にTxがあればTx、なければ fallback を返す
func Conn(ctx context.Context, fallback *sql.DB) DBTX {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return fallback
}
