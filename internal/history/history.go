// Package history keeps the run's order and transaction ledger in an
// embedded in-memory DuckDB database. The ledger is an audit surface: the
// simulation manager records every submission and fill into it, queries power
// post-run analysis, and the whole thing can be exported to Parquet.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/enchere-labs/marketsim/internal/logger"
	"github.com/enchere-labs/marketsim/internal/types"
	"github.com/enchere-labs/marketsim/pkg/errors"
)

// Order submission outcomes recorded in the ledger.
const (
	StatusAccepted = "ACCEPTED"
	StatusRejected = "REJECTED"
)

// Ledger is the run's order and transaction history store.
type Ledger struct {
	db     *sql.DB
	logger *logger.Logger
	sq     squirrel.StatementBuilderType
}

// NewLedger opens an in-memory database for one run.
func NewLedger(log *logger.Logger) (*Ledger, error) {
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeHistoryFailed, "failed to open history database", err)
	}

	l := &Ledger{
		db:     db,
		logger: log,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
	}

	if err := l.initialize(); err != nil {
		db.Close()

		return nil, err
	}

	return l, nil
}

func (l *Ledger) initialize() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id BIGINT PRIMARY KEY,
			agent_id TEXT,
			item_id TEXT,
			side TEXT,
			price DOUBLE,
			quantity BIGINT,
			step BIGINT,
			seq BIGINT,
			status TEXT,
			reason TEXT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeHistoryFailed, "failed to create orders table", err)
	}

	_, err = l.db.Exec(`
		CREATE TABLE IF NOT EXISTS transactions (
			tx_id BIGINT PRIMARY KEY,
			buy_order_id BIGINT,
			sell_order_id BIGINT,
			buyer_id TEXT,
			seller_id TEXT,
			item_id TEXT,
			price DOUBLE,
			quantity BIGINT,
			step BIGINT,
			seq BIGINT
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeHistoryFailed, "failed to create transactions table", err)
	}

	return nil
}

// RecordOrder writes one submission outcome. reason is empty for accepted
// orders and carries the rejection message otherwise.
func (l *Ledger) RecordOrder(order types.Order, status, reason string) error {
	insert := l.sq.
		Insert("orders").
		Columns("order_id", "agent_id", "item_id", "side", "price", "quantity", "step", "seq", "status", "reason").
		Values(
			order.ID, string(order.AgentID), string(order.ItemID), string(order.Side),
			order.Price.InexactFloat64(), order.Quantity, order.StepSubmitted, order.Seq,
			status, reason,
		).
		RunWith(l.db)

	if _, err := insert.Exec(); err != nil {
		return errors.Wrap(errors.ErrCodeHistoryFailed, "failed to insert order", err)
	}

	return nil
}

// RecordTransactions writes a batch of fills atomically.
func (l *Ledger) RecordTransactions(txs []types.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	dbTx, err := l.db.Begin()
	if err != nil {
		return errors.Wrap(errors.ErrCodeHistoryFailed, "failed to begin transaction", err)
	}

	for _, tx := range txs {
		insert := l.sq.
			Insert("transactions").
			Columns("tx_id", "buy_order_id", "sell_order_id", "buyer_id", "seller_id", "item_id", "price", "quantity", "step", "seq").
			Values(
				tx.ID, tx.BuyOrderID, tx.SellOrderID, string(tx.BuyerID), string(tx.SellerID),
				string(tx.ItemID), tx.Price.InexactFloat64(), tx.Quantity, tx.Step, tx.Seq,
			).
			RunWith(dbTx)

		if _, err := insert.Exec(); err != nil {
			dbTx.Rollback()

			return errors.Wrap(errors.ErrCodeHistoryFailed, "failed to insert transaction", err)
		}
	}

	if err := dbTx.Commit(); err != nil {
		return errors.Wrap(errors.ErrCodeHistoryFailed, "failed to commit transactions", err)
	}

	return nil
}

// Transactions returns the full fill history ordered by step then seq, the
// canonical transaction-log ordering.
func (l *Ledger) Transactions() ([]types.Transaction, error) {
	selectQuery := l.sq.
		Select("tx_id", "buy_order_id", "sell_order_id", "buyer_id", "seller_id", "item_id", "price", "quantity", "step", "seq").
		From("transactions").
		OrderBy("step ASC", "seq ASC").
		RunWith(l.db)

	rows, err := selectQuery.Query()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeHistoryFailed, "failed to query transactions", err)
	}
	defer rows.Close()

	var txs []types.Transaction
	for rows.Next() {
		var (
			tx                  types.Transaction
			buyer, seller, item string
			price               float64
		)
		if err := rows.Scan(
			&tx.ID, &tx.BuyOrderID, &tx.SellOrderID, &buyer, &seller, &item,
			&price, &tx.Quantity, &tx.Step, &tx.Seq,
		); err != nil {
			return nil, errors.Wrap(errors.ErrCodeHistoryFailed, "failed to scan transaction", err)
		}
		tx.BuyerID = types.AgentID(buyer)
		tx.SellerID = types.AgentID(seller)
		tx.ItemID = types.ItemID(item)
		tx.Price = decimal.NewFromFloat(price)
		txs = append(txs, tx)
	}

	return txs, rows.Err()
}

// OrderCounts returns how many submissions were accepted and rejected.
func (l *Ledger) OrderCounts() (accepted, rejected int64, err error) {
	query := l.sq.
		Select("status", "COUNT(*)").
		From("orders").
		GroupBy("status").
		RunWith(l.db)

	rows, err := query.Query()
	if err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeHistoryFailed, "failed to count orders", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int64
		)
		if err := rows.Scan(&status, &count); err != nil {
			return 0, 0, errors.Wrap(errors.ErrCodeHistoryFailed, "failed to scan order count", err)
		}
		switch status {
		case StatusAccepted:
			accepted = count
		case StatusRejected:
			rejected = count
		}
	}

	return accepted, rejected, rows.Err()
}

// AgentVolume returns the total quantity an agent bought and sold.
func (l *Ledger) AgentVolume(agent types.AgentID) (bought, sold int64, err error) {
	row := l.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN buyer_id = ? THEN quantity END), 0),
			COALESCE(SUM(CASE WHEN seller_id = ? THEN quantity END), 0)
		FROM transactions
	`, string(agent), string(agent))

	if err := row.Scan(&bought, &sold); err != nil {
		return 0, 0, errors.Wrap(errors.ErrCodeHistoryFailed, "failed to query agent volume", err)
	}

	return bought, sold, nil
}

// ExportParquet writes both ledger tables as Parquet files under dir.
func (l *Ledger) ExportParquet(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to create export directory", err)
	}

	txPath := filepath.Join(dir, "transactions.parquet")
	if _, err := l.db.Exec(fmt.Sprintf(`COPY transactions TO '%s' (FORMAT PARQUET)`, txPath)); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to export transactions", err)
	}

	ordersPath := filepath.Join(dir, "orders.parquet")
	if _, err := l.db.Exec(fmt.Sprintf(`COPY orders TO '%s' (FORMAT PARQUET)`, ordersPath)); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to export orders", err)
	}

	l.logger.Info("exported ledger",
		zap.String("transactions", txPath),
		zap.String("orders", ordersPath),
	)

	return nil
}

// Cleanup drops and recreates the ledger tables.
func (l *Ledger) Cleanup() error {
	_, err := l.db.Exec(`
		DROP TABLE IF EXISTS transactions;
		DROP TABLE IF EXISTS orders;
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeHistoryFailed, "failed to drop tables", err)
	}

	return l.initialize()
}

// Close releases the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}
