// Package writer exports a finished run's result record to files. The export
// layout is one directory per run: the transaction log and per-step series as
// CSV, final agent balances as CSV, and the configuration plus summary as
// YAML.
package writer

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/enchere-labs/marketsim/internal/types"
	"github.com/enchere-labs/marketsim/pkg/errors"
)

// ResultWriter exports one run's result record.
type ResultWriter interface {
	// Write persists the whole result and returns the run directory.
	Write(result types.Result) (string, error)
}

// CSVWriter implements ResultWriter with CSV and YAML files.
type CSVWriter struct {
	baseDir string
}

// NewCSVWriter creates a writer rooted at baseDir. Each written result gets
// its own subdirectory named by run id.
func NewCSVWriter(baseDir string) *CSVWriter {
	return &CSVWriter{baseDir: baseDir}
}

// Write exports the result record.
func (w *CSVWriter) Write(result types.Result) (string, error) {
	runDir := filepath.Join(w.baseDir, result.RunID)
	if err := os.MkdirAll(runDir, 0755); err != nil {
		return "", errors.Wrap(errors.ErrCodeExportFailed, "failed to create run directory", err)
	}

	if err := w.writeTransactions(runDir, result.Transactions); err != nil {
		return "", err
	}
	if err := w.writeSeries(runDir, result.Series); err != nil {
		return "", err
	}
	if err := w.writeAgents(runDir, result.FinalAgents); err != nil {
		return "", err
	}
	if err := w.writeSummary(runDir, result); err != nil {
		return "", err
	}

	return runDir, nil
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to create file", err)
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(header); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to write header", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return errors.Wrap(errors.ErrCodeExportFailed, "failed to write row", err)
		}
	}
	cw.Flush()

	return cw.Error()
}

func (w *CSVWriter) writeTransactions(runDir string, txs []types.Transaction) error {
	header := []string{"tx_id", "step", "seq", "item_id", "buyer_id", "seller_id", "buy_order_id", "sell_order_id", "price", "quantity", "value"}

	rows := make([][]string, 0, len(txs))
	for _, tx := range txs {
		rows = append(rows, []string{
			fmt.Sprintf("%d", tx.ID),
			fmt.Sprintf("%d", tx.Step),
			fmt.Sprintf("%d", tx.Seq),
			string(tx.ItemID),
			string(tx.BuyerID),
			string(tx.SellerID),
			fmt.Sprintf("%d", tx.BuyOrderID),
			fmt.Sprintf("%d", tx.SellOrderID),
			tx.Price.String(),
			fmt.Sprintf("%d", tx.Quantity),
			tx.Value().String(),
		})
	}

	return writeCSV(filepath.Join(runDir, "transactions.csv"), header, rows)
}

func (w *CSVWriter) writeSeries(runDir string, series []types.StepStats) error {
	header := []string{"step", "orders", "rejected", "transactions", "volume", "value", "pending_orders"}

	rows := make([][]string, 0, len(series))
	for _, stats := range series {
		rows = append(rows, []string{
			fmt.Sprintf("%d", stats.Step),
			fmt.Sprintf("%d", stats.Orders),
			fmt.Sprintf("%d", stats.Rejected),
			fmt.Sprintf("%d", stats.Transactions),
			fmt.Sprintf("%d", stats.Volume),
			stats.Value.String(),
			fmt.Sprintf("%d", stats.PendingOrders),
		})
	}

	return writeCSV(filepath.Join(runDir, "series.csv"), header, rows)
}

func (w *CSVWriter) writeAgents(runDir string, agents []types.AgentState) error {
	header := []string{"id", "role", "cash", "holdings"}

	rows := make([][]string, 0, len(agents))
	for _, a := range agents {
		rows = append(rows, []string{
			string(a.ID),
			string(a.Role),
			a.Cash.String(),
			formatHoldings(a.Inventory),
		})
	}

	return writeCSV(filepath.Join(runDir, "agents.csv"), header, rows)
}

// formatHoldings renders an inventory as "item-001:3;item-002:1" with item
// ids sorted so output is stable.
func formatHoldings(inventory map[types.ItemID]int64) string {
	ids := make([]string, 0, len(inventory))
	for id := range inventory {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ";"
		}
		out += fmt.Sprintf("%s:%d", id, inventory[types.ItemID(id)])
	}

	return out
}

// summaryDoc is the YAML shape of summary.yaml. Monetary totals render as
// strings so the decimal representation survives the round trip exactly.
type summaryDoc struct {
	RunID   string                 `yaml:"run_id"`
	Config  types.SimulationConfig `yaml:"config"`
	Summary summaryStats           `yaml:"summary"`
	Halt    *types.HaltDiagnostic  `yaml:"halt,omitempty"`
}

type summaryStats struct {
	TotalTransactions int64   `yaml:"total_transactions"`
	TotalVolume       int64   `yaml:"total_volume"`
	TotalValue        string  `yaml:"total_value"`
	AvgTransactions   float64 `yaml:"avg_transactions_per_step"`
	AvgVolume         float64 `yaml:"avg_volume_per_step"`
	StepsCompleted    int64   `yaml:"steps_completed"`
}

func (w *CSVWriter) writeSummary(runDir string, result types.Result) error {
	doc := summaryDoc{
		RunID:  result.RunID,
		Config: result.Config,
		Summary: summaryStats{
			TotalTransactions: result.Summary.TotalTransactions,
			TotalVolume:       result.Summary.TotalVolume,
			TotalValue:        result.Summary.TotalValue.String(),
			AvgTransactions:   result.Summary.AvgTransactions,
			AvgVolume:         result.Summary.AvgVolume,
			StepsCompleted:    result.Summary.StepsCompleted,
		},
		Halt: result.Halt,
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to marshal summary", err)
	}

	if err := os.WriteFile(filepath.Join(runDir, "summary.yaml"), data, 0644); err != nil {
		return errors.Wrap(errors.ErrCodeExportFailed, "failed to write summary", err)
	}

	return nil
}
