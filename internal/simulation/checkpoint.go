package simulation

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"

	"github.com/enchere-labs/marketsim/internal/types"
	"github.com/enchere-labs/marketsim/pkg/errors"
)

// Checkpoint is a plain serializable snapshot of the simulation state,
// sufficient to resume stepping or to reconstruct the partial result of an
// interrupted run. It holds no live references: agents, orders and the RNG
// state are all copied out.
type Checkpoint struct {
	RunID  string                 `json:"run_id"`
	Step   int64                  `json:"step"`
	Config types.SimulationConfig `json:"config"`

	// RNGState is the marshaled PCG state; restoring it continues the
	// random stream bit-exactly where the checkpoint left it.
	RNGState []byte `json:"rng_state"`

	Items         []types.Item                     `json:"items"`
	Agents        []types.AgentState               `json:"agents"`
	RestingOrders []types.Order                    `json:"resting_orders"`
	LastPrices    map[types.ItemID]decimal.Decimal `json:"last_prices"`

	NextOrderID int64 `json:"next_order_id"`
	NextTxID    int64 `json:"next_tx_id"`

	Transactions []types.Transaction `json:"transactions"`
	Series       []types.StepStats   `json:"series"`
}

// checkpointFileName returns the snapshot file name for a step.
func checkpointFileName(runID string, step int64) string {
	return fmt.Sprintf("%s-step-%05d.json", runID, step)
}

// WriteCheckpoint persists a snapshot under dir, creating it if needed.
func WriteCheckpoint(dir string, cp Checkpoint) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", errors.Wrap(errors.ErrCodeCheckpointFailed, "failed to create checkpoint directory", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeCheckpointFailed, "failed to marshal checkpoint", err)
	}

	path := filepath.Join(dir, checkpointFileName(cp.RunID, cp.Step))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", errors.Wrap(errors.ErrCodeCheckpointFailed, "failed to write checkpoint", err)
	}

	return path, nil
}

// ReadCheckpoint loads a snapshot file.
func ReadCheckpoint(path string) (Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Checkpoint{}, errors.Wrap(errors.ErrCodeRestoreFailed, "failed to read checkpoint", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return Checkpoint{}, errors.Wrap(errors.ErrCodeRestoreFailed, "failed to parse checkpoint", err)
	}

	return cp, nil
}
