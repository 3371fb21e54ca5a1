package writer

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"gopkg.in/yaml.v3"

	"github.com/enchere-labs/marketsim/internal/types"
)

type WriterTestSuite struct {
	suite.Suite

	baseDir string
}

func TestWriterSuite(t *testing.T) {
	suite.Run(t, new(WriterTestSuite))
}

func (suite *WriterTestSuite) SetupTest() {
	dir, err := os.MkdirTemp("", "writer-test")
	suite.Require().NoError(err)
	suite.baseDir = dir
}

func (suite *WriterTestSuite) TearDownTest() {
	os.RemoveAll(suite.baseDir)
}

func (suite *WriterTestSuite) sampleResult() types.Result {
	return types.Result{
		RunID:  "run-test",
		Config: types.DefaultConfig(),
		Transactions: []types.Transaction{
			{ID: 1, BuyOrderID: 10, SellOrderID: 11, BuyerID: "buyer-001", SellerID: "seller-001",
				ItemID: "item-001", Price: decimal.NewFromFloat(12.5), Quantity: 2, Step: 1, Seq: 0},
			{ID: 2, BuyOrderID: 12, SellOrderID: 11, BuyerID: "buyer-002", SellerID: "seller-001",
				ItemID: "item-001", Price: decimal.NewFromInt(13), Quantity: 1, Step: 2, Seq: 0},
		},
		Series: []types.StepStats{
			{Step: 1, Orders: 4, Rejected: 1, Transactions: 1, Volume: 2, Value: decimal.NewFromInt(25), PendingOrders: 2},
			{Step: 2, Orders: 2, Rejected: 0, Transactions: 1, Volume: 1, Value: decimal.NewFromInt(13), PendingOrders: 1},
		},
		Summary: types.Summary{
			TotalTransactions: 2,
			TotalVolume:       3,
			TotalValue:        decimal.NewFromInt(38),
			AvgTransactions:   1,
			AvgVolume:         1.5,
			StepsCompleted:    2,
		},
		FinalAgents: []types.AgentState{
			{ID: "buyer-001", Role: types.RoleBuyer, Cash: decimal.NewFromInt(975),
				Inventory: map[types.ItemID]int64{"item-001": 2}},
			{ID: "seller-001", Role: types.RoleSeller, Cash: decimal.NewFromInt(538),
				Inventory: map[types.ItemID]int64{"item-002": 1, "item-001": 3}},
		},
	}
}

func (suite *WriterTestSuite) readCSV(path string) [][]string {
	file, err := os.Open(path)
	suite.Require().NoError(err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	suite.Require().NoError(err)

	return rows
}

func (suite *WriterTestSuite) TestWriteCreatesRunDirectory() {
	runDir, err := NewCSVWriter(suite.baseDir).Write(suite.sampleResult())
	suite.Require().NoError(err)
	suite.Equal(filepath.Join(suite.baseDir, "run-test"), runDir)

	for _, name := range []string{"transactions.csv", "series.csv", "agents.csv", "summary.yaml"} {
		_, err := os.Stat(filepath.Join(runDir, name))
		suite.NoError(err, "expected %s", name)
	}
}

func (suite *WriterTestSuite) TestTransactionsCSV() {
	runDir, err := NewCSVWriter(suite.baseDir).Write(suite.sampleResult())
	suite.Require().NoError(err)

	rows := suite.readCSV(filepath.Join(runDir, "transactions.csv"))
	suite.Require().Len(rows, 3)

	suite.Equal("tx_id", rows[0][0])
	suite.Equal([]string{"1", "1", "0", "item-001", "buyer-001", "seller-001", "10", "11", "12.5", "2", "25"}, rows[1])
	suite.Equal("13", rows[2][8])
}

func (suite *WriterTestSuite) TestAgentsCSVHoldingsAreStable() {
	runDir, err := NewCSVWriter(suite.baseDir).Write(suite.sampleResult())
	suite.Require().NoError(err)

	rows := suite.readCSV(filepath.Join(runDir, "agents.csv"))
	suite.Require().Len(rows, 3)
	suite.Equal("item-001:2", rows[1][3])
	suite.Equal("item-001:3;item-002:1", rows[2][3])
}

func (suite *WriterTestSuite) TestSummaryYAML() {
	runDir, err := NewCSVWriter(suite.baseDir).Write(suite.sampleResult())
	suite.Require().NoError(err)

	data, err := os.ReadFile(filepath.Join(runDir, "summary.yaml"))
	suite.Require().NoError(err)

	var doc struct {
		RunID   string `yaml:"run_id"`
		Summary struct {
			TotalTransactions int64  `yaml:"total_transactions"`
			TotalValue        string `yaml:"total_value"`
			StepsCompleted    int64  `yaml:"steps_completed"`
		} `yaml:"summary"`
	}
	suite.Require().NoError(yaml.Unmarshal(data, &doc))
	suite.Equal("run-test", doc.RunID)
	suite.Equal(int64(2), doc.Summary.TotalTransactions)
	suite.Equal("38", doc.Summary.TotalValue)
	suite.Equal(int64(2), doc.Summary.StepsCompleted)
}

func (suite *WriterTestSuite) TestHaltAppearsInSummary() {
	result := suite.sampleResult()
	result.Halt = &types.HaltDiagnostic{Step: 2, AgentID: "buyer-001", Reason: "negative cash balance"}

	runDir, err := NewCSVWriter(suite.baseDir).Write(result)
	suite.Require().NoError(err)

	data, err := os.ReadFile(filepath.Join(runDir, "summary.yaml"))
	suite.Require().NoError(err)
	suite.Contains(string(data), "negative cash balance")
}

func (suite *WriterTestSuite) TestEmptyResult() {
	result := types.Result{RunID: "empty", Config: types.DefaultConfig()}

	runDir, err := NewCSVWriter(suite.baseDir).Write(result)
	suite.Require().NoError(err)

	rows := suite.readCSV(filepath.Join(runDir, "transactions.csv"))
	suite.Len(rows, 1)
}
