package types

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/enchere-labs/marketsim/pkg/errors"
)

type ConfigTestSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) TestDefaultConfigIsValid() {
	cfg := DefaultConfig()
	suite.NoError(cfg.Validate())
}

func (suite *ConfigTestSuite) TestValidate() {
	tests := []struct {
		name         string
		mutate       func(*SimulationConfig)
		expectedCode errors.ErrorCode
	}{
		{
			name:         "zero steps",
			mutate:       func(c *SimulationConfig) { c.Steps = 0 },
			expectedCode: errors.ErrCodeInvalidSteps,
		},
		{
			name:         "negative steps",
			mutate:       func(c *SimulationConfig) { c.Steps = -5 },
			expectedCode: errors.ErrCodeInvalidSteps,
		},
		{
			name:         "no buyers",
			mutate:       func(c *SimulationConfig) { c.Buyers = 0 },
			expectedCode: errors.ErrCodeInvalidAgentCount,
		},
		{
			name:         "no sellers",
			mutate:       func(c *SimulationConfig) { c.Sellers = 0 },
			expectedCode: errors.ErrCodeInvalidAgentCount,
		},
		{
			name:         "no items",
			mutate:       func(c *SimulationConfig) { c.Items = 0 },
			expectedCode: errors.ErrCodeInvalidItemCount,
		},
		{
			name:         "inverted lot range",
			mutate:       func(c *SimulationConfig) { c.SellerLotsMin = 9; c.SellerLotsMax = 2 },
			expectedCode: errors.ErrCodeInvalidConfiguration,
		},
		{
			name:         "inverted cash range",
			mutate:       func(c *SimulationConfig) { c.BuyerCashMax = c.BuyerCashMin / 2 },
			expectedCode: errors.ErrCodeInvalidConfiguration,
		},
		{
			name:         "buy probability above one",
			mutate:       func(c *SimulationConfig) { c.BaseBuyProbability = 1.5 },
			expectedCode: errors.ErrCodeInvalidConfiguration,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			suite.Error(err)
			suite.True(errors.HasCode(err, tt.expectedCode), "got %v", err)
		})
	}
}

func (suite *ConfigTestSuite) TestLoadConfig() {
	yamlConfig := `
scenario: demand_x2
steps: 200
buyers: 10
sellers: 5
items: 4
seed: 42
checkpoint_interval: 25
`
	cfg, err := LoadConfig([]byte(yamlConfig))
	suite.NoError(err)
	suite.Equal("demand_x2", cfg.Scenario)
	suite.Equal(int64(200), cfg.Steps)
	suite.Equal(int64(10), cfg.Buyers)
	suite.Equal(uint64(42), cfg.Seed)
	// Defaults survive partial files.
	suite.Equal(20, cfg.VolatilityWindow)
}

func (suite *ConfigTestSuite) TestLoadConfigRejectsBadYAML() {
	_, err := LoadConfig([]byte("steps: [not a number"))
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestGenerateSchemaJSON() {
	cfg := DefaultConfig()
	schema, err := cfg.GenerateSchemaJSON()
	suite.NoError(err)
	suite.Contains(schema, "simulation-config")
	suite.Contains(schema, "checkpoint_interval")
}
