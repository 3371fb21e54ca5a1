package types

import (
	"encoding/json"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/enchere-labs/marketsim/pkg/errors"
)

// SimulationConfig is the full run configuration. It fails validation before
// any stepping begins; a validated config plus a seed fully determines the
// transaction log.
type SimulationConfig struct {
	Scenario           string `yaml:"scenario" json:"scenario" jsonschema:"title=Scenario,description=Named scenario resolving to a fixed event list" validate:"required"`
	Steps              int64  `yaml:"steps" json:"steps" jsonschema:"title=Steps,description=Number of simulated time steps,minimum=1" validate:"required,gt=0"`
	Buyers             int64  `yaml:"buyers" json:"buyers" jsonschema:"title=Buyers,minimum=1" validate:"required,gt=0"`
	Sellers            int64  `yaml:"sellers" json:"sellers" jsonschema:"title=Sellers,minimum=1" validate:"required,gt=0"`
	Items              int64  `yaml:"items" json:"items" jsonschema:"title=Items,description=Catalog size,minimum=1" validate:"required,gt=0"`
	Seed               uint64 `yaml:"seed" json:"seed" jsonschema:"title=Seed,description=RNG seed; identical seeds reproduce identical runs"`
	CheckpointInterval int64  `yaml:"checkpoint_interval" json:"checkpoint_interval" jsonschema:"title=Checkpoint Interval,description=Persist a snapshot every N steps; 0 disables" validate:"gte=0"`
	CheckpointDir      string `yaml:"checkpoint_dir" json:"checkpoint_dir" jsonschema:"title=Checkpoint Directory"`

	// OrderTTL expires resting orders after this many steps; 0 keeps them
	// until filled or cancelled. With duplicate rejection on, an agent's
	// resting order blocks it from re-quoting that item and side, so a
	// finite TTL is what lets a small market keep discovering prices.
	OrderTTL int64 `yaml:"order_ttl" json:"order_ttl" validate:"gte=0"`
	// AllowStacking permits an agent to have several resting orders on the
	// same item and side. Off by default: duplicates are rejected.
	AllowStacking bool `yaml:"allow_stacking" json:"allow_stacking"`

	// Initial cash ranges; each agent draws uniformly from its role's range.
	BuyerCashMin  float64 `yaml:"buyer_cash_min" json:"buyer_cash_min" validate:"gte=0"`
	BuyerCashMax  float64 `yaml:"buyer_cash_max" json:"buyer_cash_max" validate:"gte=0"`
	SellerCashMin float64 `yaml:"seller_cash_min" json:"seller_cash_min" validate:"gte=0"`
	SellerCashMax float64 `yaml:"seller_cash_max" json:"seller_cash_max" validate:"gte=0"`

	// Sellers start with SellerLotsMin..SellerLotsMax random catalog lots of
	// 1..SellerLotQtyMax units each.
	SellerLotsMin   int64 `yaml:"seller_lots_min" json:"seller_lots_min" validate:"gte=0"`
	SellerLotsMax   int64 `yaml:"seller_lots_max" json:"seller_lots_max" validate:"gte=0"`
	SellerLotQtyMax int64 `yaml:"seller_lot_qty_max" json:"seller_lot_qty_max" validate:"gte=1"`

	// Base per-step probabilities of acting, before scenario multipliers and
	// the agent's patience discount.
	BaseBuyProbability  float64 `yaml:"base_buy_probability" json:"base_buy_probability" validate:"gt=0,lte=1"`
	BaseSellProbability float64 `yaml:"base_sell_probability" json:"base_sell_probability" validate:"gt=0,lte=1"`

	// VolatilityWindow is how many recent transaction prices feed the rolling
	// per-item volatility estimate.
	VolatilityWindow int `yaml:"volatility_window" json:"volatility_window" validate:"gt=1"`
}

// DefaultConfig returns the baseline configuration; callers override what the
// invocation surface supplies.
func DefaultConfig() SimulationConfig {
	return SimulationConfig{
		Scenario:            "baseline",
		Steps:               100,
		Buyers:              30,
		Sellers:             20,
		Items:               10,
		Seed:                1,
		CheckpointInterval:  50,
		CheckpointDir:       "checkpoints",
		OrderTTL:            5,
		AllowStacking:       false,
		BuyerCashMin:        500,
		BuyerCashMax:        2000,
		SellerCashMin:       300,
		SellerCashMax:       1500,
		SellerLotsMin:       3,
		SellerLotsMax:       8,
		SellerLotQtyMax:     5,
		BaseBuyProbability:  0.25,
		BaseSellProbability: 0.25,
		VolatilityWindow:    20,
	}
}

var configValidator = validator.New()

// Validate checks the configuration, mapping the common mistakes to dedicated
// codes so the CLI can report them before any stepping begins.
func (c *SimulationConfig) Validate() error {
	if c.Steps <= 0 {
		return errors.Newf(errors.ErrCodeInvalidSteps, "steps must be positive, got %d", c.Steps)
	}

	if c.Buyers <= 0 || c.Sellers <= 0 {
		return errors.Newf(errors.ErrCodeInvalidAgentCount, "buyers and sellers must be positive, got %d/%d", c.Buyers, c.Sellers)
	}

	if c.Items <= 0 {
		return errors.Newf(errors.ErrCodeInvalidItemCount, "items must be positive, got %d", c.Items)
	}

	if c.SellerLotsMax < c.SellerLotsMin {
		return errors.Newf(errors.ErrCodeInvalidConfiguration, "seller_lots_max %d < seller_lots_min %d", c.SellerLotsMax, c.SellerLotsMin)
	}

	if c.BuyerCashMax < c.BuyerCashMin || c.SellerCashMax < c.SellerCashMin {
		return errors.New(errors.ErrCodeInvalidConfiguration, "cash range max below min")
	}

	if err := configValidator.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid simulation config", err)
	}

	return nil
}

// LoadConfig reads and validates a YAML configuration file's contents.
func LoadConfig(data []byte) (SimulationConfig, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SimulationConfig{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return SimulationConfig{}, err
	}

	return cfg, nil
}

// GenerateSchema generates a JSON schema for the SimulationConfig.
func (c *SimulationConfig) GenerateSchema() (*jsonschema.Schema, error) {
	reflector := jsonschema.Reflector{
		RequiredFromJSONSchemaTags: true,
		ExpandedStruct:             true,
		AllowAdditionalProperties:  false,
	}

	schema := reflector.Reflect(c)

	schema.Title = "simulation-config"
	schema.Description = "Configuration schema for the market simulation engine"
	schema.Version = "http://json-schema.org/draft-07/schema#"

	return schema, nil
}

// GenerateSchemaJSON generates a JSON schema string for the SimulationConfig.
func (c *SimulationConfig) GenerateSchemaJSON() (string, error) {
	schema, err := c.GenerateSchema()
	if err != nil {
		return "", err
	}

	schemaBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", err
	}

	return string(schemaBytes), nil
}
