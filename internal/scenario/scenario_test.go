package scenario

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/enchere-labs/marketsim/internal/types"
	"github.com/enchere-labs/marketsim/pkg/errors"
)

type ScenarioTestSuite struct {
	suite.Suite
}

func TestScenarioSuite(t *testing.T) {
	suite.Run(t, new(ScenarioTestSuite))
}

func (suite *ScenarioTestSuite) TestLookupKnownScenarios() {
	for _, name := range Names() {
		schedule, err := Lookup(name)
		suite.NoError(err)
		suite.Equal(name, schedule.Name())
	}

	baseline, err := Lookup("baseline")
	suite.Require().NoError(err)
	suite.Empty(baseline.Events())
	suite.Empty(baseline.OverridesAt(0))
}

func (suite *ScenarioTestSuite) TestLookupUnknownScenario() {
	_, err := Lookup("hyperinflation")
	suite.Error(err)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownScenario))
}

func (suite *ScenarioTestSuite) TestDemandSurgeWindow() {
	schedule, err := Lookup("demand_x2")
	suite.Require().NoError(err)

	suite.Empty(schedule.OverridesAt(49))
	suite.Equal(map[string]float64{types.ParamBuyProbability: 2.0}, schedule.OverridesAt(50))
	suite.Equal(map[string]float64{types.ParamBuyProbability: 2.0}, schedule.OverridesAt(79))
	suite.Empty(schedule.OverridesAt(80))

	suite.Equal([]string{"demand_surge"}, schedule.ActiveEvents(65))
	suite.Empty(schedule.ActiveEvents(80))
}

func (suite *ScenarioTestSuite) TestOverlappingEventsComposeMultiplicatively() {
	schedule, err := NewSchedule("custom", []types.ScenarioEvent{
		{Name: "a", TriggerStep: 10, Duration: 20, Overrides: map[string]float64{types.ParamBuyProbability: 2.0}},
		{Name: "b", TriggerStep: 15, Duration: 10, Overrides: map[string]float64{
			types.ParamBuyProbability: 1.5,
			types.ParamValuationNoise: 3.0,
		}},
	})
	suite.Require().NoError(err)

	suite.Equal(map[string]float64{types.ParamBuyProbability: 2.0}, schedule.OverridesAt(12))

	both := schedule.OverridesAt(20)
	suite.InDelta(3.0, both[types.ParamBuyProbability], 1e-9)
	suite.InDelta(3.0, both[types.ParamValuationNoise], 1e-9)

	suite.Equal([]string{"a", "b"}, schedule.ActiveEvents(20))
}

func (suite *ScenarioTestSuite) TestNewScheduleValidation() {
	tests := []struct {
		name         string
		event        types.ScenarioEvent
		expectedCode errors.ErrorCode
	}{
		{
			name:         "zero duration",
			event:        types.ScenarioEvent{Name: "bad", TriggerStep: 5, Duration: 0},
			expectedCode: errors.ErrCodeInvalidEvent,
		},
		{
			name:         "negative trigger",
			event:        types.ScenarioEvent{Name: "bad", TriggerStep: -1, Duration: 10},
			expectedCode: errors.ErrCodeInvalidEvent,
		},
		{
			name: "non-positive multiplier",
			event: types.ScenarioEvent{
				Name: "bad", TriggerStep: 5, Duration: 10,
				Overrides: map[string]float64{types.ParamBuyProbability: 0},
			},
			expectedCode: errors.ErrCodeInvalidOverride,
		},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := NewSchedule("custom", []types.ScenarioEvent{tt.event})
			suite.Error(err)
			suite.True(errors.HasCode(err, tt.expectedCode), "got %v", err)
		})
	}
}

func (suite *ScenarioTestSuite) TestMarketCrashOverrides() {
	schedule, err := Lookup("market_crash")
	suite.Require().NoError(err)

	active := schedule.OverridesAt(70)
	suite.InDelta(2.5, active[types.ParamSellProbability], 1e-9)
	suite.InDelta(0.8, active[types.ParamProfitTarget], 1e-9)
}
