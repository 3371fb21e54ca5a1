package errors

// ErrorCode represents a unique error code for identifying different error types.
type ErrorCode int

const (
	// General errors (1-99)
	ErrCodeUnknown ErrorCode = 1

	// Configuration errors (100-199)
	ErrCodeInvalidParameter     ErrorCode = 100
	ErrCodeInvalidConfiguration ErrorCode = 101
	ErrCodeUnknownScenario      ErrorCode = 102
	ErrCodeInvalidSteps         ErrorCode = 103
	ErrCodeInvalidAgentCount    ErrorCode = 104
	ErrCodeInvalidItemCount     ErrorCode = 105

	// Order errors (200-299)
	ErrCodeInvalidQuantity       ErrorCode = 200
	ErrCodeInvalidPrice          ErrorCode = 201
	ErrCodeUnknownItem           ErrorCode = 202
	ErrCodeDuplicateOrder        ErrorCode = 203
	ErrCodeInsufficientFunds     ErrorCode = 204
	ErrCodeInsufficientInventory ErrorCode = 205
	ErrCodeOrderNotFound         ErrorCode = 206
	ErrCodeInvalidSide           ErrorCode = 207

	// Scenario errors (300-399)
	ErrCodeInvalidEvent    ErrorCode = 300
	ErrCodeInvalidOverride ErrorCode = 301

	// Simulation errors (400-499)
	ErrCodeInvariantBreach  ErrorCode = 400
	ErrCodeSimulationHalted ErrorCode = 401
	ErrCodeRestoreFailed    ErrorCode = 402

	// Persistence errors (500-599)
	ErrCodeCheckpointFailed ErrorCode = 500
	ErrCodeHistoryFailed    ErrorCode = 501
	ErrCodeExportFailed     ErrorCode = 502
)
