package types

// EventState is the lifecycle of a scenario event relative to a step.
type EventState string

const (
	EventInactive EventState = "INACTIVE"
	EventActive   EventState = "ACTIVE"
	EventExpired  EventState = "EXPIRED"
)

// ScenarioEvent is a time-windowed override of simulation parameters.
// Read-only once defined; the scenario engine evaluates activation per step
// without mutating the event. Overrides compose multiplicatively when several
// events are active at once.
type ScenarioEvent struct {
	Name        string             `yaml:"name" json:"name" validate:"required"`
	TriggerStep int64              `yaml:"trigger_step" json:"trigger_step" validate:"gte=0"`
	Duration    int64              `yaml:"duration" json:"duration" validate:"gt=0"`
	Overrides   map[string]float64 `yaml:"overrides" json:"overrides" validate:"required,min=1"`
}

// StateAt returns the event's lifecycle state at the given step.
func (e ScenarioEvent) StateAt(step int64) EventState {
	switch {
	case step < e.TriggerStep:
		return EventInactive
	case step < e.TriggerStep+e.Duration:
		return EventActive
	default:
		return EventExpired
	}
}

// ActiveAt reports whether the event's window covers the step.
func (e ScenarioEvent) ActiveAt(step int64) bool {
	return e.StateAt(step) == EventActive
}
