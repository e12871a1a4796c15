package models

import "time"

// ReliabilityState summarises a service's outcome after a tick.
type ReliabilityState string

const (
	StateHealthy          ReliabilityState = "Healthy"
	StatePredictedFailure ReliabilityState = "PredictedFailure"
	StateCritical         ReliabilityState = "Critical"
)

// AllStates lists every reliability state, used for gauge resets.
var AllStates = []ReliabilityState{StateHealthy, StatePredictedFailure, StateCritical}

// TickPath records which branch of the pipeline handled a tick.
type TickPath string

const (
	PathNone     TickPath = "none"
	PathForecast TickPath = "forecast"
	PathReactive TickPath = "reactive"
)

// ServiceState is the controller's record for one service.
type ServiceState struct {
	Service   string
	State     ReliabilityState
	LastPath  TickPath
	UpdatedAt time.Time
}
