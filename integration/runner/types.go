package runner

import (
	"time"

	"github.com/google/uuid"
)

// ErrorHandlingMode controls whether a suite stops on the first failing
// step or keeps going to collect all results.
type ErrorHandlingMode string

const (
	ErrorHandlingContinue ErrorHandlingMode = "continue"
	ErrorHandlingExit     ErrorHandlingMode = "exit"
)

// TestSuite defines a complete integration test scenario: one session
// driven from NEW_GAME through its steps in order.
type TestSuite struct {
	Name  string     `json:"name"`
	Steps []TestStep `json:"steps"`
}

// TestStep defines a single player action and its expected outcome.
// Input is free text routed through the phase dispatcher; set Roll to
// confirm a pending skill check with a manual roll instead.
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	Input        string       `json:"input,omitempty"`
	ConfirmRoll  bool         `json:"confirm_roll,omitempty"`
	Roll         *int         `json:"roll,omitempty"`
	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a step's result event arrives.
type Expectations struct {
	EventType *string `json:"event_type,omitempty"`
	Phase     *string `json:"game_phase,omitempty"`

	PartySize    *int    `json:"party_size,omitempty"`
	LocationName *string `json:"location_name,omitempty"`
	WorldChosen  *bool   `json:"world_chosen,omitempty"`

	NarrativeContains    []string `json:"narrative_contains,omitempty"`
	NarrativeNotContains []string `json:"narrative_not_contains,omitempty"`
	NarrativeMinLength   *int     `json:"narrative_min_length,omitempty"`

	// IsError expects the step to be rejected by the worker.
	IsError *bool `json:"is_error,omitempty"`
}

// TestResult contains the outcome of running a single step.
type TestResult struct {
	SuiteName    string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
}

// TestRunResult contains the results of running an entire suite.
type TestRunResult struct {
	Suite     TestSuite
	CaseFile  string
	Results   []TestResult
	Error     error
	Duration  time.Duration
	SessionID uuid.UUID
}
