// Package model defines the submission, case and verdict types shared by the
// judge engine, the verdict repository and the transport layer.
package model

import (
	"encoding/json"
	"fmt"
)

// CaseStatus is the outcome of a single test case. Run statuses are passed
// through from the sandbox verbatim; checker decisions are adjudicated to
// Accepted or WrongAnswer.
type CaseStatus string

const (
	StatusAccepted            CaseStatus = "Accepted"
	StatusWrongAnswer         CaseStatus = "WrongAnswer"
	StatusTimeLimitExceeded   CaseStatus = "TimeLimitExceeded"
	StatusMemoryLimitExceeded CaseStatus = "MemoryLimitExceeded"
	StatusOutputLimitExceeded CaseStatus = "OutputLimitExceeded"
	StatusNonzeroExitStatus   CaseStatus = "NonzeroExitStatus"
	StatusSignalled           CaseStatus = "Signalled"
	StatusFileError           CaseStatus = "FileError"
	StatusInternalError       CaseStatus = "InternalError"
)

// CaseResult records one evaluated test case.
type CaseResult struct {
	OK          bool       `json:"ok"`
	Status      CaseStatus `json:"status"`
	TimeNS      int64      `json:"time"`
	MemoryBytes int64      `json:"memory"`
	Message     string     `json:"msg"`
}

// VerdictState is the lifecycle state of a submission verdict.
type VerdictState string

const (
	StateQueued VerdictState = "queued"
	StateDone   VerdictState = "done"
	StateError  VerdictState = "error"
)

// Verdict is the three-state submission outcome. The wire shape is flat:
// a "status" discriminator plus the fields of the active state.
type Verdict struct {
	State  VerdictState
	Passed bool
	Result CaseStatus
	Cases  []CaseResult
	Error  string
}

// Queued returns the initial verdict published at intake.
func Queued() Verdict {
	return Verdict{State: StateQueued}
}

// Done builds a terminal verdict from the emitted case results. Result is the
// status of the last emitted case, so a fully accepted run ends Accepted and
// a failed run ends with its failure status.
func Done(cases []CaseResult) Verdict {
	v := Verdict{State: StateDone, Passed: true, Result: StatusAccepted, Cases: cases}
	for _, c := range cases {
		if !c.OK {
			v.Passed = false
		}
	}
	if len(cases) > 0 {
		v.Result = cases[len(cases)-1].Status
	}
	return v
}

// Errored builds a terminal error verdict.
func Errored(msg string) Verdict {
	return Verdict{State: StateError, Error: msg}
}

// Terminal reports whether the verdict will not change anymore.
func (v Verdict) Terminal() bool {
	return v.State == StateDone || v.State == StateError
}

type queuedJSON struct {
	Status VerdictState `json:"status"`
}

type doneJSON struct {
	Status VerdictState `json:"status"`
	Passed bool         `json:"passed"`
	Result CaseStatus   `json:"result"`
	Cases  []CaseResult `json:"cases"`
}

type errorJSON struct {
	Status VerdictState `json:"status"`
	Error  string       `json:"error"`
}

// MarshalJSON flattens the verdict to its wire shape.
func (v Verdict) MarshalJSON() ([]byte, error) {
	switch v.State {
	case StateDone:
		cases := v.Cases
		if cases == nil {
			cases = []CaseResult{}
		}
		return json.Marshal(doneJSON{Status: StateDone, Passed: v.Passed, Result: v.Result, Cases: cases})
	case StateError:
		return json.Marshal(errorJSON{Status: StateError, Error: v.Error})
	case StateQueued, "":
		return json.Marshal(queuedJSON{Status: StateQueued})
	default:
		return nil, fmt.Errorf("unknown verdict state %q", v.State)
	}
}

// UnmarshalJSON restores a verdict from its wire shape.
func (v *Verdict) UnmarshalJSON(data []byte) error {
	var probe struct {
		Status VerdictState `json:"status"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return err
	}
	switch probe.Status {
	case StateDone:
		var d doneJSON
		if err := json.Unmarshal(data, &d); err != nil {
			return err
		}
		*v = Verdict{State: StateDone, Passed: d.Passed, Result: d.Result, Cases: d.Cases}
	case StateError:
		var e errorJSON
		if err := json.Unmarshal(data, &e); err != nil {
			return err
		}
		*v = Verdict{State: StateError, Error: e.Error}
	case StateQueued:
		*v = Verdict{State: StateQueued}
	default:
		return fmt.Errorf("unknown verdict state %q", probe.Status)
	}
	return nil
}
