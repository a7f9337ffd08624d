package run

import (
	"crypto/sha256"
	"fmt"
	"time"

	"statsuite/domain/core"
	"statsuite/domain/method"
	"statsuite/domain/structure"
)

// Mode is the dispatch mode an attempt was made under
type Mode string

const (
	ModeAuto     Mode = "auto"
	ModeAll      Mode = "all"
	ModeExplicit Mode = "explicit"
)

// Outcome is the terminal status of one attempt
type Outcome string

const (
	OutcomeSuccess              Outcome = "success"
	OutcomeFailure              Outcome = "failure"
	OutcomeTimeout              Outcome = "timeout"
	OutcomePreconditionRejected Outcome = "precondition_rejected"
	OutcomeCancelled            Outcome = "cancelled"
)

// FitAttempt is created per candidate tried and discarded once recorded
type FitAttempt struct {
	ID        core.AttemptID
	Structure structure.DataStructure
	Method    string
	Params    method.Params
	Mode      Mode
	StartedAt time.Time
}

// NewFitAttempt stamps a new attempt
func NewFitAttempt(st structure.DataStructure, name string, params method.Params, mode Mode) FitAttempt {
	return FitAttempt{
		ID:        core.NewAttemptID(),
		Structure: st,
		Method:    name,
		Params:    params.Clone(),
		Mode:      mode,
		StartedAt: time.Now().UTC(),
	}
}

// Record is the provenance entry written for every attempt, successful or not
type Record struct {
	ID            core.RecordID          `json:"id" db:"id"`
	AttemptID     core.AttemptID         `json:"attempt_id" db:"attempt_id"`
	Method        string                 `json:"method" db:"method"`
	StructureKind structure.Kind         `json:"structure_kind" db:"structure_kind"`
	Mode          Mode                   `json:"mode" db:"mode"`
	Params        map[string]interface{} `json:"params" db:"-"`
	Outcome       Outcome                `json:"outcome" db:"outcome"`
	Reason        string                 `json:"reason,omitempty" db:"reason"`
	StartedAt     time.Time              `json:"started_at" db:"started_at"`
	Duration      time.Duration          `json:"duration" db:"duration_ns"`
	AIC           *float64               `json:"aic,omitempty" db:"aic"`
	BIC           *float64               `json:"bic,omitempty" db:"bic"`
	LogLikelihood *float64               `json:"log_likelihood,omitempty" db:"log_likelihood"`
	RSquared      *float64               `json:"r_squared,omitempty" db:"r_squared"`
	Dataset       core.Hash              `json:"dataset" db:"dataset_hash"`
	Fingerprint   core.Hash              `json:"fingerprint" db:"fingerprint"`
}

// Fingerprint identifies a reproducible fit: same data, method and params
func Fingerprint(dataset core.Hash, methodName string, params method.Params) core.Hash {
	data := fmt.Sprintf("dataset:%s|method:%s|params:%s", dataset, methodName, core.ComputeParamsHash(params))
	hash := sha256.Sum256([]byte(data))
	return core.Hash(fmt.Sprintf("%x", hash))
}

// NewRecord builds the record for a finished attempt
func NewRecord(a FitAttempt, dataset core.Hash, outcome Outcome, reason string, finished time.Time) Record {
	return Record{
		ID:            core.NewRecordID(),
		AttemptID:     a.ID,
		Method:        a.Method,
		StructureKind: a.Structure.Kind,
		Mode:          a.Mode,
		Params:        a.Params.Clone(),
		Outcome:       outcome,
		Reason:        reason,
		StartedAt:     a.StartedAt,
		Duration:      finished.Sub(a.StartedAt),
		Dataset:       dataset,
		Fingerprint:   Fingerprint(dataset, a.Method, a.Params),
	}
}

// Filter selects records in queries; zero fields match everything
type Filter struct {
	Method        string
	StructureKind structure.Kind
	Outcome       Outcome
	Mode          Mode
	Limit         int
}

// Matches reports whether r satisfies the filter
func (f Filter) Matches(r Record) bool {
	if f.Method != "" && r.Method != f.Method {
		return false
	}
	if f.StructureKind != "" && r.StructureKind != f.StructureKind {
		return false
	}
	if f.Outcome != "" && r.Outcome != f.Outcome {
		return false
	}
	if f.Mode != "" && r.Mode != f.Mode {
		return false
	}
	return true
}
