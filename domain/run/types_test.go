package run

import (
	"testing"
	"time"

	"statsuite/domain/core"
	"statsuite/domain/method"
	"statsuite/domain/structure"
)

func TestFingerprint_Deterministic(t *testing.T) {
	ds := core.Hash("dataset-hash")
	params := method.Params{"lags": 2, "seed": int64(42)}

	fp1 := Fingerprint(ds, "ar2", params)
	fp2 := Fingerprint(ds, "ar2", method.Params{"seed": int64(42), "lags": 2})
	if fp1 != fp2 {
		t.Errorf("Fingerprints not identical: %s vs %s", fp1, fp2)
	}

	if fp3 := Fingerprint(ds, "ar1", params); fp3 == fp1 {
		t.Error("Different methods must produce different fingerprints")
	}
}

func TestNewRecord_CopiesAttempt(t *testing.T) {
	st := structure.DataStructure{Kind: structure.KindPanel}
	params := method.Params{"robust": true}
	a := NewFitAttempt(st, "pooled", params, ModeAuto)
	params["robust"] = false

	rec := NewRecord(a, core.Hash("h"), OutcomeSuccess, "", a.StartedAt.Add(250*time.Millisecond))

	if rec.Method != "pooled" || rec.StructureKind != structure.KindPanel || rec.Mode != ModeAuto {
		t.Errorf("Unexpected record %+v", rec)
	}
	if rec.Duration != 250*time.Millisecond {
		t.Errorf("Expected 250ms duration, got %v", rec.Duration)
	}
	if rec.Params["robust"] != true {
		t.Error("Attempt params must be copied, not aliased")
	}
	if rec.ID.String() == "" || rec.Fingerprint.IsEmpty() {
		t.Error("Record must carry an ID and fingerprint")
	}
}

func TestFilter_Matches(t *testing.T) {
	rec := Record{Method: "pooled", StructureKind: structure.KindPanel, Outcome: OutcomeFailure}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"empty", Filter{}, true},
		{"method", Filter{Method: "pooled"}, true},
		{"other method", Filter{Method: "ar1"}, false},
		{"kind", Filter{StructureKind: structure.KindPanel}, true},
		{"other kind", Filter{StructureKind: structure.KindSurvival}, false},
		{"outcome", Filter{Outcome: OutcomeSuccess}, false},
		{"mode", Filter{Mode: ModeAll}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(rec); got != tt.want {
				t.Errorf("Matches() = %v, want %v", got, tt.want)
			}
		})
	}
}
