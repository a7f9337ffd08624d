package structure

// Kind is the statistical paradigm inferred for a dataset
type Kind string

const (
	KindTimeSeries           Kind = "time_series"
	KindPanel                Kind = "panel"
	KindSurvival             Kind = "survival"
	KindCrossSectionalCausal Kind = "cross_sectional_causal"
	KindUnknown              Kind = "unknown"
)

// Kinds lists the classifiable kinds in detection precedence order
func Kinds() []Kind {
	return []Kind{KindSurvival, KindPanel, KindTimeSeries, KindCrossSectionalCausal}
}

// ParseKind maps a string to a Kind; unrecognised strings yield KindUnknown and false
func ParseKind(s string) (Kind, bool) {
	switch Kind(s) {
	case KindTimeSeries, KindPanel, KindSurvival, KindCrossSectionalCausal, KindUnknown:
		return Kind(s), true
	case "timeseries", "ts":
		return KindTimeSeries, true
	case "causal":
		return KindCrossSectionalCausal, true
	}
	return KindUnknown, false
}

// Check is one heuristic evaluated during classification
type Check struct {
	Name      string `json:"name"`
	Satisfied bool   `json:"satisfied"`
	Required  bool   `json:"required"`
}

// Warning is a non-fatal classification issue
type Warning struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DataStructure describes the statistical shape of one dataset. It is a value
// type: callers receive copies and nothing mutates it after classification.
type DataStructure struct {
	Kind         Kind      `json:"kind"`
	EntityCol    string    `json:"entity_col,omitempty"`
	TimeCol      string    `json:"time_col,omitempty"`
	DurationCol  string    `json:"duration_col,omitempty"`
	EventCol     string    `json:"event_col,omitempty"`
	TreatmentCol string    `json:"treatment_col,omitempty"`
	OutcomeCol   string    `json:"outcome_col,omitempty"`
	Covariates   []string  `json:"covariates,omitempty"`
	NEntities    int       `json:"n_entities"`
	NPeriods     int       `json:"n_periods"`
	NRows        int       `json:"n_rows"`
	Confidence   float64   `json:"confidence"`
	Overridden   bool      `json:"overridden,omitempty"`
	Checks       []Check   `json:"checks,omitempty"`
	Warnings     []Warning `json:"warnings,omitempty"`
}

// Unknown returns the structure produced when no heuristic matches
func Unknown(nrows int) DataStructure {
	return DataStructure{Kind: KindUnknown, NRows: nrows, Confidence: 0}
}

// IsKnown reports whether a paradigm was identified
func (s DataStructure) IsKnown() bool {
	return s.Kind != KindUnknown && s.Kind != ""
}

// Response returns the response definition shared by results fitted on this
// structure
func (s DataStructure) Response() string {
	if s.Kind == KindSurvival {
		if s.DurationCol == "" {
			return ""
		}
		return "Surv(" + s.DurationCol + "," + s.EventCol + ")"
	}
	return s.OutcomeCol
}

// Clone returns a deep copy
func (s DataStructure) Clone() DataStructure {
	out := s
	out.Covariates = append([]string(nil), s.Covariates...)
	out.Checks = append([]Check(nil), s.Checks...)
	out.Warnings = append([]Warning(nil), s.Warnings...)
	return out
}
