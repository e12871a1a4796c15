package models

// Diagnosis is the classifier output for one reactive evaluation.
type Diagnosis struct {
	RootCause         string
	RecommendedAction Action
	Confidence        float64
	Reasoning         string
}

// UnknownDiagnosis is returned when no heuristic matches.
func UnknownDiagnosis() Diagnosis {
	return Diagnosis{
		RootCause:         "Unknown",
		RecommendedAction: ActionEscalate,
		Confidence:        0,
		Reasoning:         "Could not determine cause from logs.",
	}
}
