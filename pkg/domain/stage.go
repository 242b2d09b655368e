package domain

// Stage is a position in the fixed workflow sequence. Stages form a strict
// total order; an action gated on a stage may only run once the session has
// reached it.
type Stage string

const (
	// StageNoData is the initial stage: nothing has been uploaded yet.
	StageNoData Stage = "no_data"
	// StageDataReady means the session has an uploaded dataset.
	StageDataReady Stage = "data_ready"
	// StageIndicatorsReady means derived indicators have been computed.
	StageIndicatorsReady Stage = "indicators_ready"
	// StageRiskScored means the risk model has run over the indicators.
	StageRiskScored Stage = "risk_scored"
)

// stageRank fixes the total order. There is no terminal stage: free-form
// analysis remains valid indefinitely after the last stage.
var stageRank = map[Stage]int{
	StageNoData:          0,
	StageDataReady:       1,
	StageIndicatorsReady: 2,
	StageRiskScored:      3,
}

// Stages returns the workflow sequence in order.
func Stages() []Stage {
	return []Stage{StageNoData, StageDataReady, StageIndicatorsReady, StageRiskScored}
}

// Known reports whether s is a member of the workflow sequence.
func (s Stage) Known() bool {
	_, ok := stageRank[s]
	return ok
}

// AtLeast reports whether s satisfies a gate requiring other.
func (s Stage) AtLeast(other Stage) bool {
	return stageRank[s] >= stageRank[other]
}

// Before reports whether s strictly precedes other in the sequence.
func (s Stage) Before(other Stage) bool {
	return stageRank[s] < stageRank[other]
}

// Prev returns the stage immediately preceding s, or s itself for the first
// stage.
func (s Stage) Prev() Stage {
	r := stageRank[s]
	if r == 0 {
		return s
	}
	return Stages()[r-1]
}
