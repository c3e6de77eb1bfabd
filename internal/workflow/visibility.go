// ABOUTME: Derives which dashboard nodes and arrows are visible for a stage
// ABOUTME: Also marks the arrow that animates while a hand-off is in flight

package workflow

// Visibility lists the dashboard elements shown for a stage. The researcher
// node is always shown.
type Visibility struct {
	ReviewArrow     bool // researcher -> reviewer
	ReviewerNode    bool
	ApproveArrow    bool // reviewer -> synthesizer
	SynthesizerNode bool
	RejectLoop      bool // reviewer -> researcher feedback loop
	CompleteBadge   bool

	AnimateReviewArrow  bool
	AnimateApproveArrow bool
}

// VisibilityFor returns the elements shown while the workflow is in stage.
func VisibilityFor(stage Stage) Visibility {
	var v Visibility
	switch stage {
	case StageReviewDecision, StageRejected, StageApproved, StageSynthesizer, StageComplete:
		v.ReviewArrow = true
		v.ReviewerNode = true
	}
	switch stage {
	case StageApproved, StageSynthesizer, StageComplete:
		v.ApproveArrow = true
	}
	v.SynthesizerNode = stage == StageSynthesizer || stage == StageComplete
	v.RejectLoop = stage == StageRejected
	v.CompleteBadge = stage == StageComplete
	v.AnimateReviewArrow = stage == StageReviewDecision
	v.AnimateApproveArrow = stage == StageApproved
	return v
}
