// ABOUTME: Tests for stage visibility rules
// ABOUTME: One row per stage

package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestVisibilityFor(t *testing.T) {
	tests := []struct {
		stage Stage
		want  Visibility
	}{
		{StageResearcher, Visibility{}},
		{StageReviewDecision, Visibility{ReviewArrow: true, ReviewerNode: true, AnimateReviewArrow: true}},
		{StageRejected, Visibility{ReviewArrow: true, ReviewerNode: true, RejectLoop: true}},
		{StageApproved, Visibility{ReviewArrow: true, ReviewerNode: true, ApproveArrow: true, AnimateApproveArrow: true}},
		{StageSynthesizer, Visibility{ReviewArrow: true, ReviewerNode: true, ApproveArrow: true, SynthesizerNode: true}},
		{StageComplete, Visibility{ReviewArrow: true, ReviewerNode: true, ApproveArrow: true, SynthesizerNode: true, CompleteBadge: true}},
	}

	for _, tt := range tests {
		t.Run(string(tt.stage), func(t *testing.T) {
			assert.Equal(t, tt.want, VisibilityFor(tt.stage))
		})
	}
}
