package pipeline

import (
	"context"

	"github.com/signalpipe/signalpipe/internal/services/risk"
)

// riskStage asks the risk manager to approve the graded candidate. The
// veto checks and sizing are independent of signal quality: an A+ setup is
// vetoed exactly like a C when a day lock or cap is active. The manager
// serializes all risk-state access, so candidates must reach this stage
// one at a time per cycle.
type riskStage struct {
	manager *risk.Manager
}

// NewRiskStage wraps the risk manager as a pipeline stage.
func NewRiskStage(manager *risk.Manager) Stage {
	return &riskStage{manager: manager}
}

func (s *riskStage) Name() string { return "risk" }

func (s *riskStage) Evaluate(_ context.Context, c *Candidate) StageResult {
	approval, veto := s.manager.Approve(c.Snapshot.Pair, c.Snapshot.Price, c.Snapshot.ATR, c.SizeFactor)
	if veto != "" {
		return Block(veto)
	}

	c.Approval = approval
	return Pass()
}
