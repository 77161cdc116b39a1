package fraud

import (
	"context"
	"hash/fnv"
	"strings"

	"github.com/paymenthub/payment-engine-backend/internal/log"
)

// Trigger substrings recognized by the dry-run scorer, usable from tests and
// demo flows to force a verdict.
const (
	dryRunDeclineMarker = "FRAUD-DECLINE"
	dryRunReviewMarker  = "FRAUD-REVIEW"
)

// DryRunClient scores payments deterministically without calling a provider,
// for tests and environments running without a fraud service. The score is a
// stable hash of the UETR so replays of the same payment always agree.
type DryRunClient struct{}

func NewDryRunClient() *DryRunClient {
	return &DryRunClient{}
}

func (c *DryRunClient) Score(ctx context.Context, scoreReq ScoreRequest) (*ScoreResult, error) {
	if err := scoreReq.validate(); err != nil {
		return nil, err
	}

	result := &ScoreResult{Decision: DecisionApprove}
	switch {
	case strings.Contains(scoreReq.CreditorName, dryRunDeclineMarker):
		result.Score = 95
		result.Decision = DecisionDecline
		result.Reasons = []string{"creditor name matched decline marker"}
	case strings.Contains(scoreReq.CreditorName, dryRunReviewMarker):
		result.Score = 65
		result.Decision = DecisionReview
		result.Reasons = []string{"creditor name matched review marker"}
	default:
		h := fnv.New32a()
		h.Write([]byte(scoreReq.UETR))
		// Stable pseudo-score in [0, 50): always below any sane threshold.
		result.Score = float64(h.Sum32() % 50)
	}

	log.Ctx(ctx).Infof("[DRY_RUN Fraud] Scored payment %s: %s (%.0f)", scoreReq.PaymentID, result.Decision, result.Score)
	return result, nil
}

var _ ScorerInterface = (*DryRunClient)(nil)
