// Package routing resolves the ordered list of clearing rails a payment may
// be submitted to. Resolution walks four tiers, most specific first: explicit
// tenant routing rules, the payment type's default adapter, a currency and
// amount heuristic, and finally the tenant-wide default adapter. Rails whose
// adapter is unavailable sort to the back so the saga tries healthy rails
// first, but they stay on the list as a last resort.
package routing

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/paymenthub/payment-engine-backend/internal/data"
	"github.com/paymenthub/payment-engine-backend/internal/log"
	"github.com/paymenthub/payment-engine-backend/internal/tenant"
)

// ErrNoRoute is returned when no tier yields a single usable rail. The caller
// treats it as a configuration problem, not a transient failure.
var ErrNoRoute = errors.New("no clearing route available for payment")

// rtcAmountCeiling is the upper bound for routing immediate ZAR payments to
// the real-time retail rails.
var rtcAmountCeiling = decimal.NewFromInt(1_000_000)

// CandidateSource records which resolution tier produced a candidate.
type CandidateSource string

const (
	SourceRoutingRule        CandidateSource = "routing_rule"
	SourcePaymentTypeDefault CandidateSource = "payment_type_default"
	SourceHeuristic          CandidateSource = "heuristic"
	SourceTenantDefault      CandidateSource = "tenant_default"
)

// Candidate is one rail in preference order.
type Candidate struct {
	Rail   data.Rail       `json:"rail"`
	Source CandidateSource `json:"source"`
	// RuleID is set when Source is SourceRoutingRule.
	RuleID string `json:"ruleId,omitempty"`
	// Degraded candidates are kept but sort after every healthy one.
	Degraded       bool   `json:"degraded,omitempty"`
	DegradedReason string `json:"degradedReason,omitempty"`
}

// Input carries the payment attributes resolution matches on, plus the tenant
// config pinned at intake.
type Input struct {
	TenantID        string
	PaymentTypeCode string
	LocalInstrument string
	Currency        string
	Amount          decimal.Decimal
	Config          tenant.ConfigPayload
}

func (i Input) validate() error {
	if i.TenantID == "" {
		return fmt.Errorf("tenant ID is required")
	}
	if i.PaymentTypeCode == "" {
		return fmt.Errorf("payment type code is required")
	}
	if i.Currency == "" {
		return fmt.Errorf("currency is required")
	}
	return nil
}

// BreakerProberInterface reports live transport health for a rail, fed by
// the clearing registry's circuit breakers and rate limiters.
type BreakerProberInterface interface {
	RailDegraded(ctx context.Context, tenantID string, rail data.Rail) (degraded bool, reason string)
}

// ResolverInterface resolves the candidate rails for a payment.
type ResolverInterface interface {
	Resolve(ctx context.Context, input Input) ([]Candidate, error)
}

type Resolver struct {
	models *data.Models
	prober BreakerProberInterface
}

// NewResolver creates a routing resolver. The prober may be nil, in which
// case only the adapter row status marks candidates degraded.
func NewResolver(models *data.Models, prober BreakerProberInterface) (*Resolver, error) {
	if models == nil {
		return nil, fmt.Errorf("models cannot be nil")
	}
	return &Resolver{models: models, prober: prober}, nil
}

// Resolve returns the ordered candidate list for the payment. Candidates are
// deduplicated by rail, the earliest tier winning; rails without an enabled
// adapter row are dropped; degraded candidates sort after healthy ones while
// keeping tier order within each class. An empty result is ErrNoRoute.
func (r *Resolver) Resolve(ctx context.Context, input Input) ([]Candidate, error) {
	if err := input.validate(); err != nil {
		return nil, fmt.Errorf("validating routing input: %w", err)
	}

	var candidates []Candidate
	seen := map[data.Rail]bool{}
	appendCandidate := func(c Candidate) {
		if seen[c.Rail] {
			return
		}
		seen[c.Rail] = true
		candidates = append(candidates, c)
	}

	// Tier 1: explicit routing rules, tenant rows before shared ones.
	rules, err := r.models.RoutingRules.GetMatching(ctx, r.models.DBConnectionPool, input.TenantID, data.RoutingMatchQuery{
		PaymentTypeCode: input.PaymentTypeCode,
		LocalInstrument: input.LocalInstrument,
		Currency:        input.Currency,
		Amount:          input.Amount,
	})
	if err != nil {
		return nil, fmt.Errorf("matching routing rules: %w", err)
	}
	for _, rule := range rules {
		appendCandidate(Candidate{Rail: rule.Rail, Source: SourceRoutingRule, RuleID: rule.ID})
	}

	// Tier 2: the payment type's default adapter.
	if ptc, ok := input.Config.PaymentType(input.PaymentTypeCode); ok && ptc.DefaultAdapter != "" {
		if rail, railErr := data.ToRail(ptc.DefaultAdapter); railErr == nil {
			appendCandidate(Candidate{Rail: rail, Source: SourcePaymentTypeDefault})
		} else {
			log.Ctx(ctx).Warnf("payment type %s configures unknown default adapter %q, skipping", input.PaymentTypeCode, ptc.DefaultAdapter)
		}
	}

	// Tier 3: currency and amount heuristic.
	for _, rail := range heuristicRails(input) {
		appendCandidate(Candidate{Rail: rail, Source: SourceHeuristic})
	}

	// Tier 4: the tenant-wide default adapter.
	if input.Config.DefaultAdapter != "" {
		if rail, railErr := data.ToRail(input.Config.DefaultAdapter); railErr == nil {
			appendCandidate(Candidate{Rail: rail, Source: SourceTenantDefault})
		} else {
			log.Ctx(ctx).Warnf("tenant %s configures unknown default adapter %q, skipping", input.TenantID, input.Config.DefaultAdapter)
		}
	}

	usable, err := r.classifyCandidates(ctx, input.TenantID, candidates)
	if err != nil {
		return nil, err
	}
	if len(usable) == 0 {
		return nil, ErrNoRoute
	}

	// Healthy before degraded, tier order preserved within each class.
	sort.SliceStable(usable, func(i, j int) bool {
		return !usable[i].Degraded && usable[j].Degraded
	})
	return usable, nil
}

// classifyCandidates drops rails without an enabled adapter row and marks the
// rest healthy or degraded.
func (r *Resolver) classifyCandidates(ctx context.Context, tenantID string, candidates []Candidate) ([]Candidate, error) {
	usable := make([]Candidate, 0, len(candidates))
	for _, candidate := range candidates {
		adapter, err := r.models.ClearingAdapters.GetForRail(ctx, r.models.DBConnectionPool, tenantID, candidate.Rail)
		if errors.Is(err, data.ErrRecordNotFound) {
			log.Ctx(ctx).Debugf("no enabled %s adapter for tenant %s, dropping candidate", candidate.Rail, tenantID)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading %s adapter: %w", candidate.Rail, err)
		}

		if adapter.Status == data.DegradedClearingAdapterStatus {
			candidate.Degraded = true
			candidate.DegradedReason = "adapter marked degraded"
		} else if r.prober != nil {
			if degraded, reason := r.prober.RailDegraded(ctx, tenantID, candidate.Rail); degraded {
				candidate.Degraded = true
				candidate.DegradedReason = reason
			}
		}
		usable = append(usable, candidate)
	}
	return usable, nil
}

// heuristicRails applies the currency and amount fallback: immediate ZAR
// payments up to the real-time ceiling go to RTC with PayShap as backup,
// other ZAR payments go to the RTGS, anything non-ZAR goes cross-border.
func heuristicRails(input Input) []data.Rail {
	if !strings.EqualFold(input.Currency, "ZAR") {
		return []data.Rail{data.SWIFTRail}
	}
	if isImmediateInstrument(input.LocalInstrument) && input.Amount.LessThanOrEqual(rtcAmountCeiling) {
		return []data.Rail{data.RTCRail, data.PayShapRail}
	}
	return []data.Rail{data.SAMOSRail}
}

// Immediate local instruments, ISO external codes plus the PayShap
// proprietary one.
var immediateInstruments = map[string]bool{
	"INST": true,
	"RTP":  true,
	"PBPX": true,
}

func isImmediateInstrument(localInstrument string) bool {
	return immediateInstruments[strings.ToUpper(strings.TrimSpace(localInstrument))]
}

var _ ResolverInterface = (*Resolver)(nil)
