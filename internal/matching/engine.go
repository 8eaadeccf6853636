// Package matching hosts the engine that turns one published entity into a
// ranked, deduplicated, risk-checked set of matches. The location hard filter
// runs first; candidates it rejects are audited but never validated or
// scored.
package matching

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/anonymizer"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/risk"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/scoring"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/storage"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/validation"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/events"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// SearchOptions are the caller-facing knobs of one search.
type SearchOptions struct {
	// MinScore overrides the per-commodity threshold when set.
	MinScore *float64

	// IncludeRiskCheck runs the risk orchestrator per candidate. Off, the
	// risk sub-score defaults to 1.0 and no compliance gate applies.
	IncludeRiskCheck bool

	// MaxResults caps the returned matches; the config default applies
	// when zero.
	MaxResults int
}

// Config holds the engine dependencies.
type Config struct {
	Storage   storage.Gateway
	Scorer    *scoring.Scorer
	Validator *validation.Validator
	Risk      *risk.Orchestrator
	Bus       *events.Bus
	Logger    *zap.Logger

	Scoring  config.ScoringConfig
	Matching config.MatchingConfig
	Location config.LocationConfig
	Dedup    config.DedupConfig

	// AuditBufferSize bounds the async audit channel. Default 1024.
	AuditBufferSize int
}

// Engine computes matches for either side of the book.
type Engine struct {
	cfg      Config
	storage  storage.Gateway
	scorer   *scoring.Scorer
	validate *validation.Validator
	risk     *risk.Orchestrator
	filter   *LocationFilter
	bus      *events.Bus
	logger   *zap.Logger

	audits chan *types.MatchAuditRecord
	now    func() time.Time
}

// NewEngine validates the dependencies and builds an engine. Start must be
// called before searches so audit records drain.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if cfg.Validator == nil {
		return nil, fmt.Errorf("validator is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.AuditBufferSize <= 0 {
		cfg.AuditBufferSize = 1024
	}
	return &Engine{
		cfg:      cfg,
		storage:  cfg.Storage,
		scorer:   cfg.Scorer,
		validate: cfg.Validator,
		risk:     cfg.Risk,
		filter:   NewLocationFilter(cfg.Location.MaxDistanceKm),
		bus:      cfg.Bus,
		logger:   cfg.Logger,
		audits:   make(chan *types.MatchAuditRecord, cfg.AuditBufferSize),
		now:      time.Now,
	}, nil
}

// Start runs the background audit flusher until ctx is cancelled. Remaining
// buffered records are flushed on shutdown.
func (e *Engine) Start(ctx context.Context) {
	const flushInterval = 500 * time.Millisecond
	const flushBatch = 100

	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]*types.MatchAuditRecord, 0, flushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := e.storage.AppendMatchAudit(context.Background(), batch); err != nil {
			e.logger.Error("audit-flush-failed", zap.Int("records", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
		AuditQueueDepth.Set(float64(len(e.audits)))
	}

	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case rec := <-e.audits:
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		case rec := <-e.audits:
			batch = append(batch, rec)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// FindMatchesForRequirement computes matches for a buyer requirement.
func (e *Engine) FindMatchesForRequirement(ctx context.Context, requirementID string, opts SearchOptions) ([]*types.MatchResult, error) {
	start := e.now()
	SearchesTotal.WithLabelValues("requirement").Inc()

	req, err := e.storage.GetRequirement(ctx, requirementID, true)
	if err != nil {
		return nil, fmt.Errorf("load requirement %s: %w", requirementID, err)
	}
	if !req.Status.Matchable() {
		return nil, fmt.Errorf("requirement %s in state %s: %w", requirementID, req.Status, types.ErrInvalidState)
	}

	commodity, err := e.storage.GetCommodity(ctx, req.CommodityID)
	if err != nil {
		return nil, fmt.Errorf("load commodity %s: %w", req.CommodityID, err)
	}
	buyer, err := e.storage.GetPartner(ctx, req.BuyerID)
	if err != nil {
		return nil, fmt.Errorf("load buyer %s: %w", req.BuyerID, err)
	}

	locationIDs := req.LocationIDs()
	if len(locationIDs) == 0 {
		return nil, nil
	}
	candidates, err := e.storage.AvailabilitiesByLocation(ctx, locationIDs, req.CommodityID, types.AvailabilityActive)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}

	results, err := e.evaluate(ctx, evalInput{
		req:       req,
		buyer:     buyer,
		commodity: commodity,
		viewerID:  req.BuyerID,
		opts:      opts,
	}, candidates)
	if err != nil {
		return nil, err
	}

	SearchDuration.Observe(e.now().Sub(start).Seconds())
	MatchesReturned.Observe(float64(len(results)))
	return results, nil
}

// FindMatchesForAvailability computes matches for seller inventory. The
// pipeline is the requirement path with the candidate roles swapped.
func (e *Engine) FindMatchesForAvailability(ctx context.Context, availabilityID string, opts SearchOptions) ([]*types.MatchResult, error) {
	start := e.now()
	SearchesTotal.WithLabelValues("availability").Inc()

	avail, err := e.storage.GetAvailability(ctx, availabilityID, true)
	if err != nil {
		return nil, fmt.Errorf("load availability %s: %w", availabilityID, err)
	}
	if avail.Status != types.AvailabilityActive {
		return nil, fmt.Errorf("availability %s in state %s: %w", availabilityID, avail.Status, types.ErrInvalidState)
	}

	commodity, err := e.storage.GetCommodity(ctx, avail.CommodityID)
	if err != nil {
		return nil, fmt.Errorf("load commodity %s: %w", avail.CommodityID, err)
	}
	seller, err := e.storage.GetPartner(ctx, avail.SellerID)
	if err != nil {
		return nil, fmt.Errorf("load seller %s: %w", avail.SellerID, err)
	}

	if avail.LocationID == "" {
		return nil, nil
	}
	// Partially fulfilled buyers stay in the book, so both matchable
	// statuses are candidates here.
	var requirements []*types.Requirement
	for _, status := range []types.RequirementStatus{types.RequirementActive, types.RequirementPartiallyFulfilled} {
		batch, err := e.storage.RequirementsByDeliveryLocation(ctx, avail.LocationID, avail.CommodityID, status)
		if err != nil {
			return nil, fmt.Errorf("query candidates: %w", err)
		}
		requirements = append(requirements, batch...)
	}
	sort.Slice(requirements, func(i, j int) bool { return requirements[i].ID < requirements[j].ID })

	results, err := e.evaluateAvailabilitySide(ctx, avail, seller, commodity, opts, requirements)
	if err != nil {
		return nil, err
	}

	SearchDuration.Observe(e.now().Sub(start).Seconds())
	MatchesReturned.Observe(float64(len(results)))
	return results, nil
}

type evalInput struct {
	req       *types.Requirement
	buyer     *types.Partner
	commodity *types.Commodity
	viewerID  string
	opts      SearchOptions
}

// evaluate runs the candidate pipeline for the requirement side.
func (e *Engine) evaluate(ctx context.Context, in evalInput, candidates []*types.Availability) ([]*types.MatchResult, error) {
	threshold := e.threshold(in.commodity.Code, in.opts.MinScore)
	maxResults := e.maxResults(in.opts.MaxResults)

	dedup, err := newDedupSet(ctx, e.storage, e.cfg.Dedup.Window(), e.now())
	if err != nil {
		return nil, err
	}

	sellers := make(map[string]*types.Partner)
	var matches []*types.MatchResult

	for _, avail := range candidates {
		dupKey := DuplicateKey(in.req.CommodityID, in.req.BuyerID, avail.SellerID)

		if !e.filter.Matches(in.req, avail) {
			e.audit(in.req, avail, nil, 0, types.RiskStatus(""), false, types.ReasonLocationRejected, "", dupKey)
			continue
		}
		if dedup.Suppressed(dupKey) {
			e.audit(in.req, avail, nil, 0, types.RiskStatus(""), false, types.ReasonDuplicate, "", dupKey)
			continue
		}

		seller, ok := sellers[avail.SellerID]
		if !ok {
			seller, err = e.storage.GetPartner(ctx, avail.SellerID)
			if err != nil {
				return nil, fmt.Errorf("load seller %s: %w", avail.SellerID, err)
			}
			sellers[avail.SellerID] = seller
		}

		assessment, err := e.assess(ctx, in.req, avail, in.buyer, seller, in.commodity, in.opts.IncludeRiskCheck)
		if err != nil {
			return nil, err
		}

		if match := e.scoreCandidate(in.req, avail, in.commodity, assessment, threshold, dupKey); match != nil {
			match.DisclosureLevel = anonymizer.ResolveLevel(in.viewerID, avail.SellerID, types.DisclosureMatched)
			match.Counterparty = anonymizer.Project(seller, anonymizer.RoleSeller, match.DisclosureLevel)
			matches = append(matches, match)
		}
	}

	return e.rankAndCap(in.req, matches, maxResults), nil
}

// evaluateAvailabilitySide mirrors evaluate with requirements as candidates.
func (e *Engine) evaluateAvailabilitySide(ctx context.Context, avail *types.Availability, seller *types.Partner, commodity *types.Commodity, opts SearchOptions, candidates []*types.Requirement) ([]*types.MatchResult, error) {
	threshold := e.threshold(commodity.Code, opts.MinScore)
	maxResults := e.maxResults(opts.MaxResults)

	dedup, err := newDedupSet(ctx, e.storage, e.cfg.Dedup.Window(), e.now())
	if err != nil {
		return nil, err
	}

	buyers := make(map[string]*types.Partner)
	var matches []*types.MatchResult

	for _, req := range candidates {
		if !req.Status.Matchable() {
			continue
		}
		dupKey := DuplicateKey(req.CommodityID, req.BuyerID, avail.SellerID)

		if !e.filter.Matches(req, avail) {
			e.audit(req, avail, nil, 0, types.RiskStatus(""), false, types.ReasonLocationRejected, "", dupKey)
			continue
		}
		if dedup.Suppressed(dupKey) {
			e.audit(req, avail, nil, 0, types.RiskStatus(""), false, types.ReasonDuplicate, "", dupKey)
			continue
		}

		buyer, ok := buyers[req.BuyerID]
		if !ok {
			buyer, err = e.storage.GetPartner(ctx, req.BuyerID)
			if err != nil {
				return nil, fmt.Errorf("load buyer %s: %w", req.BuyerID, err)
			}
			buyers[req.BuyerID] = buyer
		}

		assessment, err := e.assess(ctx, req, avail, buyer, seller, commodity, opts.IncludeRiskCheck)
		if err != nil {
			return nil, err
		}

		if match := e.scoreCandidate(req, avail, commodity, assessment, threshold, dupKey); match != nil {
			match.DisclosureLevel = anonymizer.ResolveLevel(avail.SellerID, req.BuyerID, types.DisclosureMatched)
			match.Counterparty = anonymizer.Project(buyer, anonymizer.RoleBuyer, match.DisclosureLevel)
			matches = append(matches, match)
		}
	}

	return e.rankAndCap(nil, matches, maxResults), nil
}

// assess resolves the risk verdict once per candidate, or not at all when the
// caller opted out.
func (e *Engine) assess(ctx context.Context, req *types.Requirement, avail *types.Availability, buyer, seller *types.Partner, commodity *types.Commodity, include bool) (*risk.Assessment, error) {
	if !include || e.risk == nil {
		return nil, nil
	}
	assessment, err := e.risk.Assess(ctx, risk.Input{
		Requirement:  req,
		Availability: avail,
		Buyer:        buyer,
		Seller:       seller,
		Commodity:    commodity,
	})
	if err != nil {
		return nil, fmt.Errorf("risk assessment: %w", err)
	}
	return assessment, nil
}

// scoreCandidate validates and scores one pair, audits the outcome, and
// returns the match when it clears the threshold.
func (e *Engine) scoreCandidate(req *types.Requirement, avail *types.Availability, commodity *types.Commodity, assessment *risk.Assessment, threshold float64, dupKey string) *types.MatchResult {
	decision := e.validate.Validate(req, avail, assessment)
	if !decision.IsValid {
		reason := types.ReasonValidationFailed
		if len(decision.Reasons) > 0 && decision.Reasons[0] == validation.ReasonRiskFail {
			reason = types.ReasonRiskBlocked
		}
		e.audit(req, avail, nil, 0, decision.RiskStatus, false, reason, firstOf(decision.Reasons), dupKey)
		return nil
	}

	var riskView *scoring.RiskAssessment
	if assessment != nil {
		riskView = &scoring.RiskAssessment{
			Status:      assessment.Status,
			FinalScore:  assessment.FinalScore,
			Details:     assessment.Details,
			MLAvailable: assessment.MLAvailable,
		}
	}

	scored := e.scorer.Score(commodity.Code, req, avail, riskView)
	if scored.Blocked {
		e.audit(req, avail, &scored.Breakdown, 0, decision.RiskStatus, false, types.ReasonRiskBlocked, "", dupKey)
		return nil
	}
	if scored.Final < threshold {
		e.audit(req, avail, &scored.Breakdown, scored.Final, decision.RiskStatus, false, types.ReasonBelowThreshold,
			fmt.Sprintf("score %.3f below threshold %.3f", scored.Final, threshold), dupKey)
		return nil
	}

	e.audit(req, avail, &scored.Breakdown, scored.Final, decision.RiskStatus, true, types.ReasonMatched, "", dupKey)

	match := &types.MatchResult{
		RequirementID:      req.ID,
		AvailabilityID:     avail.ID,
		Score:              scored.Final,
		BaseScore:          scored.Base,
		WarnPenaltyApplied: scored.WarnPenaltyApplied,
		WarnPenaltyValue:   scored.WarnPenaltyValue,
		AIBoostApplied:     scored.AIBoostApplied,
		AIBoostValue:       scored.AIBoostValue,
		Breakdown:          scored.Breakdown,
		PassFail:           scored.PassFail,
		RiskStatus:         decision.RiskStatus,
		Recommendation:     scored.Recommendation,
		DuplicateKey:       dupKey,
		MatchedAt:          e.now().UTC(),
	}
	if assessment != nil {
		match.RiskDetails = assessment.Details
	}
	return match
}

// rankAndCap orders matches by score descending with availability id as the
// deterministic tiebreaker, then drops everything past the cap.
func (e *Engine) rankAndCap(req *types.Requirement, matches []*types.MatchResult, maxResults int) []*types.MatchResult {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].AvailabilityID != matches[j].AvailabilityID {
			return matches[i].AvailabilityID < matches[j].AvailabilityID
		}
		// Availability-side searches share one availability id; the
		// requirement id keeps equal scores deterministic there.
		return matches[i].RequirementID < matches[j].RequirementID
	})

	if len(matches) > maxResults {
		for _, dropped := range matches[maxResults:] {
			CandidatesTotal.WithLabelValues(types.ReasonResultCapExceeded).Inc()
			e.enqueueAudit(&types.MatchAuditRecord{
				ID:             uuid.NewString(),
				RequirementID:  dropped.RequirementID,
				AvailabilityID: dropped.AvailabilityID,
				Score:          dropped.Score,
				Breakdown:      dropped.Breakdown,
				RiskStatus:     dropped.RiskStatus,
				Included:       false,
				ReasonCode:     types.ReasonResultCapExceeded,
				DuplicateKey:   dropped.DuplicateKey,
				CreatedAt:      e.now().UTC(),
			})
		}
		matches = matches[:maxResults]
	}

	if e.bus != nil {
		for _, m := range matches {
			e.bus.Publish(events.New(events.MatchFound, m.RequirementID, map[string]any{
				"requirement_id":  m.RequirementID,
				"availability_id": m.AvailabilityID,
				"score":           m.Score,
				"risk_status":     string(m.RiskStatus),
			}))
		}
	}
	return matches
}

func (e *Engine) threshold(commodityCode string, override *float64) float64 {
	if override != nil {
		return *override
	}
	return e.cfg.Scoring.MinScoreFor(commodityCode)
}

func (e *Engine) maxResults(requested int) int {
	if requested > 0 {
		return requested
	}
	if e.cfg.Matching.MaxResults > 0 {
		return e.cfg.Matching.MaxResults
	}
	return 50
}

// audit enqueues one audit record without blocking the search.
func (e *Engine) audit(req *types.Requirement, avail *types.Availability, breakdown *types.ScoreBreakdown, score float64, riskStatus types.RiskStatus, included bool, reason, detail, dupKey string) {
	CandidatesTotal.WithLabelValues(reason).Inc()

	rec := &types.MatchAuditRecord{
		ID:             uuid.NewString(),
		RequirementID:  req.ID,
		AvailabilityID: avail.ID,
		CommodityID:    req.CommodityID,
		BuyerID:        req.BuyerID,
		SellerID:       avail.SellerID,
		Score:          score,
		RiskStatus:     riskStatus,
		Included:       included,
		ReasonCode:     reason,
		Detail:         detail,
		DuplicateKey:   dupKey,
		CreatedAt:      e.now().UTC(),
	}
	if breakdown != nil {
		rec.Breakdown = *breakdown
	}
	e.enqueueAudit(rec)
}

func (e *Engine) enqueueAudit(rec *types.MatchAuditRecord) {
	select {
	case e.audits <- rec:
		AuditQueueDepth.Set(float64(len(e.audits)))
	default:
		AuditDroppedTotal.Inc()
		e.logger.Warn("audit-buffer-full",
			zap.String("requirement_id", rec.RequirementID),
			zap.String("availability_id", rec.AvailabilityID))
	}
}

func firstOf(reasons []string) string {
	if len(reasons) == 0 {
		return ""
	}
	return reasons[0]
}
