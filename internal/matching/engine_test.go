package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/risk"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/scoring"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/storage"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/internal/validation"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

type fixture struct {
	gw     *storage.MemoryGateway
	engine *Engine
	scorer *scoring.Scorer

	cancel context.CancelFunc
	done   chan struct{}
}

// newFixture builds an engine over a seeded memory gateway with the audit
// flusher running. flush stops the flusher and drains buffered audits.
func newFixture(t *testing.T, riskOrch *risk.Orchestrator) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	gw := storage.NewMemoryGateway(logger)

	scoringCfg := config.ScoringConfig{
		DefaultWeights:  config.Weights{Quality: 0.40, Price: 0.30, Delivery: 0.15, Risk: 0.15},
		DefaultMinScore: 0.60,
	}

	scorer, err := scoring.New(scoring.Config{
		Scoring:     scoringCfg,
		WarnPenalty: 0.10,
		AIBoost:     0.05,
		EnableBoost: true,
		Logger:      logger,
	})
	if err != nil {
		t.Fatalf("failed to create scorer: %v", err)
	}

	validator, err := validation.New(validation.Config{
		MinPartialPercent:    0.10,
		MinAIConfidence:      60,
		BlockInternalTrading: true,
		Logger:               logger,
	})
	if err != nil {
		t.Fatalf("failed to create validator: %v", err)
	}

	engine, err := NewEngine(Config{
		Storage:   gw,
		Scorer:    scorer,
		Validator: validator,
		Risk:      riskOrch,
		Logger:    logger,
		Scoring:   scoringCfg,
		Matching:  config.MatchingConfig{MaxResults: 50},
		Location:  config.LocationConfig{MaxDistanceKm: 50},
		Dedup:     config.DedupConfig{TimeWindowMinutes: 5},
	})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		engine.Start(ctx)
		close(done)
	}()

	return &fixture{gw: gw, engine: engine, scorer: scorer, cancel: cancel, done: done}
}

func (f *fixture) flush(t *testing.T) {
	t.Helper()
	f.cancel()
	select {
	case <-f.done:
	case <-time.After(5 * time.Second):
		t.Fatal("audit flusher did not stop")
	}
}

func seedParties(gw *storage.MemoryGateway) {
	gw.PutCommodity(&types.Commodity{ID: "commodity-cotton", Code: "cotton", Name: "Cotton"})
	gw.PutPartner(&types.Partner{
		ID: "buyer-1", OrganizationID: "org-buyer", Name: "Buyer One",
		Country: "India", State: "Gujarat", City: "Ahmedabad",
		GSTNumber: "24AAAAA0000A1Z5", PANNumber: "AAAAA0000A", Rating: 4.0,
	})
	gw.PutPartner(&types.Partner{
		ID: "seller-1", OrganizationID: "org-seller-1", Name: "Seller One",
		Country: "India", State: "Gujarat", City: "Ahmedabad",
		GSTNumber: "24BBBBB0000B1Z5", PANNumber: "BBBBB0000B",
		Rating: 5.0, KYCScore: 100, TrustScore: 2.0,
	})
	gw.PutPartner(&types.Partner{
		ID: "seller-2", OrganizationID: "org-seller-2", Name: "Seller Two",
		Country: "India", State: "Gujarat", City: "Ahmedabad",
		GSTNumber: "24CCCCC0000C1Z5", PANNumber: "CCCCC0000C",
		Rating: 5.0, KYCScore: 100, TrustScore: 2.0,
	})
	gw.PutPartner(&types.Partner{
		ID: "seller-3", OrganizationID: "org-seller-3", Name: "Seller Three",
		Country: "India", State: "Gujarat", City: "Ahmedabad",
		GSTNumber: "24DDDDD0000D1Z5", PANNumber: "DDDDD0000D",
		Rating: 5.0, KYCScore: 100, TrustScore: 2.0,
	})
}

func buyReq(id string) *types.Requirement {
	preferred := decimal.NewFromInt(90)
	return &types.Requirement{
		ID: id, BuyerID: "buyer-1", OrganizationID: "org-buyer",
		CommodityID: "commodity-cotton",
		MinQty:      10, PreferredQty: 50, MaxQty: 100,
		MaxBudgetPerUnit:      decimal.NewFromInt(100),
		PreferredPricePerUnit: &preferred,
		DeliveryLocations: []types.DeliveryLocation{
			{LocationID: "loc-1", State: "Gujarat", City: "Ahmedabad"},
		},
		Status: types.RequirementActive,
	}
}

func sellOffer(id, sellerID string, price int64) *types.Availability {
	return &types.Availability{
		ID: id, SellerID: sellerID, OrganizationID: "org-" + sellerID,
		CommodityID: "commodity-cotton",
		LocationID:  "loc-1", State: "Gujarat", City: "Ahmedabad",
		TotalQty: 80, AvailableQty: 80,
		BasePrice: decimal.NewFromInt(price),
		Status:    types.AvailabilityActive,
	}
}

func auditsByReason(records []*types.MatchAuditRecord, reason string) []*types.MatchAuditRecord {
	var out []*types.MatchAuditRecord
	for _, r := range records {
		if r.ReasonCode == reason {
			out = append(out, r)
		}
	}
	return out
}

func TestFindMatchesForRequirement_HappyPath(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedParties(f.gw)
	f.gw.PutRequirement(buyReq("req-1"))
	f.gw.PutAvailability(sellOffer("avail-1", "seller-1", 90))

	matches, err := f.engine.FindMatchesForRequirement(context.Background(), "req-1", SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}

	m := matches[0]
	if m.RequirementID != "req-1" || m.AvailabilityID != "avail-1" {
		t.Errorf("unexpected pairing %s/%s", m.RequirementID, m.AvailabilityID)
	}
	if m.Score != 1.0 {
		t.Errorf("expected perfect score, got %f", m.Score)
	}
	if m.DuplicateKey != "commodity-cotton:buyer-1:seller-1" {
		t.Errorf("unexpected duplicate key %s", m.DuplicateKey)
	}
	if m.Counterparty == nil || m.Counterparty.Label != "Verified Seller" {
		t.Errorf("expected anonymized MATCHED counterparty, got %+v", m.Counterparty)
	}
	if m.Counterparty.Name != "" {
		t.Errorf("MATCHED level must not reveal name, got %q", m.Counterparty.Name)
	}

	f.flush(t)
	included := auditsByReason(f.gw.Audits(), types.ReasonMatched)
	if len(included) != 1 || !included[0].Included {
		t.Errorf("expected one MATCHED audit, got %+v", included)
	}
}

func TestEvaluate_LocationFilterShortCircuits(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedParties(f.gw)
	req := buyReq("req-1")
	f.gw.PutRequirement(req)

	// Candidate in another state, no shared location id, no coordinates.
	crossState := sellOffer("avail-far", "seller-1", 90)
	crossState.LocationID = "loc-99"
	crossState.State = "Punjab"
	crossState.City = "Ludhiana"

	commodity := &types.Commodity{ID: "commodity-cotton", Code: "cotton"}
	buyer := &types.Partner{ID: "buyer-1"}

	matches, err := f.engine.evaluate(context.Background(), evalInput{
		req: req, buyer: buyer, commodity: commodity,
		viewerID: req.BuyerID,
	}, []*types.Availability{crossState})
	if err != nil {
		t.Fatalf("evaluate failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected no matches across states, got %d", len(matches))
	}
	if got := f.scorer.Invocations(); got != 0 {
		t.Errorf("filtered candidate must never reach the scorer, invocations=%d", got)
	}

	f.flush(t)
	rejected := auditsByReason(f.gw.Audits(), types.ReasonLocationRejected)
	if len(rejected) != 1 {
		t.Fatalf("expected one location-rejected audit, got %d", len(rejected))
	}
	if rejected[0].Included {
		t.Error("rejected audit must not be marked included")
	}
}

func TestFindMatchesForRequirement_DuplicateSuppression(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedParties(f.gw)
	f.gw.PutRequirement(buyReq("req-1"))
	// Two offers from the same seller share the duplicate key.
	f.gw.PutAvailability(sellOffer("avail-1", "seller-1", 90))
	f.gw.PutAvailability(sellOffer("avail-2", "seller-1", 94))

	matches, err := f.engine.FindMatchesForRequirement(context.Background(), "req-1", SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected duplicate suppressed down to 1 match, got %d", len(matches))
	}

	f.flush(t)
	suppressed := auditsByReason(f.gw.Audits(), types.ReasonDuplicate)
	if len(suppressed) != 1 {
		t.Errorf("expected one duplicate-suppressed audit, got %d", len(suppressed))
	}
}

func TestFindMatchesForRequirement_RankingAndCap(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedParties(f.gw)
	f.gw.PutRequirement(buyReq("req-1"))
	f.gw.PutAvailability(sellOffer("avail-a", "seller-1", 94)) // price tier 0.85
	f.gw.PutAvailability(sellOffer("avail-b", "seller-2", 90)) // price tier 1.0
	f.gw.PutAvailability(sellOffer("avail-c", "seller-3", 98)) // price tier 0.70

	matches, err := f.engine.FindMatchesForRequirement(context.Background(), "req-1", SearchOptions{MaxResults: 2})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected cap at 2 matches, got %d", len(matches))
	}
	if matches[0].AvailabilityID != "avail-b" || matches[1].AvailabilityID != "avail-a" {
		t.Errorf("expected score-descending order [avail-b avail-a], got [%s %s]",
			matches[0].AvailabilityID, matches[1].AvailabilityID)
	}

	f.flush(t)
	capped := auditsByReason(f.gw.Audits(), types.ReasonResultCapExceeded)
	if len(capped) != 1 || capped[0].AvailabilityID != "avail-c" {
		t.Errorf("expected avail-c audited as cap-dropped, got %+v", capped)
	}
}

func TestFindMatchesForRequirement_TieBreaksOnAvailabilityID(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedParties(f.gw)
	f.gw.PutRequirement(buyReq("req-1"))
	f.gw.PutAvailability(sellOffer("avail-z", "seller-1", 90))
	f.gw.PutAvailability(sellOffer("avail-a", "seller-2", 90))

	matches, err := f.engine.FindMatchesForRequirement(context.Background(), "req-1", SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].AvailabilityID != "avail-a" {
		t.Errorf("equal scores must order by availability id, got %s first", matches[0].AvailabilityID)
	}
	f.flush(t)
}

func TestFindMatchesForRequirement_OverBudgetExcluded(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedParties(f.gw)
	f.gw.PutRequirement(buyReq("req-1"))
	f.gw.PutAvailability(sellOffer("avail-1", "seller-1", 120))

	matches, err := f.engine.FindMatchesForRequirement(context.Background(), "req-1", SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected over-budget offer excluded, got %d matches", len(matches))
	}

	f.flush(t)
	failed := auditsByReason(f.gw.Audits(), types.ReasonValidationFailed)
	if len(failed) != 1 || failed[0].Detail != validation.ReasonOverBudget {
		t.Errorf("expected PRICE_OVER_BUDGET validation audit, got %+v", failed)
	}
}

func TestFindMatchesForRequirement_MinScoreOverride(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedParties(f.gw)
	f.gw.PutRequirement(buyReq("req-1"))
	f.gw.PutAvailability(sellOffer("avail-1", "seller-1", 98)) // final 0.91

	min := 0.95
	matches, err := f.engine.FindMatchesForRequirement(context.Background(), "req-1", SearchOptions{MinScore: &min})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected override threshold to exclude, got %d matches", len(matches))
	}

	f.flush(t)
	below := auditsByReason(f.gw.Audits(), types.ReasonBelowThreshold)
	if len(below) != 1 {
		t.Errorf("expected one below-threshold audit, got %d", len(below))
	}
}

func TestFindMatchesForRequirement_InvalidState(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	defer f.flush(t)
	seedParties(f.gw)
	req := buyReq("req-1")
	req.Status = types.RequirementDraft
	f.gw.PutRequirement(req)

	_, err := f.engine.FindMatchesForRequirement(context.Background(), "req-1", SearchOptions{})
	if !errors.Is(err, types.ErrInvalidState) {
		t.Errorf("expected ErrInvalidState, got %v", err)
	}

	_, err = f.engine.FindMatchesForRequirement(context.Background(), "req-missing", SearchOptions{})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFindMatchesForAvailability(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	seedParties(f.gw)
	f.gw.PutRequirement(buyReq("req-1"))
	f.gw.PutAvailability(sellOffer("avail-1", "seller-1", 90))

	matches, err := f.engine.FindMatchesForAvailability(context.Background(), "avail-1", SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Counterparty == nil || matches[0].Counterparty.Label != "Verified Buyer" {
		t.Errorf("expected anonymized buyer view, got %+v", matches[0].Counterparty)
	}
	f.flush(t)
}

func TestFindMatchesForAvailability_PartiallyFulfilledBuyerSurfaces(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	defer f.flush(t)
	seedParties(f.gw)

	partial := buyReq("req-partial")
	partial.Status = types.RequirementPartiallyFulfilled
	partial.TotalPurchasedQty = 20
	f.gw.PutRequirement(partial)
	f.gw.PutAvailability(sellOffer("avail-1", "seller-1", 90))

	// Both sides of the book must see the same pair.
	fromReq, err := f.engine.FindMatchesForRequirement(context.Background(), "req-partial", SearchOptions{})
	if err != nil {
		t.Fatalf("requirement-side search failed: %v", err)
	}
	fromAvail, err := f.engine.FindMatchesForAvailability(context.Background(), "avail-1", SearchOptions{})
	if err != nil {
		t.Fatalf("availability-side search failed: %v", err)
	}
	if len(fromReq) != 1 || len(fromAvail) != 1 {
		t.Fatalf("expected the pair on both sides, got %d requirement-side and %d availability-side",
			len(fromReq), len(fromAvail))
	}
	if fromAvail[0].RequirementID != "req-partial" || fromAvail[0].AvailabilityID != "avail-1" {
		t.Errorf("unexpected pairing %s/%s", fromAvail[0].RequirementID, fromAvail[0].AvailabilityID)
	}
}

func TestFindMatchesForAvailability_CandidateOrderDeterministic(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	defer f.flush(t)
	seedParties(f.gw)

	f.gw.PutPartner(&types.Partner{
		ID: "buyer-2", OrganizationID: "org-buyer-2", Name: "Buyer Two",
		Country: "India", State: "Gujarat", City: "Ahmedabad",
		GSTNumber: "24EEEEE0000E1Z5", PANNumber: "EEEEE0000E", Rating: 4.0,
	})

	active := buyReq("req-b")
	f.gw.PutRequirement(active)
	partial := buyReq("req-a")
	partial.BuyerID = "buyer-2"
	partial.OrganizationID = "org-buyer-2"
	partial.Status = types.RequirementPartiallyFulfilled
	partial.TotalPurchasedQty = 20
	f.gw.PutRequirement(partial)
	f.gw.PutAvailability(sellOffer("avail-1", "seller-1", 90))

	matches, err := f.engine.FindMatchesForAvailability(context.Background(), "avail-1", SearchOptions{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected both statuses as candidates, got %d", len(matches))
	}
	if matches[0].RequirementID != "req-a" || matches[1].RequirementID != "req-b" {
		t.Errorf("expected id-ordered results on equal scores, got %s then %s",
			matches[0].RequirementID, matches[1].RequirementID)
	}
}

func TestFindMatchesForRequirement_RiskGate(t *testing.T) {
	t.Parallel()

	logger := zaptest.NewLogger(t)
	f := newFixture(t, nil)
	seedParties(f.gw)

	orch, err := risk.NewOrchestrator(risk.Config{
		Risk: config.RiskConfig{
			Tier1TimeoutMs: 200, Tier2TimeoutMs: 500,
			BreakerFailureThreshold: 5,
			PassThreshold:           80, WarnThreshold: 60,
			RuleScoreDefault: 85, FusionRuleWeight: 0.7, FusionMLWeight: 0.3,
		},
		Storage: f.gw,
		Logger:  logger,
	})
	if err != nil {
		t.Fatalf("failed to create orchestrator: %v", err)
	}
	f.engine.risk = orch

	// Related parties trip tier 1 and block the pairing.
	f.gw.PutPartner(&types.Partner{
		ID: "seller-9", OrganizationID: "org-seller-9", Name: "Seller Nine",
		State: "Gujarat", City: "Ahmedabad",
		GSTNumber: "24EEEEE0000E1Z5", PANNumber: "EEEEE0000E",
		Rating: 5.0, KYCScore: 100, TrustScore: 2.0,
		RelatedPartyIDs: []string{"buyer-1"},
	})
	f.gw.PutRequirement(buyReq("req-1"))
	f.gw.PutAvailability(sellOffer("avail-1", "seller-9", 90))

	matches, err := f.engine.FindMatchesForRequirement(context.Background(), "req-1", SearchOptions{IncludeRiskCheck: true})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(matches) != 0 {
		t.Fatalf("expected related-party pairing blocked, got %d matches", len(matches))
	}

	f.flush(t)
	blocked := auditsByReason(f.gw.Audits(), types.ReasonRiskBlocked)
	if len(blocked) != 1 || blocked[0].RiskStatus != types.RiskFail {
		t.Errorf("expected one RISK_BLOCKED audit with FAIL status, got %+v", blocked)
	}
}
