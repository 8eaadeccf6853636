package risk

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/config"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/events"
	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// Config holds the orchestrator dependencies.
type Config struct {
	Risk      config.RiskConfig
	Storage   Storage
	Predictor Predictor
	Logger    *zap.Logger
	Bus       *events.Bus
}

// Orchestrator runs tier-1 rules and the tier-2 model inside their latency
// budgets and fuses the scores into a PASS/WARN/FAIL verdict.
type Orchestrator struct {
	cfg     config.RiskConfig
	rules   *RuleEngine
	pred    Predictor
	breaker *Breaker
	logger  *zap.Logger
	bus     *events.Bus
}

// NewOrchestrator validates the config and builds an orchestrator with a
// closed circuit breaker.
func NewOrchestrator(cfg Config) (*Orchestrator, error) {
	if cfg.Storage == nil {
		return nil, fmt.Errorf("storage is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if cfg.Predictor == nil {
		cfg.Predictor = HeuristicPredictor{}
	}
	return &Orchestrator{
		cfg:     cfg.Risk,
		rules:   NewRuleEngine(cfg.Storage, cfg.Logger),
		pred:    cfg.Predictor,
		breaker: NewBreaker(cfg.Risk.BreakerFailureThreshold, cfg.Logger),
		logger:  cfg.Logger,
		bus:     cfg.Bus,
	}, nil
}

// Breaker exposes the ML circuit breaker for operator endpoints.
func (o *Orchestrator) Breaker() *Breaker {
	return o.breaker
}

// Assess evaluates one pairing. A tier-1 violation yields an immediate FAIL;
// otherwise the rule score and, when the breaker allows, the ML score are
// fused into the final verdict. ML degradation never fails the assessment.
func (o *Orchestrator) Assess(ctx context.Context, in Input) (*Assessment, error) {
	t1Ctx, cancel := context.WithTimeout(ctx, o.cfg.Tier1Timeout())
	defer cancel()

	violation, err := o.rules.Run(t1Ctx, in)
	if err != nil {
		return nil, fmt.Errorf("tier-1 rules: %w", err)
	}
	if violation != nil {
		ViolationsTotal.WithLabelValues(violation.Type).Inc()
		a := &Assessment{
			Status:     types.RiskFail,
			FinalScore: 0,
			Violation:  violation,
			Details:    violation.Message,
		}
		o.finish(in, a)
		return a, nil
	}

	a := &Assessment{RuleScore: o.cfg.RuleScoreDefault}

	if o.breaker.Allow() {
		pred, predErr := o.predict(ctx, in)
		if predErr != nil {
			o.breaker.RecordFailure()
			o.logger.Warn("tier2-prediction-failed",
				zap.String("requirement_id", in.Requirement.ID),
				zap.String("availability_id", in.Availability.ID),
				zap.Error(predErr))
		} else {
			o.breaker.RecordSuccess()
			a.MLAvailable = true
			a.MLScore = pred.Score()
			a.Warnings = append(a.Warnings, pred.Factors...)
		}
	}

	if a.MLAvailable {
		a.FinalScore = o.cfg.FusionRuleWeight*a.RuleScore + o.cfg.FusionMLWeight*a.MLScore
	} else {
		a.FinalScore = a.RuleScore
	}

	switch {
	case a.FinalScore >= o.cfg.PassThreshold:
		a.Status = types.RiskPass
	case a.FinalScore >= o.cfg.WarnThreshold:
		a.Status = types.RiskWarn
	default:
		a.Status = types.RiskFail
		a.Details = fmt.Sprintf("fused risk score %.1f below warn threshold %.1f", a.FinalScore, o.cfg.WarnThreshold)
	}

	o.finish(in, a)
	return a, nil
}

func (o *Orchestrator) predict(ctx context.Context, in Input) (*Prediction, error) {
	t2Ctx, cancel := context.WithTimeout(ctx, o.cfg.Tier2Timeout())
	defer cancel()

	start := time.Now()
	pred, err := o.pred.Predict(t2Ctx, in)
	Tier2Duration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if pred == nil {
		return nil, fmt.Errorf("predictor returned no prediction")
	}
	return pred, nil
}

func (o *Orchestrator) finish(in Input, a *Assessment) {
	AssessmentsTotal.WithLabelValues(string(a.Status)).Inc()

	o.logger.Debug("risk-assessment-complete",
		zap.String("requirement_id", in.Requirement.ID),
		zap.String("availability_id", in.Availability.ID),
		zap.String("status", string(a.Status)),
		zap.Float64("final_score", a.FinalScore),
		zap.Bool("ml_available", a.MLAvailable))

	if o.bus != nil && a.Status != types.RiskPass {
		o.bus.Publish(events.New(events.RiskStatusChanged, in.Requirement.ID, map[string]any{
			"requirement_id":  in.Requirement.ID,
			"availability_id": in.Availability.ID,
			"status":          string(a.Status),
			"final_score":     a.FinalScore,
		}))
	}
}
