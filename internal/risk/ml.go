package risk

import (
	"context"
	"math"
)

// Prediction carries the tier-2 signals. Probabilities are in [0,1];
// KYCCompleteness and TrustScore are positive signals in [0,1].
type Prediction struct {
	PaymentDefaultProb   float64  `json:"payment_default_prob"`
	QualityDeviationProb float64  `json:"quality_deviation_prob"`
	FraudPatternProb     float64  `json:"fraud_pattern_prob"`
	PriceVolatilityRisk  float64  `json:"price_volatility_risk"`
	KYCCompleteness      float64  `json:"kyc_completeness"`
	TrustScore           float64  `json:"trust_score"`
	AnomalyScore         float64  `json:"anomaly_score"`
	Factors              []string `json:"factors,omitempty"`
	Confidence           float64  `json:"confidence"`
}

// Score combines the signals into a 0-100 ML score by the weighted mean
// 25/20/20/10/10/10/5, risks inverted so higher is safer.
func (p *Prediction) Score() float64 {
	score := 25*(1-p.PaymentDefaultProb) +
		20*(1-p.QualityDeviationProb) +
		20*(1-p.FraudPatternProb) +
		10*(1-p.PriceVolatilityRisk) +
		10*p.KYCCompleteness +
		10*p.TrustScore +
		5*(1-p.AnomalyScore)
	return math.Max(0, math.Min(100, score))
}

// Predictor is the tier-2 model boundary. Implementations call out to the
// scoring models; failures trip the circuit breaker.
type Predictor interface {
	Predict(ctx context.Context, in Input) (*Prediction, error)
}

// HeuristicPredictor derives tier-2 signals from partner reference data. It
// stands in where no external model endpoint is configured and keeps the
// fusion arithmetic exercised end to end.
type HeuristicPredictor struct{}

// Predict implements Predictor.
func (HeuristicPredictor) Predict(_ context.Context, in Input) (*Prediction, error) {
	trust := clampUnit(in.Seller.TrustScore / 2.0)
	kyc := clampUnit(in.Seller.KYCScore / 100.0)

	anomaly := 0.0
	if in.Availability.AnomalyFlag {
		anomaly = 0.8
	}

	// Low seller rating correlates with default and quality deviation.
	ratingRisk := clampUnit((5.0 - in.Seller.Rating) / 5.0)

	return &Prediction{
		PaymentDefaultProb:   0.5 * ratingRisk,
		QualityDeviationProb: 0.4 * ratingRisk,
		FraudPatternProb:     0.2 * anomaly,
		PriceVolatilityRisk:  0.2,
		KYCCompleteness:      kyc,
		TrustScore:           trust,
		AnomalyScore:         anomaly,
		Confidence:           70,
	}, nil
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
