package scoring

import (
	"time"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// National and international delivery component weights. Location already
// passed the hard filter, so its component is always 1.0 here.
var (
	nationalDeliveryWeights = deliveryWeights{
		location: 0.40, timeline: 0.30, terms: 0.30,
	}
	internationalDeliveryWeights = deliveryWeights{
		location: 0.25, timeline: 0.20, terms: 0.20, incoterm: 0.20, port: 0.15,
	}
)

type deliveryWeights struct {
	location float64
	timeline float64
	terms    float64
	incoterm float64
	port     float64
}

// deliveryScore composes location, timeline and terms compatibility; for
// international legs the Incoterm match and a port-distance proxy join in.
func (s *Scorer) deliveryScore(req *types.Requirement, avail *types.Availability) (float64, bool) {
	w := nationalDeliveryWeights
	if req.International() {
		w = internationalDeliveryWeights
	}

	const locationScore = 1.0 // asserted by the hard filter
	timeline := timelineScore(req, avail)
	terms := termsScore(req, avail)

	score := w.location*locationScore + w.timeline*timeline + w.terms*terms
	if req.International() {
		score += w.incoterm*incotermScore(req, avail) + w.port*portScore(avail)
	}
	return clamp01(score), score >= 0.6
}

// timelineScore checks the seller's earliest availability against the buyer's
// delivery window, extended by the flexibility allowance.
func timelineScore(req *types.Requirement, avail *types.Availability) float64 {
	window := req.DeliveryWindow
	if window.End == nil {
		return 1.0
	}
	if avail.AvailableFrom == nil {
		// Seller gave no dispatch date; partially compatible by default.
		return 0.8
	}

	flexibility := window.FlexibilityHours
	if flexibility <= 0 {
		flexibility = types.DefaultFlexibilityHours
	}
	deadline := window.End.Add(time.Duration(flexibility) * time.Hour)

	from := *avail.AvailableFrom
	switch {
	case !from.After(*window.End):
		return 1.0
	case !from.After(deadline):
		return 0.6
	default:
		return 0.2
	}
}

// termsScore compares payment terms. A buyer without a stated requirement
// accepts anything.
func termsScore(req *types.Requirement, avail *types.Availability) float64 {
	if req.RequiredPaymentTermsDays <= 0 {
		return 1.0
	}
	if avail.PaymentTermsDays >= req.RequiredPaymentTermsDays {
		return 1.0
	}
	return 0.5
}

// incotermScore: 1.0 when the buyer has no preference or the seller lists the
// preferred term; 0.5 when the seller published no list; 0.3 on a mismatch.
func incotermScore(req *types.Requirement, avail *types.Availability) float64 {
	if req.PreferredIncoterm == "" {
		return 1.0
	}
	if len(avail.SupportedIncoterms) == 0 {
		return 0.5
	}
	if avail.SupportsIncoterm(req.PreferredIncoterm) {
		return 1.0
	}
	return 0.3
}

// portScore is a coarse proxy on the seller's distance to the nearest port.
func portScore(avail *types.Availability) float64 {
	if avail.NearestPortKm == nil {
		return 0.7
	}
	km := *avail.NearestPortKm
	switch {
	case km <= 100:
		return 1.0
	case km <= 300:
		return 0.8
	case km <= 600:
		return 0.6
	default:
		return 0.4
	}
}
