// Package anonymizer projects counterparty identity and location detail
// through the disclosure level the viewer has earned. Escalating the level
// only ever adds fields, never removes them.
package anonymizer

import (
	"math"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// Role labels the counterparty in the generic MATCHED projection.
type Role string

// Counterparty roles.
const (
	RoleBuyer  Role = "Buyer"
	RoleSeller Role = "Seller"
)

// ResolveLevel determines the disclosure level a viewer gets for a record.
// Owners always see their own record in full.
func ResolveLevel(viewerID, ownerID string, base types.DisclosureLevel) types.DisclosureLevel {
	if viewerID != "" && viewerID == ownerID {
		return types.DisclosureTrade
	}
	return base
}

// Project builds the counterparty view for one partner at the given level.
func Project(p *types.Partner, role Role, level types.DisclosureLevel) *types.CounterpartyView {
	if p == nil {
		return nil
	}

	view := &types.CounterpartyView{
		Label:   "Anonymous " + string(role),
		Country: p.Country,
	}
	if level < types.DisclosureMatched {
		return view
	}

	// MATCHED: generic verified label, rounded rating, city.
	view.Label = "Verified " + string(role)
	rounded := math.Round(p.Rating*2) / 2
	view.Rating = &rounded
	view.State = p.State
	view.City = p.City
	if level < types.DisclosureNegotiating {
		return view
	}

	// NEGOTIATING: company identity, exact rating, contact still gated.
	view.Label = string(role)
	view.Name = p.Name
	view.Rating = &p.Rating
	view.Contact = "available on deal acceptance"
	if level < types.DisclosureTrade {
		return view
	}

	// TRADE: full contact channels.
	view.Contact = contactLine(p)
	return view
}

func contactLine(p *types.Partner) string {
	switch {
	case p.ContactEmail != "" && p.ContactPhone != "":
		return p.ContactEmail + " / " + p.ContactPhone
	case p.ContactEmail != "":
		return p.ContactEmail
	case p.ContactPhone != "":
		return p.ContactPhone
	default:
		return ""
	}
}
