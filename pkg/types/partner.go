package types

// Partner is the slice of a trading party the core reads. User and partner
// management live outside this module; entities reference partners by id.
type Partner struct {
	ID             string `json:"id"`
	OrganizationID string `json:"organization_id"`
	Name           string `json:"name"`

	Country string `json:"country"`
	State   string `json:"state"`
	City    string `json:"city"`

	GSTNumber string  `json:"gst_number,omitempty"`
	PANNumber string  `json:"pan_number,omitempty"`
	Rating    float64 `json:"rating"`

	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`

	// Notification preferences read by the dispatch notifier.
	NotifyOptIn    bool     `json:"notify_opt_in"`
	NotifyChannels []string `json:"notify_channels,omitempty"`

	// RelatedPartyIDs feeds the tier-1 party-links compliance check.
	RelatedPartyIDs []string `json:"related_party_ids,omitempty"`

	// KYCScore in [0,100], read by tier-2 risk scoring.
	KYCScore   float64 `json:"kyc_score"`
	TrustScore float64 `json:"trust_score"`

	// Export/import licensing for international legs.
	ExportLicenseValid bool `json:"export_license_valid"`
	ImportLicenseValid bool `json:"import_license_valid"`
}

// RelatedTo reports whether other is a declared related party.
func (p *Partner) RelatedTo(otherID string) bool {
	for _, id := range p.RelatedPartyIDs {
		if id == otherID {
			return true
		}
	}
	return false
}

// Commodity is the reference entity a requirement or availability trades.
type Commodity struct {
	ID   string `json:"id"`
	Code string `json:"code"`
	Name string `json:"name"`
}
