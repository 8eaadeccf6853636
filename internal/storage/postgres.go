package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rnrlcrm/cotton-erp-rnrl-sub001/pkg/types"
)

// PostgresGateway implements Gateway using PostgreSQL. Structured columns map
// quality constraints, delivery locations and price matrices as JSONB.
type PostgresGateway struct {
	db     *sql.DB
	logger *zap.Logger
}

// PostgresConfig holds PostgreSQL configuration.
type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Database string
	SSLMode  string
	Logger   *zap.Logger
}

// NewPostgresGateway connects and pings the database.
func NewPostgresGateway(cfg *PostgresConfig) (*PostgresGateway, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	cfg.Logger.Info("postgres-storage-connected",
		zap.String("host", cfg.Host),
		zap.String("database", cfg.Database))

	return &PostgresGateway{db: db, logger: cfg.Logger}, nil
}

// NewPostgresGatewayFromDB wraps an existing connection. Test constructor.
func NewPostgresGatewayFromDB(db *sql.DB, logger *zap.Logger) *PostgresGateway {
	return &PostgresGateway{db: db, logger: logger}
}

const requirementColumns = `
	id, number, buyer_id, organization_id, commodity_id, variety_id,
	min_qty, max_qty, preferred_qty, unit, quality,
	max_budget_per_unit, preferred_price_per_unit, currency,
	delivery_locations, window_start, window_end, flexibility_hours,
	destination_country, preferred_incoterm,
	visibility, status, intent,
	ai_suggested_max_price, ai_confidence, ai_price_alert, ai_recommended_sellers,
	total_matched_qty, total_purchased_qty, total_spent, trust_score,
	valid_until, created_at, updated_at`

// GetRequirement implements Gateway.
func (p *PostgresGateway) GetRequirement(ctx context.Context, id string, _ bool) (*types.Requirement, error) {
	query := `SELECT ` + requirementColumns + ` FROM requirements WHERE id = $1`
	row := p.db.QueryRowContext(ctx, query, id)
	r, err := scanRequirement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("requirement %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get requirement: %w: %v", types.ErrDependencyUnavailable, err)
	}
	return r, nil
}

const availabilityColumns = `
	id, seller_id, organization_id, commodity_id, variety_id,
	location_id, state, city, country, latitude, longitude,
	total_qty, available_qty, reserved_qty, sold_qty, unit,
	price_type, base_price, price_matrix, currency, price_unit,
	quality, visibility, status,
	ai_confidence, anomaly_flag,
	allow_partial_order, min_order_qty,
	dispatch_lead_days, payment_terms_days, supported_incoterms,
	expiry_date, created_at, updated_at`

// GetAvailability implements Gateway.
func (p *PostgresGateway) GetAvailability(ctx context.Context, id string, _ bool) (*types.Availability, error) {
	query := `SELECT ` + availabilityColumns + ` FROM availabilities WHERE id = $1`
	row := p.db.QueryRowContext(ctx, query, id)
	a, err := scanAvailability(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("availability %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get availability: %w: %v", types.ErrDependencyUnavailable, err)
	}
	return a, nil
}

// GetPartner implements Gateway.
func (p *PostgresGateway) GetPartner(ctx context.Context, id string) (*types.Partner, error) {
	query := `
		SELECT id, organization_id, name, country, state, city,
		       gst_number, pan_number, rating,
		       contact_email, contact_phone,
		       notify_opt_in, notify_channels, related_party_ids,
		       kyc_score, trust_score,
		       export_license_valid, import_license_valid
		FROM partners WHERE id = $1`

	var pt types.Partner
	var gst, pan, email, phone sql.NullString
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&pt.ID, &pt.OrganizationID, &pt.Name, &pt.Country, &pt.State, &pt.City,
		&gst, &pan, &pt.Rating,
		&email, &phone,
		&pt.NotifyOptIn, pq.Array(&pt.NotifyChannels), pq.Array(&pt.RelatedPartyIDs),
		&pt.KYCScore, &pt.TrustScore,
		&pt.ExportLicenseValid, &pt.ImportLicenseValid,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("partner %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get partner: %w: %v", types.ErrDependencyUnavailable, err)
	}
	pt.GSTNumber = gst.String
	pt.PANNumber = pan.String
	pt.ContactEmail = email.String
	pt.ContactPhone = phone.String
	return &pt, nil
}

// GetCommodity implements Gateway.
func (p *PostgresGateway) GetCommodity(ctx context.Context, id string) (*types.Commodity, error) {
	var c types.Commodity
	err := p.db.QueryRowContext(ctx,
		`SELECT id, code, name FROM commodities WHERE id = $1`, id,
	).Scan(&c.ID, &c.Code, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("commodity %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get commodity: %w: %v", types.ErrDependencyUnavailable, err)
	}
	return &c, nil
}

// AvailabilitiesByLocation implements Gateway. Served by the
// (location_id, commodity_id, status) index; ordered by id for deterministic
// pipelines.
func (p *PostgresGateway) AvailabilitiesByLocation(ctx context.Context, locationIDs []string, commodityID string, status types.AvailabilityStatus) ([]*types.Availability, error) {
	query := `SELECT ` + availabilityColumns + `
		FROM availabilities
		WHERE location_id = ANY($1) AND commodity_id = $2 AND status = $3
		ORDER BY id`

	rows, err := p.db.QueryContext(ctx, query, pq.Array(locationIDs), commodityID, string(status))
	if err != nil {
		return nil, fmt.Errorf("availabilities by location: %w: %v", types.ErrDependencyUnavailable, err)
	}
	defer rows.Close()

	var out []*types.Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, fmt.Errorf("scan availability: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// RequirementsByDeliveryLocation implements Gateway. delivery_locations is
// JSONB; containment uses the GIN index on the column.
func (p *PostgresGateway) RequirementsByDeliveryLocation(ctx context.Context, locationID string, commodityID string, status types.RequirementStatus) ([]*types.Requirement, error) {
	query := `SELECT ` + requirementColumns + `
		FROM requirements
		WHERE commodity_id = $2 AND status = $3
		  AND delivery_locations @> jsonb_build_array(jsonb_build_object('location_id', $1::text))
		ORDER BY id`

	rows, err := p.db.QueryContext(ctx, query, locationID, commodityID, string(status))
	if err != nil {
		return nil, fmt.Errorf("requirements by location: %w: %v", types.ErrDependencyUnavailable, err)
	}
	defer rows.Close()

	var out []*types.Requirement
	for rows.Next() {
		r, err := scanRequirement(rows)
		if err != nil {
			return nil, fmt.Errorf("scan requirement: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LockAvailability implements Gateway with SELECT ... FOR UPDATE inside a
// transaction. The lock lives until Commit or Rollback.
func (p *PostgresGateway) LockAvailability(ctx context.Context, id string) (LockedAvailability, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin allocation tx: %w: %v", types.ErrDependencyUnavailable, err)
	}

	query := `SELECT ` + availabilityColumns + ` FROM availabilities WHERE id = $1 FOR UPDATE`
	row := tx.QueryRowContext(ctx, query, id)
	a, err := scanAvailability(row)
	if errors.Is(err, sql.ErrNoRows) {
		_ = tx.Rollback()
		return nil, fmt.Errorf("availability %s: %w", id, types.ErrNotFound)
	}
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("lock availability: %w: %v", types.ErrDependencyUnavailable, err)
	}

	return &postgresLock{tx: tx, copy: a}, nil
}

type postgresLock struct {
	tx   *sql.Tx
	copy *types.Availability
	done bool
}

func (l *postgresLock) Availability() *types.Availability {
	return l.copy
}

func (l *postgresLock) Commit(ctx context.Context) error {
	if l.done {
		return fmt.Errorf("lock already released")
	}
	l.done = true

	if err := l.copy.CheckQuantityInvariant(); err != nil {
		_ = l.tx.Rollback()
		return fmt.Errorf("commit refused: %w", err)
	}

	_, err := l.tx.ExecContext(ctx, `
		UPDATE availabilities
		SET available_qty = $2, reserved_qty = $3, sold_qty = $4, status = $5, updated_at = NOW()
		WHERE id = $1`,
		l.copy.ID, l.copy.AvailableQty, l.copy.ReservedQty, l.copy.SoldQty, string(l.copy.Status),
	)
	if err != nil {
		_ = l.tx.Rollback()
		return fmt.Errorf("update locked availability: %w", err)
	}

	if err := l.tx.Commit(); err != nil {
		return fmt.Errorf("commit allocation tx: %w", err)
	}
	return nil
}

func (l *postgresLock) Rollback() error {
	if l.done {
		return nil
	}
	l.done = true
	return l.tx.Rollback()
}

// AppendMatchAudit implements Gateway.
func (p *PostgresGateway) AppendMatchAudit(ctx context.Context, records []*types.MatchAuditRecord) error {
	query := `
		INSERT INTO match_audit (
			id, requirement_id, availability_id, commodity_id, buyer_id, seller_id,
			score, breakdown, risk_status, included, reason_code, detail,
			duplicate_key, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`

	for _, r := range records {
		breakdown, err := json.Marshal(r.Breakdown)
		if err != nil {
			return fmt.Errorf("marshal breakdown: %w", err)
		}
		_, err = p.db.ExecContext(ctx, query,
			r.ID, r.RequirementID, r.AvailabilityID, r.CommodityID, r.BuyerID, r.SellerID,
			r.Score, breakdown, string(r.RiskStatus), r.Included, r.ReasonCode, r.Detail,
			r.DuplicateKey, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert audit record: %w", err)
		}
	}
	return nil
}

// RecentDuplicateKeys implements Gateway.
func (p *PostgresGateway) RecentDuplicateKeys(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT duplicate_key, MAX(created_at)
		FROM match_audit
		WHERE included = TRUE AND created_at >= $1
		GROUP BY duplicate_key`, since)
	if err != nil {
		return nil, fmt.Errorf("recent duplicate keys: %w: %v", types.ErrDependencyUnavailable, err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var key string
		var at time.Time
		if err := rows.Scan(&key, &at); err != nil {
			return nil, fmt.Errorf("scan duplicate key: %w", err)
		}
		out[key] = at
	}
	return out, rows.Err()
}

// ActiveRequirementIDsCreatedSince implements Gateway.
func (p *PostgresGateway) ActiveRequirementIDsCreatedSince(ctx context.Context, since time.Time) ([]string, error) {
	return p.idsSince(ctx,
		`SELECT id FROM requirements WHERE status = 'ACTIVE' AND created_at >= $1`, since)
}

// ActiveAvailabilityIDsCreatedSince implements Gateway.
func (p *PostgresGateway) ActiveAvailabilityIDsCreatedSince(ctx context.Context, since time.Time) ([]string, error) {
	return p.idsSince(ctx,
		`SELECT id FROM availabilities WHERE status = 'ACTIVE' AND created_at >= $1`, since)
}

func (p *PostgresGateway) idsSince(ctx context.Context, query string, since time.Time) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("ids since: %w: %v", types.ErrDependencyUnavailable, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SameDayAvailabilityCount implements Gateway.
func (p *PostgresGateway) SameDayAvailabilityCount(ctx context.Context, partnerID, commodityID string, day time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM availabilities
		WHERE seller_id = $1 AND commodity_id = $2 AND created_at::date = $3::date`,
		partnerID, commodityID, day,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("same-day availability count: %w: %v", types.ErrDependencyUnavailable, err)
	}
	return count, nil
}

// SameDayRequirementCount implements Gateway.
func (p *PostgresGateway) SameDayRequirementCount(ctx context.Context, partnerID, commodityID string, day time.Time) (int, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM requirements
		WHERE buyer_id = $1 AND commodity_id = $2 AND created_at::date = $3::date`,
		partnerID, commodityID, day,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("same-day requirement count: %w: %v", types.ErrDependencyUnavailable, err)
	}
	return count, nil
}

// Close implements Gateway.
func (p *PostgresGateway) Close() error {
	p.logger.Info("closing-postgres-storage")
	return p.db.Close()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRequirement(s scanner) (*types.Requirement, error) {
	var r types.Requirement
	var varietyID, destCountry, incoterm sql.NullString
	var qualityJSON, locationsJSON []byte
	var preferredPrice, aiMaxPrice sql.NullString
	var windowStart, windowEnd, validUntil sql.NullTime
	var recommended []string

	err := s.Scan(
		&r.ID, &r.Number, &r.BuyerID, &r.OrganizationID, &r.CommodityID, &varietyID,
		&r.MinQty, &r.MaxQty, &r.PreferredQty, &r.Unit, &qualityJSON,
		&r.MaxBudgetPerUnit, &preferredPrice, &r.Currency,
		&locationsJSON, &windowStart, &windowEnd, &r.DeliveryWindow.FlexibilityHours,
		&destCountry, &incoterm,
		&r.Visibility, &r.Status, &r.Intent,
		&aiMaxPrice, &r.AIConfidence, &r.AIPriceAlert, pq.Array(&recommended),
		&r.TotalMatchedQty, &r.TotalPurchasedQty, &r.TotalSpent, &r.TrustScore,
		&validUntil, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.VarietyID = varietyID.String
	r.DestinationCountry = destCountry.String
	r.PreferredIncoterm = incoterm.String
	r.AIRecommendedSellers = recommended

	if len(qualityJSON) > 0 {
		if err := json.Unmarshal(qualityJSON, &r.Quality); err != nil {
			return nil, fmt.Errorf("unmarshal quality: %w", err)
		}
	}
	if len(locationsJSON) > 0 {
		if err := json.Unmarshal(locationsJSON, &r.DeliveryLocations); err != nil {
			return nil, fmt.Errorf("unmarshal delivery locations: %w", err)
		}
	}
	if preferredPrice.Valid {
		d, err := decimal.NewFromString(preferredPrice.String)
		if err != nil {
			return nil, fmt.Errorf("parse preferred price: %w", err)
		}
		r.PreferredPricePerUnit = &d
	}
	if aiMaxPrice.Valid {
		d, err := decimal.NewFromString(aiMaxPrice.String)
		if err != nil {
			return nil, fmt.Errorf("parse ai max price: %w", err)
		}
		r.AISuggestedMaxPrice = &d
	}
	if windowStart.Valid {
		r.DeliveryWindow.Start = &windowStart.Time
	}
	if windowEnd.Valid {
		r.DeliveryWindow.End = &windowEnd.Time
	}
	if validUntil.Valid {
		r.ValidUntil = &validUntil.Time
	}
	return &r, nil
}

func scanAvailability(s scanner) (*types.Availability, error) {
	var a types.Availability
	var varietyID, country sql.NullString
	var lat, lon, minOrderQty sql.NullFloat64
	var matrixJSON, qualityJSON []byte
	var incoterms []string
	var expiry sql.NullTime

	err := s.Scan(
		&a.ID, &a.SellerID, &a.OrganizationID, &a.CommodityID, &varietyID,
		&a.LocationID, &a.State, &a.City, &country, &lat, &lon,
		&a.TotalQty, &a.AvailableQty, &a.ReservedQty, &a.SoldQty, &a.Unit,
		&a.PriceType, &a.BasePrice, &matrixJSON, &a.Currency, &a.PriceUnit,
		&qualityJSON, &a.Visibility, &a.Status,
		&a.AIConfidence, &a.AnomalyFlag,
		&a.AllowPartialOrder, &minOrderQty,
		&a.DispatchLeadDays, &a.PaymentTermsDays, pq.Array(&incoterms),
		&expiry, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	a.VarietyID = varietyID.String
	a.Country = country.String
	a.SupportedIncoterms = incoterms
	if lat.Valid {
		a.Latitude = &lat.Float64
	}
	if lon.Valid {
		a.Longitude = &lon.Float64
	}
	if minOrderQty.Valid {
		a.MinOrderQty = &minOrderQty.Float64
	}
	if expiry.Valid {
		a.ExpiryDate = &expiry.Time
	}
	if len(matrixJSON) > 0 {
		if err := json.Unmarshal(matrixJSON, &a.PriceMatrix); err != nil {
			return nil, fmt.Errorf("unmarshal price matrix: %w", err)
		}
	}
	if len(qualityJSON) > 0 {
		if err := json.Unmarshal(qualityJSON, &a.Quality); err != nil {
			return nil, fmt.Errorf("unmarshal quality: %w", err)
		}
	}
	return &a, nil
}
