package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/XSAM/otelsql"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/models"
)

// Postgres wraps a postgres DB connection. It is the durable system of
// record for campaigns, creatives and placements; spend lives in the ledger.
type Postgres struct {
	DB *sql.DB
}

// schemaSQL sets up the necessary tables if they don't exist.
const schemaSQL = `CREATE TABLE IF NOT EXISTS campaigns (
    id SERIAL PRIMARY KEY,
    client_id INT NOT NULL,
    name TEXT NOT NULL,
    type TEXT NOT NULL,
    pricing_mode TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'draft',
    currency TEXT NOT NULL DEFAULT 'USD',
    placement_id TEXT,
    budget_total DOUBLE PRECISION NOT NULL,
    start_date TIMESTAMP NOT NULL,
    end_date TIMESTAMP NOT NULL,
    priority INT NOT NULL DEFAULT 0,
    target_demographics TEXT[],
    target_geo TEXT[],
    target_interests TEXT[],
    target_behaviors TEXT[],
    target_devices TEXT[],
    created_at TIMESTAMP NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS creatives (
    id SERIAL PRIMARY KEY,
    campaign_id INT NOT NULL REFERENCES campaigns(id),
    content_id INT,
    asset_url TEXT,
    destination_url TEXT,
    width INT,
    height INT,
    is_primary BOOLEAN NOT NULL DEFAULT FALSE,
    active BOOLEAN NOT NULL DEFAULT TRUE,
    created_at TIMESTAMP NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS placements (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    multiplier DOUBLE PRECISION NOT NULL DEFAULT 1.0,
    width INT,
    height INT,
    types TEXT[]
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status ON campaigns (status);
CREATE INDEX IF NOT EXISTS idx_campaigns_placement_id ON campaigns (placement_id);
CREATE INDEX IF NOT EXISTS idx_creatives_campaign_id ON creatives (campaign_id);
`

// InitPostgres connects to Postgres with connection pooling configuration.
func InitPostgres(dsn string, maxOpenConns, maxIdleConns int, connMaxLifetime, connMaxIdleTime time.Duration) (*Postgres, error) {
	// Register the otelsql wrapper for postgres
	driverName, err := otelsql.Register("postgres",
		otelsql.WithAttributes(
			attribute.String("db.system", "postgresql"),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("register otelsql: %w", err)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres open: %w", err)
	}

	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(connMaxLifetime)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	if err := db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	p := &Postgres{DB: db}
	if err := p.ensureSchema(); err != nil {
		return nil, err
	}
	zap.L().Info("Connected to Postgres with connection pooling",
		zap.Int("max_open_conns", maxOpenConns),
		zap.Int("max_idle_conns", maxIdleConns),
		zap.Duration("conn_max_lifetime", connMaxLifetime))
	return p, nil
}

// Close terminates the Postgres connection.
func (p *Postgres) Close() {
	if p != nil && p.DB != nil {
		if err := p.DB.Close(); err != nil {
			zap.L().Error("postgres close", zap.Error(err))
		}
	}
}

// ensureSchema creates the required tables if they do not exist.
func (p *Postgres) ensureSchema() error {
	if _, err := p.DB.ExecContext(context.Background(), schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// LoadCampaigns retrieves all campaigns from the database.
func (p *Postgres) LoadCampaigns() ([]models.Campaign, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT
        id, client_id, name, type, pricing_mode, status, currency, placement_id,
        budget_total, start_date, end_date, priority,
        target_demographics, target_geo, target_interests, target_behaviors, target_devices,
        created_at, updated_at FROM campaigns`)
	if err != nil {
		return nil, fmt.Errorf("query campaigns: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var cs []models.Campaign
	for rows.Next() {
		var c models.Campaign
		var placementID sql.NullString
		if err := rows.Scan(&c.ID, &c.ClientID, &c.Name, &c.Type, &c.PricingMode,
			&c.Status, &c.Currency, &placementID, &c.BudgetTotal,
			&c.StartDate, &c.EndDate, &c.Priority,
			pq.Array(&c.Targeting.Demographics), pq.Array(&c.Targeting.Geo),
			pq.Array(&c.Targeting.Interests), pq.Array(&c.Targeting.Behaviors),
			pq.Array(&c.Targeting.Devices),
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		if placementID.Valid {
			c.PlacementID = placementID.String
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cs, nil
}

// LoadCreatives fetches creatives from the database.
func (p *Postgres) LoadCreatives() ([]models.Creative, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT
        id, campaign_id, content_id, asset_url, destination_url,
        width, height, is_primary, active, created_at FROM creatives`)
	if err != nil {
		return nil, fmt.Errorf("query creatives: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var cs []models.Creative
	for rows.Next() {
		var c models.Creative
		var contentID sql.NullInt64
		var assetURL, destURL sql.NullString
		if err := rows.Scan(&c.ID, &c.CampaignID, &contentID, &assetURL, &destURL,
			&c.Width, &c.Height, &c.Primary, &c.Active, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan creative: %w", err)
		}
		if contentID.Valid {
			c.ContentID = int(contentID.Int64)
		}
		if assetURL.Valid {
			c.AssetURL = assetURL.String
		}
		if destURL.Valid {
			c.DestinationURL = destURL.String
		}
		cs = append(cs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return cs, nil
}

// LoadPlacements fetches placement definitions from the database.
func (p *Postgres) LoadPlacements() ([]models.Placement, error) {
	rows, err := p.DB.QueryContext(context.Background(), `SELECT id, name, multiplier, width, height, types FROM placements`)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var pls []models.Placement
	for rows.Next() {
		var pl models.Placement
		if err := rows.Scan(&pl.ID, &pl.Name, &pl.Multiplier, &pl.Width, &pl.Height, pq.Array(&pl.Types)); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		pls = append(pls, pl)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return pls, nil
}

// InsertCampaign inserts a new campaign and returns the generated ID.
func (p *Postgres) InsertCampaign(c *models.Campaign) error {
	err := p.DB.QueryRowContext(context.Background(), `INSERT INTO campaigns (
        client_id, name, type, pricing_mode, status, currency, placement_id,
        budget_total, start_date, end_date, priority,
        target_demographics, target_geo, target_interests, target_behaviors, target_devices
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16) RETURNING id, created_at, updated_at`,
		c.ClientID, c.Name, c.Type, c.PricingMode, c.Status, c.Currency, nullString(c.PlacementID),
		c.BudgetTotal, c.StartDate, c.EndDate, c.Priority,
		pq.Array(c.Targeting.Demographics), pq.Array(c.Targeting.Geo),
		pq.Array(c.Targeting.Interests), pq.Array(c.Targeting.Behaviors),
		pq.Array(c.Targeting.Devices)).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	return nil
}

// UpdateCampaign updates an existing campaign.
func (p *Postgres) UpdateCampaign(c models.Campaign) error {
	_, err := p.DB.ExecContext(context.Background(), `UPDATE campaigns SET
        client_id=$1, name=$2, type=$3, pricing_mode=$4, status=$5, currency=$6,
        placement_id=$7, budget_total=$8, start_date=$9, end_date=$10, priority=$11,
        target_demographics=$12, target_geo=$13, target_interests=$14,
        target_behaviors=$15, target_devices=$16, updated_at=NOW() WHERE id=$17`,
		c.ClientID, c.Name, c.Type, c.PricingMode, c.Status, c.Currency,
		nullString(c.PlacementID), c.BudgetTotal, c.StartDate, c.EndDate, c.Priority,
		pq.Array(c.Targeting.Demographics), pq.Array(c.Targeting.Geo),
		pq.Array(c.Targeting.Interests), pq.Array(c.Targeting.Behaviors),
		pq.Array(c.Targeting.Devices), c.ID)
	if err != nil {
		return fmt.Errorf("update campaign: %w", err)
	}
	return nil
}

// UpdateCampaignStatus persists a status change. Campaigns are never deleted;
// terminal statuses retire them.
func (p *Postgres) UpdateCampaignStatus(ctx context.Context, campaignID int, status string) error {
	_, err := p.DB.ExecContext(ctx, `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`, status, campaignID)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	return nil
}

// UpdateBudgetTotal persists a raised budget after a fund operation.
func (p *Postgres) UpdateBudgetTotal(ctx context.Context, campaignID int, total float64) error {
	_, err := p.DB.ExecContext(ctx, `UPDATE campaigns SET budget_total=$1, updated_at=NOW() WHERE id=$2`, total, campaignID)
	if err != nil {
		return fmt.Errorf("update budget total: %w", err)
	}
	return nil
}

// InsertCreative inserts a new creative and returns the generated ID.
func (p *Postgres) InsertCreative(c *models.Creative) error {
	err := p.DB.QueryRowContext(context.Background(), `INSERT INTO creatives (
        campaign_id, content_id, asset_url, destination_url, width, height, is_primary, active
    ) VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id, created_at`,
		c.CampaignID, c.ContentID, c.AssetURL, c.DestinationURL,
		c.Width, c.Height, c.Primary, c.Active).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert creative: %w", err)
	}
	return nil
}

// UpdateCreative updates an existing creative.
func (p *Postgres) UpdateCreative(c models.Creative) error {
	_, err := p.DB.ExecContext(context.Background(), `UPDATE creatives SET
        campaign_id=$1, content_id=$2, asset_url=$3, destination_url=$4,
        width=$5, height=$6, is_primary=$7, active=$8 WHERE id=$9`,
		c.CampaignID, c.ContentID, c.AssetURL, c.DestinationURL,
		c.Width, c.Height, c.Primary, c.Active, c.ID)
	if err != nil {
		return fmt.Errorf("update creative: %w", err)
	}
	return nil
}

// InsertPlacement inserts a new placement.
func (p *Postgres) InsertPlacement(pl models.Placement) error {
	_, err := p.DB.ExecContext(context.Background(), `INSERT INTO placements (id, name, multiplier, width, height, types) VALUES ($1,$2,$3,$4,$5,$6)`,
		pl.ID, pl.Name, pl.Multiplier, pl.Width, pl.Height, pq.Array(pl.Types))
	if err != nil {
		return fmt.Errorf("insert placement: %w", err)
	}
	return nil
}

// UpdatePlacement updates an existing placement.
func (p *Postgres) UpdatePlacement(pl models.Placement) error {
	_, err := p.DB.ExecContext(context.Background(), `UPDATE placements SET name=$1, multiplier=$2, width=$3, height=$4, types=$5 WHERE id=$6`,
		pl.Name, pl.Multiplier, pl.Width, pl.Height, pq.Array(pl.Types), pl.ID)
	if err != nil {
		return fmt.Errorf("update placement: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
