package analytics

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	_ "github.com/ClickHouse/clickhouse-go/v2"

	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
)

// ErrUnavailable is returned when the analytics DB is not configured.
var ErrUnavailable = fmt.Errorf("analytics unavailable")

// Service is the interface over the event store: the recorder appends
// events, the aggregator reads totals back out. Implementations return
// ErrUnavailable when the underlying storage is absent.
type Service interface {
	// RecordEvent appends one immutable event row.
	RecordEvent(ctx context.Context, ev models.Event) error
	// CampaignTotals aggregates a campaign's events over the trailing
	// number of days.
	CampaignTotals(ctx context.Context, campaignID, days int) (Totals, error)
	// DailyMetrics returns a day-by-day breakdown, newest first.
	DailyMetrics(ctx context.Context, campaignID, days int) ([]DailyMetrics, error)
}

// Totals are raw aggregates for one campaign and time range.
type Totals struct {
	Impressions     int64   `json:"impressions"`
	Clicks          int64   `json:"clicks"`
	Conversions     int64   `json:"conversions"`
	Spent           float64 `json:"spent"`
	ConversionValue float64 `json:"conversion_value"`
}

// DailyMetrics is one day's slice of a campaign's performance.
type DailyMetrics struct {
	Date        time.Time `json:"date"`
	Impressions int64     `json:"impressions"`
	Clicks      int64     `json:"clicks"`
	Spend       float64   `json:"spend"`
	CTR         float64   `json:"ctr"`
	CPM         float64   `json:"cpm"`
	CPC         float64   `json:"cpc"`
}

// PoolConfig tunes the ClickHouse connection pool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// Analytics wraps a ClickHouse DB connection.
type Analytics struct {
	DB      *sql.DB
	Metrics observability.MetricsRegistry
}

var _ Service = (*Analytics)(nil)

// InitClickHouse connects to ClickHouse and ensures the events table exists.
func InitClickHouse(dsn string, pool PoolConfig, metrics observability.MetricsRegistry) (*Analytics, error) {
	chdb, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("clickhouse open: %w", err)
	}
	if pool.MaxOpenConns > 0 {
		chdb.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		chdb.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		chdb.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}
	if pool.ConnMaxIdleTime > 0 {
		chdb.SetConnMaxIdleTime(pool.ConnMaxIdleTime)
	}
	if err := chdb.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("clickhouse ping: %w", err)
	}

	create := `CREATE TABLE IF NOT EXISTS events (
       timestamp        DateTime,
       event_id         String,
       event_type       String,
       campaign_id      Int32,
       creative_id      Int32,
       placement_id     String,
       viewer_id        String,
       page_url         String,
       device_type      Nullable(String),
       country          Nullable(String),
       cost             Float64,
       currency         String,
       billable         UInt8,
       conversion_type  Nullable(String),
       conversion_value Float64
   ) ENGINE=MergeTree() ORDER BY (campaign_id, timestamp)`
	if _, err := chdb.ExecContext(context.Background(), create); err != nil {
		return nil, fmt.Errorf("clickhouse create table: %w", err)
	}

	zap.L().Info("Connected to ClickHouse")
	return &Analytics{DB: chdb, Metrics: metrics}, nil
}

// RecordEvent inserts a single event row into the events table.
func (a *Analytics) RecordEvent(ctx context.Context, ev models.Event) error {
	if a == nil || a.DB == nil {
		return ErrUnavailable
	}

	var dt, country sql.NullString
	if ev.DeviceType != "" {
		dt = sql.NullString{String: ev.DeviceType, Valid: true}
	}
	if ev.Country != "" {
		country = sql.NullString{String: ev.Country, Valid: true}
	}
	var convType sql.NullString
	if ev.ConversionType != "" {
		convType = sql.NullString{String: ev.ConversionType, Valid: true}
	}
	billable := uint8(0)
	if ev.Billable {
		billable = 1
	}
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	stmt := `INSERT INTO events (timestamp, event_id, event_type, campaign_id, creative_id, placement_id, viewer_id, page_url, device_type, country, cost, currency, billable, conversion_type, conversion_value) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if _, err := a.DB.ExecContext(ctx, stmt,
		ts, ev.ID, ev.Type, int32(ev.CampaignID), int32(ev.CreativeID), ev.PlacementID,
		ev.ViewerID, ev.PageURL, dt, country, ev.Cost, ev.Currency, billable,
		convType, ev.ConversionValue,
	); err != nil {
		zap.L().Error("clickhouse insert failed", zap.Error(err), zap.String("event_type", ev.Type))
		if a.Metrics != nil {
			a.Metrics.IncrementEventPersistErrors()
		}
		return fmt.Errorf("insert %s event: %w", ev.Type, err)
	}
	return nil
}

// CampaignTotals aggregates events for the trailing number of days.
func (a *Analytics) CampaignTotals(ctx context.Context, campaignID, days int) (Totals, error) {
	if a == nil || a.DB == nil {
		return Totals{}, ErrUnavailable
	}
	query := `
		SELECT
			countIf(event_type = 'impression') as impressions,
			countIf(event_type = 'click') as clicks,
			countIf(event_type = 'conversion') as conversions,
			sum(cost) as spent,
			sum(conversion_value) as conversion_value
		FROM events
		WHERE campaign_id = ?
			AND timestamp >= now() - INTERVAL ? DAY`

	var t Totals
	err := a.DB.QueryRowContext(ctx, query, campaignID, days).
		Scan(&t.Impressions, &t.Clicks, &t.Conversions, &t.Spent, &t.ConversionValue)
	if err != nil {
		return Totals{}, fmt.Errorf("query campaign totals: %w", err)
	}
	return t, nil
}

// DailyMetrics returns the campaign's day-by-day performance, newest first.
func (a *Analytics) DailyMetrics(ctx context.Context, campaignID, days int) ([]DailyMetrics, error) {
	if a == nil || a.DB == nil {
		return nil, ErrUnavailable
	}
	query := `
		SELECT
			toDate(timestamp) as date,
			countIf(event_type = 'impression') as impressions,
			countIf(event_type = 'click') as clicks,
			sum(cost) as spend,
			round(if(impressions > 0, clicks / impressions * 100, 0), 2) as ctr,
			round(if(impressions > 0, spend / impressions * 1000, 0), 2) as cpm,
			round(if(clicks > 0, spend / clicks, 0), 2) as cpc
		FROM events
		WHERE campaign_id = ?
			AND timestamp >= now() - INTERVAL ? DAY
		GROUP BY date
		ORDER BY date DESC`

	rows, err := a.DB.QueryContext(ctx, query, campaignID, days)
	if err != nil {
		return nil, fmt.Errorf("query daily metrics: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Warn("rows close", zap.Error(err))
		}
	}()

	var metrics []DailyMetrics
	for rows.Next() {
		var m DailyMetrics
		if err := rows.Scan(&m.Date, &m.Impressions, &m.Clicks, &m.Spend, &m.CTR, &m.CPM, &m.CPC); err != nil {
			return nil, fmt.Errorf("scan daily metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// Close terminates the ClickHouse connection.
func (a *Analytics) Close() {
	if a != nil && a.DB != nil {
		if err := a.DB.Close(); err != nil {
			zap.L().Error("clickhouse close", zap.Error(err))
		}
	}
}
