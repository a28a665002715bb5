// Dumps raw event rows from ClickHouse for debugging billing questions.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jobdeck/adengine/internal/analytics"
	"github.com/jobdeck/adengine/internal/config"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
)

func main() {
	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	var campaignID int
	var eventType string
	var limit int
	var dsn string
	flag.IntVar(&campaignID, "campaign-id", 0, "campaign ID")
	flag.StringVar(&eventType, "type", "", "event type filter (impression, click, conversion, serve)")
	flag.IntVar(&limit, "limit", 50, "maximum rows to return")
	flag.StringVar(&dsn, "dsn", "", "ClickHouse DSN")
	flag.Parse()

	if campaignID == 0 {
		fmt.Fprintln(os.Stderr, "campaign-id required")
		os.Exit(1)
	}
	if dsn == "" {
		cfg := config.Load()
		dsn = cfg.ClickHouseDSN
	}

	a, err := analytics.InitClickHouse(dsn, analytics.PoolConfig{MaxOpenConns: 10}, observability.NewNoOpRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect clickhouse: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	events, err := queryEvents(context.Background(), a.DB, campaignID, eventType, limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "query events: %v\n", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(events); err != nil {
		fmt.Fprintf(os.Stderr, "encode events: %v\n", err)
		os.Exit(1)
	}
}

func queryEvents(ctx context.Context, chdb *sql.DB, campaignID int, eventType string, limit int) ([]models.Event, error) {
	query := `SELECT timestamp, event_id, event_type, campaign_id, creative_id, placement_id,
		viewer_id, page_url, device_type, country, cost, currency, billable,
		conversion_type, conversion_value
		FROM events WHERE campaign_id = ?`
	args := []interface{}{campaignID}
	if eventType != "" {
		query += " AND event_type = ?"
		args = append(args, eventType)
	}
	query += " ORDER BY timestamp DESC LIMIT ?"
	args = append(args, limit)

	rows, err := chdb.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []models.Event
	for rows.Next() {
		var (
			ev                 models.Event
			ts                 time.Time
			campaign, creative int32
			dt, country, ct    sql.NullString
			billable           uint8
		)
		if err := rows.Scan(&ts, &ev.ID, &ev.Type, &campaign, &creative, &ev.PlacementID,
			&ev.ViewerID, &ev.PageURL, &dt, &country, &ev.Cost, &ev.Currency, &billable,
			&ct, &ev.ConversionValue); err != nil {
			return nil, err
		}
		ev.Timestamp = ts
		ev.CampaignID = int(campaign)
		ev.CreativeID = int(creative)
		ev.DeviceType = dt.String
		ev.Country = country.String
		ev.ConversionType = ct.String
		ev.Billable = billable == 1
		events = append(events, ev)
	}
	return events, rows.Err()
}
