// Campaign report tool prints a formatted performance report for one
// campaign: totals, derived ratios, budget balances and a daily breakdown.
//
// Usage:
//
//	go run ./tools/campaign_report -campaign-id=123 -days=30
//
// Connection strings come from the usual environment variables
// (POSTGRES_DSN, REDIS_ADDR, CLICKHOUSE_DSN).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jobdeck/adengine/internal/analytics"
	"github.com/jobdeck/adengine/internal/config"
	"github.com/jobdeck/adengine/internal/db"
	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
)

func main() {
	var (
		campaignID = flag.Int("campaign-id", 0, "Campaign ID to generate report for")
		days       = flag.Int("days", 7, "Number of days to include in report")
	)
	flag.Parse()

	if *campaignID == 0 {
		fmt.Fprintf(os.Stderr, "Error: campaign-id is required\n")
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.Load()

	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to Postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	store := models.NewInMemoryCampaignStore()
	if err := db.LoadAll(pg, store); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading campaign data: %v\n", err)
		os.Exit(1)
	}

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() { _ = redisClient.Close() }()

	analyticsSvc, err := analytics.InitClickHouse(cfg.ClickHouseDSN, analytics.PoolConfig{MaxOpenConns: 10}, observability.NewNoOpRegistry())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to ClickHouse: %v\n", err)
		os.Exit(1)
	}
	defer analyticsSvc.Close()

	agg := analytics.NewAggregator(analyticsSvc, ledger.NewRedisLedger(redisClient), store)
	report, err := agg.CampaignReport(context.Background(), *campaignID, *days)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	printCampaignReport(store.GetCampaign(*campaignID), report)
}

func printCampaignReport(c *models.Campaign, report *analytics.Report) {
	fmt.Printf("═══════════════════════════════════════════════════════════════════\n")
	fmt.Printf("                   CAMPAIGN PERFORMANCE REPORT\n")
	fmt.Printf("═══════════════════════════════════════════════════════════════════\n")
	fmt.Printf("Campaign:      %s (ID %d)\n", c.Name, c.ID)
	fmt.Printf("Status:        %s (%s, %s)\n", c.Status, c.Type, c.PricingMode)
	fmt.Printf("Window:        %s to %s\n", c.StartDate.Format("2006-01-02"), c.EndDate.Format("2006-01-02"))
	fmt.Printf("Report Period: %d days (ending %s)\n\n", report.Days, time.Now().Format("2006-01-02"))

	m := report.Metrics
	fmt.Printf("PERFORMANCE\n")
	fmt.Printf("───────────────────────────────────────────────────────────────────\n")
	fmt.Printf("Impressions:       %s\n", formatNumber(m.Impressions))
	fmt.Printf("Clicks:            %s\n", formatNumber(m.Clicks))
	fmt.Printf("Conversions:       %s\n", formatNumber(m.Conversions))
	fmt.Printf("Spend:             %.2f %s\n", m.Spent, c.Currency)
	fmt.Printf("CTR:               %.2f%%\n", m.CTR)
	fmt.Printf("CPM:               %.2f\n", m.CPM)
	if m.CPC > 0 {
		fmt.Printf("CPC:               %.2f\n", m.CPC)
	}
	if m.ROAS > 0 {
		fmt.Printf("ROAS:              %.2f\n", m.ROAS)
	}
	fmt.Printf("\n")

	fmt.Printf("BUDGET\n")
	fmt.Printf("───────────────────────────────────────────────────────────────────\n")
	fmt.Printf("Total:             %.2f %s\n", report.Budget.Total, c.Currency)
	fmt.Printf("Spent:             %.2f %s\n", report.Budget.Spent, c.Currency)
	fmt.Printf("Remaining:         %.2f %s\n", report.Budget.Remaining, c.Currency)
	fmt.Printf("Progress:          %.1f%%\n\n", report.Progress)

	if len(report.Daily) > 0 {
		fmt.Printf("DAILY BREAKDOWN\n")
		fmt.Printf("───────────────────────────────────────────────────────────────────\n")
		fmt.Printf("Date        | Impressions | Clicks |   CTR   |   Spend   |   CPC   \n")
		fmt.Printf("------------|-------------|--------|---------|-----------|---------\n")
		for _, dm := range report.Daily {
			fmt.Printf("%-10s | %11s | %6s | %6.2f%% | %9.2f | %7.2f\n",
				dm.Date.Format("2006-01-02"),
				formatNumber(dm.Impressions),
				formatNumber(dm.Clicks),
				dm.CTR,
				dm.Spend,
				dm.CPC,
			)
		}
		fmt.Printf("\n")
	}

	fmt.Printf("INSIGHTS\n")
	fmt.Printf("───────────────────────────────────────────────────────────────────\n")
	switch {
	case m.Impressions == 0:
		fmt.Printf("No impressions recorded in the period.\n")
	case m.CTR == 0:
		fmt.Printf("No clicks recorded - consider reviewing creatives or targeting.\n")
	case m.CTR < 1.0:
		fmt.Printf("Low CTR (%.2f%%) - consider optimizing creatives or targeting.\n", m.CTR)
	case m.CTR > 3.0:
		fmt.Printf("Excellent CTR (%.2f%%) - campaign performing well.\n", m.CTR)
	default:
		fmt.Printf("CTR (%.2f%%) within normal range.\n", m.CTR)
	}
	if report.Budget.Total > 0 && report.Budget.Remaining == 0 {
		fmt.Printf("Budget exhausted - fund the campaign to resume serving.\n")
	}
	fmt.Printf("═══════════════════════════════════════════════════════════════════\n")
}

// formatNumber adds thousands separators: 1234567 becomes "1,234,567".
func formatNumber(n int64) string {
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}
	result := ""
	for i, digit := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(digit)
	}
	return result
}
