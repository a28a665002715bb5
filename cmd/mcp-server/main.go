// The MCP server exposes read-only campaign insight tools over stdio so
// agent integrations can inspect inventory, budgets and performance without
// touching the serving API.
package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/analytics"
	"github.com/jobdeck/adengine/internal/db"
	"github.com/jobdeck/adengine/internal/ledger"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
)

type ListCampaignsInput struct {
	Status   string `json:"status,omitempty"`
	ClientID int    `json:"client_id,omitempty"`
}

type CampaignSummary struct {
	ID          int     `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	PricingMode string  `json:"pricing_mode"`
	Status      string  `json:"status"`
	BudgetTotal float64 `json:"budget_total"`
	Spent       float64 `json:"spent"`
	Remaining   float64 `json:"remaining"`
	StartDate   string  `json:"start_date"`
	EndDate     string  `json:"end_date"`
}

type ListCampaignsOutput struct {
	Campaigns []CampaignSummary `json:"campaigns"`
}

type CampaignAnalyticsInput struct {
	CampaignID int `json:"campaign_id"`
	Days       int `json:"days,omitempty"`
}

type CampaignAnalyticsOutput struct {
	Report *analytics.Report `json:"report"`
}

type ListPlacementsOutput struct {
	Placements []models.Placement `json:"placements"`
}

// InsightServer holds the read-side dependencies for the MCP tools.
type InsightServer struct {
	store      models.CampaignStore
	ledger     ledger.Ledger
	aggregator *analytics.Aggregator
	logger     *zap.Logger
}

// ListCampaigns returns campaigns with their live budget balances,
// optionally filtered by status and client.
func (s *InsightServer) ListCampaigns(ctx context.Context, req *mcp.CallToolRequest, input ListCampaignsInput) (*mcp.CallToolResult, ListCampaignsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	campaigns := s.store.GetAllCampaigns()
	ids := make([]int, 0, len(campaigns))
	for i := range campaigns {
		ids = append(ids, campaigns[i].ID)
	}
	remaining, err := s.ledger.RemainingBatch(ctx, ids)
	if err != nil {
		s.logger.Warn("ledger batch read failed", zap.Error(err))
		remaining = map[int]float64{}
	}

	out := ListCampaignsOutput{Campaigns: []CampaignSummary{}}
	for i := range campaigns {
		c := &campaigns[i]
		if input.Status != "" && c.Status != input.Status {
			continue
		}
		if input.ClientID != 0 && c.ClientID != input.ClientID {
			continue
		}
		rem := remaining[c.ID]
		out.Campaigns = append(out.Campaigns, CampaignSummary{
			ID:          c.ID,
			Name:        c.Name,
			Type:        c.Type,
			PricingMode: c.PricingMode,
			Status:      c.Status,
			BudgetTotal: c.BudgetTotal,
			Spent:       c.BudgetTotal - rem,
			Remaining:   rem,
			StartDate:   c.StartDate.Format(time.RFC3339),
			EndDate:     c.EndDate.Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

// CampaignAnalytics returns the full performance report for one campaign.
func (s *InsightServer) CampaignAnalytics(ctx context.Context, req *mcp.CallToolRequest, input CampaignAnalyticsInput) (*mcp.CallToolResult, CampaignAnalyticsOutput, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	report, err := s.aggregator.CampaignReport(ctx, input.CampaignID, input.Days)
	if err != nil {
		return nil, CampaignAnalyticsOutput{}, fmt.Errorf("campaign report: %w", err)
	}
	return nil, CampaignAnalyticsOutput{Report: report}, nil
}

// ListPlacements returns the configured ad slots.
func (s *InsightServer) ListPlacements(ctx context.Context, req *mcp.CallToolRequest, input struct{}) (*mcp.CallToolResult, ListPlacementsOutput, error) {
	return nil, ListPlacementsOutput{Placements: s.store.GetAllPlacements()}, nil
}

func main() {
	// Stdio carries the MCP protocol, so all logging goes to stderr.
	logger, err := observability.InitLoggerWithService("adengine-mcp")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger.Info("Starting adengine MCP server")

	postgresDSN := os.Getenv("POSTGRES_DSN")
	if postgresDSN == "" {
		logger.Fatal("POSTGRES_DSN environment variable is required")
	}
	pg, err := db.InitPostgres(postgresDSN, 10, 5, 30*time.Minute, 1*time.Minute)
	if err != nil {
		logger.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer pg.Close()

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}
	redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
	defer redisClient.Close()
	logger.Info("Connected to Redis", zap.String("addr", redisAddr))

	clickhouseDSN := os.Getenv("CLICKHOUSE_DSN")
	if clickhouseDSN == "" {
		clickhouseDSN = "clickhouse://default:@localhost:9000/default"
	}
	analyticsSvc, err := analytics.InitClickHouse(clickhouseDSN, analytics.PoolConfig{MaxOpenConns: 25}, observability.NewNoOpRegistry())
	if err != nil {
		logger.Warn("ClickHouse unavailable, analytics tools degraded", zap.Error(err))
		analyticsSvc = nil
	} else {
		defer analyticsSvc.Close()
	}

	store := models.NewInMemoryCampaignStore()
	if err := db.LoadAll(pg, store); err != nil {
		logger.Fatal("Failed to load campaign data", zap.Error(err))
	}

	budgets := ledger.NewRedisLedger(redisClient)
	insight := &InsightServer{
		store:      store,
		ledger:     budgets,
		aggregator: analytics.NewAggregator(analyticsSvc, budgets, store),
		logger:     logger,
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "adengine",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_campaigns",
		Description: "List ad campaigns with live budget balances, optionally filtered by status or client",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"status": map[string]interface{}{
					"type":        "string",
					"enum":        []string{"draft", "pending", "active", "paused", "completed", "cancelled"},
					"description": "Filter by lifecycle status (optional)",
				},
				"client_id": map[string]interface{}{
					"type":        "integer",
					"description": "Filter by owning client ID (optional)",
				},
			},
		},
	}, insight.ListCampaigns)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "campaign_analytics",
		Description: "Get the performance report for a campaign: CTR, CPC, CPM, ROAS, budget and progress",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"campaign_id": map[string]interface{}{
					"type":        "integer",
					"description": "Campaign ID",
				},
				"days": map[string]interface{}{
					"type":        "integer",
					"description": "Trailing window in days (optional, defaults to 30)",
				},
			},
			"required": []string{"campaign_id"},
		},
	}, insight.CampaignAnalytics)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_placements",
		Description: "List the configured ad slots with their dimensions and allowed campaign types",
		InputSchema: map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{},
		},
	}, insight.ListPlacements)

	stdioTransport := &mcp.StdioTransport{}
	var logBuffer bytes.Buffer
	loggingTransport := &mcp.LoggingTransport{
		Transport: stdioTransport,
		Writer:    &logBuffer,
	}

	logger.Info("MCP server running via stdio")
	if err := server.Run(context.Background(), loggingTransport); err != nil {
		logger.Fatal("Server error", zap.Error(err), zap.String("mcp_logs", logBuffer.String()))
	}
}
