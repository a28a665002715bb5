// Seeds Postgres with placements, campaigns and creatives for local
// development, then asks the running server to reload.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/jobdeck/adengine/internal/config"
	"github.com/jobdeck/adengine/internal/db"
	"github.com/jobdeck/adengine/internal/models"
	"github.com/jobdeck/adengine/internal/observability"
)

var (
	campaigns    = flag.Int("campaigns", 20, "number of campaigns")
	creativesPer = flag.Int("creatives", 2, "creatives per campaign")
	seed         = flag.Int64("seed", time.Now().UnixNano(), "rng seed")
	skipReload   = flag.Bool("skip-reload", false, "skip automatic reload after data insertion")
)

func main() {
	flag.Parse()

	logger, err := observability.InitLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	cfg := config.Load()
	pg, err := db.InitPostgres(cfg.PostgresDSN, cfg.DBMaxOpenConns, cfg.DBMaxIdleConns, cfg.DBConnMaxLifetime, cfg.DBConnMaxIdleTime)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	r := rand.New(rand.NewSource(*seed))

	existing, err := pg.LoadPlacements()
	if err != nil {
		logger.Fatal("load placements", zap.Error(err))
	}
	if len(existing) == 0 {
		for _, p := range demoPlacements() {
			if err := pg.InsertPlacement(p); err != nil {
				logger.Fatal("insert placement", zap.Error(err))
			}
		}
	}

	for i := 0; i < *campaigns; i++ {
		c := randomCampaign(r)
		if err := pg.InsertCampaign(&c); err != nil {
			logger.Fatal("insert campaign", zap.Error(err))
		}
		for j := 0; j < *creativesPer; j++ {
			cr := randomCreative(r, c.ID, j == 0)
			if err := pg.InsertCreative(&cr); err != nil {
				logger.Fatal("insert creative", zap.Error(err))
			}
		}
	}

	fmt.Println("fake data inserted")

	if !*skipReload {
		if err := callReloadEndpoint(&cfg); err != nil {
			logger.Error("reload endpoint failed", zap.Error(err))
			fmt.Fprintf(os.Stderr, "Warning: failed to reload server data: %v\n", err)
		} else {
			fmt.Println("server data reloaded")
		}
	}
}

func demoPlacements() []models.Placement {
	return []models.Placement{
		{ID: "homepage", Name: "Homepage Hero", Multiplier: 2.0, Width: 728, Height: 90},
		{ID: "search_results", Name: "Search Results", Multiplier: 1.5, Width: 728, Height: 90},
		{ID: "job_detail", Name: "Job Detail", Multiplier: 1.2, Width: 300, Height: 250},
		{ID: "sidebar", Name: "Sidebar", Multiplier: 1.0, Width: 160, Height: 600,
			Types: []string{models.TypeSidebar, models.TypeBanner}},
	}
}

var campaignTypes = []string{models.TypeBanner, models.TypeSidebar, models.TypeNative, models.TypeVideo}
var pricingModes = []string{models.PricingCPM, models.PricingCPC, models.PricingFlat}
var geoPools = [][]string{nil, {"US"}, {"DE", "AT", "CH"}, {"GB", "IE"}}

func fakeCampaignName(r *rand.Rand) string {
	seasons := []string{"Spring", "Summer", "Fall", "Winter", "Holiday"}
	goals := []string{"Hiring Push", "Engineering Drive", "Sales Expansion", "Graduate Intake"}
	return fmt.Sprintf("%s %s %d", seasons[r.Intn(len(seasons))], goals[r.Intn(len(goals))], r.Intn(100))
}

func randomCampaign(r *rand.Rand) models.Campaign {
	// start in the past so active campaigns serve immediately
	start := time.Now().Add(-time.Duration(r.Intn(72)) * time.Hour)
	end := start.Add(time.Duration(r.Intn(21)+7) * 24 * time.Hour)
	c := models.Campaign{
		ClientID:    r.Intn(10) + 1,
		Name:        fakeCampaignName(r),
		Type:        campaignTypes[r.Intn(len(campaignTypes))],
		PricingMode: pricingModes[r.Intn(len(pricingModes))],
		Status:      models.StatusActive,
		Currency:    "USD",
		BudgetTotal: float64(r.Intn(8000) + 2000),
		StartDate:   start,
		EndDate:     end,
		Priority:    r.Intn(10),
		Targeting:   models.Targeting{Geo: geoPools[r.Intn(len(geoPools))]},
	}
	if r.Intn(5) == 0 {
		c.Status = models.StatusDraft
	}
	return c
}

func randomCreative(r *rand.Rand, campaignID int, primary bool) models.Creative {
	posting := r.Intn(10000) + 1
	return models.Creative{
		CampaignID:     campaignID,
		ContentID:      posting,
		AssetURL:       fmt.Sprintf("https://cdn.jobdeck.example/creatives/%d.png", r.Intn(10000)),
		DestinationURL: fmt.Sprintf("https://jobs.example.com/postings/%d", posting),
		Width:          300,
		Height:         250,
		Primary:        primary,
		Active:         true,
	}
}

func callReloadEndpoint(cfg *config.Config) error {
	reloadURL := fmt.Sprintf("http://localhost:%s/reload", cfg.Port)
	req, err := http.NewRequest("POST", reloadURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	return nil
}
