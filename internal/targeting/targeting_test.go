package targeting

import (
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/jobdeck/adengine/internal/models"
)

const desktopUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
const phoneUA = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1"

func TestMatch(t *testing.T) {
	cases := []struct {
		name  string
		rules models.Targeting
		attrs models.ViewerAttributes
		want  bool
	}{
		{"empty rules match all", models.Targeting{}, models.ViewerAttributes{}, true},
		{
			"geo intersect",
			models.Targeting{Geo: []string{"US", "CA"}},
			models.ViewerAttributes{Geo: []string{"us"}},
			true,
		},
		{
			"geo miss",
			models.Targeting{Geo: []string{"US"}},
			models.ViewerAttributes{Geo: []string{"DE"}},
			false,
		},
		{
			"constrained dimension with absent attributes fails",
			models.Targeting{Interests: []string{"engineering"}},
			models.ViewerAttributes{},
			false,
		},
		{
			"all dimensions must hold",
			models.Targeting{Geo: []string{"US"}, Devices: []string{"mobile"}},
			models.ViewerAttributes{Geo: []string{"US"}, Devices: []string{"desktop"}},
			false,
		},
		{
			"multi dimension match",
			models.Targeting{Geo: []string{"US"}, Devices: []string{"mobile"}, Interests: []string{"sales", "engineering"}},
			models.ViewerAttributes{Geo: []string{"US"}, Devices: []string{"mobile"}, Interests: []string{"engineering"}},
			true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Match(tc.rules, tc.attrs); got != tc.want {
				t.Fatalf("Match = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestDeviceFromUA(t *testing.T) {
	if got := DeviceFromUA(desktopUA); got != "desktop" {
		t.Fatalf("desktop UA = %q", got)
	}
	if got := DeviceFromUA(phoneUA); got != "mobile" {
		t.Fatalf("phone UA = %q", got)
	}
	if got := DeviceFromUA(""); got != "" {
		t.Fatalf("empty UA = %q", got)
	}
}

func TestEnrichFillsMissingDimensions(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "geo.json")
	if err := os.WriteFile(path, []byte(`[{"net":"203.0.113.0/24","country":"DE"}]`), 0o600); err != nil {
		t.Fatal(err)
	}
	geo, err := OpenGeoDB(path)
	if err != nil {
		t.Fatalf("open geo: %v", err)
	}
	defer func() { _ = geo.Close() }()

	r := &Resolver{Geo: geo}
	req := httptest.NewRequest("GET", "/ads", nil)
	req.Header.Set("User-Agent", phoneUA)
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	attrs := models.ViewerAttributes{}
	device, country := r.Enrich(req, &attrs)
	if device != "mobile" || country != "DE" {
		t.Fatalf("device=%q country=%q", device, country)
	}
	if len(attrs.Devices) != 1 || attrs.Devices[0] != "mobile" {
		t.Fatalf("devices = %v", attrs.Devices)
	}
	if len(attrs.Geo) != 1 || attrs.Geo[0] != "DE" {
		t.Fatalf("geo = %v", attrs.Geo)
	}

	// caller-supplied attributes are preserved
	attrs = models.ViewerAttributes{Geo: []string{"US"}}
	_, _ = r.Enrich(req, &attrs)
	if attrs.Geo[0] != "US" {
		t.Fatalf("caller geo overwritten: %v", attrs.Geo)
	}
}
