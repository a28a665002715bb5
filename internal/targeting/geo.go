package targeting

import (
	"encoding/json"
	"net"
	"os"

	"github.com/oschwald/geoip2-golang"
)

// GeoDB resolves client IPs to country codes using a MaxMind database,
// with a JSON CIDR list as a fallback for environments without the mmdb.
type GeoDB struct {
	db       *geoip2.Reader
	fallback []geoRecord
}

type geoRecord struct {
	net     *net.IPNet
	country string
}

// OpenGeoDB opens the database at path. When the file is not a valid
// MaxMind database it is parsed as a JSON array of {net, country} entries.
func OpenGeoDB(path string) (*GeoDB, error) {
	g := &GeoDB{}
	db, err := geoip2.Open(path)
	if err == nil {
		g.db = db
		return g, nil
	}

	data, jerr := os.ReadFile(path)
	if jerr != nil {
		return nil, err
	}
	var entries []struct {
		Net     string `json:"net"`
		Country string `json:"country"`
	}
	if jerr = json.Unmarshal(data, &entries); jerr != nil {
		return nil, err
	}
	for _, e := range entries {
		if _, n, perr := net.ParseCIDR(e.Net); perr == nil {
			g.fallback = append(g.fallback, geoRecord{net: n, country: e.Country})
		}
	}
	return g, nil
}

// Country returns the ISO country code for the given IP, or an empty string
// when the IP is unknown or the database is absent.
func (g *GeoDB) Country(ip net.IP) string {
	if g == nil {
		return ""
	}
	if g.db != nil {
		rec, err := g.db.Country(ip)
		if err == nil {
			return rec.Country.IsoCode
		}
	}
	for _, r := range g.fallback {
		if r.net.Contains(ip) {
			return r.country
		}
	}
	return ""
}

// Close releases resources associated with the database.
func (g *GeoDB) Close() error {
	if g != nil && g.db != nil {
		return g.db.Close()
	}
	return nil
}
