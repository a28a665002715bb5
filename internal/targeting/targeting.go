// Package targeting matches viewer attributes against campaign targeting
// rules and resolves device/geo attributes from the request itself when the
// caller does not supply them.
package targeting

import (
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/jobdeck/adengine/internal/models"
)

// Match reports whether the viewer attributes satisfy the campaign's
// targeting rules. Each configured dimension requires a non-empty set
// intersection; a dimension the campaign leaves empty matches everything.
func Match(rules models.Targeting, attrs models.ViewerAttributes) bool {
	return intersects(rules.Demographics, attrs.Demographics) &&
		intersects(rules.Geo, attrs.Geo) &&
		intersects(rules.Interests, attrs.Interests) &&
		intersects(rules.Behaviors, attrs.Behaviors) &&
		intersects(rules.Devices, attrs.Devices)
}

// intersects is true when the rule set is empty (unconstrained) or shares
// at least one member with the viewer set, case-insensitively.
func intersects(rule, viewer []string) bool {
	if len(rule) == 0 {
		return true
	}
	for _, r := range rule {
		for _, v := range viewer {
			if strings.EqualFold(r, v) {
				return true
			}
		}
	}
	return false
}

// DeviceFromUA maps a User-Agent string onto the device vocabulary used in
// targeting rules.
func DeviceFromUA(uaString string) string {
	if uaString == "" {
		return ""
	}
	u := uasurfer.Parse(uaString)
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DevicePhone:
		return "mobile"
	case uasurfer.DeviceTablet:
		return "tablet"
	default:
		return "other"
	}
}

// IsBot reports whether the User-Agent identifies a crawler. Bot traffic is
// recorded but never billed.
func IsBot(uaString string) bool {
	if uaString == "" {
		return false
	}
	return uasurfer.Parse(uaString).IsBot()
}

// Resolver enriches viewer attributes from the HTTP request. A nil GeoDB
// skips geo resolution.
type Resolver struct {
	Geo *GeoDB
}

// Enrich fills the device and geo dimensions from User-Agent and client IP
// when the caller supplied none, and returns the resolved device type and
// country for event enrichment.
func (r *Resolver) Enrich(req *http.Request, attrs *models.ViewerAttributes) (deviceType, country string) {
	deviceType = DeviceFromUA(req.Header.Get("User-Agent"))
	if ip := clientIP(req); ip != nil && r != nil {
		country = r.Geo.Country(ip)
	}
	if attrs == nil {
		return deviceType, country
	}
	if len(attrs.Devices) == 0 && deviceType != "" {
		attrs.Devices = []string{deviceType}
	}
	if len(attrs.Geo) == 0 && country != "" {
		attrs.Geo = []string{country}
	}
	return deviceType, country
}

// clientIP extracts the originating IP, preferring X-Forwarded-For.
func clientIP(req *http.Request) net.IP {
	ipStr := req.Header.Get("X-Forwarded-For")
	if ipStr != "" {
		// X-Forwarded-For can be comma-separated, take the first hop
		if idx := strings.Index(ipStr, ","); idx != -1 {
			ipStr = strings.TrimSpace(ipStr[:idx])
		}
	} else {
		ipStr = req.RemoteAddr
		if host, _, err := net.SplitHostPort(ipStr); err == nil {
			ipStr = host
		}
	}
	return net.ParseIP(ipStr)
}
