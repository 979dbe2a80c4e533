package guard

import (
	"strings"

	"github.com/autoconversa/go-dealer-chat/internal/domain"
)

// countryByPrefix maps E.164 calling-code prefixes to ISO 3166-1 alpha-2
// codes, longest prefix wins. The table covers the markets the product
// serves plus the large NANP overlays; it is not a full ITU registry.
var countryByPrefix = map[string]string{
	// NANP: "1" is the US/CA default, Caribbean overlays are longer and win.
	"1":    "US",
	"1809": "DO",
	"1829": "DO",
	"1849": "DO",
	"1787": "PR",
	"1939": "PR",
	"1876": "JM",
	"1868": "TT",

	"52":  "MX",
	"502": "GT",
	"503": "SV",
	"504": "HN",
	"505": "NI",
	"506": "CR",
	"507": "PA",
	"509": "HT",
	"51":  "PE",
	"53":  "CU",
	"54":  "AR",
	"55":  "BR",
	"56":  "CL",
	"57":  "CO",
	"58":  "VE",
	"591": "BO",
	"593": "EC",
	"595": "PY",
	"598": "UY",

	"34": "ES",
	"33": "FR",
	"39": "IT",
	"44": "GB",
	"49": "DE",
	"86": "CN",
	"91": "IN",
}

const maxPrefixLen = 4

// CountryFromPhone derives an ISO country code from an E.164 phone number
// ("+18095550001" or "18095550001"). Returns "" when no prefix matches.
func CountryFromPhone(msisdn string) string {
	digits := strings.TrimPrefix(strings.TrimSpace(msisdn), "+")
	if digits == "" {
		return ""
	}
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return ""
		}
	}
	n := len(digits)
	if n > maxPrefixLen {
		n = maxPrefixLen
	}
	for l := n; l > 0; l-- {
		if c, ok := countryByPrefix[digits[:l]]; ok {
			return c
		}
	}
	return ""
}

// GeoFilter admits senders by derived country. An empty allow-list admits
// everyone; web senders always pass since a widget id carries no phone.
type GeoFilter struct {
	allowed map[string]struct{}
}

// NewGeoFilter builds a filter from ISO country codes (case-insensitive).
func NewGeoFilter(countries []string) *GeoFilter {
	return &GeoFilter{allowed: toSet(countries)}
}

// Allowed reports whether the sender may enter the pipeline. With an
// allow-list in force a WhatsApp number whose country cannot be derived is
// rejected rather than waved through.
func (g *GeoFilter) Allowed(channel, channelUserID string) bool {
	return allowedIn(g.allowed, channel, channelUserID)
}

// AllowedFor applies a tenant allow-list over the filter's own; an empty
// override inherits the deployment-wide list.
func (g *GeoFilter) AllowedFor(channel, channelUserID string, override []string) bool {
	set := toSet(override)
	if set == nil {
		set = g.allowed
	}
	return allowedIn(set, channel, channelUserID)
}

func allowedIn(set map[string]struct{}, channel, channelUserID string) bool {
	if set == nil {
		return true
	}
	if channel != domain.ChannelWhatsApp {
		return true
	}
	country := CountryFromPhone(channelUserID)
	if country == "" {
		return false
	}
	_, ok := set[country]
	return ok
}

func toSet(countries []string) map[string]struct{} {
	if len(countries) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(countries))
	for _, c := range countries {
		c = strings.ToUpper(strings.TrimSpace(c))
		if c != "" {
			set[c] = struct{}{}
		}
	}
	if len(set) == 0 {
		return nil
	}
	return set
}
