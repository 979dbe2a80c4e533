package assistant

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/autoconversa/go-dealer-chat/internal/vectorstore"
)

// modelsByMake lists the catalog vocabulary the extractor recognizes,
// lowercase and diacritics-free. Model names double as make evidence: "busco
// un corolla" implies Toyota.
var modelsByMake = map[string][]string{
	"toyota":     {"corolla", "camry", "yaris", "rav4", "hilux", "tacoma", "4runner", "land cruiser", "prado", "fortuner"},
	"honda":      {"civic", "accord", "cr-v", "crv", "hr-v", "hrv", "pilot", "fit"},
	"nissan":     {"sentra", "versa", "altima", "kicks", "frontier", "x-trail", "pathfinder"},
	"hyundai":    {"elantra", "accent", "tucson", "santa fe", "sonata", "creta"},
	"kia":        {"rio", "sportage", "sorento", "picanto", "seltos", "cerato"},
	"ford":       {"focus", "fiesta", "escape", "explorer", "ranger", "f-150"},
	"chevrolet":  {"spark", "aveo", "cruze", "equinox", "tahoe", "silverado"},
	"mazda":      {"mazda3", "mazda6", "cx-3", "cx-30", "cx-5", "cx-9"},
	"mitsubishi": {"lancer", "mirage", "outlander", "montero", "l200"},
	"suzuki":     {"swift", "vitara", "jimny", "baleno"},
	"volkswagen": {"jetta", "golf", "tiguan", "polo", "amarok"},
	"jeep":       {"wrangler", "compass", "cherokee", "renegade"},
	"bmw":        {"x1", "x3", "x5", "serie 3", "serie 5"},
	"lexus":      {"rx", "nx", "es", "is"},
}

var makeNames = func() []string {
	names := make([]string, 0, len(modelsByMake))
	for k := range modelsByMake {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}()

var (
	yearRE = regexp.MustCompile(`\b(19[5-9]\d|20[0-4]\d)\b`)

	// Price mentions need either a currency mark or a qualifying phrase so a
	// bare model year is never read as a budget.
	priceRE = regexp.MustCompile(`(menos de|hasta|maximo|bajo|under|below|at most|mas de|desde|minimo|over|above)?\s*\$\s*([\d][\d.,]*)\s*(k|mil)?|(menos de|hasta|maximo|bajo|under|below|at most|mas de|desde|minimo|over|above)\s+([\d][\d.,]*)\s*(k|mil)?`)

	maxQualifiers = map[string]bool{
		"menos de": true, "hasta": true, "maximo": true, "bajo": true,
		"under": true, "below": true, "at most": true,
	}

	foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// fold lowercases and strips diacritics so "más" and "mas" compare equal.
func fold(s string) string {
	out, _, err := transform.String(foldTransformer, strings.ToLower(s))
	if err != nil {
		return strings.ToLower(s)
	}
	return out
}

// ParseSearchQuery extracts structured vehicle predicates from free text.
// The second return is false when the text carries no recognizable signal.
func ParseSearchQuery(text string) (vectorstore.Filter, bool) {
	t := fold(text)
	var f vectorstore.Filter

	// Sorted make order keeps extraction deterministic when a message
	// somehow names two brands.
	for _, mk := range makeNames {
		models := modelsByMake[mk]
		if f.Make == "" && containsWord(t, mk) {
			f.Make = mk
		}
		for _, m := range models {
			if containsWord(t, m) {
				f.Model = m
				f.Make = mk
				break
			}
		}
		if f.Model != "" {
			break
		}
	}

	if m := yearRE.FindString(t); m != "" {
		if y, err := strconv.Atoi(m); err == nil {
			f.YearMin, f.YearMax = y, y
		}
	}

	if m := priceRE.FindStringSubmatch(t); m != nil {
		qualifier, digits, scale := m[1], m[2], m[3]
		if digits == "" {
			qualifier, digits, scale = m[4], m[5], m[6]
		}
		if v := parseAmount(digits, scale); v > 0 {
			if qualifier == "" || maxQualifiers[strings.TrimSpace(qualifier)] {
				f.PriceMax = v
			} else {
				f.PriceMin = v
			}
		}
	}

	return f, !f.Empty()
}

// containsWord matches name as a whole word (or phrase) inside t.
func containsWord(t, name string) bool {
	idx := 0
	for {
		i := strings.Index(t[idx:], name)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(name)
		beforeOK := start == 0 || !isWordByte(t[start-1])
		afterOK := end == len(t) || !isWordByte(t[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

// parseAmount reads "15000", "15,000", "15.000" or "15k"/"15 mil". Separator
// runs are treated as thousands marks; the catalog has no cent precision.
func parseAmount(digits, scale string) float64 {
	clean := strings.NewReplacer(",", "", ".", "").Replace(digits)
	v, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		return 0
	}
	if scale != "" {
		v *= 1000
	}
	return v
}
