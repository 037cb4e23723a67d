package symbols

import (
	"fmt"
	"strings"
	"time"
)

// Tier identifies a symbol refresh group. Every symbol belongs to exactly
// one tier; each tier carries its own refresh interval.
type Tier string

const (
	TierPremium  Tier = "premium"
	TierStandard Tier = "standard"
	TierExtended Tier = "extended"
)

// Tiers returns all tiers in their fixed evaluation order.
func Tiers() []Tier {
	return []Tier{TierPremium, TierStandard, TierExtended}
}

func (t Tier) String() string {
	return string(t)
}

// Default symbol universe: premium symbols are the most traded and most
// volatile, standard covers the remaining blue chips and sector ETFs,
// extended holds thematic ETFs and niche sectors.
var (
	defaultPremiumSymbols = []string{
		// Major indices
		"SPY", "QQQ", "DAX",
		// Mega cap tech
		"AAPL", "MSFT", "GOOGL", "AMZN", "META", "TSLA", "NVDA", "NFLX", "AMD",
		// Top financials
		"JPM", "V", "MA",
		// International tech
		"BABA", "TSM", "ADBE",
		// Enterprise software
		"ORCL", "CRM",
	}

	defaultStandardSymbols = []string{
		"FXI",
		"WFC", "GS",
		"JNJ", "PFE", "UNH", "ABT", "TMO",
		"WMT", "HD", "MCD", "NKE", "SBUX", "KO", "PG",
		"XOM", "CVX", "COP",
		"DIS", "CMCSA",
		"CSCO", "INTC", "QCOM",
		"IWM", "DIA", "VTI", "XLF", "XLK", "XLE",
		"NVO", "ASML",
		"SMH", "SOXX",
		"PYPL", "SQ", "COIN",
		"SHOP", "UBER", "LYFT",
	}

	defaultExtendedSymbols = []string{
		"ARKK",
		"TLT", "GLD", "SLV",
		"XBI", "IBB",
		"TAN", "ICLN",
		"XRT",
		"XHB", "ITB",
		"KRE",
		"SPOT", "ROKU",
		"NET", "CRWD", "ZS",
	}

	// Index subset used by the end-of-day snapshot and the historical
	// reload jobs.
	indexSymbols = []string{"SPY", "QQQ", "DAX", "FXI"}
)

// Registry is the static mapping between symbols and tiers, fixed at
// startup. Symbol order within a tier is the configured order and never
// changes, so refresh cycles attempt symbols deterministically.
type Registry struct {
	symbols   map[Tier][]string
	intervals map[Tier]time.Duration
	bySymbol  map[string]Tier
}

// NewRegistry builds a registry from per-tier symbol lists and refresh
// intervals. Nil symbol lists fall back to the built-in universe.
func NewRegistry(premium, standard, extended []string, premiumInterval, standardInterval, extendedInterval time.Duration) (*Registry, error) {
	if premium == nil {
		premium = defaultPremiumSymbols
	}
	if standard == nil {
		standard = defaultStandardSymbols
	}
	if extended == nil {
		extended = defaultExtendedSymbols
	}

	intervals := map[Tier]time.Duration{
		TierPremium:  premiumInterval,
		TierStandard: standardInterval,
		TierExtended: extendedInterval,
	}
	for tier, interval := range intervals {
		if interval <= 0 {
			return nil, fmt.Errorf("refresh interval for tier %s must be positive, got %v", tier, interval)
		}
	}

	r := &Registry{
		symbols:   make(map[Tier][]string, 3),
		intervals: intervals,
		bySymbol:  make(map[string]Tier),
	}

	lists := map[Tier][]string{
		TierPremium:  premium,
		TierStandard: standard,
		TierExtended: extended,
	}
	for _, tier := range Tiers() {
		for _, raw := range lists[tier] {
			symbol := strings.ToUpper(strings.TrimSpace(raw))
			if symbol == "" {
				continue
			}
			if existing, ok := r.bySymbol[symbol]; ok {
				return nil, fmt.Errorf("symbol %s assigned to both %s and %s tiers", symbol, existing, tier)
			}
			r.bySymbol[symbol] = tier
			r.symbols[tier] = append(r.symbols[tier], symbol)
		}
	}

	return r, nil
}

// Symbols returns the tier's symbols in their stable configured order.
func (r *Registry) Symbols(tier Tier) []string {
	src := r.symbols[tier]
	out := make([]string, len(src))
	copy(out, src)
	return out
}

// TierOf returns the tier a symbol belongs to.
func (r *Registry) TierOf(symbol string) (Tier, bool) {
	tier, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return tier, ok
}

// Contains reports whether the symbol is part of the configured universe.
func (r *Registry) Contains(symbol string) bool {
	_, ok := r.TierOf(symbol)
	return ok
}

// RefreshInterval returns the tier's configured refresh interval.
func (r *Registry) RefreshInterval(tier Tier) time.Duration {
	return r.intervals[tier]
}

// CacheTTL returns the cache TTL for a tier. The TTL is derived from the
// refresh interval rather than configured separately, so the two can
// never drift apart.
func (r *Registry) CacheTTL(tier Tier) time.Duration {
	return r.intervals[tier]
}

// AllSymbols returns the full universe, premium tier first.
func (r *Registry) AllSymbols() []string {
	out := make([]string, 0, len(r.bySymbol))
	for _, tier := range Tiers() {
		out = append(out, r.symbols[tier]...)
	}
	return out
}

// IndexSymbols returns the index subset refreshed by the end-of-day
// snapshot job, restricted to symbols present in the universe.
func (r *Registry) IndexSymbols() []string {
	out := make([]string, 0, len(indexSymbols))
	for _, symbol := range indexSymbols {
		if r.Contains(symbol) {
			out = append(out, symbol)
		}
	}
	return out
}

// Counts returns per-tier symbol counts for startup logging.
func (r *Registry) Counts() map[Tier]int {
	counts := make(map[Tier]int, 3)
	for _, tier := range Tiers() {
		counts[tier] = len(r.symbols[tier])
	}
	return counts
}
