package domain

// Domestic region identifiers in the countries resource
const (
	MainlandID CountryID = "1"
	MadeiraID  CountryID = "2"
	AzoresID   CountryID = "3"
)

var azoresPrefixes = prefixSet(
	"9930", "9950", "9940", "9850", "9800", "9700", "9760", "9900", "9880",
)

var madeiraPrefixes = prefixSet(
	"9000", "9004", "9020", "9024", "9030", "9050", "9054", "9060", "9064",
	"9100", "9125", "9135", "9200", "9225", "9230", "9240", "9270", "9300",
	"9304", "9325", "9350", "9360", "9370", "9374", "9385",
)

func prefixSet(prefixes ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(prefixes))
	for _, p := range prefixes {
		set[p] = struct{}{}
	}
	return set
}

// InferDomesticRegion maps a 4-digit postcode prefix to the domestic region
// it belongs to. Prefixes outside both archipelago sets are mainland.
func InferDomesticRegion(prefix string) CountryID {
	if _, ok := azoresPrefixes[prefix]; ok {
		return AzoresID
	}
	if _, ok := madeiraPrefixes[prefix]; ok {
		return MadeiraID
	}
	return MainlandID
}

// AzoresPrefixes returns the archipelago postcode prefixes mapped to AzoresID
func AzoresPrefixes() []string {
	return keys(azoresPrefixes)
}

// MadeiraPrefixes returns the archipelago postcode prefixes mapped to MadeiraID
func MadeiraPrefixes() []string {
	return keys(madeiraPrefixes)
}

func keys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	return out
}
