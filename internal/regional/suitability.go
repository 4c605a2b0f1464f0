// Package regional holds Agropal's static agronomy data: which crops are
// conventionally grown in which Nigerian agro-ecological zone, and reference
// notes on common crop diseases.
//
// Nothing here touches the database. The tables are compiled in and read-only.
package regional

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Zone is a Nigerian agro-ecological zone.
type Zone string

const (
	ZoneSudanSahel    Zone = "sudan_sahel_savanna"
	ZoneGuineaSavanna Zone = "guinea_savanna"
	ZoneRainforest    Zone = "rainforest"
	ZoneCoastal       Zone = "coastal_swamp"
)

// DisplayName returns the zone as shown to farmers.
func (z Zone) DisplayName() string {
	switch z {
	case ZoneSudanSahel:
		return "Sudan-Sahel savanna"
	case ZoneGuineaSavanna:
		return "Guinea savanna"
	case ZoneRainforest:
		return "Rainforest"
	case ZoneCoastal:
		return "Coastal swamp"
	}
	return string(z)
}

var stateZones = map[string]Zone{
	// Far north
	"sokoto": ZoneSudanSahel, "kebbi": ZoneSudanSahel, "zamfara": ZoneSudanSahel,
	"katsina": ZoneSudanSahel, "kano": ZoneSudanSahel, "jigawa": ZoneSudanSahel,
	"yobe": ZoneSudanSahel, "borno": ZoneSudanSahel,

	// Middle belt
	"kaduna": ZoneGuineaSavanna, "niger": ZoneGuineaSavanna, "kwara": ZoneGuineaSavanna,
	"kogi": ZoneGuineaSavanna, "benue": ZoneGuineaSavanna, "plateau": ZoneGuineaSavanna,
	"nasarawa": ZoneGuineaSavanna, "fct": ZoneGuineaSavanna, "bauchi": ZoneGuineaSavanna,
	"gombe": ZoneGuineaSavanna, "adamawa": ZoneGuineaSavanna, "taraba": ZoneGuineaSavanna,

	// South west, south east, south south (inland)
	"lagos": ZoneRainforest, "ogun": ZoneRainforest, "oyo": ZoneRainforest,
	"osun": ZoneRainforest, "ondo": ZoneRainforest, "ekiti": ZoneRainforest,
	"edo": ZoneRainforest, "delta": ZoneRainforest, "anambra": ZoneRainforest,
	"enugu": ZoneRainforest, "ebonyi": ZoneRainforest, "imo": ZoneRainforest,
	"abia": ZoneRainforest,

	// Niger delta and coast
	"rivers": ZoneCoastal, "bayelsa": ZoneCoastal, "akwa ibom": ZoneCoastal,
	"cross river": ZoneCoastal,
}

var stateAliases = map[string]string{
	"abuja":                     "fct",
	"federal capital territory": "fct",
	"akwa-ibom":                 "akwa ibom",
	"akwaibom":                  "akwa ibom",
	"cross-river":               "cross river",
	"nassarawa":                 "nasarawa",
}

var zoneCrops = map[Zone][]string{
	ZoneSudanSahel: {
		"millet", "sorghum", "cowpea", "groundnut", "maize", "sesame",
		"cotton", "onion", "tomato", "pepper", "wheat", "rice",
	},
	ZoneGuineaSavanna: {
		"maize", "sorghum", "yam", "cassava", "rice", "soybean", "cowpea",
		"groundnut", "millet", "tomato", "pepper", "sesame",
	},
	ZoneRainforest: {
		"cassava", "yam", "cocoyam", "maize", "plantain", "banana", "cocoa",
		"oil palm", "kola", "rice", "pepper", "tomato", "okra",
	},
	ZoneCoastal: {
		"cassava", "plantain", "banana", "oil palm", "rice", "cocoyam",
		"yam", "maize", "coconut", "pepper",
	},
}

var cropAliases = map[string]string{
	"corn":        "maize",
	"guinea corn": "sorghum",
	"groundnuts":  "groundnut",
	"peanut":      "groundnut",
	"beans":       "cowpea",
	"soya":        "soybean",
	"soybeans":    "soybean",
	"palm":        "oil palm",
	"oilpalm":     "oil palm",
	"chilli":      "pepper",
}

// knownCrops is every crop that appears in at least one zone.
var knownCrops = func() map[string]bool {
	m := make(map[string]bool)
	for _, crops := range zoneCrops {
		for _, c := range crops {
			m[c] = true
		}
	}
	return m
}()

var titleCaser = cases.Title(language.English)

// NormalizeCrop lowercases and resolves common aliases ("corn" -> "maize").
func NormalizeCrop(crop string) string {
	c := strings.ToLower(strings.TrimSpace(crop))
	if alias, ok := cropAliases[c]; ok {
		return alias
	}
	return c
}

// NormalizeState lowercases and resolves aliases ("Abuja" -> "fct").
func NormalizeState(state string) string {
	s := strings.ToLower(strings.TrimSpace(state))
	s = strings.TrimSuffix(s, " state")
	if alias, ok := stateAliases[s]; ok {
		return alias
	}
	return s
}

// DisplayCrop title-cases a crop name for reports and messages.
func DisplayCrop(crop string) string {
	return titleCaser.String(strings.TrimSpace(crop))
}

// DisplayState formats a normalized state name for messages.
func DisplayState(state string) string {
	s := NormalizeState(state)
	if s == "fct" {
		return "FCT"
	}
	return titleCaser.String(s)
}

// ZoneForState returns the zone a state belongs to.
func ZoneForState(state string) (Zone, bool) {
	z, ok := stateZones[NormalizeState(state)]
	return z, ok
}

// CropsForZone returns the crops conventionally grown in a zone, sorted.
func CropsForZone(z Zone) []string {
	crops := append([]string(nil), zoneCrops[z]...)
	sort.Strings(crops)
	return crops
}

// Suitability is the advisory verdict for a crop/state pair.
type Suitability struct {
	Known    bool // false when the crop or state is not in the table
	Suitable bool // meaningful only when Known
	Zone     Zone
	Message  string
}

// Warning reports whether the verdict should be logged as a context warning.
func (s Suitability) Warning() bool {
	return s.Known && !s.Suitable
}

// CheckSuitability looks the pair up in the static table. Unknown crops or
// states yield Known=false: no opinion, never an error.
func CheckSuitability(crop, state string) Suitability {
	c := NormalizeCrop(crop)
	zone, ok := ZoneForState(state)
	if c == "" || !ok || !knownCrops[c] {
		return Suitability{}
	}

	for _, grown := range zoneCrops[zone] {
		if grown == c {
			return Suitability{Known: true, Suitable: true, Zone: zone}
		}
	}

	return Suitability{
		Known:    true,
		Suitable: false,
		Zone:     zone,
		Message: fmt.Sprintf("%s is not commonly grown in %s (%s zone)",
			DisplayCrop(c), DisplayState(state), zone.DisplayName()),
	}
}
