package regional

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCheckSuitability(t *testing.T) {
	tests := []struct {
		name         string
		crop, state  string
		wantKnown    bool
		wantSuitable bool
		wantZone     Zone
	}{
		{"cassava in Lagos", "cassava", "Lagos", true, true, ZoneRainforest},
		{"case and whitespace", "  Cassava ", "LAGOS", true, true, ZoneRainforest},
		{"alias corn", "corn", "Kano", true, true, ZoneSudanSahel},
		{"state suffix", "yam", "Benue State", true, true, ZoneGuineaSavanna},
		{"Abuja alias", "maize", "Abuja", true, true, ZoneGuineaSavanna},
		{"cocoa in Sokoto is a mismatch", "cocoa", "Sokoto", true, false, ZoneSudanSahel},
		{"cassava in Kano is a mismatch", "cassava", "Kano", true, false, ZoneSudanSahel},
		{"unknown crop", "quinoa", "Lagos", false, false, ""},
		{"unknown state", "cassava", "Atlantis", false, false, ""},
		{"empty crop", "", "Lagos", false, false, ""},
		{"empty state", "cassava", "", false, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CheckSuitability(tt.crop, tt.state)
			assert.Equal(t, tt.wantKnown, got.Known)
			assert.Equal(t, tt.wantSuitable, got.Suitable)
			assert.Equal(t, tt.wantZone, got.Zone)
			assert.Equal(t, tt.wantKnown && !tt.wantSuitable, got.Warning())
		})
	}
}

func TestCheckSuitability_Message(t *testing.T) {
	got := CheckSuitability("cocoa", "sokoto")
	assert.Equal(t, "Cocoa is not commonly grown in Sokoto (Sudan-Sahel savanna zone)", got.Message)

	got = CheckSuitability("cotton", "fct")
	assert.Equal(t, "Cotton is not commonly grown in FCT (Guinea savanna zone)", got.Message)
}

func TestEveryStateHasCrops(t *testing.T) {
	for state, zone := range stateZones {
		assert.NotEmpty(t, CropsForZone(zone), "state %s", state)
	}
	assert.Len(t, stateZones, 37)
}

func TestDiseases(t *testing.T) {
	all := Diseases("", "")
	assert.Len(t, all, len(diseases))

	cassava := Diseases("Cassava", "")
	assert.Len(t, cassava, 2)
	assert.Equal(t, "Cassava Mosaic Disease", cassava[0].Name)

	// Nationwide entries plus those reported in Kano.
	kanoTomato := Diseases("tomato", "Kano")
	names := make([]string, 0, len(kanoTomato))
	for _, d := range kanoTomato {
		names = append(names, d.Name)
	}
	assert.ElementsMatch(t, []string{"Tomato Early Blight", "Tuta absoluta (Tomato Leaf Miner)"}, names)

	// Regional entries are dropped outside their states.
	lagosTomato := Diseases("tomato", "Lagos")
	assert.Len(t, lagosTomato, 1)

	assert.Empty(t, Diseases("quinoa", ""))
}

func TestCrops(t *testing.T) {
	crops := Crops()
	assert.Contains(t, crops, "cassava")
	assert.IsIncreasing(t, crops)
}
