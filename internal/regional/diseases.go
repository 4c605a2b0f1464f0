package regional

import (
	"sort"
)

// Disease is a reference entry for a common crop disease or pest.
type Disease struct {
	Name       string
	Crop       string
	Symptoms   []string
	Prevention []string
	Treatment  []string
	Severity   string // typical severity when untreated
	Prevalence string // "high", "medium" or "low"

	// States lists where the disease is most reported. Empty means nationwide.
	States []string
}

var diseases = []Disease{
	{
		Name:       "Cassava Mosaic Disease",
		Crop:       "cassava",
		Symptoms:   []string{"Yellow-green mosaic on leaves", "Leaf distortion and curling", "Stunted growth"},
		Prevention: []string{"Plant certified virus-free stems", "Use resistant varieties (TME 419, TMS 30572)", "Control whiteflies"},
		Treatment:  []string{"Uproot and burn infected plants", "Replant with resistant varieties"},
		Severity:   "high",
		Prevalence: "high",
	},
	{
		Name:       "Cassava Bacterial Blight",
		Crop:       "cassava",
		Symptoms:   []string{"Angular water-soaked leaf spots", "Wilting and leaf fall", "Gum exudate on stems"},
		Prevention: []string{"Use clean planting material", "Rotate with cereals", "Avoid working in wet fields"},
		Treatment:  []string{"Prune and burn infected stems", "Copper-based bactericide on early infections"},
		Severity:   "high",
		Prevalence: "medium",
		States:     []string{"ogun", "oyo", "enugu", "benue", "cross river"},
	},
	{
		Name:       "Fall Armyworm",
		Crop:       "maize",
		Symptoms:   []string{"Ragged holes in whorl leaves", "Sawdust-like frass in the whorl", "Damaged tassels and cobs"},
		Prevention: []string{"Early planting", "Weekly scouting from emergence", "Intercrop with legumes"},
		Treatment:  []string{"Hand pick egg masses and larvae", "Neem extract spray", "Emamectin benzoate for heavy infestation"},
		Severity:   "high",
		Prevalence: "high",
	},
	{
		Name:       "Maize Streak Virus",
		Crop:       "maize",
		Symptoms:   []string{"Narrow broken yellow streaks along leaf veins", "Stunting", "Poor cob formation"},
		Prevention: []string{"Plant tolerant varieties", "Avoid late planting", "Control leafhoppers"},
		Treatment:  []string{"Remove infected seedlings early"},
		Severity:   "moderate",
		Prevalence: "medium",
		States:     []string{"kaduna", "kano", "katsina", "niger", "plateau"},
	},
	{
		Name:       "Yam Anthracnose",
		Crop:       "yam",
		Symptoms:   []string{"Dark brown leaf spots with yellow halo", "Leaf scorch and dieback", "Black vine lesions"},
		Prevention: []string{"Use healthy setts", "Stake vines for airflow", "Rotate fields"},
		Treatment:  []string{"Mancozeb spray at first symptoms", "Remove infected vines"},
		Severity:   "high",
		Prevalence: "high",
		States:     []string{"benue", "nasarawa", "kogi", "enugu", "ebonyi", "oyo"},
	},
	{
		Name:       "Rice Blast",
		Crop:       "rice",
		Symptoms:   []string{"Diamond-shaped grey leaf lesions", "Neck rot causing whiteheads", "Broken panicles"},
		Prevention: []string{"Balanced nitrogen use", "Resistant varieties (FARO 66, FARO 67)", "Clean seed"},
		Treatment:  []string{"Tricyclazole fungicide at booting", "Burn infected straw after harvest"},
		Severity:   "high",
		Prevalence: "medium",
		States:     []string{"kebbi", "niger", "ebonyi", "kano", "benue"},
	},
	{
		Name:       "Tomato Early Blight",
		Crop:       "tomato",
		Symptoms:   []string{"Brown target-like rings on older leaves", "Yellowing around lesions", "Fruit rot at the stem end"},
		Prevention: []string{"Stake and mulch plants", "Avoid overhead irrigation", "Rotate away from solanaceous crops"},
		Treatment:  []string{"Remove affected leaves", "Copper oxychloride or mancozeb spray"},
		Severity:   "moderate",
		Prevalence: "high",
	},
	{
		Name:       "Tuta absoluta (Tomato Leaf Miner)",
		Crop:       "tomato",
		Symptoms:   []string{"Blotch-shaped mines in leaves", "Holes bored in fruit", "Dried, burnt-looking foliage"},
		Prevention: []string{"Pheromone traps", "Destroy crop residues", "Use insect-proof nursery nets"},
		Treatment:  []string{"Spinosad or chlorantraniliprole sprays", "Remove and destroy infested fruit"},
		Severity:   "critical",
		Prevalence: "high",
		States:     []string{"kaduna", "kano", "katsina", "plateau"},
	},
	{
		Name:       "Cowpea Aphid",
		Crop:       "cowpea",
		Symptoms:   []string{"Clusters of black aphids on shoots", "Curled leaves", "Sooty mould"},
		Prevention: []string{"Early sowing", "Intercrop with sorghum or millet"},
		Treatment:  []string{"Neem seed extract", "Lambda-cyhalothrin for severe attacks"},
		Severity:   "moderate",
		Prevalence: "high",
	},
	{
		Name:       "Sorghum Anthracnose",
		Crop:       "sorghum",
		Symptoms:   []string{"Small red-purple leaf spots", "Stalk rot", "Grain mould"},
		Prevention: []string{"Resistant varieties", "Crop rotation", "Remove residues"},
		Treatment:  []string{"Fungicide seed dressing"},
		Severity:   "moderate",
		Prevalence: "medium",
	},
	{
		Name:       "Black Sigatoka",
		Crop:       "plantain",
		Symptoms:   []string{"Dark streaks on leaves that become black spots", "Premature leaf death", "Small bunches"},
		Prevention: []string{"Remove infected leaves", "Adequate plant spacing", "Good drainage"},
		Treatment:  []string{"De-leafing and burning", "Propiconazole spray in commercial plots"},
		Severity:   "high",
		Prevalence: "high",
		States:     []string{"rivers", "bayelsa", "akwa ibom", "cross river", "delta", "edo", "ondo"},
	},
	{
		Name:       "Groundnut Rosette Disease",
		Crop:       "groundnut",
		Symptoms:   []string{"Severe stunting", "Chlorotic or dark green rosetted leaves"},
		Prevention: []string{"Early planting at close spacing", "Resistant varieties (SAMNUT 23)"},
		Treatment:  []string{"Uproot infected plants", "Control aphid vectors"},
		Severity:   "high",
		Prevalence: "medium",
		States:     []string{"kano", "katsina", "jigawa", "bauchi", "niger"},
	},
}

// Diseases returns reference entries for cropType and state. Empty filters
// match everything. A state filter keeps nationwide entries plus those
// reported in that state.
func Diseases(cropType, state string) []Disease {
	crop := NormalizeCrop(cropType)
	st := NormalizeState(state)

	out := make([]Disease, 0, len(diseases))
	for _, d := range diseases {
		if crop != "" && d.Crop != crop {
			continue
		}
		if st != "" && !d.reportedIn(st) {
			continue
		}
		out = append(out, d)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Crop != out[j].Crop {
			return out[i].Crop < out[j].Crop
		}
		return prevalenceRank(out[i].Prevalence) < prevalenceRank(out[j].Prevalence)
	})
	return out
}

// Crops returns every crop with reference data, sorted.
func Crops() []string {
	seen := make(map[string]bool)
	var crops []string
	for _, d := range diseases {
		if !seen[d.Crop] {
			seen[d.Crop] = true
			crops = append(crops, d.Crop)
		}
	}
	sort.Strings(crops)
	return crops
}

func (d Disease) reportedIn(state string) bool {
	if len(d.States) == 0 {
		return true
	}
	for _, s := range d.States {
		if s == state {
			return true
		}
	}
	return false
}

func prevalenceRank(p string) int {
	switch p {
	case "high":
		return 0
	case "medium":
		return 1
	}
	return 2
}
