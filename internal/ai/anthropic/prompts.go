package anthropic

import (
	"fmt"
	"strings"

	"github.com/agropal/agropal/internal/ai"
)

// buildDiagnosisPrompt asks for a diagnosis in the exact JSON shape of ai.Diagnosis.
func buildDiagnosisPrompt(params ai.DiagnoseParams) string {
	var b strings.Builder

	b.WriteString(`You are an agricultural extension officer helping smallholder farmers in Nigeria. Examine the attached crop photograph and diagnose the most likely disease, pest or nutrient problem.

**Guidelines:**
- Base the diagnosis on visible evidence first and the farmer's description second
- If the plant looks healthy, return "Healthy" as the disease with severity "none"
- Confidence is a number between 0 and 1
- Severity is one of "none", "low", "moderate", "high", "critical"
- Treatments must be available to Nigerian farmers; name active ingredients, not brands
- Local solutions are traditional or locally sourced remedies (neem extract, wood ash, etc.)
- Recommendations are short, practical next steps for the farmer`)

	b.WriteString("\n\n**Farmer's Context:**\n")
	writeField(&b, "Crop", params.CropType)
	writeField(&b, "State", params.State)
	writeField(&b, "LGA", params.LGA)
	if params.Latitude != nil && params.Longitude != nil {
		writeField(&b, "Coordinates", fmt.Sprintf("%.5f, %.5f", *params.Latitude, *params.Longitude))
	}
	writeField(&b, "Symptoms", params.Symptoms)
	if params.PlantingDate != nil {
		writeField(&b, "Planting date", params.PlantingDate.Format("2006-01-02"))
	}
	writeField(&b, "Growth stage", params.GrowthStage)
	writeField(&b, "Previous treatments", params.PreviousTreatments)

	b.WriteString(`
**Response Format:**
Return your diagnosis as a JSON object with this exact structure:

{
  "disease": "Name of the disease or problem",
  "confidence": 0.0,
  "severity": "none|low|moderate|high|critical",
  "description": "What the farmer is seeing and why",
  "possibleCauses": ["cause"],
  "treatment": {
    "immediate": ["action"],
    "preventive": ["action"],
    "organic": ["option"],
    "chemical": ["option"]
  },
  "localSolutions": ["remedy"],
  "recommendations": ["next step"],
  "economicImpact": "Expected yield or income impact if untreated",
  "locationContext": {"climateNote": "How the local climate affects this problem"}
}

**Important:** Return ONLY the JSON object, no additional text or explanation.`)

	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if strings.TrimSpace(value) == "" {
		value = "not provided"
	}
	fmt.Fprintf(b, "- %s: %s\n", label, value)
}
