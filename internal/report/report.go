// Package report renders stored diagnoses as printable documents.
//
// A farmer can download the PDF and take it to an extension officer or an
// agro-dealer. Generators share the brand palette and formatting helpers
// defined here.
package report

import (
	"context"
	"io"
	"time"

	"github.com/agropal/agropal/internal/domain"
)

// FormatPDF is the only output format currently generated.
const FormatPDF = "pdf"

// =============================================================================
// Generator Interface
// =============================================================================

// Generator defines the interface for report generators.
type Generator interface {
	// Generate renders the report and writes it to w.
	// Returns the number of bytes written and any error.
	Generate(ctx context.Context, data *Data, w io.Writer) (int64, error)

	// Format returns the output format of this generator.
	Format() string
}

// Data is everything a diagnosis report shows.
type Data struct {
	Record      *domain.DiagnosisRecord
	Support     SupportLine
	GeneratedAt time.Time
}

// SupportLine is printed in the report footer section.
type SupportLine struct {
	Phone    string
	WhatsApp string
}

// =============================================================================
// Brand Colors
// =============================================================================

// BrandColors defines the color palette for reports.
var BrandColors = struct {
	Leaf       string // Primary brand color
	Harvest    string // Accent color
	TextDark   string // Primary text
	TextMuted  string // Secondary text
	Border     string // Borders and dividers
	Background string // Light background
}{
	Leaf:       "#2F6B3A",
	Harvest:    "#E0A526",
	TextDark:   "#1F2937",
	TextMuted:  "#6B7280",
	Border:     "#E5E7EB",
	Background: "#F9FAFB",
}

// =============================================================================
// Severity Colors
// =============================================================================

// SeverityColors maps severity levels to display colors.
var SeverityColors = map[domain.Severity]string{
	domain.SeverityCritical: "#B91C1C", // Red-700
	domain.SeverityHigh:     "#DC2626", // Red-600
	domain.SeverityModerate: "#F59E0B", // Amber-500
	domain.SeverityLow:      "#3B82F6", // Blue-500
	domain.SeverityNone:     "#16A34A", // Green-600
}

// SeverityColor returns the color for a severity level.
func SeverityColor(severity domain.Severity) string {
	if color, ok := SeverityColors[severity]; ok {
		return color
	}
	return BrandColors.TextMuted
}

// SeverityLabel returns a human-readable label for severity.
func SeverityLabel(severity domain.Severity) string {
	switch severity {
	case domain.SeverityCritical:
		return "Critical"
	case domain.SeverityHigh:
		return "High"
	case domain.SeverityModerate:
		return "Moderate"
	case domain.SeverityLow:
		return "Low"
	case domain.SeverityNone:
		return "None"
	default:
		return string(severity)
	}
}

// =============================================================================
// Color Conversion Helpers
// =============================================================================

// HexToRGB converts a hex color string to RGB values.
// Input format: "#RRGGBB" or "RRGGBB"
func HexToRGB(hex string) (r, g, b int) {
	if len(hex) > 0 && hex[0] == '#' {
		hex = hex[1:]
	}
	if len(hex) != 6 {
		return 0, 0, 0
	}

	r = hexToDec(hex[0:2])
	g = hexToDec(hex[2:4])
	b = hexToDec(hex[4:6])
	return
}

func hexToDec(hex string) int {
	val := 0
	for _, c := range hex {
		val *= 16
		switch {
		case c >= '0' && c <= '9':
			val += int(c - '0')
		case c >= 'a' && c <= 'f':
			val += int(c - 'a' + 10)
		case c >= 'A' && c <= 'F':
			val += int(c - 'A' + 10)
		}
	}
	return val
}

// =============================================================================
// Text Formatting Helpers
// =============================================================================

// FormatDate formats a date for display in reports.
func FormatDate(t time.Time) string {
	return t.Format("January 2, 2006")
}

// FormatDateTime formats a datetime for display in reports.
func FormatDateTime(t time.Time) string {
	return t.Format("January 2, 2006 at 3:04 PM")
}
