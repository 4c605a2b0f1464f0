package report

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/agropal/agropal/internal/domain"
	"github.com/agropal/agropal/internal/regional"
)

// =============================================================================
// PDF Generator
// =============================================================================

// PDFGenerator renders a diagnosis as a single A4 document.
type PDFGenerator struct {
	// Page dimensions (A4 in mm)
	pageWidth  float64
	pageHeight float64
	margin     float64

	// Content area
	contentWidth float64
}

// NewPDFGenerator creates a new PDF generator with default settings.
func NewPDFGenerator() *PDFGenerator {
	margin := 15.0
	pageWidth := 210.0 // A4 width in mm
	return &PDFGenerator{
		pageWidth:    pageWidth,
		pageHeight:   297.0, // A4 height in mm
		margin:       margin,
		contentWidth: pageWidth - (2 * margin),
	}
}

// Format returns the output format of this generator.
func (g *PDFGenerator) Format() string {
	return FormatPDF
}

// Generate creates a PDF report and writes it to the provided writer.
func (g *PDFGenerator) Generate(ctx context.Context, data *Data, w io.Writer) (int64, error) {
	if data == nil || data.Record == nil {
		return 0, fmt.Errorf("pdf generation error: no diagnosis")
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	rec := data.Record

	pdf.SetTitle("Crop Diagnosis - "+rec.Diagnosis.Disease, true)
	pdf.SetAuthor("Agropal", true)
	pdf.SetCreator("Agropal Crop Health Assistant", true)

	// Enable automatic page breaks with footer space
	pdf.SetAutoPageBreak(true, 20)

	pdf.SetFooterFunc(func() {
		g.addFooter(pdf, data)
	})

	pdf.AddPage()
	g.addHeader(pdf, tr, rec)
	g.addCropDetails(pdf, tr, rec)
	g.addDiagnosis(pdf, tr, rec)
	g.addTreatment(pdf, tr, rec)
	g.addSupport(pdf, tr, data.Support)

	if err := pdf.Error(); err != nil {
		return 0, fmt.Errorf("pdf generation error: %w", err)
	}

	// Write to buffer to count bytes
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("pdf output error: %w", err)
	}

	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// =============================================================================
// Sections
// =============================================================================

func (g *PDFGenerator) addHeader(pdf *fpdf.Fpdf, tr func(string) string, rec *domain.DiagnosisRecord) {
	r, gr, b := HexToRGB(BrandColors.Leaf)
	pdf.SetFillColor(r, gr, b)
	pdf.Rect(0, 0, g.pageWidth, 45, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetFont("Helvetica", "B", 24)
	pdf.SetXY(g.margin, 14)
	pdf.Cell(0, 10, "Crop Diagnosis Report")

	pdf.SetFont("Helvetica", "", 11)
	pdf.SetXY(g.margin, 28)
	pdf.Cell(0, 6, tr(fmt.Sprintf("Reference %s  |  %s", rec.ID, FormatDate(rec.CreatedAt))))

	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)
	pdf.SetXY(g.margin, 55)
}

func (g *PDFGenerator) addCropDetails(pdf *fpdf.Fpdf, tr func(string) string, rec *domain.DiagnosisRecord) {
	g.addSectionHeader(pdf, "Crop")

	g.addLabelValue(pdf, tr, "Crop", regional.DisplayCrop(rec.Crop.Type))
	g.addLabelValue(pdf, tr, "Variety", rec.Crop.Variety)
	g.addLabelValue(pdf, tr, "Growth stage", rec.Crop.GrowthStage)
	if rec.Crop.PlantingDate != nil {
		g.addLabelValue(pdf, tr, "Planted", FormatDate(*rec.Crop.PlantingDate))
	}

	location := strings.Trim(strings.Join([]string{rec.Location.LGA, rec.Location.State}, ", "), ", ")
	g.addLabelValue(pdf, tr, "Location", location)
	g.addLabelValue(pdf, tr, "Symptoms", rec.Crop.Symptoms)
	g.addLabelValue(pdf, tr, "Previous", rec.Crop.PreviousTreatments)
	pdf.Ln(6)
}

func (g *PDFGenerator) addDiagnosis(pdf *fpdf.Fpdf, tr func(string) string, rec *domain.DiagnosisRecord) {
	g.addSectionHeader(pdf, "Diagnosis")

	pdf.SetFont("Helvetica", "B", 14)
	pdf.Cell(0, 8, tr(rec.Diagnosis.Disease))
	pdf.Ln(9)

	// Severity indicator
	r, gr, b := HexToRGB(SeverityColor(rec.Diagnosis.Severity))
	pdf.SetFillColor(r, gr, b)
	pdf.Rect(g.margin, pdf.GetY()+1, 4, 5, "F")
	pdf.SetX(g.margin + 7)
	pdf.SetFont("Helvetica", "", 10)
	pdf.SetTextColor(r, gr, b)
	pdf.Cell(0, 7, fmt.Sprintf("Severity: %s    Confidence: %d%%",
		SeverityLabel(rec.Diagnosis.Severity), rec.ConfidencePercent()))
	pdf.Ln(9)

	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)

	if rec.Diagnosis.Description != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(g.contentWidth, 5, tr(rec.Diagnosis.Description), "", "L", false)
		pdf.Ln(3)
	}

	g.addList(pdf, tr, "Possible causes", rec.Diagnosis.PossibleCauses)
	if rec.EconomicImpact != "" {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.Cell(0, 6, "Economic impact:")
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(g.contentWidth, 5, tr(rec.EconomicImpact), "", "L", false)
	}
	pdf.Ln(6)
}

func (g *PDFGenerator) addTreatment(pdf *fpdf.Fpdf, tr func(string) string, rec *domain.DiagnosisRecord) {
	if pdf.GetY() > 220 {
		pdf.AddPage()
	}
	g.addSectionHeader(pdf, "Treatment")

	t := rec.Treatment
	empty := true
	for _, section := range []struct {
		title string
		items []string
	}{
		{"Immediate actions", t.Immediate},
		{"Long-term management", t.LongTerm},
		{"Organic options", t.Organic},
		{"Chemical options", t.Chemical},
		{"Traditional practices", t.Traditional},
		{"Recommendations", rec.Recommendations},
	} {
		if len(section.items) > 0 {
			empty = false
		}
		g.addList(pdf, tr, section.title, section.items)
	}

	if empty {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.Cell(0, 8, "No treatment guidance was recorded for this diagnosis.")
		pdf.Ln(8)
	}
}

func (g *PDFGenerator) addSupport(pdf *fpdf.Fpdf, tr func(string) string, s SupportLine) {
	if s.Phone == "" && s.WhatsApp == "" {
		return
	}
	pdf.Ln(4)
	r, gr, b := HexToRGB(BrandColors.Background)
	pdf.SetFillColor(r, gr, b)
	pdf.SetFont("Helvetica", "", 10)

	line := "Need more help? Contact Agropal support"
	if s.Phone != "" {
		line += "  |  Phone: " + s.Phone
	}
	if s.WhatsApp != "" {
		line += "  |  WhatsApp: " + s.WhatsApp
	}
	pdf.MultiCell(g.contentWidth, 7, tr(line), "", "L", true)
}

// =============================================================================
// Helper Methods
// =============================================================================

func (g *PDFGenerator) addSectionHeader(pdf *fpdf.Fpdf, title string) {
	r, gr, b := HexToRGB(BrandColors.Leaf)
	pdf.SetDrawColor(r, gr, b)
	pdf.SetLineWidth(0.5)

	pdf.SetFont("Helvetica", "B", 14)
	pdf.SetTextColor(r, gr, b)
	pdf.Cell(0, 8, title)
	pdf.Ln(9)

	pdf.Line(g.margin, pdf.GetY(), g.pageWidth-g.margin, pdf.GetY())
	pdf.Ln(5)

	// Reset text color
	r, gr, b = HexToRGB(BrandColors.TextDark)
	pdf.SetTextColor(r, gr, b)
}

func (g *PDFGenerator) addLabelValue(pdf *fpdf.Fpdf, tr func(string) string, label, value string) {
	if value == "" {
		return
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(35, 6, label+":")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(g.contentWidth-35, 6, tr(value), "", "L", false)
}

func (g *PDFGenerator) addList(pdf *fpdf.Fpdf, tr func(string) string, title string, items []string) {
	if len(items) == 0 {
		return
	}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.Cell(0, 6, title+":")
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "", 10)
	for _, item := range items {
		pdf.SetX(g.margin + 4)
		pdf.MultiCell(g.contentWidth-4, 5, tr("- "+item), "", "L", false)
	}
	pdf.Ln(3)
}

func (g *PDFGenerator) addFooter(pdf *fpdf.Fpdf, data *Data) {
	pdf.SetY(-15)

	r, gr, b := HexToRGB(BrandColors.Border)
	pdf.SetDrawColor(r, gr, b)
	pdf.Line(g.margin, pdf.GetY()-3, g.pageWidth-g.margin, pdf.GetY()-3)

	r, gr, b = HexToRGB(BrandColors.TextMuted)
	pdf.SetTextColor(r, gr, b)
	pdf.SetFont("Helvetica", "", 8)

	// Left: generation date
	pdf.Cell(0, 10, "Generated: "+FormatDateTime(data.GeneratedAt))

	// Right: page number
	pdf.SetX(-g.margin - 30)
	pdf.CellFormat(30, 10, fmt.Sprintf("Page %d", pdf.PageNo()), "", 0, "R", false, 0, "")
}
