package ledger

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// renderCertificate renders a retirement certificate as a single-page A4
// PDF. Layout is deliberately plain: a registry header, the certificate
// number, and the retirement facts in labelled rows.
func renderCertificate(cert *RetirementCertificate, projectName string) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(20, 25, 20)
	pdf.AddPage()

	// header
	pdf.SetFont("Arial", "B", 20)
	pdf.SetTextColor(16, 85, 60)
	pdf.CellFormat(0, 12, "Blue Carbon Registry", "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 13)
	pdf.SetTextColor(100, 100, 100)
	pdf.CellFormat(0, 8, "Certificate of Carbon Credit Retirement", "", 1, "C", false, 0, "")
	pdf.Ln(6)

	pdf.SetDrawColor(16, 85, 60)
	pdf.SetLineWidth(0.6)
	x, y := pdf.GetXY()
	pdf.Line(x, y, x+170, y)
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.CellFormat(0, 8, cert.CertificateNumber, "", 1, "C", false, 0, "")
	pdf.Ln(6)

	rows := [][2]string{
		{"Project", projectName},
		{"Amount Retired", fmt.Sprintf("%.2f tCO2e", cert.Amount)},
		{"Vintage", fmt.Sprintf("%d", cert.Vintage)},
		{"Token ID", cert.TokenID.String()},
		{"Retired On", cert.RetiredAt.Format("2 January 2006")},
	}
	if cert.Beneficiary != "" {
		rows = append(rows, [2]string{"On Behalf Of", cert.Beneficiary})
	}
	if cert.Reason != "" {
		rows = append(rows, [2]string{"Purpose", cert.Reason})
	}

	for _, row := range rows {
		pdf.SetFont("Arial", "B", 11)
		pdf.SetTextColor(80, 80, 80)
		pdf.CellFormat(50, 9, row[0], "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.SetTextColor(0, 0, 0)
		pdf.CellFormat(0, 9, row[1], "", 1, "L", false, 0, "")
	}

	pdf.Ln(10)
	pdf.SetFont("Arial", "I", 9)
	pdf.SetTextColor(120, 120, 120)
	pdf.MultiCell(0, 5,
		"The credits named above have been permanently removed from circulation and "+
			"cannot be transferred, resold, or claimed again. This certificate is "+
			"generated from the registry's append-only transaction ledger.",
		"", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render certificate: %w", err)
	}
	return buf.Bytes(), nil
}
