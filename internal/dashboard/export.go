package dashboard

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"blue-carbon/mrv-portal/mrv-portal-backend/internal/ledger"
	"blue-carbon/mrv-portal/mrv-portal-backend/internal/registry"
)

var ledgerColumns = []string{
	"Serial Number", "Status", "Amount (tCO2e)", "Vintage", "Owner",
	"Issuer Pool", "Minted At", "Retired At", "Beneficiary",
}

// exportLedgerWorkbook writes a project's tokens to a styled single-sheet
// xlsx workbook: bold filled header, frozen first row, autofilter.
func exportLedgerWorkbook(project *registry.Project, tokens []*ledger.CarbonCreditToken) ([]byte, error) {
	file := excelize.NewFile()
	defer file.Close()

	sheet := "Credit Ledger"
	file.SetSheetName("Sheet1", sheet)

	headerStyle, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF", Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"10553C"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for i, col := range ledgerColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		file.SetCellValue(sheet, cell, col)
		file.SetCellStyle(sheet, cell, cell, headerStyle)
	}

	for rowIdx, token := range tokens {
		retiredAt := ""
		if token.RetiredAt != nil {
			retiredAt = token.RetiredAt.Format("2006-01-02 15:04")
		}
		issuerPool := "no"
		if token.IssuerHeld {
			issuerPool = "yes"
		}

		values := []interface{}{
			token.SerialNumber,
			string(token.Status),
			token.Amount,
			token.Vintage,
			token.OwnerID.String(),
			issuerPool,
			token.CreatedAt.Format("2006-01-02 15:04"),
			retiredAt,
			token.Beneficiary,
		}
		for colIdx, val := range values {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowIdx+2)
			if err := file.SetCellValue(sheet, cell, val); err != nil {
				return nil, fmt.Errorf("failed to set cell value: %w", err)
			}
		}
	}

	file.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	lastCell, _ := excelize.CoordinatesToCellName(len(ledgerColumns), len(tokens)+1)
	file.AutoFilter(sheet, "A1:"+lastCell, nil)

	// summary sheet with the project's counters
	summary := "Summary"
	file.NewSheet(summary)
	file.SetCellValue(summary, "A1", "Project")
	file.SetCellValue(summary, "B1", project.Name)
	file.SetCellValue(summary, "A2", "Total Credits Issued")
	file.SetCellValue(summary, "B2", project.TotalCreditsIssued)
	file.SetCellValue(summary, "A3", "Available Credits")
	file.SetCellValue(summary, "B3", project.AvailableCredits)
	file.SetCellValue(summary, "A4", "Tokens")
	file.SetCellValue(summary, "B4", len(tokens))

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
