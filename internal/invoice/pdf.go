package invoice

import (
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"

	"tilestock/internal/domain"
)

// Core PDF fonts carry no rupee glyph, so amounts are prefixed "Rs."
// in the documents.

// WriteBillPDF renders the invoice document for a bill to w.
func WriteBillPDF(w io.Writer, view View) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(fmt.Sprintf("Invoice #%d", view.Bill.ID), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, view.ShopName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, fmt.Sprintf("Invoice #%d", view.Bill.ID), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Customer: "+view.CustomerName(), "", 1, "L", false, 0, "")
	if view.Bill.CustomerMobile != "" {
		pdf.CellFormat(0, 6, "Mobile: "+view.Bill.CustomerMobile, "", 1, "L", false, 0, "")
	}
	pdf.CellFormat(0, 6, "Date: "+view.DateLabel(), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	colWidths := []float64{70, 30, 30, 20, 40}
	headers := []string{"Item", "Size", "Price", "Qty", "Total"}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(colWidths[i], 8, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, item := range view.Bill.Items {
		pdf.CellFormat(colWidths[0], 7, item.TileName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[1], 7, item.Size, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[2], 7, "Rs. "+Rupees(item.PricePaise), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colWidths[3], 7, fmt.Sprintf("%d", item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colWidths[4], 7, "Rs. "+Rupees(item.TotalPaise), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(4)

	summary := func(label, value string, bold bool) {
		style := ""
		if bold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, 10)
		pdf.CellFormat(150, 7, label, "", 0, "R", false, 0, "")
		pdf.CellFormat(40, 7, value, "", 1, "R", false, 0, "")
	}
	summary("Subtotal:", "Rs. "+Rupees(view.SubtotalPaise), false)
	summary(fmt.Sprintf("GST (%g%%):", view.Bill.GSTPercent), "Rs. "+Rupees(view.TaxPaise), false)
	summary("Discount:", "-Rs. "+Rupees(view.Bill.DiscountPaise), false)
	summary("Grand Total:", "Rs. "+Rupees(view.Bill.TotalPaise), true)

	pdf.Ln(8)
	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 6, "Thank you for your purchase!", "", 1, "C", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	return nil
}

// WriteStockPDF renders the current stock availability report to w.
func WriteStockPDF(w io.Writer, shopName string, tiles []domain.Tile, now time.Time) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Stock Availability", false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, shopName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(0, 6, "Stock Availability Report", "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(0, 6, "Generated: "+now.UTC().Format("02-01-2006 15:04"), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	colWidths := []float64{70, 45, 35, 40}
	headers := []string{"Brand", "Size", "Price", "Quantity"}
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range headers {
		pdf.CellFormat(colWidths[i], 8, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 10)
	for _, tile := range tiles {
		pdf.CellFormat(colWidths[0], 7, tile.Brand, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[1], 7, tile.Size, "1", 0, "L", false, 0, "")
		pdf.CellFormat(colWidths[2], 7, "Rs. "+Rupees(tile.PricePaise), "1", 0, "R", false, 0, "")
		pdf.CellFormat(colWidths[3], 7, fmt.Sprintf("%d", tile.Quantity), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("%w: %v", ErrRender, err)
	}
	return nil
}
