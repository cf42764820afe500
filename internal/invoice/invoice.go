// Package invoice renders customer-facing bill output: the share message
// and the downloadable PDF documents.
package invoice

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"tilestock/internal/domain"
)

var ErrRender = errors.New("render invoice")

// Rupees formats an amount in paise as a decimal rupee string, handling
// negative totals from oversized discounts.
func Rupees(paise int64) string {
	sign := ""
	if paise < 0 {
		sign = "-"
		paise = -paise
	}
	return fmt.Sprintf("%s%d.%02d", sign, paise/100, paise%100)
}

// TaxPaise computes the GST amount on a subtotal, rounded to the paisa.
func TaxPaise(subtotalPaise int64, gstPercent float64) int64 {
	return int64(math.Round(float64(subtotalPaise) * gstPercent / 100))
}

// View is the assembled invoice for a single bill.
type View struct {
	Bill          domain.Bill
	SubtotalPaise int64
	TaxPaise      int64
	ShopName      string
}

func BuildView(shopName string, bill domain.Bill) View {
	var subtotal int64
	for _, item := range bill.Items {
		subtotal += item.TotalPaise
	}
	return View{
		Bill:          bill,
		SubtotalPaise: subtotal,
		TaxPaise:      TaxPaise(subtotal, bill.GSTPercent),
		ShopName:      shopName,
	}
}

func (v View) CustomerName() string {
	if v.Bill.CustomerName == "" {
		return "Walk-in"
	}
	return v.Bill.CustomerName
}

func (v View) DateLabel() string {
	if v.Bill.CreatedAt.IsZero() {
		return "-"
	}
	return v.Bill.CreatedAt.Format("02-01-2006")
}

// Message builds the plain-text summary customers receive over chat.
func (v View) Message() string {
	var b strings.Builder
	fmt.Fprintf(&b, "*Invoice #%d*\n", v.Bill.ID)
	fmt.Fprintf(&b, "From: %s\n\n", v.ShopName)
	fmt.Fprintf(&b, "*Customer:* %s\n", v.CustomerName())
	fmt.Fprintf(&b, "*Date:* %s\n\n", v.DateLabel())
	b.WriteString("*Items:*\n")
	for _, item := range v.Bill.Items {
		fmt.Fprintf(&b, "- %s (%s) - %d x Rs.%s = Rs.%s\n",
			item.TileName, item.Size, item.Quantity, Rupees(item.PricePaise), Rupees(item.TotalPaise))
	}
	fmt.Fprintf(&b, "\n*Subtotal:* Rs.%s\n", Rupees(v.SubtotalPaise))
	fmt.Fprintf(&b, "*GST (%g%%):* Rs.%s\n", v.Bill.GSTPercent, Rupees(v.TaxPaise))
	fmt.Fprintf(&b, "*Discount:* -Rs.%s\n", Rupees(v.Bill.DiscountPaise))
	fmt.Fprintf(&b, "*Grand Total:* Rs.%s\n\n", Rupees(v.Bill.TotalPaise))
	b.WriteString("Thank you for your purchase!")
	return b.String()
}

// StockFilename names the stock report download for the given moment.
func StockFilename(now time.Time) string {
	return fmt.Sprintf("stock_availability_%s.pdf", now.UTC().Format("2006-01-02"))
}

func BillFilename(billID int64) string {
	return fmt.Sprintf("invoice_%d.pdf", billID)
}
