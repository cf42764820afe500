package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tilestock/internal/domain"
	"tilestock/internal/invoice"
	"tilestock/internal/store"
)

type billingData struct {
	Tiles []domain.Tile
}

// parseBillForm reads the billing submission: customer details, GST and
// discount, plus one qty_<tileID> field per catalog row.
func parseBillForm(r *http.Request) (domain.BillCreateRequest, string) {
	if err := r.ParseForm(); err != nil {
		return domain.BillCreateRequest{}, "invalid form submission"
	}

	var req domain.BillCreateRequest
	req.CustomerName = strings.TrimSpace(r.PostFormValue("customer_name"))
	req.CustomerMobile = strings.TrimSpace(r.PostFormValue("customer_mobile"))

	gst, ok := parsePercent(r.PostFormValue("gst"))
	if !ok || gst < 0 {
		return req, "GST must be a non-negative percentage"
	}
	req.GSTPercent = gst

	if raw := strings.TrimSpace(r.PostFormValue("discount")); raw != "" {
		discount, ok := parseRupees(raw)
		if !ok || discount < 0 {
			return req, "Discount must be a non-negative amount"
		}
		req.DiscountPaise = discount
	}

	req.Quantities = make(map[int64]int)
	for field, values := range r.PostForm {
		if !strings.HasPrefix(field, "qty_") || len(values) == 0 {
			continue
		}
		tileID, err := strconv.ParseInt(field[len("qty_"):], 10, 64)
		if err != nil || tileID < 1 {
			continue
		}
		raw := strings.TrimSpace(values[0])
		if raw == "" {
			continue
		}
		qty, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		req.Quantities[tileID] = qty
	}
	return req, ""
}

func (a *API) handleBilling(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		tiles, err := a.service.ListTiles(r.Context(), "")
		if err != nil {
			a.renderServiceError(w, r, err)
			return
		}
		a.render(w, r, http.StatusOK, "billing.html", pageData{Data: billingData{Tiles: tiles}})
	case http.MethodPost:
		req, msg := parseBillForm(r)
		if msg != "" {
			tiles, err := a.service.ListTiles(r.Context(), "")
			if err != nil {
				a.renderServiceError(w, r, err)
				return
			}
			a.render(w, r, http.StatusBadRequest, "billing.html", pageData{Error: msg, Data: billingData{Tiles: tiles}})
			return
		}
		outcome, err := a.service.CreateBill(r.Context(), req)
		if err != nil {
			a.renderServiceError(w, r, err)
			return
		}
		redirect(w, r, fmt.Sprintf("/invoice/%d", outcome.Bill.ID))
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type invoiceData struct {
	View    invoice.View
	Message string
}

func (a *API) handleInvoice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := pathID(r, "/invoice/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	bill, err := a.service.GetBill(r.Context(), id)
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}

	view := invoice.BuildView(a.shopName, *bill)
	a.render(w, r, http.StatusOK, "invoice.html", pageData{Data: invoiceData{
		View:    view,
		Message: view.Message(),
	}})
}

func (a *API) handleInvoicePDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id, ok := pathID(r, "/invoice_pdf/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	bill, err := a.service.GetBill(r.Context(), id)
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", invoice.BillFilename(bill.ID)))
	if err := invoice.WriteBillPDF(w, invoice.BuildView(a.shopName, *bill)); err != nil {
		a.renderServiceError(w, r, err)
	}
}

func (a *API) handleStockPDF(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	tiles, err := a.service.ListTiles(r.Context(), "")
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}

	now := time.Now().UTC()
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", invoice.StockFilename(now)))
	if err := invoice.WriteStockPDF(w, a.shopName, tiles, now); err != nil {
		a.renderServiceError(w, r, err)
	}
}

type historyData struct {
	Bills []domain.Bill
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	bills, err := a.service.ListBills(r.Context())
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}
	a.render(w, r, http.StatusOK, "history.html", pageData{Data: historyData{Bills: bills}})
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	report, err := a.service.SalesOnDate(r.Context(), time.Now().UTC())
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}
	a.render(w, r, http.StatusOK, "sales_report.html", pageData{Data: report})
}

type editBillData struct {
	Bill domain.Bill
}

func (a *API) handleEditBill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "/edit_bill/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	bill, err := a.service.GetBill(r.Context(), id)
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.render(w, r, http.StatusOK, "edit_bill.html", pageData{Data: editBillData{Bill: *bill}})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			a.render(w, r, http.StatusBadRequest, "edit_bill.html", pageData{Error: "invalid form submission", Data: editBillData{Bill: *bill}})
			return
		}
		var req domain.BillUpdateRequest
		req.CustomerName = strings.TrimSpace(r.PostFormValue("customer_name"))
		req.CustomerMobile = strings.TrimSpace(r.PostFormValue("customer_mobile"))

		gst, ok := parsePercent(r.PostFormValue("gst"))
		if !ok || gst < 0 {
			a.render(w, r, http.StatusBadRequest, "edit_bill.html", pageData{Error: "GST must be a non-negative percentage", Data: editBillData{Bill: *bill}})
			return
		}
		req.GSTPercent = gst

		if raw := strings.TrimSpace(r.PostFormValue("discount")); raw != "" {
			discount, ok := parseRupees(raw)
			if !ok || discount < 0 {
				a.render(w, r, http.StatusBadRequest, "edit_bill.html", pageData{Error: "Discount must be a non-negative amount", Data: editBillData{Bill: *bill}})
				return
			}
			req.DiscountPaise = discount
		}

		if _, err := a.service.UpdateBill(r.Context(), id, req); err != nil {
			if errors.Is(err, store.ErrInvalidInput) {
				a.render(w, r, http.StatusBadRequest, "edit_bill.html", pageData{Error: err.Error(), Data: editBillData{Bill: *bill}})
				return
			}
			a.renderServiceError(w, r, err)
			return
		}
		flash(w, "Bill updated successfully")
		redirect(w, r, "/history")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleDeleteBill(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "/delete_bill/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := a.service.DeleteBill(r.Context(), id); err != nil {
		a.renderServiceError(w, r, err)
		return
	}
	flash(w, "Bill deleted successfully")
	redirect(w, r, "/history")
}
