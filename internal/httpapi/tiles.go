package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"tilestock/internal/domain"
	"tilestock/internal/store"
)

type tileFormData struct {
	Title  string
	Action string
	Tile   domain.Tile
}

// parseTileForm reads the shared add/edit tile form. It returns a
// user-facing message when the input is invalid.
func parseTileForm(r *http.Request) (domain.TileRequest, string) {
	if err := r.ParseForm(); err != nil {
		return domain.TileRequest{}, "invalid form submission"
	}

	var req domain.TileRequest
	req.Brand = strings.TrimSpace(r.PostFormValue("brand"))
	req.Size = strings.TrimSpace(r.PostFormValue("size"))
	if req.Brand == "" {
		return req, "Brand is required"
	}
	if req.Size == "" {
		return req, "Size is required"
	}

	price, ok := parseRupees(r.PostFormValue("price"))
	if !ok || price < 1 {
		return req, "Price must be a positive amount"
	}
	req.PricePaise = price

	if raw := strings.TrimSpace(r.PostFormValue("buy_price")); raw != "" {
		buy, ok := parseRupees(raw)
		if !ok || buy < 0 {
			return req, "Buy price must be a valid amount"
		}
		req.BuyPricePaise = &buy
	}

	qty, ok := parseInt(r.PostFormValue("quantity"))
	if !ok || qty < 0 {
		return req, "Quantity must be zero or more"
	}
	req.Quantity = qty

	return req, ""
}

func tileFromRequest(req domain.TileRequest) domain.Tile {
	return domain.Tile{
		Brand:         req.Brand,
		Size:          req.Size,
		BuyPricePaise: req.BuyPricePaise,
		PricePaise:    req.PricePaise,
		Quantity:      req.Quantity,
	}
}

func (a *API) handleAddTile(w http.ResponseWriter, r *http.Request) {
	form := tileFormData{Title: "Add Tile", Action: "/add_tile"}

	switch r.Method {
	case http.MethodGet:
		a.render(w, r, http.StatusOK, "tile_form.html", pageData{Data: form})
	case http.MethodPost:
		req, msg := parseTileForm(r)
		if msg != "" {
			form.Tile = tileFromRequest(req)
			a.render(w, r, http.StatusBadRequest, "tile_form.html", pageData{Error: msg, Data: form})
			return
		}
		if _, err := a.service.CreateTile(r.Context(), req); err != nil {
			if errors.Is(err, store.ErrInvalidInput) {
				form.Tile = tileFromRequest(req)
				a.render(w, r, http.StatusBadRequest, "tile_form.html", pageData{Error: err.Error(), Data: form})
				return
			}
			a.renderServiceError(w, r, err)
			return
		}
		flash(w, "Tile added successfully!")
		redirect(w, r, "/dashboard")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleEditTile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "/edit_tile/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	tile, err := a.service.GetTile(r.Context(), id)
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}
	form := tileFormData{Title: "Edit Tile", Action: r.URL.Path, Tile: *tile}

	switch r.Method {
	case http.MethodGet:
		a.render(w, r, http.StatusOK, "tile_form.html", pageData{Data: form})
	case http.MethodPost:
		req, msg := parseTileForm(r)
		if msg != "" {
			form.Tile = tileFromRequest(req)
			form.Tile.ID = id
			a.render(w, r, http.StatusBadRequest, "tile_form.html", pageData{Error: msg, Data: form})
			return
		}
		if _, err := a.service.UpdateTile(r.Context(), id, req); err != nil {
			if errors.Is(err, store.ErrInvalidInput) {
				form.Tile = tileFromRequest(req)
				form.Tile.ID = id
				a.render(w, r, http.StatusBadRequest, "tile_form.html", pageData{Error: err.Error(), Data: form})
				return
			}
			a.renderServiceError(w, r, err)
			return
		}
		flash(w, "Tile updated successfully!")
		redirect(w, r, "/dashboard")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleDeleteTile(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "/delete_tile/")
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := a.service.DeleteTile(r.Context(), id); err != nil {
		a.renderServiceError(w, r, err)
		return
	}
	flash(w, "Tile deleted successfully!")
	redirect(w, r, "/dashboard")
}
