package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"tilestock/internal/domain"
	"tilestock/internal/service"
	"tilestock/internal/store"
)

type usersData struct {
	Users []domain.User
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	users, err := a.service.ListUsers(r.Context())
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}
	a.render(w, r, http.StatusOK, "users.html", pageData{Data: usersData{Users: users}})
}

type userFormData struct {
	Title  string
	Action string
	Edit   bool
	User   domain.User
}

func (a *API) handleUserCreate(w http.ResponseWriter, r *http.Request) {
	form := userFormData{Title: "Create User", Action: "/admin/users/create"}

	switch r.Method {
	case http.MethodGet:
		a.render(w, r, http.StatusOK, "user_form.html", pageData{Data: form})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			a.render(w, r, http.StatusBadRequest, "user_form.html", pageData{Error: "invalid form submission", Data: form})
			return
		}
		req := domain.UserCreateRequest{
			Username:        strings.TrimSpace(r.PostFormValue("username")),
			Email:           strings.TrimSpace(r.PostFormValue("email")),
			Password:        r.PostFormValue("password"),
			ConfirmPassword: r.PostFormValue("confirm_password"),
			Role:            r.PostFormValue("role"),
		}
		form.User = domain.User{Username: req.Username, Email: req.Email, Role: req.Role}

		user, err := a.service.CreateUser(r.Context(), req)
		switch {
		case errors.Is(err, store.ErrDuplicate):
			a.render(w, r, http.StatusBadRequest, "user_form.html", pageData{Error: "Username already exists", Data: form})
			return
		case errors.Is(err, store.ErrInvalidInput):
			a.render(w, r, http.StatusBadRequest, "user_form.html", pageData{Error: validationMessage(err), Data: form})
			return
		case err != nil:
			a.renderServiceError(w, r, err)
			return
		}
		flash(w, fmt.Sprintf("User %q created successfully!", user.Username))
		redirect(w, r, "/admin/users")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleUserActions dispatches /admin/users/{id}/{action} for the edit,
// toggle-active and delete operations.
func (a *API) handleUserActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/users/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	id, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil || id < 1 {
		http.NotFound(w, r)
		return
	}

	switch parts[1] {
	case "edit":
		a.handleUserEdit(w, r, id)
	case "toggle-active":
		a.handleUserToggle(w, r, id)
	case "delete":
		a.handleUserDelete(w, r, id)
	default:
		http.NotFound(w, r)
	}
}

func (a *API) handleUserEdit(w http.ResponseWriter, r *http.Request, id int64) {
	user, err := a.service.GetUser(r.Context(), id)
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}
	form := userFormData{Title: "Edit User", Action: r.URL.Path, Edit: true, User: *user}

	switch r.Method {
	case http.MethodGet:
		a.render(w, r, http.StatusOK, "user_form.html", pageData{Data: form})
	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			a.render(w, r, http.StatusBadRequest, "user_form.html", pageData{Error: "invalid form submission", Data: form})
			return
		}
		req := domain.UserUpdateRequest{
			Email:           strings.TrimSpace(r.PostFormValue("email")),
			Password:        r.PostFormValue("password"),
			ConfirmPassword: r.PostFormValue("confirm_password"),
			Role:            r.PostFormValue("role"),
			Active:          r.PostFormValue("active") == "on" || r.PostFormValue("active") == "true",
		}

		updated, err := a.service.UpdateUser(r.Context(), id, req)
		switch {
		case errors.Is(err, service.ErrProtectedUser):
			a.render(w, r, http.StatusForbidden, "user_form.html", pageData{Error: "The default admin account cannot be modified", Data: form})
			return
		case errors.Is(err, service.ErrSelfAction):
			a.render(w, r, http.StatusBadRequest, "user_form.html", pageData{Error: "You cannot deactivate your own account", Data: form})
			return
		case errors.Is(err, store.ErrInvalidInput):
			a.render(w, r, http.StatusBadRequest, "user_form.html", pageData{Error: validationMessage(err), Data: form})
			return
		case err != nil:
			a.renderServiceError(w, r, err)
			return
		}
		flash(w, fmt.Sprintf("User %q updated successfully!", updated.Username))
		redirect(w, r, "/admin/users")
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (a *API) handleUserToggle(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := a.service.ToggleUserActive(r.Context(), id)
	switch {
	case errors.Is(err, service.ErrSelfAction):
		flash(w, "You cannot deactivate your own account")
		redirect(w, r, "/admin/users")
		return
	case errors.Is(err, service.ErrProtectedUser):
		flash(w, "The default admin account cannot be modified")
		redirect(w, r, "/admin/users")
		return
	case err != nil:
		a.renderServiceError(w, r, err)
		return
	}

	status := "deactivated"
	if user.Active {
		status = "activated"
	}
	flash(w, fmt.Sprintf("User %q has been %s", user.Username, status))
	redirect(w, r, "/admin/users")
}

func (a *API) handleUserDelete(w http.ResponseWriter, r *http.Request, id int64) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	user, err := a.service.GetUser(r.Context(), id)
	if err != nil {
		a.renderServiceError(w, r, err)
		return
	}

	err = a.service.DeleteUser(r.Context(), id)
	switch {
	case errors.Is(err, service.ErrSelfAction):
		flash(w, "You cannot delete your own account")
		redirect(w, r, "/admin/users")
		return
	case errors.Is(err, service.ErrProtectedUser):
		flash(w, "The default admin account cannot be deleted")
		redirect(w, r, "/admin/users")
		return
	case err != nil:
		a.renderServiceError(w, r, err)
		return
	}
	flash(w, fmt.Sprintf("User %q has been deleted", user.Username))
	redirect(w, r, "/admin/users")
}

// validationMessage strips the sentinel prefix from wrapped validation
// errors so the page shows only the human part.
func validationMessage(err error) string {
	msg := err.Error()
	if idx := strings.Index(msg, ": "); idx >= 0 && len(msg) > idx+3 {
		return strings.ToUpper(msg[idx+2:idx+3]) + msg[idx+3:]
	}
	return msg
}
