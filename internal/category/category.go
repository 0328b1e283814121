// Package category lists the fixed video categories.
package category

import (
	"log/slog"
	"net/http"

	"github.com/jackc/pgx/v5"
	"github.com/newtube/newtube/internal/database"
	"github.com/newtube/newtube/internal/httputil"
)

type Category struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
}

type Handler struct {
	db database.DBTX
}

func NewHandler(db database.DBTX) *Handler {
	return &Handler{db: db}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(r.Context(), "SELECT id, name, description FROM categories ORDER BY name")
	if err != nil {
		slog.Error("category: list", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch categories")
		return
	}
	categories, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Category, error) {
		var c Category
		err := row.Scan(&c.ID, &c.Name, &c.Description)
		return c, err
	})
	if err != nil {
		slog.Error("category: scan", "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "could not fetch categories")
		return
	}

	httputil.WriteJSON(w, http.StatusOK, categories)
}
