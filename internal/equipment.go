package internal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"gear-lending-api/internal/models"
)

var equipmentSortColumns = map[string]string{
	"id":       "e.id",
	"name":     "e.name",
	"number":   "e.number",
	"status":   "e.status",
	"category": "c.name",
	"created":  "e.created_at",
}

type listResponse struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func (s *Server) listEquipment(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	query := `
		SELECT e.id, e.name, e.number, e.category_id, c.name, e.status, e.image_url, e.notes,
		       e.created_at, e.updated_at, COUNT(*) OVER() AS total
		FROM equipment e
		JOIN categories c ON c.id = e.category_id
		WHERE 1=1`
	args := []any{}

	if params.q != "" {
		args = append(args, "%"+params.q+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (e.name ILIKE $` + n + ` OR e.number ILIKE $` + n + ` OR c.name ILIKE $` + n + `)`
	}
	if params.status != "" {
		if !models.ValidEquipmentStatus(models.EquipmentStatus(params.status)) {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid status filter", Code: "INVALID_STATUS"})
			return
		}
		args = append(args, params.status)
		query += ` AND e.status = $` + strconv.Itoa(len(args))
	}

	query += buildOrderBy(params.sort, equipmentSortColumns)
	args = append(args, params.limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, params.offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	q := dbFrom(r.Context(), s.DB)
	rows, err := q.QueryContext(r.Context(), query, args...)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to list equipment"})
		return
	}
	defer rows.Close()

	total := 0
	items := []models.Equipment{}
	for rows.Next() {
		var e models.Equipment
		var status string
		if err := rows.Scan(&e.ID, &e.Name, &e.Number, &e.CategoryID, &e.CategoryName, &status,
			&e.ImageURL, &e.Notes, &e.CreatedAt, &e.UpdatedAt, &total); err != nil {
			writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to scan equipment"})
			return
		}
		e.Status = models.EquipmentStatus(status)
		items = append(items, e)
	}
	if err := rows.Err(); err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to read equipment"})
		return
	}

	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: params.limit, Offset: params.offset})
}

func (s *Server) getEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid equipment id", Code: "INVALID_ID"})
		return
	}
	e, err := s.Store.EquipmentByID(r.Context(), id)
	if err != nil {
		writeBookingError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	q := dbFrom(r.Context(), s.DB)
	rows, err := q.QueryContext(r.Context(), `SELECT id, name, created_at FROM categories ORDER BY name`)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to list categories"})
		return
	}
	defer rows.Close()

	items := []models.Category{}
	for rows.Next() {
		var c models.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.CreatedAt); err != nil {
			writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to scan category"})
			return
		}
		items = append(items, c)
	}
	if err := rows.Err(); err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to read categories"})
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) createEquipment(w http.ResponseWriter, r *http.Request) {
	var req models.CreateEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Number) == "" || req.CategoryID == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "name, number, and category_id are required", Code: "MISSING_FIELDS"})
		return
	}

	q := dbFrom(r.Context(), s.DB)
	var e models.Equipment
	var status string
	err := q.QueryRowContext(r.Context(), `
		INSERT INTO equipment (name, number, category_id, status, image_url, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, name, number, category_id, status, image_url, notes, created_at, updated_at`,
		req.Name, req.Number, req.CategoryID, string(models.EquipmentAvailable), req.ImageURL, req.Notes).
		Scan(&e.ID, &e.Name, &e.Number, &e.CategoryID, &status, &e.ImageURL, &e.Notes, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			writeJSON(w, http.StatusConflict, apiError{Error: "equipment number already exists", Code: "DUPLICATE_NUMBER"})
			return
		}
		if strings.Contains(err.Error(), "foreign key") {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "category does not exist", Code: "INVALID_CATEGORY"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to create equipment"})
		return
	}
	e.Status = models.EquipmentStatus(status)
	writeJSON(w, http.StatusCreated, e)
}

func (s *Server) updateEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid equipment id", Code: "INVALID_ID"})
		return
	}

	var req models.UpdateEquipmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}

	// Build a dynamic SET clause from the provided fields only
	set := []string{}
	args := []any{}
	add := func(col string, val any) {
		args = append(args, val)
		set = append(set, col+" = $"+strconv.Itoa(len(args)))
	}
	if req.Name != nil {
		add("name", *req.Name)
	}
	if req.Number != nil {
		add("number", *req.Number)
	}
	if req.CategoryID != nil {
		add("category_id", *req.CategoryID)
	}
	if req.Status != nil {
		if !models.ValidEquipmentStatus(*req.Status) {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid equipment status", Code: "INVALID_STATUS"})
			return
		}
		add("status", string(*req.Status))
	}
	if req.ImageURL != nil {
		add("image_url", *req.ImageURL)
	}
	if req.Notes != nil {
		add("notes", *req.Notes)
	}
	if len(set) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "no fields to update", Code: "EMPTY_UPDATE"})
		return
	}
	set = append(set, "updated_at = now()")
	args = append(args, id)

	query := `UPDATE equipment SET ` + strings.Join(set, ", ") +
		` WHERE id = $` + strconv.Itoa(len(args)) +
		` RETURNING id, name, number, category_id, status, image_url, notes, created_at, updated_at`

	q := dbFrom(r.Context(), s.DB)
	var e models.Equipment
	var status string
	err = q.QueryRowContext(r.Context(), query, args...).
		Scan(&e.ID, &e.Name, &e.Number, &e.CategoryID, &status, &e.ImageURL, &e.Notes, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "equipment not found", Code: "NOT_FOUND"})
		return
	}
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			writeJSON(w, http.StatusConflict, apiError{Error: "equipment number already exists", Code: "DUPLICATE_NUMBER"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to update equipment"})
		return
	}
	e.Status = models.EquipmentStatus(status)
	writeJSON(w, http.StatusOK, e)
}

func (s *Server) deleteEquipment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid equipment id", Code: "INVALID_ID"})
		return
	}

	q := dbFrom(r.Context(), s.DB)
	res, err := q.ExecContext(r.Context(), `DELETE FROM equipment WHERE id = $1`, id)
	if err != nil {
		if strings.Contains(err.Error(), "foreign key") {
			writeJSON(w, http.StatusConflict, apiError{Error: "equipment has booking history; retire it instead", Code: "HAS_BOOKINGS"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to delete equipment"})
		return
	}
	if n, _ := res.RowsAffected(); n == 0 {
		writeJSON(w, http.StatusNotFound, apiError{Error: "equipment not found", Code: "NOT_FOUND"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
