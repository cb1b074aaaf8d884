package internal

import (
	"net/http"
	"strconv"

	"gear-lending-api/internal/models"
)

// listActivity returns the staff audit trail, newest first. Supports
// filtering by actor_id, action, and target kind.
func (s *Server) listActivity(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	query := `SELECT id, actor_id, actor_role, action, target_kind, target_id, affected_user_id, self_action, details, created_at,
	       COUNT(*) OVER() AS total
	FROM staff_activity WHERE 1=1`
	args := []any{}

	if aid, err := strconv.ParseInt(r.URL.Query().Get("actor_id"), 10, 64); err == nil && aid > 0 {
		args = append(args, aid)
		query += ` AND actor_id = $` + strconv.Itoa(len(args))
	}
	if action := r.URL.Query().Get("action"); action != "" {
		args = append(args, action)
		query += ` AND action = $` + strconv.Itoa(len(args))
	}
	if kind := r.URL.Query().Get("target_kind"); kind != "" {
		args = append(args, kind)
		query += ` AND target_kind = $` + strconv.Itoa(len(args))
	}

	query += ` ORDER BY created_at DESC, id DESC`
	args = append(args, params.limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, params.offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	q := dbFrom(r.Context(), s.DB)
	rows, err := q.QueryContext(r.Context(), query, args...)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to list activity"})
		return
	}
	defer rows.Close()

	total := 0
	items := []models.StaffActivity{}
	for rows.Next() {
		var a models.StaffActivity
		if err := rows.Scan(&a.ID, &a.ActorID, &a.ActorRole, &a.Action, &a.TargetKind, &a.TargetID,
			&a.AffectedUserID, &a.SelfAction, &a.Details, &a.CreatedAt, &total); err != nil {
			writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to scan activity"})
			return
		}
		items = append(items, a)
	}
	if err := rows.Err(); err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to read activity"})
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: params.limit, Offset: params.offset})
}
