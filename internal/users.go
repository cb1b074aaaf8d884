package internal

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"gear-lending-api/internal/auth"
	"gear-lending-api/internal/models"
)

const userColumns = `id, email, password_hash, full_name, role, status, created_at, updated_at, approved_by, approved_at, last_login_at`

func scanUser(row interface{ Scan(...any) error }) (models.User, error) {
	var u models.User
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.Status,
		&u.CreatedAt, &u.UpdatedAt, &u.ApprovedBy, &u.ApprovedAt, &u.LastLoginAt)
	return u, err
}

// registerUser handles self-service sign-up. Accounts start pending and
// cannot log in until staff approve them. Only borrower roles may be
// self-assigned; staff and admin accounts are created by an admin.
func (s *Server) registerUser(w http.ResponseWriter, r *http.Request) {
	var req models.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}

	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "a valid email is required", Code: "INVALID_EMAIL"})
		return
	}
	if len(req.Password) < 8 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "password must be at least 8 characters", Code: "WEAK_PASSWORD"})
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "full name is required", Code: "MISSING_NAME"})
		return
	}
	if req.Role != models.RoleStudent && req.Role != models.RoleLecturer {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "role must be student or lecturer", Code: "INVALID_ROLE"})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to process password"})
		return
	}

	var u models.User
	err = s.DB.QueryRowContext(r.Context(), `
		INSERT INTO users (email, password_hash, full_name, role, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userColumns,
		req.Email, string(hash), req.FullName, req.Role, models.UserPending).
		Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.Status,
			&u.CreatedAt, &u.UpdatedAt, &u.ApprovedBy, &u.ApprovedAt, &u.LastLoginAt)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			writeJSON(w, http.StatusConflict, apiError{Error: "email already registered", Code: "DUPLICATE_EMAIL"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to create user"})
		return
	}

	writeJSON(w, http.StatusCreated, u.Redacted())
}

// loginUser authenticates a user and returns a JWT. Pending and suspended
// accounts are rejected with a distinct code so the client can explain why.
func (s *Server) loginUser(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	u, err := scanUser(s.DB.QueryRowContext(r.Context(),
		`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusUnauthorized, apiError{Error: "invalid credentials", Code: "INVALID_CREDENTIALS"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to look up user"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		writeJSON(w, http.StatusUnauthorized, apiError{Error: "invalid credentials", Code: "INVALID_CREDENTIALS"})
		return
	}

	switch u.Status {
	case models.UserApproved:
	case models.UserPending:
		writeJSON(w, http.StatusForbidden, apiError{Error: "account is awaiting staff approval", Code: "ACCOUNT_PENDING"})
		return
	default:
		writeJSON(w, http.StatusForbidden, apiError{Error: "account is suspended", Code: "ACCOUNT_SUSPENDED"})
		return
	}

	token, err := s.JWTManager.GenerateToken(u.ID, u.Role)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to generate token"})
		return
	}

	// Best-effort last-login stamp
	_, _ = s.DB.ExecContext(r.Context(),
		`UPDATE users SET last_login_at = now() WHERE id = $1`, u.ID)

	writeJSON(w, http.StatusOK, models.LoginResponse{Token: token, User: u.Redacted()})
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	params := parseListParams(r)

	query := `SELECT ` + userColumns + `, COUNT(*) OVER() AS total FROM users WHERE 1=1`
	args := []any{}
	if params.q != "" {
		args = append(args, "%"+params.q+"%")
		n := strconv.Itoa(len(args))
		query += ` AND (email ILIKE $` + n + ` OR full_name ILIKE $` + n + `)`
	}
	if params.status != "" {
		args = append(args, params.status)
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	query += buildOrderBy(params.sort, map[string]string{
		"id": "id", "email": "email", "name": "full_name", "role": "role", "status": "status", "created": "created_at",
	})
	args = append(args, params.limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))
	args = append(args, params.offset)
	query += ` OFFSET $` + strconv.Itoa(len(args))

	q := dbFrom(r.Context(), s.DB)
	rows, err := q.QueryContext(r.Context(), query, args...)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to list users"})
		return
	}
	defer rows.Close()

	total := 0
	items := []models.User{}
	for rows.Next() {
		var u models.User
		if err := rows.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.Status,
			&u.CreatedAt, &u.UpdatedAt, &u.ApprovedBy, &u.ApprovedAt, &u.LastLoginAt, &total); err != nil {
			writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to scan user"})
			return
		}
		items = append(items, u.Redacted())
	}
	if err := rows.Err(); err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to read users"})
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Items: items, Total: total, Limit: params.limit, Offset: params.offset})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid user id", Code: "INVALID_ID"})
		return
	}
	u, err := scanUser(s.DB.QueryRowContext(r.Context(),
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "user not found", Code: "NOT_FOUND"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to get user"})
		return
	}
	writeJSON(w, http.StatusOK, u.Redacted())
}

// approveUser moves a pending account to approved and records who did it.
func (s *Server) approveUser(w http.ResponseWriter, r *http.Request) {
	s.setUserStatus(w, r, models.UserApproved, models.ActionApproveUser)
}

// suspendUser blocks an account from logging in.
func (s *Server) suspendUser(w http.ResponseWriter, r *http.Request) {
	s.setUserStatus(w, r, models.UserSuspended, models.ActionSuspendUser)
}

func (s *Server) setUserStatus(w http.ResponseWriter, r *http.Request, status, action string) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid user id", Code: "INVALID_ID"})
		return
	}
	actorID := auth.UserIDFromContext(r.Context())
	actorRole := auth.RoleFromContext(r.Context())

	q := dbFrom(r.Context(), s.DB)
	u, err := scanUser(q.QueryRowContext(r.Context(), `
		UPDATE users
		SET status = $1,
		    approved_by = CASE WHEN $1 = 'approved' THEN $2::bigint ELSE approved_by END,
		    approved_at = CASE WHEN $1 = 'approved' THEN now() ELSE approved_at END,
		    updated_at = now()
		WHERE id = $3
		RETURNING `+userColumns, status, actorID, id))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "user not found", Code: "NOT_FOUND"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to update user status"})
		return
	}

	affected := u.ID
	_ = s.Store.RecordActivity(r.Context(), models.StaffActivity{
		ActorID:        actorID,
		ActorRole:      actorRole,
		Action:         action,
		TargetKind:     models.TargetUser,
		TargetID:       u.ID,
		AffectedUserID: &affected,
		SelfAction:     affected == actorID,
	})

	writeJSON(w, http.StatusOK, u.Redacted())
}

// updateUser is the admin edit: name, role, status.
func (s *Server) updateUser(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid user id", Code: "INVALID_ID"})
		return
	}

	var req models.UpdateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}

	set := []string{}
	args := []any{}
	add := func(col string, val any) {
		args = append(args, val)
		set = append(set, col+" = $"+strconv.Itoa(len(args)))
	}
	if req.FullName != nil {
		add("full_name", *req.FullName)
	}
	if req.Role != nil {
		if !models.IsValidRole(*req.Role) {
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid role", Code: "INVALID_ROLE"})
			return
		}
		add("role", *req.Role)
	}
	if req.Status != nil {
		switch *req.Status {
		case models.UserPending, models.UserApproved, models.UserSuspended:
		default:
			writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid status", Code: "INVALID_STATUS"})
			return
		}
		add("status", *req.Status)
	}
	if len(set) == 0 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "no fields to update", Code: "EMPTY_UPDATE"})
		return
	}
	set = append(set, "updated_at = now()")
	args = append(args, id)

	q := dbFrom(r.Context(), s.DB)
	u, err := scanUser(q.QueryRowContext(r.Context(),
		`UPDATE users SET `+strings.Join(set, ", ")+` WHERE id = $`+strconv.Itoa(len(args))+
			` RETURNING `+userColumns, args...))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "user not found", Code: "NOT_FOUND"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to update user"})
		return
	}
	writeJSON(w, http.StatusOK, u.Redacted())
}

func (s *Server) getUserProfile(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	u, err := scanUser(s.DB.QueryRowContext(r.Context(),
		`SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		writeJSON(w, http.StatusNotFound, apiError{Error: "user not found", Code: "NOT_FOUND"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to get profile"})
		return
	}
	writeJSON(w, http.StatusOK, u.Redacted())
}

func (s *Server) changePassword(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	var req models.ChangePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "invalid request body", Code: "INVALID_BODY"})
		return
	}
	if len(req.NewPassword) < 8 {
		writeJSON(w, http.StatusBadRequest, apiError{Error: "new password must be at least 8 characters", Code: "WEAK_PASSWORD"})
		return
	}

	var currentHash string
	err := s.DB.QueryRowContext(r.Context(),
		`SELECT password_hash FROM users WHERE id = $1`, userID).Scan(&currentHash)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to look up user"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(currentHash), []byte(req.CurrentPassword)); err != nil {
		writeJSON(w, http.StatusUnauthorized, apiError{Error: "current password is incorrect", Code: "INVALID_CREDENTIALS"})
		return
	}

	newHash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to process password"})
		return
	}
	if _, err := s.DB.ExecContext(r.Context(),
		`UPDATE users SET password_hash = $1, updated_at = now() WHERE id = $2`, string(newHash), userID); err != nil {
		writeJSON(w, http.StatusInternalServerError, apiError{Error: "failed to change password"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "password changed"})
}
