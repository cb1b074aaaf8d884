package internal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"gear-lending-api/internal/booking"
	"gear-lending-api/internal/models"
)

var pgDialect = goqu.Dialect("postgres")

// PGStore backs the booking core with Postgres. Overlap rejection is
// ultimately enforced by the EXCLUDE constraints on reservations and loans;
// this store translates those violations into conflict errors.
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

// conflictFromPG maps exclusion (23P01) and unique (23505) violations to a
// conflict error the booking service recognizes. Other errors pass through.
func conflictFromPG(err error, context string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23P01":
			return &booking.ConflictError{Message: context + ": overlapping booking rejected by storage", Storage: true}
		case "23505":
			return &booking.ConflictError{Message: context + ": duplicate rejected by storage", Storage: true}
		}
	}
	return err
}

func activeReservationValues() []any {
	vals := make([]any, 0, len(models.ActiveReservationStatuses))
	for _, s := range models.ActiveReservationStatuses {
		vals = append(vals, string(s))
	}
	return vals
}

func activeLoanValues() []any {
	vals := make([]any, 0, len(models.ActiveLoanStatuses))
	for _, s := range models.ActiveLoanStatuses {
		vals = append(vals, string(s))
	}
	return vals
}

const reservationColumns = `id, reference, user_id, equipment_id, start_date, end_date, status,
	approved_by, approved_at, rejection_reason, loan_id, completed_by, completed_at, created_at, updated_at`

const loanColumns = `id, reference, user_id, equipment_id, start_date, end_date, status,
	approved_by, approved_at, rejection_reason, returned_at, return_condition, return_notes, created_at, updated_at`

func scanReservation(row interface{ Scan(...any) error }) (models.Reservation, error) {
	var r models.Reservation
	var status string
	err := row.Scan(&r.ID, &r.Reference, &r.UserID, &r.EquipmentID, &r.StartDate, &r.EndDate, &status,
		&r.ApprovedBy, &r.ApprovedAt, &r.RejectionReason, &r.LoanID, &r.CompletedBy, &r.CompletedAt,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return models.Reservation{}, err
	}
	r.Status = models.ReservationStatus(status)
	return r, nil
}

func scanLoan(row interface{ Scan(...any) error }) (models.Loan, error) {
	var l models.Loan
	var status string
	var condition sql.NullString
	err := row.Scan(&l.ID, &l.Reference, &l.UserID, &l.EquipmentID, &l.StartDate, &l.EndDate, &status,
		&l.ApprovedBy, &l.ApprovedAt, &l.RejectionReason, &l.ReturnedAt, &condition, &l.ReturnNotes,
		&l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return models.Loan{}, err
	}
	l.Status = models.LoanStatus(status)
	if condition.Valid {
		c := models.ReturnCondition(condition.String)
		l.ReturnCondition = &c
	}
	return l, nil
}

func (s *PGStore) EquipmentByID(ctx context.Context, id int64) (models.Equipment, error) {
	q := dbFrom(ctx, s.db)
	var e models.Equipment
	var status string
	err := q.QueryRowContext(ctx, `
		SELECT e.id, e.name, e.number, e.category_id, c.name, e.status, e.image_url, e.notes, e.created_at, e.updated_at
		FROM equipment e
		JOIN categories c ON c.id = e.category_id
		WHERE e.id = $1`, id).
		Scan(&e.ID, &e.Name, &e.Number, &e.CategoryID, &e.CategoryName, &status, &e.ImageURL, &e.Notes, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Equipment{}, booking.ErrNotFound
	}
	if err != nil {
		return models.Equipment{}, fmt.Errorf("get equipment: %w", err)
	}
	e.Status = models.EquipmentStatus(status)
	return e, nil
}

func (s *PGStore) SetEquipmentStatus(ctx context.Context, id int64, status models.EquipmentStatus) error {
	q := dbFrom(ctx, s.db)
	res, err := q.ExecContext(ctx,
		`UPDATE equipment SET status = $1, updated_at = now() WHERE id = $2`, string(status), id)
	if err != nil {
		return fmt.Errorf("set equipment status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (s *PGStore) ActiveReservationsForEquipment(ctx context.Context, equipmentID int64) ([]models.Reservation, error) {
	query, args, err := pgDialect.From("reservations").
		Select(goqu.L(reservationColumns)).
		Where(
			goqu.C("equipment_id").Eq(equipmentID),
			goqu.C("status").In(activeReservationValues()...),
		).
		Order(goqu.C("start_date").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	q := dbFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("active reservations: %w", err)
	}
	defer rows.Close()

	var out []models.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) ActiveLoansForEquipment(ctx context.Context, equipmentID int64) ([]models.Loan, error) {
	query, args, err := pgDialect.From("loans").
		Select(goqu.L(loanColumns)).
		Where(
			goqu.C("equipment_id").Eq(equipmentID),
			goqu.C("status").In(activeLoanValues()...),
		).
		Order(goqu.C("start_date").Asc()).
		Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	q := dbFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("active loans: %w", err)
	}
	defer rows.Close()

	var out []models.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// UserHoldsCategory reports whether the user already has a non-terminal
// reservation or loan on any equipment in the given category.
func (s *PGStore) UserHoldsCategory(ctx context.Context, userID, categoryID int64) (bool, error) {
	q := dbFrom(ctx, s.db)
	var holds bool
	err := q.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM reservations r
			JOIN equipment e ON e.id = r.equipment_id
			WHERE r.user_id = $1 AND e.category_id = $2 AND r.status = ANY($3)
		) OR EXISTS (
			SELECT 1 FROM loans l
			JOIN equipment e ON e.id = l.equipment_id
			WHERE l.user_id = $1 AND e.category_id = $2 AND l.status = ANY($4)
		)`,
		userID, categoryID,
		pq.Array(statusStrings(models.ActiveReservationStatuses)),
		pq.Array(statusStrings(models.ActiveLoanStatuses)),
	).Scan(&holds)
	if err != nil {
		return false, fmt.Errorf("check category hold: %w", err)
	}
	return holds, nil
}

func statusStrings[T ~string](in []T) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = string(v)
	}
	return out
}

func (s *PGStore) CountActiveReservations(ctx context.Context, userID int64) (int, error) {
	q := dbFrom(ctx, s.db)
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE user_id = $1 AND status = ANY($2)`,
		userID, pq.Array(statusStrings(models.ActiveReservationStatuses))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count reservations: %w", err)
	}
	return n, nil
}

func (s *PGStore) CountActiveLoans(ctx context.Context, userID int64) (int, error) {
	q := dbFrom(ctx, s.db)
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM loans WHERE user_id = $1 AND status = ANY($2)`,
		userID, pq.Array(statusStrings(models.ActiveLoanStatuses))).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count loans: %w", err)
	}
	return n, nil
}

func (s *PGStore) CreateReservation(ctx context.Context, r *models.Reservation) error {
	q := dbFrom(ctx, s.db)
	err := q.QueryRowContext(ctx, `
		INSERT INTO reservations (reference, user_id, equipment_id, start_date, end_date, status, approved_by, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		r.Reference, r.UserID, r.EquipmentID, r.StartDate, r.EndDate, string(r.Status), r.ApprovedBy, r.ApprovedAt).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return conflictFromPG(err, "create reservation")
	}
	return nil
}

func (s *PGStore) CreateLoan(ctx context.Context, l *models.Loan) error {
	q := dbFrom(ctx, s.db)
	err := q.QueryRowContext(ctx, `
		INSERT INTO loans (reference, user_id, equipment_id, start_date, end_date, status, approved_by, approved_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`,
		l.Reference, l.UserID, l.EquipmentID, l.StartDate, l.EndDate, string(l.Status), l.ApprovedBy, l.ApprovedAt).
		Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return conflictFromPG(err, "create loan")
	}
	return nil
}

func (s *PGStore) ReservationByID(ctx context.Context, id int64) (models.Reservation, error) {
	q := dbFrom(ctx, s.db)
	r, err := scanReservation(q.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Reservation{}, booking.ErrNotFound
	}
	if err != nil {
		return models.Reservation{}, fmt.Errorf("get reservation: %w", err)
	}
	return r, nil
}

func (s *PGStore) LoanByID(ctx context.Context, id int64) (models.Loan, error) {
	q := dbFrom(ctx, s.db)
	l, err := scanLoan(q.QueryRowContext(ctx,
		`SELECT `+loanColumns+` FROM loans WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Loan{}, booking.ErrNotFound
	}
	if err != nil {
		return models.Loan{}, fmt.Errorf("get loan: %w", err)
	}
	return l, nil
}

// SetReservationStatus performs a guarded transition: the row must still be
// in the expected prior status or no row matches and ErrNotFound comes back.
func (s *PGStore) SetReservationStatus(ctx context.Context, id int64, from, to models.ReservationStatus, actorID *int64, reason *string) error {
	q := dbFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		UPDATE reservations
		SET status = $1,
		    approved_by = COALESCE($2, approved_by),
		    approved_at = CASE WHEN $2::bigint IS NOT NULL THEN now() ELSE approved_at END,
		    rejection_reason = COALESCE($3, rejection_reason),
		    updated_at = now()
		WHERE id = $4 AND status = $5`,
		string(to), actorID, reason, id, string(from))
	if err != nil {
		return fmt.Errorf("set reservation status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (s *PGStore) SetLoanStatus(ctx context.Context, id int64, from, to models.LoanStatus, actorID *int64, reason *string) error {
	q := dbFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		UPDATE loans
		SET status = $1,
		    approved_by = COALESCE($2, approved_by),
		    approved_at = CASE WHEN $2::bigint IS NOT NULL THEN now() ELSE approved_at END,
		    rejection_reason = COALESCE($3, rejection_reason),
		    updated_at = now()
		WHERE id = $4 AND status = $5`,
		string(to), actorID, reason, id, string(from))
	if err != nil {
		return fmt.Errorf("set loan status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (s *PGStore) MarkLoanReturned(ctx context.Context, id int64, at time.Time, condition models.ReturnCondition, notes string) error {
	q := dbFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		UPDATE loans
		SET status = $1, returned_at = $2, return_condition = $3, return_notes = NULLIF($4, ''), updated_at = now()
		WHERE id = $5 AND status = $6`,
		string(models.LoanReturned), at, string(condition), notes, id, string(models.LoanApproved))
	if err != nil {
		return fmt.Errorf("mark loan returned: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (s *PGStore) CompleteReservation(ctx context.Context, id, loanID, staffID int64, at time.Time) error {
	q := dbFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		UPDATE reservations
		SET status = $1, loan_id = $2, completed_by = $3, completed_at = $4, updated_at = now()
		WHERE id = $5 AND status IN ($6, $7)`,
		string(models.ReservationCompleted), loanID, staffID, at, id,
		string(models.ReservationReady), string(models.ReservationApproved))
	if err != nil {
		return fmt.Errorf("complete reservation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (s *PGStore) ReopenReservation(ctx context.Context, id int64, prior models.ReservationStatus) error {
	q := dbFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `
		UPDATE reservations
		SET status = $1, loan_id = NULL, completed_by = NULL, completed_at = NULL, updated_at = now()
		WHERE id = $2`,
		string(prior), id)
	if err != nil {
		return fmt.Errorf("reopen reservation: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (s *PGStore) DeleteLoan(ctx context.Context, id int64) error {
	q := dbFrom(ctx, s.db)
	res, err := q.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete loan: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return booking.ErrNotFound
	}
	return nil
}

func (s *PGStore) RecordActivity(ctx context.Context, entry models.StaffActivity) error {
	q := dbFrom(ctx, s.db)
	_, err := q.ExecContext(ctx, `
		INSERT INTO staff_activity (actor_id, actor_role, action, target_kind, target_id, affected_user_id, self_action, details)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		entry.ActorID, entry.ActorRole, entry.Action, entry.TargetKind, entry.TargetID,
		entry.AffectedUserID, entry.SelfAction, entry.Details)
	if err != nil {
		return fmt.Errorf("record activity: %w", err)
	}
	return nil
}

// ReadSettings implements settings.Reader against the singleton settings row.
func (s *PGStore) ReadSettings(ctx context.Context) (models.Settings, error) {
	var (
		out      models.Settings
		weekdays []int64
		dates    []string
		limits   []byte
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT booking_enabled, opening_time, closing_time, closed_weekdays, closed_dates, max_advance_days, limits, updated_at
		FROM system_settings WHERE id = 1`).
		Scan(&out.BookingEnabled, &out.OpeningTime, &out.ClosingTime,
			pq.Array(&weekdays), pq.Array(&dates), &out.MaxAdvanceDays, &limits, &out.UpdatedAt)
	if err != nil {
		return models.Settings{}, fmt.Errorf("read settings: %w", err)
	}
	for _, d := range weekdays {
		out.ClosedWeekdays = append(out.ClosedWeekdays, time.Weekday(d))
	}
	out.ClosedDates = dates
	if len(limits) > 0 {
		if err := json.Unmarshal(limits, &out.Limits); err != nil {
			return models.Settings{}, fmt.Errorf("decode role limits: %w", err)
		}
	}
	return out, nil
}

// WriteSettings replaces the singleton settings row.
func (s *PGStore) WriteSettings(ctx context.Context, in models.Settings) error {
	limits, err := json.Marshal(in.Limits)
	if err != nil {
		return fmt.Errorf("encode role limits: %w", err)
	}
	weekdays := make([]int64, 0, len(in.ClosedWeekdays))
	for _, d := range in.ClosedWeekdays {
		weekdays = append(weekdays, int64(d))
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE system_settings
		SET booking_enabled = $1, opening_time = $2, closing_time = $3,
		    closed_weekdays = $4, closed_dates = $5, max_advance_days = $6, limits = $7, updated_at = now()
		WHERE id = 1`,
		in.BookingEnabled, in.OpeningTime, in.ClosingTime,
		pq.Array(weekdays), pq.Array(in.ClosedDates), in.MaxAdvanceDays, limits)
	if err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// bookingFilter narrows reservation and loan list queries.
type bookingFilter struct {
	userID      int64 // 0 means all users
	equipmentID int64
	status      string
	limit       int
	offset      int
}

func (f bookingFilter) apply(ds *goqu.SelectDataset) *goqu.SelectDataset {
	if f.userID > 0 {
		ds = ds.Where(goqu.C("user_id").Eq(f.userID))
	}
	if f.equipmentID > 0 {
		ds = ds.Where(goqu.C("equipment_id").Eq(f.equipmentID))
	}
	if f.status != "" {
		ds = ds.Where(goqu.C("status").Eq(f.status))
	}
	if f.limit > 0 {
		ds = ds.Limit(uint(f.limit))
	}
	if f.offset > 0 {
		ds = ds.Offset(uint(f.offset))
	}
	return ds
}

func (s *PGStore) ListReservations(ctx context.Context, f bookingFilter) ([]models.Reservation, error) {
	ds := pgDialect.From("reservations").
		Select(goqu.L(reservationColumns)).
		Order(goqu.C("created_at").Desc())
	query, args, err := f.apply(ds).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	q := dbFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	out := []models.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *PGStore) ListLoans(ctx context.Context, f bookingFilter) ([]models.Loan, error) {
	ds := pgDialect.From("loans").
		Select(goqu.L(loanColumns)).
		Order(goqu.C("created_at").Desc())
	query, args, err := f.apply(ds).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	q := dbFrom(ctx, s.db)
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list loans: %w", err)
	}
	defer rows.Close()

	out := []models.Loan{}
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
