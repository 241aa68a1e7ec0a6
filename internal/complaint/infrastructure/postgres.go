package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/gramseva/complaint-portal/internal/complaint/domain"
	"github.com/gramseva/complaint-portal/internal/shared/errors"
	"github.com/gramseva/complaint-portal/internal/shared/types"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const complaintColumns = `
	id, complaint_id, category, description, images,
	latitude, longitude, address,
	citizen_phone, citizen_name,
	status, priority,
	assigned_to, assigned_at, resolved_at,
	estimated_resolution_time, actual_resolution_time,
	resolution_notes, resolution_images, status_history, internal_notes,
	created_at, updated_at, version`

// PostgresComplaintRepository implements domain.ComplaintRepository using PostgreSQL
type PostgresComplaintRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresComplaintRepository creates a new PostgreSQL complaint repository
func NewPostgresComplaintRepository(pool *pgxpool.Pool) *PostgresComplaintRepository {
	return &PostgresComplaintRepository{pool: pool}
}

// complaintDocs holds the JSONB encodings of a complaint's nested lists
type complaintDocs struct {
	images, resolutionImages, history, notes []byte
}

func marshalComplaintDocs(c *domain.Complaint) (*complaintDocs, error) {
	var (
		d   complaintDocs
		err error
	)
	if d.images, err = json.Marshal(nonNil(c.Images)); err != nil {
		return nil, errors.Wrap(err, "failed to marshal images")
	}
	if d.resolutionImages, err = json.Marshal(nonNil(c.ResolutionImages)); err != nil {
		return nil, errors.Wrap(err, "failed to marshal resolution images")
	}
	if d.history, err = json.Marshal(nonNil(c.StatusHistory)); err != nil {
		return nil, errors.Wrap(err, "failed to marshal status history")
	}
	if d.notes, err = json.Marshal(nonNil(c.InternalNotes)); err != nil {
		return nil, errors.Wrap(err, "failed to marshal internal notes")
	}
	return &d, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// Create inserts a new complaint at version 1
func (r *PostgresComplaintRepository) Create(ctx context.Context, c *domain.Complaint) error {
	docs, err := marshalComplaintDocs(c)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO complaints (` + complaintColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23, 1
		)`

	_, err = r.pool.Exec(ctx, query,
		c.ID, c.ComplaintID, c.Category, c.Description, docs.images,
		c.Location.Latitude, c.Location.Longitude, c.Location.Address,
		c.CitizenPhone, c.CitizenName,
		c.Status, c.Priority,
		c.AssignedTo, c.AssignedAt, c.ResolvedAt,
		c.EstimatedResolutionTime, c.ActualResolutionTime,
		c.ResolutionNotes, docs.resolutionImages, docs.history, docs.notes,
		c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "complaints_complaint_id_key") {
			return domain.ErrDuplicateComplaintCode
		}
		if isUniqueViolation(err, "") {
			return errors.Conflict("complaint already exists")
		}
		return errors.Wrap(err, "failed to save complaint")
	}

	c.Version = 1
	return nil
}

// FindByID finds a complaint by ID
func (r *PostgresComplaintRepository) FindByID(ctx context.Context, id types.ID) (*domain.Complaint, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE id = $1`, id)
	c, err := scanComplaint(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("complaint", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find complaint")
	}
	return c, nil
}

// FindByComplaintID finds a complaint by its CMP code
func (r *PostgresComplaintRepository) FindByComplaintID(ctx context.Context, code string) (*domain.Complaint, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+complaintColumns+` FROM complaints WHERE complaint_id = $1`, code)
	c, err := scanComplaint(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("complaint", code)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find complaint by code")
	}
	return c, nil
}

// Update writes the complaint if the stored version still matches
func (r *PostgresComplaintRepository) Update(ctx context.Context, c *domain.Complaint) error {
	docs, err := marshalComplaintDocs(c)
	if err != nil {
		return err
	}

	query := `
		UPDATE complaints SET
			description = $3, images = $4,
			status = $5, priority = $6,
			assigned_to = $7, assigned_at = $8, resolved_at = $9,
			estimated_resolution_time = $10, actual_resolution_time = $11,
			resolution_notes = $12, resolution_images = $13,
			status_history = $14, internal_notes = $15,
			updated_at = $16, version = version + 1
		WHERE id = $1 AND version = $2`

	result, err := r.pool.Exec(ctx, query,
		c.ID, c.Version,
		c.Description, docs.images,
		c.Status, c.Priority,
		c.AssignedTo, c.AssignedAt, c.ResolvedAt,
		c.EstimatedResolutionTime, c.ActualResolutionTime,
		c.ResolutionNotes, docs.resolutionImages,
		docs.history, docs.notes,
		c.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update complaint")
	}

	if result.RowsAffected() == 0 {
		return missOrStale(ctx, r.pool, "complaints", "complaint", c.ID)
	}

	c.Version++
	return nil
}

// missOrStale distinguishes a deleted row from a lost CAS race
func missOrStale(ctx context.Context, pool *pgxpool.Pool, table, resource string, id types.ID) error {
	var exists bool
	err := pool.QueryRow(ctx, fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, table), id).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "failed to check "+resource)
	}
	if !exists {
		return errors.NotFound(resource, id.String())
	}
	return domain.ErrVersionMismatch
}

// Find returns all matching complaints, newest first
func (r *PostgresComplaintRepository) Find(ctx context.Context, filter domain.ComplaintFilter) ([]domain.Complaint, error) {
	where, args := complaintWhere(filter)
	query := fmt.Sprintf(`SELECT %s FROM complaints %s ORDER BY created_at DESC, id`, complaintColumns, where)
	return r.query(ctx, query, args...)
}

// List returns one page of matching complaints and the total count
func (r *PostgresComplaintRepository) List(ctx context.Context, filter domain.ComplaintFilter, page domain.Page) ([]domain.Complaint, int, error) {
	page = page.Normalize()
	where, args := complaintWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM complaints "+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count complaints")
	}

	orderBy, orderDir := "created_at", "DESC"
	if page.SortBy != "" {
		orderBy = complaintSortColumn(page.SortBy)
		orderDir = "ASC"
		if page.SortDesc {
			orderDir = "DESC"
		}
	}

	query := fmt.Sprintf(`
		SELECT %s FROM complaints
		%s
		ORDER BY %s %s, id
		LIMIT $%d OFFSET $%d`, complaintColumns, where, orderBy, orderDir, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset())

	complaints, err := r.query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return complaints, total, nil
}

// Count returns the number of matching complaints
func (r *PostgresComplaintRepository) Count(ctx context.Context, filter domain.ComplaintFilter) (int, error) {
	where, args := complaintWhere(filter)
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM complaints "+where, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count complaints")
	}
	return n, nil
}

func (r *PostgresComplaintRepository) query(ctx context.Context, query string, args ...any) ([]domain.Complaint, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list complaints")
	}
	defer rows.Close()

	complaints := make([]domain.Complaint, 0)
	for rows.Next() {
		c, err := scanComplaint(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan complaint")
		}
		complaints = append(complaints, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate complaints")
	}
	return complaints, nil
}

func complaintSortColumn(sortBy string) string {
	switch sortBy {
	case "priority":
		return "CASE priority WHEN 'low' THEN 0 WHEN 'medium' THEN 1 WHEN 'high' THEN 2 ELSE 3 END"
	case "updated_at", "status", "category", "complaint_id":
		return sortBy
	default:
		return "created_at"
	}
}

func complaintWhere(filter domain.ComplaintFilter) (string, []any) {
	var conditions []string
	var args []any
	argNum := 1

	add := func(cond string, arg any) {
		conditions = append(conditions, fmt.Sprintf(cond, argNum))
		args = append(args, arg)
		argNum++
	}

	if filter.CreatedFrom != nil {
		add("created_at >= $%d", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		add("created_at <= $%d", *filter.CreatedTo)
	}
	if filter.Category != nil {
		add("category = $%d", string(*filter.Category))
	}
	if filter.Status != nil {
		add("status = $%d", string(*filter.Status))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, s := range filter.Statuses {
			statuses[i] = string(s)
		}
		add("status = ANY($%d)", statuses)
	}
	if filter.Priority != nil {
		add("priority = $%d", string(*filter.Priority))
	}
	if filter.AssignedTo != nil {
		add("assigned_to = $%d", *filter.AssignedTo)
	}
	if filter.CitizenPhone != "" {
		add("citizen_phone = $%d", filter.CitizenPhone)
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanComplaint(row pgx.Row) (*domain.Complaint, error) {
	c := &domain.Complaint{}
	var imagesJSON, resolutionImagesJSON, historyJSON, notesJSON []byte

	err := row.Scan(
		&c.ID, &c.ComplaintID, &c.Category, &c.Description, &imagesJSON,
		&c.Location.Latitude, &c.Location.Longitude, &c.Location.Address,
		&c.CitizenPhone, &c.CitizenName,
		&c.Status, &c.Priority,
		&c.AssignedTo, &c.AssignedAt, &c.ResolvedAt,
		&c.EstimatedResolutionTime, &c.ActualResolutionTime,
		&c.ResolutionNotes, &resolutionImagesJSON, &historyJSON, &notesJSON,
		&c.CreatedAt, &c.UpdatedAt, &c.Version,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(imagesJSON, &c.Images); err != nil {
		return nil, fmt.Errorf("decode images: %w", err)
	}
	if err := json.Unmarshal(resolutionImagesJSON, &c.ResolutionImages); err != nil {
		return nil, fmt.Errorf("decode resolution images: %w", err)
	}
	if err := json.Unmarshal(historyJSON, &c.StatusHistory); err != nil {
		return nil, fmt.Errorf("decode status history: %w", err)
	}
	if err := json.Unmarshal(notesJSON, &c.InternalNotes); err != nil {
		return nil, fmt.Errorf("decode internal notes: %w", err)
	}
	return c, nil
}

// isUniqueViolation reports a duplicate key error, optionally on a named constraint
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != "23505" {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// --- Technicians ---

const technicianColumns = `
	id, user_id, name, phone, specialization,
	active_complaints, resolved_count, total_resolution_time, avg_resolution_time,
	is_available, latitude, longitude, rating, total_ratings,
	created_at, updated_at, version`

// PostgresTechnicianRepository implements domain.TechnicianRepository using PostgreSQL
type PostgresTechnicianRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresTechnicianRepository creates a new PostgreSQL technician repository
func NewPostgresTechnicianRepository(pool *pgxpool.Pool) *PostgresTechnicianRepository {
	return &PostgresTechnicianRepository{pool: pool}
}

// Create inserts a new technician at version 1
func (r *PostgresTechnicianRepository) Create(ctx context.Context, t *domain.Technician) error {
	lat, lng := locationArgs(t.Location)

	query := `
		INSERT INTO technicians (` + technicianColumns + `
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1)`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.UserID, t.Name, t.Phone, categoryStrings(t.Specialization),
		t.ActiveComplaints, t.ResolvedCount, t.TotalResolutionTime, t.AvgResolutionTime,
		t.IsAvailable, lat, lng, t.Rating, t.TotalRatings,
		t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "technicians_phone_key") {
			return domain.ErrDuplicatePhone
		}
		if isUniqueViolation(err, "") {
			return errors.Conflict("technician profile already exists for this user")
		}
		return errors.Wrap(err, "failed to save technician")
	}

	t.Version = 1
	return nil
}

// FindByID finds a technician by ID
func (r *PostgresTechnicianRepository) FindByID(ctx context.Context, id types.ID) (*domain.Technician, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE id = $1`, id)
	t, err := scanTechnician(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("technician", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find technician")
	}
	return t, nil
}

// FindByUserID finds the technician profile of a user account
func (r *PostgresTechnicianRepository) FindByUserID(ctx context.Context, userID types.ID) (*domain.Technician, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+technicianColumns+` FROM technicians WHERE user_id = $1`, userID)
	t, err := scanTechnician(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("technician", userID.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find technician by user")
	}
	return t, nil
}

// Update writes the technician if the stored version still matches
func (r *PostgresTechnicianRepository) Update(ctx context.Context, t *domain.Technician) error {
	lat, lng := locationArgs(t.Location)

	query := `
		UPDATE technicians SET
			name = $3, phone = $4, specialization = $5,
			active_complaints = $6, resolved_count = $7,
			total_resolution_time = $8, avg_resolution_time = $9,
			is_available = $10, latitude = $11, longitude = $12,
			updated_at = $13, version = version + 1
		WHERE id = $1 AND version = $2`

	result, err := r.pool.Exec(ctx, query,
		t.ID, t.Version,
		t.Name, t.Phone, categoryStrings(t.Specialization),
		t.ActiveComplaints, t.ResolvedCount,
		t.TotalResolutionTime, t.AvgResolutionTime,
		t.IsAvailable, lat, lng,
		t.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "technicians_phone_key") {
			return domain.ErrDuplicatePhone
		}
		return errors.Wrap(err, "failed to update technician")
	}

	if result.RowsAffected() == 0 {
		return missOrStale(ctx, r.pool, "technicians", "technician", t.ID)
	}

	t.Version++
	return nil
}

// Delete removes the technician if the stored version still matches
func (r *PostgresTechnicianRepository) Delete(ctx context.Context, id types.ID, version int) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM technicians WHERE id = $1 AND version = $2`, id, version)
	if err != nil {
		return errors.Wrap(err, "failed to delete technician")
	}
	if result.RowsAffected() == 0 {
		return missOrStale(ctx, r.pool, "technicians", "technician", id)
	}
	return nil
}

// List returns one page of matching technicians ordered by name
func (r *PostgresTechnicianRepository) List(ctx context.Context, filter domain.TechnicianFilter, page domain.Page) ([]domain.Technician, int, error) {
	page = page.Normalize()
	where, args := technicianWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM technicians "+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count technicians")
	}

	orderBy := "name"
	if page.SortBy == "created_at" {
		orderBy = "created_at"
	}
	orderDir := "ASC"
	if page.SortDesc {
		orderDir = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT %s FROM technicians
		%s
		ORDER BY %s %s, id
		LIMIT $%d OFFSET $%d`, technicianColumns, where, orderBy, orderDir, len(args)+1, len(args)+2)
	args = append(args, page.Limit, page.Offset())

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list technicians")
	}
	defer rows.Close()

	technicians := make([]domain.Technician, 0)
	for rows.Next() {
		t, err := scanTechnician(rows)
		if err != nil {
			return nil, 0, errors.Wrap(err, "failed to scan technician")
		}
		technicians = append(technicians, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.Wrap(err, "failed to iterate technicians")
	}
	return technicians, total, nil
}

// Count returns the number of matching technicians
func (r *PostgresTechnicianRepository) Count(ctx context.Context, filter domain.TechnicianFilter) (int, error) {
	where, args := technicianWhere(filter)
	var n int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM technicians "+where, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count technicians")
	}
	return n, nil
}

func technicianWhere(filter domain.TechnicianFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Specialization != nil {
		args = append(args, string(*filter.Specialization))
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(specialization)", len(args)))
	}
	if filter.IsAvailable != nil {
		args = append(args, *filter.IsAvailable)
		conditions = append(conditions, fmt.Sprintf("is_available = $%d", len(args)))
	}

	if len(conditions) == 0 {
		return "", args
	}
	return "WHERE " + strings.Join(conditions, " AND "), args
}

func scanTechnician(row pgx.Row) (*domain.Technician, error) {
	t := &domain.Technician{}
	var specialization []string
	var lat, lng *float64

	err := row.Scan(
		&t.ID, &t.UserID, &t.Name, &t.Phone, &specialization,
		&t.ActiveComplaints, &t.ResolvedCount, &t.TotalResolutionTime, &t.AvgResolutionTime,
		&t.IsAvailable, &lat, &lng, &t.Rating, &t.TotalRatings,
		&t.CreatedAt, &t.UpdatedAt, &t.Version,
	)
	if err != nil {
		return nil, err
	}

	t.Specialization = make([]domain.Category, len(specialization))
	for i, s := range specialization {
		t.Specialization[i] = domain.Category(s)
	}
	if lat != nil && lng != nil {
		t.Location = &types.GeoPoint{Latitude: *lat, Longitude: *lng}
	}
	return t, nil
}

func categoryStrings(categories []domain.Category) []string {
	out := make([]string, len(categories))
	for i, c := range categories {
		out[i] = string(c)
	}
	return out
}

func locationArgs(p *types.GeoPoint) (*float64, *float64) {
	if p == nil {
		return nil, nil
	}
	lat, lng := p.Latitude, p.Longitude
	return &lat, &lng
}
