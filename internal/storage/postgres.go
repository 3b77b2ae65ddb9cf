package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/models"
)

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, cfg config.DatabaseConfig) (*PostgresStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, Classify("connect to postgres", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, Classify("ping postgres", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return Classify("ping postgres", s.pool.Ping(ctx))
}

// --- Identities ---

// UpsertIdentity creates or updates the profile row. An empty faceImageKey
// keeps the stored one.
func (s *PostgresStore) UpsertIdentity(ctx context.Context, p models.Profile, faceImageKey string) error {
	p = p.WithDefaults()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO identities (id, first_name, middle_name, last_name, email, user_type,
		                        company, job_title, mobile_number, status, face_image_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			first_name     = EXCLUDED.first_name,
			middle_name    = EXCLUDED.middle_name,
			last_name      = EXCLUDED.last_name,
			email          = EXCLUDED.email,
			user_type      = EXCLUDED.user_type,
			company        = EXCLUDED.company,
			job_title      = EXCLUDED.job_title,
			mobile_number  = EXCLUDED.mobile_number,
			status         = EXCLUDED.status,
			face_image_key = COALESCE(NULLIF(EXCLUDED.face_image_key, ''), identities.face_image_key),
			updated_at     = NOW()`,
		p.IdentityID, p.FirstName, p.MiddleName, p.LastName, p.Email, p.UserType,
		p.Company, p.JobTitle, p.MobileNumber, p.Status, faceImageKey)
	return Classify("upsert identity", err)
}

// DeleteIdentity removes the profile and its stored face. Attendance rows
// are kept.
func (s *PostgresStore) DeleteIdentity(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM identities WHERE id = $1`, id)
	if err != nil {
		return Classify("delete identity", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("delete identity %q: %w", id, models.ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CountIdentities(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM identities WHERE status = $1`, models.ProfileStatusActive,
	).Scan(&n)
	if err != nil {
		return 0, Classify("count identities", err)
	}
	return n, nil
}

// --- Faces ---

// SaveFace stores the template for an existing identity, replacing any
// previous one.
func (s *PostgresStore) SaveFace(ctx context.Context, id string, embedding []float32, detectorScore, quality float32, sourceKey string, enrolledAt time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO identity_faces (identity_id, embedding, detector_score, quality, source_key, enrolled_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (identity_id) DO UPDATE SET
			embedding      = EXCLUDED.embedding,
			detector_score = EXCLUDED.detector_score,
			quality        = EXCLUDED.quality,
			source_key     = EXCLUDED.source_key,
			enrolled_at    = EXCLUDED.enrolled_at`,
		id, pgvector.NewVector(embedding), detectorScore, quality, sourceKey, enrolledAt.UTC())
	return Classify("save face", err)
}

// ListEnrollments returns every active identity with its stored template,
// if any. It is the identity source of the auto-reload monitor.
func (s *PostgresStore) ListEnrollments(ctx context.Context) ([]models.Enrollment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT i.id, i.first_name, i.middle_name, i.last_name, i.email, i.user_type,
		       i.company, i.job_title, i.mobile_number, i.status, i.face_image_key,
		       f.embedding, COALESCE(f.detector_score, 0), COALESCE(f.quality, 0),
		       COALESCE(f.source_key, ''), COALESCE(f.enrolled_at, i.created_at)
		FROM identities i
		LEFT JOIN identity_faces f ON f.identity_id = i.id
		WHERE i.status = $1
		ORDER BY i.id`, models.ProfileStatusActive)
	if err != nil {
		return nil, Classify("list enrollments", err)
	}
	defer rows.Close()

	var out []models.Enrollment
	for rows.Next() {
		var (
			e         models.Enrollment
			p         = &e.Profile
			imageKey  string
			vec       *pgvector.Vector
			sourceKey string
		)
		if err := rows.Scan(&p.IdentityID, &p.FirstName, &p.MiddleName, &p.LastName, &p.Email, &p.UserType,
			&p.Company, &p.JobTitle, &p.MobileNumber, &p.Status, &imageKey,
			&vec, &e.DetectorScore, &e.Quality, &sourceKey, &e.EnrolledAt); err != nil {
			return nil, fmt.Errorf("scan enrollment: %w", err)
		}
		if vec != nil {
			e.Embedding = vec.Slice()
		}
		e.FaceImageKey = imageKey
		if e.FaceImageKey == "" {
			e.FaceImageKey = sourceKey
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify("list enrollments", err)
	}
	return out, nil
}

// --- Attendance ---

const attendanceColumns = `id, identity_id, scan_date::text, scan_time, first_name, last_name,
	email, user_type, company, job_title, status`

func scanAttendance(row pgx.Row, r *models.AttendanceRecord) error {
	return row.Scan(&r.ID, &r.IdentityID, &r.Day, &r.ScannedAt, &r.FirstName, &r.LastName,
		&r.Email, &r.UserType, &r.Company, &r.JobTitle, &r.Status)
}

func (s *PostgresStore) FindAttendance(ctx context.Context, identityID, day string) (*models.AttendanceRecord, error) {
	var r models.AttendanceRecord
	err := scanAttendance(s.pool.QueryRow(ctx,
		`SELECT `+attendanceColumns+` FROM attendance WHERE identity_id = $1 AND scan_date = $2::date`,
		identityID, day), &r)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, Classify("find attendance", err)
	}
	r.ScannedAt = r.ScannedAt.UTC()
	return &r, nil
}

// InsertAttendance relies on the (identity_id, scan_date) constraint; a
// violation comes back as models.ErrDuplicateAttendance.
func (s *PostgresStore) InsertAttendance(ctx context.Context, r *models.AttendanceRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO attendance (id, identity_id, scan_date, scan_time, first_name, last_name,
		                        email, user_type, company, job_title, status)
		VALUES ($1, $2, $3::date, $4, $5, $6, $7, $8, $9, $10, $11)`,
		r.ID, r.IdentityID, r.Day, r.ScannedAt.UTC(), r.FirstName, r.LastName,
		r.Email, r.UserType, r.Company, r.JobTitle, r.Status)
	return Classify("insert attendance", err)
}

func (s *PostgresStore) ListAttendance(ctx context.Context, f models.AttendanceFilter) ([]models.AttendanceRecord, error) {
	where := "WHERE TRUE"
	var args []interface{}
	argIdx := 1

	add := func(cond string, v interface{}) {
		where += fmt.Sprintf(" AND "+cond, argIdx)
		args = append(args, v)
		argIdx++
	}
	if f.Day != "" {
		add("scan_date = $%d::date", f.Day)
	}
	if f.UserType != "" {
		add("user_type = $%d", f.UserType)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.Company != "" {
		add("company = $%d", f.Company)
	}

	limit := f.Limit
	if limit <= 0 || limit > 5000 {
		limit = 5000
	}
	query := fmt.Sprintf(`SELECT %s FROM attendance %s ORDER BY scan_time DESC LIMIT $%d`,
		attendanceColumns, where, argIdx)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, Classify("list attendance", err)
	}
	defer rows.Close()

	var out []models.AttendanceRecord
	for rows.Next() {
		var r models.AttendanceRecord
		if err := scanAttendance(rows, &r); err != nil {
			return nil, fmt.Errorf("scan attendance: %w", err)
		}
		r.ScannedAt = r.ScannedAt.UTC()
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, Classify("list attendance", err)
	}
	return out, nil
}
