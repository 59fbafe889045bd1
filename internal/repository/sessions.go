package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"narcoguard-monitor/internal/models"
)

// SessionsRepository 监测会话仓库（monitoring_sessions / vital_samples 表）
type SessionsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSessionsRepository 创建会话仓库
func NewSessionsRepository(db *sql.DB, logger *zap.Logger) *SessionsRepository {
	return &SessionsRepository{
		db:     db,
		logger: logger,
	}
}

// CreateSession 创建监测会话
func (r *SessionsRepository) CreateSession(ctx context.Context, session *models.MonitoringSession) error {
	if session == nil {
		return fmt.Errorf("session is required")
	}
	if session.ID == "" {
		return fmt.Errorf("session_id is required")
	}
	if session.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	query := `
		INSERT INTO monitoring_sessions (
			session_id,
			user_id,
			device_id,
			status,
			start_time,
			end_time,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.DeviceID,
		session.Status,
		session.StartTime,
		session.EndTime,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	return nil
}

// GetSession 根据 session_id 获取会话（不含样本）
func (r *SessionsRepository) GetSession(ctx context.Context, sessionID string) (*models.MonitoringSession, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session_id is required")
	}

	query := `
		SELECT
			session_id,
			user_id,
			device_id,
			status,
			start_time,
			end_time,
			created_at,
			updated_at
		FROM monitoring_sessions
		WHERE session_id = $1
	`

	var session models.MonitoringSession
	var deviceID sql.NullString
	var endTime sql.NullTime

	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.ID,
		&session.UserID,
		&deviceID,
		&session.Status,
		&session.StartTime,
		&endTime,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	if deviceID.Valid {
		session.DeviceID = &deviceID.String
	}
	if endTime.Valid {
		session.EndTime = &endTime.Time
	}

	return &session, nil
}

// GetOpenSessionByUser 获取用户当前进行中的会话（active/paused/emergency）
// 不存在时返回 nil, nil
func (r *SessionsRepository) GetOpenSessionByUser(ctx context.Context, userID string) (*models.MonitoringSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			session_id,
			user_id,
			device_id,
			status,
			start_time,
			end_time,
			created_at,
			updated_at
		FROM monitoring_sessions
		WHERE user_id = $1
		  AND status IN ('active', 'paused', 'emergency')
		ORDER BY start_time DESC
		LIMIT 1
	`

	var session models.MonitoringSession
	var deviceID sql.NullString
	var endTime sql.NullTime

	err := r.db.QueryRowContext(ctx, query, userID).Scan(
		&session.ID,
		&session.UserID,
		&deviceID,
		&session.Status,
		&session.StartTime,
		&endTime,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open session: %w", err)
	}

	if deviceID.Valid {
		session.DeviceID = &deviceID.String
	}
	if endTime.Valid {
		session.EndTime = &endTime.Time
	}

	return &session, nil
}

// UpdateSessionStatus 更新会话状态（end_time 可选）
func (r *SessionsRepository) UpdateSessionStatus(ctx context.Context, sessionID string, status models.SessionStatus, endTime *time.Time) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}

	query := `
		UPDATE monitoring_sessions
		SET status = $1,
		    end_time = COALESCE($2, end_time),
		    updated_at = $3
		WHERE session_id = $4
	`

	result, err := r.db.ExecContext(ctx, query, status, endTime, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to update session status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrSessionNotFound
	}

	return nil
}

// AppendSample 追加一条样本
func (r *SessionsRepository) AppendSample(ctx context.Context, sessionID string, sample *models.VitalSample) error {
	if sessionID == "" {
		return fmt.Errorf("session_id is required")
	}
	if sample == nil {
		return fmt.Errorf("sample is required")
	}

	var systolic, diastolic *int
	if sample.BloodPressure != nil {
		systolic = sample.BloodPressure.Systolic
		diastolic = sample.BloodPressure.Diastolic
	}

	query := `
		INSERT INTO vital_samples (
			session_id,
			user_id,
			device_id,
			heart_rate,
			respiratory_rate,
			oxygen_saturation,
			systolic,
			diastolic,
			temperature,
			recorded_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		sessionID,
		sample.UserID,
		sample.DeviceID,
		sample.HeartRate,
		sample.RespiratoryRate,
		sample.OxygenSaturation,
		systolic,
		diastolic,
		sample.Temperature,
		sample.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to append sample: %w", err)
	}

	return nil
}

// ListSessionsByUser 获取用户历史会话（按开始时间倒序，不含样本）
func (r *SessionsRepository) ListSessionsByUser(ctx context.Context, userID string) ([]*models.MonitoringSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			session_id,
			user_id,
			device_id,
			status,
			start_time,
			end_time,
			created_at,
			updated_at
		FROM monitoring_sessions
		WHERE user_id = $1
		ORDER BY start_time DESC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.MonitoringSession
	for rows.Next() {
		var session models.MonitoringSession
		var deviceID sql.NullString
		var endTime sql.NullTime

		if err := rows.Scan(
			&session.ID,
			&session.UserID,
			&deviceID,
			&session.Status,
			&session.StartTime,
			&endTime,
			&session.CreatedAt,
			&session.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		if deviceID.Valid {
			session.DeviceID = &deviceID.String
		}
		if endTime.Valid {
			session.EndTime = &endTime.Time
		}

		sessions = append(sessions, &session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sessions: %w", err)
	}

	return sessions, nil
}

// ListSamplesByUser 获取用户全部样本（按记录时间升序）
func (r *SessionsRepository) ListSamplesByUser(ctx context.Context, userID string) ([]models.VitalSample, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			user_id,
			device_id,
			heart_rate,
			respiratory_rate,
			oxygen_saturation,
			systolic,
			diastolic,
			temperature,
			recorded_at
		FROM vital_samples
		WHERE user_id = $1
		ORDER BY recorded_at ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list samples: %w", err)
	}
	defer rows.Close()

	var samples []models.VitalSample
	for rows.Next() {
		var s models.VitalSample
		var deviceID sql.NullString
		var heartRate, respiratoryRate, systolic, diastolic sql.NullInt64
		var oxygen, temperature sql.NullFloat64

		if err := rows.Scan(
			&s.UserID,
			&deviceID,
			&heartRate,
			&respiratoryRate,
			&oxygen,
			&systolic,
			&diastolic,
			&temperature,
			&s.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan sample: %w", err)
		}

		if deviceID.Valid {
			s.DeviceID = &deviceID.String
		}
		if heartRate.Valid {
			v := int(heartRate.Int64)
			s.HeartRate = &v
		}
		if respiratoryRate.Valid {
			v := int(respiratoryRate.Int64)
			s.RespiratoryRate = &v
		}
		if oxygen.Valid {
			s.OxygenSaturation = &oxygen.Float64
		}
		if systolic.Valid || diastolic.Valid {
			bp := &models.BloodPressure{}
			if systolic.Valid {
				v := int(systolic.Int64)
				bp.Systolic = &v
			}
			if diastolic.Valid {
				v := int(diastolic.Int64)
				bp.Diastolic = &v
			}
			s.BloodPressure = bp
		}
		if temperature.Valid {
			s.Temperature = &temperature.Float64
		}

		samples = append(samples, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate samples: %w", err)
	}

	return samples, nil
}
