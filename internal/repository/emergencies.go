package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"narcoguard-monitor/internal/models"
)

// EmergenciesRepository 紧急事件仓库（emergencies 表）
// triggering_sample / location / responders 为 JSONB 列
type EmergenciesRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEmergenciesRepository 创建紧急事件仓库
func NewEmergenciesRepository(db *sql.DB, logger *zap.Logger) *EmergenciesRepository {
	return &EmergenciesRepository{
		db:     db,
		logger: logger,
	}
}

// CreateEmergency 创建紧急事件
func (r *EmergenciesRepository) CreateEmergency(ctx context.Context, emergency *models.Emergency) error {
	if emergency == nil {
		return fmt.Errorf("emergency is required")
	}
	if emergency.ID == "" {
		return fmt.Errorf("emergency_id is required")
	}
	if emergency.UserID == "" {
		return fmt.Errorf("user_id is required")
	}

	sampleJSON, locationJSON, respondersJSON, err := marshalEmergencyJSON(emergency)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO emergencies (
			emergency_id,
			user_id,
			emergency_type,
			status,
			triggering_sample,
			location,
			responders,
			notes,
			created_at,
			updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		emergency.ID,
		emergency.UserID,
		emergency.Type,
		emergency.Status,
		sampleJSON,
		locationJSON,
		respondersJSON,
		emergency.Notes,
		emergency.CreatedAt,
		emergency.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create emergency: %w", err)
	}

	return nil
}

// UpdateEmergency 更新紧急事件（状态、证据、响应者、备注）
func (r *EmergenciesRepository) UpdateEmergency(ctx context.Context, emergency *models.Emergency) error {
	if emergency == nil {
		return fmt.Errorf("emergency is required")
	}
	if emergency.ID == "" {
		return fmt.Errorf("emergency_id is required")
	}

	sampleJSON, locationJSON, respondersJSON, err := marshalEmergencyJSON(emergency)
	if err != nil {
		return err
	}

	query := `
		UPDATE emergencies
		SET status = $1,
		    emergency_type = $2,
		    triggering_sample = $3,
		    location = $4,
		    responders = $5,
		    notes = $6,
		    updated_at = $7
		WHERE emergency_id = $8
	`

	result, err := r.db.ExecContext(ctx, query,
		emergency.Status,
		emergency.Type,
		sampleJSON,
		locationJSON,
		respondersJSON,
		emergency.Notes,
		time.Now(),
		emergency.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update emergency: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return models.ErrEmergencyNotFound
	}

	return nil
}

// GetOpenEmergencyByUser 获取用户当前未终结的紧急事件
// 不存在时返回 nil, nil（用于服务重启后恢复 open-emergency 状态）
func (r *EmergenciesRepository) GetOpenEmergencyByUser(ctx context.Context, userID string) (*models.Emergency, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			emergency_id,
			user_id,
			emergency_type,
			status,
			triggering_sample,
			location,
			responders,
			notes,
			created_at,
			updated_at
		FROM emergencies
		WHERE user_id = $1
		  AND status NOT IN ('resolved', 'false_alarm', 'cancelled')
		ORDER BY created_at DESC
		LIMIT 1
	`

	emergency, err := r.scanEmergency(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get open emergency: %w", err)
	}

	return emergency, nil
}

// CountEmergenciesByUser 统计用户的紧急事件数量（不含误报/取消）
func (r *EmergenciesRepository) CountEmergenciesByUser(ctx context.Context, userID string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT COUNT(*)
		FROM emergencies
		WHERE user_id = $1
		  AND status NOT IN ('false_alarm', 'cancelled')
	`

	var count int
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count emergencies: %w", err)
	}

	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *EmergenciesRepository) scanEmergency(row rowScanner) (*models.Emergency, error) {
	var emergency models.Emergency
	var sampleJSON, locationJSON, respondersJSON []byte
	var notes sql.NullString

	err := row.Scan(
		&emergency.ID,
		&emergency.UserID,
		&emergency.Type,
		&emergency.Status,
		&sampleJSON,
		&locationJSON,
		&respondersJSON,
		&notes,
		&emergency.CreatedAt,
		&emergency.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if notes.Valid {
		emergency.Notes = &notes.String
	}

	// JSONB 字段
	if len(sampleJSON) > 0 {
		if err := json.Unmarshal(sampleJSON, &emergency.TriggeringSample); err != nil {
			return nil, fmt.Errorf("failed to unmarshal triggering sample: %w", err)
		}
	}
	if len(locationJSON) > 0 && string(locationJSON) != "null" {
		var loc models.Location
		if err := json.Unmarshal(locationJSON, &loc); err != nil {
			return nil, fmt.Errorf("failed to unmarshal location: %w", err)
		}
		emergency.Location = &loc
	}
	if len(respondersJSON) > 0 {
		if err := json.Unmarshal(respondersJSON, &emergency.Responders); err != nil {
			return nil, fmt.Errorf("failed to unmarshal responders: %w", err)
		}
	}

	return &emergency, nil
}

func marshalEmergencyJSON(emergency *models.Emergency) ([]byte, []byte, []byte, error) {
	sampleJSON, err := json.Marshal(emergency.TriggeringSample)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to marshal triggering sample: %w", err)
	}

	locationJSON := []byte("null")
	if emergency.Location != nil {
		locationJSON, err = json.Marshal(emergency.Location)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal location: %w", err)
		}
	}

	respondersJSON := []byte("[]")
	if emergency.Responders != nil {
		respondersJSON, err = json.Marshal(emergency.Responders)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to marshal responders: %w", err)
		}
	}

	return sampleJSON, locationJSON, respondersJSON, nil
}
