package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"narcoguard-monitor/internal/models"
)

// ContactsRepository 紧急联系人仓库（emergency_contacts 表）
type ContactsRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewContactsRepository 创建联系人仓库
func NewContactsRepository(db *sql.DB, logger *zap.Logger) *ContactsRepository {
	return &ContactsRepository{
		db:     db,
		logger: logger,
	}
}

// GetEmergencyContacts 获取用户的紧急联系人（按优先级升序）
func (r *ContactsRepository) GetEmergencyContacts(ctx context.Context, userID string) ([]models.Contact, error) {
	if userID == "" {
		return nil, fmt.Errorf("user_id is required")
	}

	query := `
		SELECT
			contact_id,
			user_id,
			name,
			phone,
			email,
			relationship,
			priority
		FROM emergency_contacts
		WHERE user_id = $1
		ORDER BY priority ASC
	`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list emergency contacts: %w", err)
	}
	defer rows.Close()

	var contacts []models.Contact
	for rows.Next() {
		var c models.Contact
		var email, relationship sql.NullString

		if err := rows.Scan(
			&c.ID,
			&c.UserID,
			&c.Name,
			&c.Phone,
			&email,
			&relationship,
			&c.Priority,
		); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}

		if email.Valid {
			c.Email = &email.String
		}
		if relationship.Valid {
			c.Relationship = &relationship.String
		}

		contacts = append(contacts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate contacts: %w", err)
	}

	return contacts, nil
}
