package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"narcoguard-monitor/internal/models"
)

func setupMockEmergenciesDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *EmergenciesRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewEmergenciesRepository(db, logger)

	return db, mock, repo
}

func TestCreateEmergency_Success(t *testing.T) {
	db, mock, repo := setupMockEmergenciesDB(t)
	defer db.Close()

	hr := 37
	now := time.Now()
	emergency := &models.Emergency{
		ID:        uuid.New().String(),
		UserID:    "user-1",
		Type:      models.EmergencyOverdose,
		Status:    models.EmergencyDetected,
		CreatedAt: now,
		UpdatedAt: now,
		TriggeringSample: models.VitalSample{
			UserID:    "user-1",
			Timestamp: now,
			HeartRate: &hr,
		},
		Location: &models.Location{Latitude: 42.886, Longitude: -78.878},
	}

	mock.ExpectExec(`INSERT INTO emergencies`).
		WithArgs(
			emergency.ID,
			emergency.UserID,
			emergency.Type,
			emergency.Status,
			sqlmock.AnyArg(), // triggering_sample JSONB
			sqlmock.AnyArg(), // location JSONB
			sqlmock.AnyArg(), // responders JSONB
			nil,
			emergency.CreatedAt,
			emergency.UpdatedAt,
		).
		WillReturnResult(sqlmock.NewResult(1, 1))

	err := repo.CreateEmergency(context.Background(), emergency)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateEmergency_NotFound(t *testing.T) {
	db, mock, repo := setupMockEmergenciesDB(t)
	defer db.Close()

	emergency := &models.Emergency{
		ID:     "missing",
		UserID: "user-1",
		Type:   models.EmergencyVitalSigns,
		Status: models.EmergencyResolved,
	}

	mock.ExpectExec(`UPDATE emergencies`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateEmergency(context.Background(), emergency)
	require.ErrorIs(t, err, models.ErrEmergencyNotFound)
}

func TestGetOpenEmergencyByUser_Success(t *testing.T) {
	db, mock, repo := setupMockEmergenciesDB(t)
	defer db.Close()

	emergencyID := uuid.New().String()
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"emergency_id", "user_id", "emergency_type", "status",
		"triggering_sample", "location", "responders", "notes",
		"created_at", "updated_at",
	}).AddRow(
		emergencyID, "user-1", "overdose", "alerts_sent",
		`{"user_id":"user-1","heart_rate":37,"timestamp":"2026-08-30T10:00:00Z"}`,
		`{"latitude":42.886,"longitude":-78.878}`,
		`[{"id":"r-1","kind":"hero_network","name":"Sam","status":"notified"}]`,
		"escalated",
		now, now,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs("user-1").
		WillReturnRows(rows)

	emergency, err := repo.GetOpenEmergencyByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, emergency)

	assert.Equal(t, emergencyID, emergency.ID)
	assert.Equal(t, models.EmergencyOverdose, emergency.Type)
	assert.Equal(t, models.EmergencyAlertsSent, emergency.Status)
	require.NotNil(t, emergency.TriggeringSample.HeartRate)
	assert.Equal(t, 37, *emergency.TriggeringSample.HeartRate)
	require.NotNil(t, emergency.Location)
	assert.InDelta(t, 42.886, emergency.Location.Latitude, 0.0001)
	require.Len(t, emergency.Responders, 1)
	assert.Equal(t, models.ResponderHeroNetwork, emergency.Responders[0].Kind)
	require.NotNil(t, emergency.Notes)
	assert.Equal(t, "escalated", *emergency.Notes)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetOpenEmergencyByUser_None(t *testing.T) {
	db, mock, repo := setupMockEmergenciesDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT`).
		WithArgs("user-1").
		WillReturnError(sql.ErrNoRows)

	emergency, err := repo.GetOpenEmergencyByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, emergency)
}

func TestGetOpenEmergencyByUser_NullLocation(t *testing.T) {
	db, mock, repo := setupMockEmergenciesDB(t)
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"emergency_id", "user_id", "emergency_type", "status",
		"triggering_sample", "location", "responders", "notes",
		"created_at", "updated_at",
	}).AddRow(
		"e-1", "user-1", "vital_signs", "detected",
		`{"user_id":"user-1","timestamp":"2026-08-30T10:00:00Z"}`,
		`null`,
		`[]`,
		nil,
		now, now,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs("user-1").
		WillReturnRows(rows)

	emergency, err := repo.GetOpenEmergencyByUser(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, emergency)
	assert.Nil(t, emergency.Location)
	assert.Nil(t, emergency.Notes)
	assert.Empty(t, emergency.Responders)
}

func TestCountEmergenciesByUser(t *testing.T) {
	db, mock, repo := setupMockEmergenciesDB(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountEmergenciesByUser(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}
