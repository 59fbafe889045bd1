package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestGetEmergencyContacts_OrderedByPriority(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewContactsRepository(db, zap.NewNop())

	rows := sqlmock.NewRows([]string{
		"contact_id", "user_id", "name", "phone", "email", "relationship", "priority",
	}).AddRow(
		"c-1", "user-1", "Alice", "+15550001111", "alice@example.com", "partner", 1,
	).AddRow(
		"c-2", "user-1", "Bob", "+15550002222", nil, nil, 2,
	)

	mock.ExpectQuery(`SELECT`).
		WithArgs("user-1").
		WillReturnRows(rows)

	contacts, err := repo.GetEmergencyContacts(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, contacts, 2)

	assert.Equal(t, "Alice", contacts[0].Name)
	require.NotNil(t, contacts[0].Email)
	assert.Equal(t, "alice@example.com", *contacts[0].Email)
	assert.Equal(t, 1, contacts[0].Priority)

	assert.Equal(t, "Bob", contacts[1].Name)
	assert.Nil(t, contacts[1].Email)
	assert.Nil(t, contacts[1].Relationship)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetEmergencyContacts_Empty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewContactsRepository(db, zap.NewNop())

	mock.ExpectQuery(`SELECT`).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"contact_id", "user_id", "name", "phone", "email", "relationship", "priority",
		}))

	contacts, err := repo.GetEmergencyContacts(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, contacts)
}
