package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"narcoguard-monitor/internal/dispatch"
	"narcoguard-monitor/internal/models"
)

func testRecipient() dispatch.Recipient {
	return dispatch.Recipient{
		ID:    "c-1",
		Kind:  models.ResponderEmergencyContact,
		Name:  "Alice",
		Phone: "+15550001111",
	}
}

func testPayload() dispatch.Payload {
	return dispatch.Payload{
		EmergencyID: "e-1",
		UserID:      "user-1",
		Type:        models.EmergencyOverdose,
	}
}

func TestNotifyClient_Send(t *testing.T) {
	var received notifyRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/notify/emergency", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(notifyResponse{Status: 0})
	}))
	defer server.Close()

	client := NewNotifyClient(server.URL, 2*time.Second, 0, zap.NewNop())
	err := client.Send(context.Background(), testRecipient(), testPayload())
	require.NoError(t, err)

	assert.Equal(t, "c-1", received.RecipientID)
	assert.Equal(t, "emergency_contact", received.RecipientKind)
	assert.Equal(t, "e-1", received.Payload.EmergencyID)
}

func TestNotifyClient_GatewayError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(notifyResponse{Status: 2, Msg: "unknown recipient"})
	}))
	defer server.Close()

	client := NewNotifyClient(server.URL, 2*time.Second, 0, zap.NewNop())
	err := client.Send(context.Background(), testRecipient(), testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown recipient")
}

func TestNotifyClient_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewNotifyClient(server.URL, 2*time.Second, 0, zap.NewNop())
	err := client.Send(context.Background(), testRecipient(), testPayload())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestNotifyClient_RetriesTransientError(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(notifyResponse{Status: 0})
	}))
	defer server.Close()

	client := NewNotifyClient(server.URL, 5*time.Second, 3, zap.NewNop())
	err := client.Send(context.Background(), testRecipient(), testPayload())
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestGeoClient_CurrentLocation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/geo/users/user-1/location", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geoResponse{
			Status:   0,
			Location: &models.Location{Latitude: 42.886, Longitude: -78.878},
		})
	}))
	defer server.Close()

	client := NewGeoClient(server.URL, 2*time.Second, 0, zap.NewNop())
	location, err := client.CurrentLocation(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, location)
	assert.InDelta(t, 42.886, location.Latitude, 0.0001)
}

func TestGeoClient_UnavailableIsNotAnError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewGeoClient(server.URL, 2*time.Second, 0, zap.NewNop())
	location, err := client.CurrentLocation(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, location)
}

func TestGeoClient_NullLocationIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(geoResponse{Status: 0, Location: nil})
	}))
	defer server.Close()

	client := NewGeoClient(server.URL, 2*time.Second, 0, zap.NewNop())
	location, err := client.CurrentLocation(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, location)
}
