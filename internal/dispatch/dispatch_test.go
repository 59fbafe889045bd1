package dispatch

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"narcoguard-monitor/internal/models"
)

// fakeContacts 联系人目录测试替身
type fakeContacts struct {
	contacts []models.Contact
	err      error
}

func (f *fakeContacts) GetEmergencyContacts(ctx context.Context, userID string) ([]models.Contact, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.contacts, nil
}

// fakeVolunteers 志愿响应者目录测试替身
type fakeVolunteers struct {
	volunteers []models.Volunteer
	err        error
	called     bool
}

func (f *fakeVolunteers) FindNearby(ctx context.Context, location models.Location, radiusKm float64) ([]models.Volunteer, error) {
	f.called = true
	if f.err != nil {
		return nil, f.err
	}
	return f.volunteers, nil
}

// fakeGateway 通知网关测试替身（可按接收方ID注入失败）
type fakeGateway struct {
	mu      sync.Mutex
	sent    []Recipient
	failIDs map[string]bool
	delay   time.Duration
}

func (f *fakeGateway) Send(ctx context.Context, recipient Recipient, payload Payload) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failIDs[recipient.ID] {
		return fmt.Errorf("gateway unreachable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, recipient)
	return nil
}

func testEmergency(emergencyType models.EmergencyType, location *models.Location) *models.Emergency {
	return &models.Emergency{
		ID:        "emg-1",
		UserID:    "user-1",
		Type:      emergencyType,
		Status:    models.EmergencyConfirmed,
		Location:  location,
		CreatedAt: time.Now(),
	}
}

func testContacts(n int) []models.Contact {
	contacts := make([]models.Contact, 0, n)
	for i := 0; i < n; i++ {
		contacts = append(contacts, models.Contact{
			ID:       fmt.Sprintf("contact-%d", i+1),
			UserID:   "user-1",
			Name:     fmt.Sprintf("Contact %d", i+1),
			Phone:    fmt.Sprintf("+1555000%04d", i+1),
			Priority: i + 1,
		})
	}
	return contacts
}

func newTestDispatcher(contacts ContactDirectory, volunteers ResponderDirectory, gateway NotificationGateway) *Dispatcher {
	return NewDispatcher(contacts, volunteers, gateway, time.Second, 5, zap.NewNop())
}

func TestResolveAndNotify_AllSucceed(t *testing.T) {
	gateway := &fakeGateway{}
	d := newTestDispatcher(
		&fakeContacts{contacts: testContacts(2)},
		&fakeVolunteers{volunteers: []models.Volunteer{
			{ID: "vol-1", Name: "Volunteer 1", Phone: "+15551112222", DistanceKm: 1.5},
		}},
		gateway,
	)

	loc := &models.Location{Latitude: 40.7, Longitude: -74.0}
	outcome, err := d.ResolveAndNotify(context.Background(), testEmergency(models.EmergencyVitalSigns, loc))

	require.NoError(t, err)
	assert.Equal(t, 2, outcome.ContactsNotified)
	assert.Equal(t, 1, outcome.RespondersNotified)
	assert.False(t, outcome.ServicesNotified)
	assert.Empty(t, outcome.Failures)
	assert.Len(t, outcome.Responders, 3)

	// 志愿响应者携带 ETA 估算
	for _, r := range outcome.Responders {
		assert.Equal(t, models.ResponderNotified, r.Status)
		if r.Kind == models.ResponderHeroNetwork {
			require.NotNil(t, r.ETASeconds)
			assert.Equal(t, 180, *r.ETASeconds) // 1.5km @ 30km/h
		}
	}
}

func TestResolveAndNotify_PartialFailure(t *testing.T) {
	// 3个接收方中1个失败：其余2个仍然收到通知
	gateway := &fakeGateway{failIDs: map[string]bool{"contact-2": true}}
	d := newTestDispatcher(
		&fakeContacts{contacts: testContacts(3)},
		&fakeVolunteers{},
		gateway,
	)

	outcome, err := d.ResolveAndNotify(context.Background(), testEmergency(models.EmergencyVitalSigns, nil))

	require.NoError(t, err)
	assert.Equal(t, 2, outcome.ContactsNotified)
	require.Len(t, outcome.Failures, 1)
	assert.Equal(t, "contact-2", outcome.Failures[0].Recipient.ID)
	assert.Contains(t, outcome.Failures[0].Reason, "gateway unreachable")
	assert.Len(t, gateway.sent, 2)
}

func TestResolveAndNotify_NoLocationSkipsVolunteers(t *testing.T) {
	volunteers := &fakeVolunteers{volunteers: []models.Volunteer{{ID: "vol-1", Name: "V"}}}
	d := newTestDispatcher(&fakeContacts{contacts: testContacts(1)}, volunteers, &fakeGateway{})

	outcome, err := d.ResolveAndNotify(context.Background(), testEmergency(models.EmergencyVitalSigns, nil))

	require.NoError(t, err)
	// 位置缺失 → 空响应者集合，不是错误
	assert.False(t, volunteers.called)
	assert.Equal(t, 0, outcome.RespondersNotified)
	assert.Equal(t, 1, outcome.ContactsNotified)
	assert.Empty(t, outcome.Failures)
}

func TestResolveAndNotify_OverdoseNotifiesServices(t *testing.T) {
	gateway := &fakeGateway{}
	d := newTestDispatcher(&fakeContacts{}, &fakeVolunteers{}, gateway)

	outcome, err := d.ResolveAndNotify(context.Background(), testEmergency(models.EmergencyOverdose, nil))

	require.NoError(t, err)
	assert.True(t, outcome.ServicesNotified)
	require.Len(t, gateway.sent, 1)
	assert.Equal(t, models.ResponderEmergencyServices, gateway.sent[0].Kind)
}

func TestResolveAndNotify_OverdoseServicesDespiteContactFailures(t *testing.T) {
	// 联系人全部失败也不影响急救服务通知
	gateway := &fakeGateway{failIDs: map[string]bool{"contact-1": true, "contact-2": true}}
	d := newTestDispatcher(&fakeContacts{contacts: testContacts(2)}, &fakeVolunteers{}, gateway)

	outcome, err := d.ResolveAndNotify(context.Background(), testEmergency(models.EmergencyOverdose, nil))

	require.NoError(t, err)
	assert.True(t, outcome.ServicesNotified)
	assert.Equal(t, 0, outcome.ContactsNotified)
	assert.Len(t, outcome.Failures, 2)
}

func TestResolveAndNotify_DirectoryFailureDoesNotBlock(t *testing.T) {
	gateway := &fakeGateway{}
	d := newTestDispatcher(
		&fakeContacts{err: fmt.Errorf("directory unavailable")},
		&fakeVolunteers{volunteers: []models.Volunteer{{ID: "vol-1", Name: "V", Phone: "+1555"}}},
		gateway,
	)

	loc := &models.Location{Latitude: 40.7, Longitude: -74.0}
	outcome, err := d.ResolveAndNotify(context.Background(), testEmergency(models.EmergencyVitalSigns, loc))

	require.NoError(t, err)
	assert.Equal(t, 1, outcome.RespondersNotified)
	require.Len(t, outcome.Failures, 1)
	assert.Contains(t, outcome.Failures[0].Reason, "directory unavailable")
}

func TestResolveAndNotify_SlowRecipientTimesOut(t *testing.T) {
	// 单接收方超时不拖死整体扇出
	gateway := &fakeGateway{delay: 200 * time.Millisecond}
	d := NewDispatcher(
		&fakeContacts{contacts: testContacts(1)},
		&fakeVolunteers{},
		gateway,
		50*time.Millisecond,
		5,
		zap.NewNop(),
	)

	start := time.Now()
	outcome, err := d.ResolveAndNotify(context.Background(), testEmergency(models.EmergencyVitalSigns, nil))

	require.NoError(t, err)
	assert.Less(t, time.Since(start), 150*time.Millisecond)
	assert.Equal(t, 0, outcome.ContactsNotified)
	require.Len(t, outcome.Failures, 1)
}

func TestResolveAndNotify_NilEmergency(t *testing.T) {
	d := newTestDispatcher(&fakeContacts{}, &fakeVolunteers{}, &fakeGateway{})

	outcome, err := d.ResolveAndNotify(context.Background(), nil)

	assert.Error(t, err)
	assert.Nil(t, outcome)
}
