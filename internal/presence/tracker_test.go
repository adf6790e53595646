package presence_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/presence"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository/mocks"
)

const trackerDeviceID = "device-self"

func startTracker(t *testing.T, heartbeat time.Duration) (*presence.Tracker, *mocks.PresenceChannel, *mocks.PresenceSubscription) {
	t.Helper()
	channel := new(mocks.PresenceChannel)
	sub := mocks.NewPresenceSubscription(16)
	channel.On("Subscribe", mock.Anything).Return(sub, nil).Once()
	channel.On("Announce", mock.Anything, mock.Anything).Return(nil)
	channel.On("Leave", mock.Anything, trackerDeviceID).Return(nil).Maybe()

	tracker := presence.NewTracker(channel, trackerDeviceID, heartbeat)
	require.NoError(t, tracker.Start(context.Background()))
	t.Cleanup(tracker.Stop)
	return tracker, channel, sub
}

func TestTracker_MergesUpdatesIntoMembership(t *testing.T) {
	// Arrange
	tracker, _, sub := startTracker(t, time.Minute)

	// Act: two peers announce, one of them twice with a role change
	sub.Emit(repository.PresenceUpdate{Record: record("device-b", domain.RoleNone)})
	sub.Emit(repository.PresenceUpdate{Record: record("device-c", domain.StationBeer)})
	sub.Emit(repository.PresenceUpdate{Record: record("device-b", domain.StationMerch)})

	// Assert: announces are idempotent upserts keyed by device id
	require.Eventually(t, func() bool {
		members := tracker.Members()
		return len(members) == 2 && members[0].Role == domain.StationMerch
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTracker_LeaveRemovesMember(t *testing.T) {
	// Arrange
	tracker, _, sub := startTracker(t, time.Minute)
	sub.Emit(repository.PresenceUpdate{Record: record("device-b", domain.RoleCoordinator)})
	require.Eventually(t, func() bool {
		return tracker.OtherCoordinatorActive()
	}, 2*time.Second, 10*time.Millisecond)

	// Act
	sub.Emit(repository.PresenceUpdate{
		Record: domain.PresenceRecord{DeviceID: "device-b"},
		Left:   true,
	})

	// Assert: the departed coordinator no longer blocks the role
	require.Eventually(t, func() bool {
		return !tracker.OtherCoordinatorActive() && len(tracker.Members()) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestTracker_EvictsSilentPeers(t *testing.T) {
	// Arrange: a short heartbeat so eviction fires inside the test
	heartbeat := 20 * time.Millisecond
	tracker, _, sub := startTracker(t, heartbeat)

	stale := domain.PresenceRecord{
		DeviceID:    "device-gone",
		Role:        domain.StationTickets,
		AnnouncedAt: time.Now().UTC().Add(-time.Minute),
	}
	sub.Emit(repository.PresenceUpdate{Record: stale})

	// Act & Assert: three missed heartbeats and the record is dropped.
	// The fresh self echo survives eviction.
	sub.Emit(repository.PresenceUpdate{Record: record(trackerDeviceID, domain.RoleNone)})
	time.Sleep(4 * heartbeat)
	require.Eventually(t, func() bool {
		members := tracker.Members()
		return len(members) == 1 && members[0].DeviceID == trackerDeviceID
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTracker_HeartbeatReannounces(t *testing.T) {
	// Arrange
	channel := new(mocks.PresenceChannel)
	sub := mocks.NewPresenceSubscription(16)
	announces := make(chan domain.PresenceRecord, 16)
	channel.On("Subscribe", mock.Anything).Return(sub, nil).Once()
	channel.On("Announce", mock.Anything, mock.AnythingOfType("domain.PresenceRecord")).
		Run(func(args mock.Arguments) {
			select {
			case announces <- args.Get(1).(domain.PresenceRecord):
			default:
			}
		}).
		Return(nil)
	channel.On("Leave", mock.Anything, trackerDeviceID).Return(nil).Maybe()

	tracker := presence.NewTracker(channel, trackerDeviceID, 20*time.Millisecond)
	require.NoError(t, tracker.Start(context.Background()))
	t.Cleanup(tracker.Stop)
	require.NoError(t, tracker.Announce(context.Background(), domain.StationProduction))

	// Drain the explicit announces, then wait for a heartbeat-driven one
	deadline := time.After(2 * time.Second)
	seen := 0
	for seen < 3 {
		select {
		case rec := <-announces:
			assert.Equal(t, trackerDeviceID, rec.DeviceID)
			seen++
		case <-deadline:
			t.Fatal("expected heartbeat re-announces")
		}
	}

	// The heartbeat keeps broadcasting the current role
	require.Eventually(t, func() bool {
		select {
		case rec := <-announces:
			return rec.Role == domain.StationProduction
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestTracker_StopClearsMembership(t *testing.T) {
	// Arrange
	channel := new(mocks.PresenceChannel)
	sub := mocks.NewPresenceSubscription(16)
	channel.On("Subscribe", mock.Anything).Return(sub, nil).Once()
	channel.On("Announce", mock.Anything, mock.Anything).Return(nil)
	channel.On("Leave", mock.Anything, trackerDeviceID).Return(nil).Once()

	tracker := presence.NewTracker(channel, trackerDeviceID, time.Minute)
	require.NoError(t, tracker.Start(context.Background()))
	sub.Emit(repository.PresenceUpdate{Record: record("device-b", domain.StationMerch)})
	require.Eventually(t, func() bool {
		return len(tracker.Members()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Act
	tracker.Stop()

	// Assert: an explicit leave went out and the view is empty
	assert.Empty(t, tracker.Members())
	channel.AssertExpectations(t)

	// Stop again is a no-op
	tracker.Stop()
}

func TestTracker_RestartAfterStop(t *testing.T) {
	// Arrange: two subscription cycles on the same channel
	channel := new(mocks.PresenceChannel)
	firstSub := mocks.NewPresenceSubscription(16)
	secondSub := mocks.NewPresenceSubscription(16)
	channel.On("Subscribe", mock.Anything).Return(firstSub, nil).Once()
	channel.On("Subscribe", mock.Anything).Return(secondSub, nil).Once()
	channel.On("Announce", mock.Anything, mock.Anything).Return(nil)
	channel.On("Leave", mock.Anything, trackerDeviceID).Return(nil)

	tracker := presence.NewTracker(channel, trackerDeviceID, time.Minute)
	require.NoError(t, tracker.Start(context.Background()))
	tracker.Stop()

	// Act: a second lifecycle reuses the tracker
	require.NoError(t, tracker.Start(context.Background()))
	t.Cleanup(tracker.Stop)
	secondSub.Emit(repository.PresenceUpdate{Record: record("device-b", domain.StationBeer)})

	// Assert: the restarted loop drives the membership view
	require.Eventually(t, func() bool {
		return len(tracker.Members()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	channel.AssertExpectations(t)
}
