package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/domain"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/presence"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/repository/mocks"
	"github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/service"
)

const testDeviceID = "c1f6a1f0-4242-4242-4242-0123456789ab"

// archiverMock records reset batches handed to the archival queue.
type archiverMock struct {
	mock.Mock
}

func (m *archiverMock) EnqueueReset(ctx context.Context, resetAt time.Time, msgs []domain.Message) error {
	args := m.Called(ctx, resetAt, msgs)
	return args.Error(0)
}

// sessionFixture bundles a session with the mocks behind it.
type sessionFixture struct {
	gateway  *mocks.StateGateway
	channel  *mocks.PresenceChannel
	feed     *mocks.Subscription
	presence *mocks.PresenceSubscription
	state    *service.StateService
	log      *service.LogService
	tracker  *presence.Tracker
	session  *service.Session
	archiver *archiverMock
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	f := &sessionFixture{
		gateway:  new(mocks.StateGateway),
		channel:  new(mocks.PresenceChannel),
		feed:     mocks.NewSubscription(16),
		presence: mocks.NewPresenceSubscription(16),
		archiver: new(archiverMock),
	}
	f.state = service.NewStateService(f.gateway)
	f.log = service.NewLogService(f.gateway)
	f.tracker = presence.NewTracker(f.channel, testDeviceID, 0)
	f.session = service.NewSession(f.gateway, f.tracker, f.state, f.log, f.archiver, testDeviceID, 0)
	return f
}

// expectConnect wires the happy-path backend responses.
func (f *sessionFixture) expectConnect(snapshot domain.EventState, tail []domain.Message) {
	f.gateway.On("FetchSnapshot", mock.Anything).Return(snapshot, nil).Once()
	f.gateway.On("FetchRecentMessages", mock.Anything, service.DefaultRecentMessages).Return(tail, nil).Once()
	f.gateway.On("Subscribe", mock.Anything).Return(f.feed, nil).Once()
	f.channel.On("Subscribe", mock.Anything).Return(f.presence, nil).Once()
	f.channel.On("Announce", mock.Anything, mock.Anything).Return(nil)
	f.channel.On("Leave", mock.Anything, testDeviceID).Return(nil).Maybe()
}

func TestSession_Connect_HydratesMirrors(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	f.expectConnect(
		domain.EventState{DoorCount: 42, Capacity: 300, WifiSSID: "venue", WifiPassword: "secret"},
		[]domain.Message{
			{ID: 1, Time: "18:00", Station: domain.StationTickets, Text: "will-call open"},
			{ID: 2, Time: "18:05", Station: domain.StationMerch, Text: "float counted"},
		},
	)

	// Act
	err := f.session.Connect(context.Background())

	// Assert: subscribed, mirrors carry the fetched values
	require.NoError(t, err)
	status := f.session.Status()
	assert.Equal(t, service.StateSubscribed, status.State)
	assert.Equal(t, testDeviceID, status.DeviceID)
	assert.Equal(t, 42, f.state.Snapshot().DoorCount)
	assert.Len(t, f.log.Messages(), 2)

	f.session.Disconnect()
	f.gateway.AssertExpectations(t)
}

func TestSession_Connect_MissingRowStartsFromDefaults(t *testing.T) {
	// Arrange: the event state row has never been written
	f := newSessionFixture(t)
	f.gateway.On("FetchSnapshot", mock.Anything).Return(domain.EventState{}, repository.ErrNotFound).Once()
	f.gateway.On("FetchRecentMessages", mock.Anything, service.DefaultRecentMessages).Return(nil, nil).Once()
	f.gateway.On("Subscribe", mock.Anything).Return(f.feed, nil).Once()
	f.channel.On("Subscribe", mock.Anything).Return(f.presence, nil).Once()
	f.channel.On("Announce", mock.Anything, mock.Anything).Return(nil)
	f.channel.On("Leave", mock.Anything, testDeviceID).Return(nil).Maybe()

	// Act
	err := f.session.Connect(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Equal(t, 0, f.state.Snapshot().DoorCount)
	assert.Equal(t, domain.DefaultCapacity, f.state.Snapshot().Capacity)

	f.session.Disconnect()
}

func TestSession_Connect_FetchFailureLandsInConnectError(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	fetchErr := errors.New("backend unreachable")
	f.gateway.On("FetchSnapshot", mock.Anything).Return(domain.EventState{}, fetchErr).Once()

	// Act
	err := f.session.Connect(context.Background())

	// Assert: the failure is surfaced and recorded, nothing subscribed
	require.ErrorIs(t, err, fetchErr)
	status := f.session.Status()
	assert.Equal(t, service.StateConnectError, status.State)
	assert.Contains(t, status.Error, "backend unreachable")
	f.gateway.AssertNotCalled(t, "Subscribe", mock.Anything)

	// A retry is allowed from ConnectError
	f.expectConnect(domain.EventState{Capacity: 300}, nil)
	require.NoError(t, f.session.Connect(context.Background()))
	f.session.Disconnect()
}

func TestSession_Connect_Twice(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	f.expectConnect(domain.EventState{Capacity: 300}, nil)
	require.NoError(t, f.session.Connect(context.Background()))

	// Act & Assert
	assert.ErrorIs(t, f.session.Connect(context.Background()), service.ErrAlreadyConnected)
	f.session.Disconnect()
}

func TestSession_FeedEventsReachMirrors(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	f.expectConnect(domain.EventState{DoorCount: 10, Capacity: 300}, nil)
	require.NoError(t, f.session.Connect(context.Background()))

	// Act: one snapshot change and one insert arrive on the feed
	count := 11
	f.feed.Emit(repository.ChangeEvent{
		Kind:     repository.SnapshotChanged,
		Snapshot: domain.SnapshotChange{DoorCount: &count},
	})
	f.feed.Emit(repository.ChangeEvent{
		Kind:    repository.MessageInserted,
		Message: domain.Message{ID: 5, Time: "19:30", Station: domain.StationBeer, Text: "restock on the way"},
	})

	// Assert: the loop applies both in order
	assert.Eventually(t, func() bool {
		return f.state.Snapshot().DoorCount == 11 && len(f.log.Messages()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	f.session.Disconnect()
}

func TestSession_Disconnect_ClearsMirrors(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	f.expectConnect(
		domain.EventState{DoorCount: 42, Capacity: 500},
		[]domain.Message{{ID: 1, Time: "18:00", Station: domain.StationMerch, Text: "open"}},
	)
	require.NoError(t, f.session.Connect(context.Background()))

	// Act
	f.session.Disconnect()

	// Assert: mirrors are empty, not stale
	status := f.session.Status()
	assert.Equal(t, service.StateDisconnected, status.State)
	assert.Equal(t, domain.DefaultEventState(), f.state.Snapshot())
	assert.Empty(t, f.log.Messages())

	// Disconnecting again is a no-op
	f.session.Disconnect()
}

func TestSession_FeedClosing_DisconnectsSession(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	f.expectConnect(domain.EventState{DoorCount: 3, Capacity: 300}, nil)
	require.NoError(t, f.session.Connect(context.Background()))

	// Act: the backend drops the change feed
	require.NoError(t, f.feed.Close())

	// Assert: treated like a disconnect, operator must reconnect
	assert.Eventually(t, func() bool {
		return f.session.Status().State == service.StateDisconnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, domain.DefaultEventState(), f.state.Snapshot())
}

func TestSession_ReconnectAfterFeedCloseKeepsFreshMirrors(t *testing.T) {
	// Arrange: a subscribed session plus backend responses for the
	// reconnect that follows the feed drop
	f := newSessionFixture(t)
	f.expectConnect(domain.EventState{DoorCount: 10, Capacity: 300}, nil)
	require.NoError(t, f.session.Connect(context.Background()))

	secondFeed := mocks.NewSubscription(16)
	secondPresence := mocks.NewPresenceSubscription(16)
	f.gateway.On("FetchSnapshot", mock.Anything).
		Return(domain.EventState{DoorCount: 77, Capacity: 300}, nil).Once()
	f.gateway.On("FetchRecentMessages", mock.Anything, service.DefaultRecentMessages).
		Return([]domain.Message{{ID: 3, Time: "19:00", Station: domain.StationTickets, Text: "second wave"}}, nil).Once()
	f.gateway.On("Subscribe", mock.Anything).Return(secondFeed, nil).Once()
	f.channel.On("Subscribe", mock.Anything).Return(secondPresence, nil).Once()

	// Act: drop the feed and reconnect immediately, racing the
	// teardown the drop triggers
	require.NoError(t, f.feed.Close())
	require.Eventually(t, func() bool {
		return f.session.Connect(context.Background()) == nil
	}, 2*time.Second, time.Millisecond)

	// Assert: the fresh session keeps its hydrated mirrors, the stale
	// teardown wiped nothing it no longer owns
	assert.Equal(t, service.StateSubscribed, f.session.Status().State)
	assert.Equal(t, 77, f.state.Snapshot().DoorCount)
	assert.Len(t, f.log.Messages(), 1)

	// The fresh feed still drives the mirrors
	count := 78
	secondFeed.Emit(repository.ChangeEvent{
		Kind:     repository.SnapshotChanged,
		Snapshot: domain.SnapshotChange{DoorCount: &count},
	})
	assert.Eventually(t, func() bool {
		return f.state.Snapshot().DoorCount == 78
	}, 2*time.Second, 10*time.Millisecond)

	f.session.Disconnect()
	f.gateway.AssertExpectations(t)
}

func TestSession_OperationsRequireSubscription(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	ctx := context.Background()

	// Act & Assert: every mutating operation refuses while disconnected
	_, err := f.session.AdjustDoorCount(ctx, 1)
	assert.ErrorIs(t, err, service.ErrNotConnected)
	assert.ErrorIs(t, f.session.SetCapacity(ctx, 400), service.ErrNotConnected)
	assert.ErrorIs(t, f.session.SetWiFi(ctx, "ssid", "pass"), service.ErrNotConnected)
	assert.ErrorIs(t, f.session.SetRole(ctx, domain.RoleCoordinator), service.ErrNotConnected)
	_, err = f.session.SendMessage(ctx, "hello")
	assert.ErrorIs(t, err, service.ErrNotConnected)
	assert.ErrorIs(t, f.session.FullReset(ctx, service.ResetConfirmation), service.ErrNotConnected)
}

func TestSession_SetRole_AnnouncesStationRole(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	f.expectConnect(domain.EventState{Capacity: 300}, nil)
	require.NoError(t, f.session.Connect(context.Background()))

	// Act
	err := f.session.SetRole(context.Background(), domain.StationMerch)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, domain.StationMerch, f.session.Status().Role)
	f.session.Disconnect()
}

func TestSession_SetRole_RejectsUnknownRole(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	f.expectConnect(domain.EventState{Capacity: 300}, nil)
	require.NoError(t, f.session.Connect(context.Background()))

	// Act & Assert
	assert.ErrorIs(t, f.session.SetRole(context.Background(), "JANITOR"), service.ErrInvalidRole)
	f.session.Disconnect()
}

func TestSession_SetRole_CoordinatorRefusedWhileTaken(t *testing.T) {
	// Arrange: another device already announces the coordinator role
	f := newSessionFixture(t)
	f.expectConnect(domain.EventState{Capacity: 300}, nil)
	require.NoError(t, f.session.Connect(context.Background()))

	f.presence.Emit(repository.PresenceUpdate{Record: domain.PresenceRecord{
		DeviceID:    "other-device",
		Role:        domain.RoleCoordinator,
		AnnouncedAt: time.Now().UTC(),
	}})
	require.Eventually(t, func() bool {
		return f.tracker.OtherCoordinatorActive()
	}, 2*time.Second, 10*time.Millisecond)

	// Act
	err := f.session.SetRole(context.Background(), domain.RoleCoordinator)

	// Assert: advisory exclusivity holds once the announce is visible
	assert.ErrorIs(t, err, service.ErrOtherCoordinatorActive)
	assert.Equal(t, domain.RoleNone, f.session.Status().Role)

	// The departing coordinator frees the role
	f.presence.Emit(repository.PresenceUpdate{
		Record: domain.PresenceRecord{DeviceID: "other-device"},
		Left:   true,
	})
	require.Eventually(t, func() bool {
		return !f.tracker.OtherCoordinatorActive()
	}, 2*time.Second, 10*time.Millisecond)
	assert.NoError(t, f.session.SetRole(context.Background(), domain.RoleCoordinator))
	f.session.Disconnect()
}

func TestSession_SendMessage_RequiresRole(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	f.expectConnect(domain.EventState{Capacity: 300}, nil)
	require.NoError(t, f.session.Connect(context.Background()))

	// Act & Assert
	_, err := f.session.SendMessage(context.Background(), "who has gaff tape?")
	assert.ErrorIs(t, err, service.ErrNoRole)
	f.session.Disconnect()
}

func TestSession_SendMessage_StampsCoordinatorStation(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	f.expectConnect(domain.EventState{Capacity: 300}, nil)
	require.NoError(t, f.session.Connect(context.Background()))
	require.NoError(t, f.session.SetRole(context.Background(), domain.RoleCoordinator))

	f.gateway.On("AppendMessage", mock.Anything, mock.MatchedBy(func(msg domain.Message) bool {
		return msg.Station == domain.StationCoordinator
	})).
		Return(domain.Message{ID: 9, Time: "20:00", Station: domain.StationCoordinator, Text: "doors"}, nil).
		Once()

	// Act
	msg, err := f.session.SendMessage(context.Background(), "doors")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, uint64(9), msg.ID)
	f.session.Disconnect()
	f.gateway.AssertExpectations(t)
}

func TestSession_FullReset_WrongPhraseIsNoOp(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	f.expectConnect(
		domain.EventState{DoorCount: 42, Capacity: 300},
		[]domain.Message{{ID: 1, Time: "18:00", Station: domain.StationMerch, Text: "open"}},
	)
	require.NoError(t, f.session.Connect(context.Background()))

	// Act & Assert: near misses are refused, the phrase must match
	// byte for byte, padding included
	for _, phrase := range []string{"RSET", "reset", " RESET ", "RESET\n"} {
		assert.ErrorIs(t, f.session.FullReset(context.Background(), phrase), service.ErrResetNotConfirmed)
	}

	// Nothing wiped, nothing zeroed, no backend calls
	assert.Equal(t, 42, f.state.Snapshot().DoorCount)
	assert.Len(t, f.log.Messages(), 1)
	f.gateway.AssertNotCalled(t, "DeleteAllMessages", mock.Anything)
	f.archiver.AssertNotCalled(t, "EnqueueReset", mock.Anything, mock.Anything, mock.Anything)
	f.session.Disconnect()
}

func TestSession_FullReset_ConfirmedWipesAndArchives(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	tail := []domain.Message{
		{ID: 1, Time: "18:00", Station: domain.StationMerch, Text: "open"},
		{ID: 2, Time: "18:10", Station: domain.StationBeer, Text: "first pour"},
	}
	f.expectConnect(domain.EventState{DoorCount: 42, Capacity: 300}, tail)
	require.NoError(t, f.session.Connect(context.Background()))

	f.archiver.On("EnqueueReset", mock.Anything, mock.AnythingOfType("time.Time"), tail).Return(nil).Once()
	f.gateway.On("DeleteAllMessages", mock.Anything).Return(nil).Once()
	f.gateway.On("UpdateSnapshot", mock.Anything, mock.Anything).Return(nil).Maybe()

	// Act
	err := f.session.FullReset(context.Background(), service.ResetConfirmation)

	// Assert: the wipe happens once
	require.NoError(t, err)
	assert.Empty(t, f.log.Messages())
	assert.Equal(t, 0, f.state.Snapshot().DoorCount)
	f.archiver.AssertExpectations(t)
	f.gateway.AssertExpectations(t)
	f.session.Disconnect()
}

func TestSession_FullReset_ArchiveFailureDoesNotBlockReset(t *testing.T) {
	// Arrange
	f := newSessionFixture(t)
	tail := []domain.Message{{ID: 1, Time: "18:00", Station: domain.StationMerch, Text: "open"}}
	f.expectConnect(domain.EventState{DoorCount: 10, Capacity: 300}, tail)
	require.NoError(t, f.session.Connect(context.Background()))

	f.archiver.On("EnqueueReset", mock.Anything, mock.Anything, tail).Return(errors.New("queue down")).Once()
	f.gateway.On("DeleteAllMessages", mock.Anything).Return(nil).Once()
	f.gateway.On("UpdateSnapshot", mock.Anything, mock.Anything).Return(nil).Maybe()

	// Act
	err := f.session.FullReset(context.Background(), service.ResetConfirmation)

	// Assert
	require.NoError(t, err)
	assert.Empty(t, f.log.Messages())
	f.session.Disconnect()
}
