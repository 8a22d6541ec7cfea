package chathub_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"matchchat/backend/internal/chathub"
	"matchchat/backend/internal/localization"
	"matchchat/backend/internal/models"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var testEpoch = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

// sequentialIdentity names sessions "User 1", "User 2", ... in creation order.
func sequentialIdentity() chathub.IdentityFunc {
	n := 0
	return func() (string, string) {
		n++
		return fmt.Sprintf("User %d", n), chathub.Palette[(n-1)%len(chathub.Palette)]
	}
}

func sequentialRoomIDs() chathub.RoomIDFunc {
	n := 0
	return func(time.Time) string {
		n++
		return fmt.Sprintf("room_%d", n)
	}
}

func newTestCoordinator(t *testing.T, opts ...chathub.Option) *chathub.Coordinator {
	t.Helper()
	texts, err := localization.Default()
	require.NoError(t, err)

	base := []chathub.Option{
		chathub.WithIdentity(sequentialIdentity()),
		chathub.WithRoomIDs(sequentialRoomIDs()),
		chathub.WithClock(func() time.Time { return testEpoch }),
	}
	return chathub.NewCoordinator(texts, append(base, opts...)...)
}

func connect(t *testing.T, c *chathub.Coordinator, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := c.Connect(id)
		require.NoError(t, err)
	}
}

func setPrefs(t *testing.T, c *chathub.Coordinator, id, gender, pref string) []models.Notification {
	t.Helper()
	notes, err := c.SetPreferences(id, gender, pref)
	require.NoError(t, err)
	return notes
}

// eventsFor lists the event names addressed to id, in order.
func eventsFor(notes []models.Notification, id string) []string {
	var out []string
	for _, n := range notes {
		if n.To == id {
			out = append(out, n.Event)
		}
	}
	return out
}

func findNote(t *testing.T, notes []models.Notification, to, event string) models.Notification {
	t.Helper()
	for _, n := range notes {
		if n.To == to && n.Event == event {
			return n
		}
	}
	require.Failf(t, "notification not found", "%s -> %s in %+v", event, to, notes)
	return models.Notification{}
}

// MockClient is a hub client whose outbound notifications land in Inbox.
type MockClient struct {
	userID string
	Inbox  chan models.Notification
	closed chan struct{}
}

func newMockClient(userID string) *MockClient {
	return &MockClient{
		userID: userID,
		Inbox:  make(chan models.Notification, 32),
		closed: make(chan struct{}),
	}
}

func (c *MockClient) GetUserID() string                           { return c.userID }
func (c *MockClient) GetSendChannel() chan<- models.Notification { return c.Inbox }
func (c *MockClient) Run()                                        {}
func (c *MockClient) Close()                                      { close(c.closed) }

func (c *MockClient) IsClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// next waits for the next notification delivered to the client.
func (c *MockClient) next(t *testing.T) models.Notification {
	t.Helper()
	select {
	case n := <-c.Inbox:
		return n
	case <-time.After(2 * time.Second):
		require.FailNow(t, "timed out waiting for notification", "client %s", c.userID)
		return models.Notification{}
	}
}

type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	args := m.Called(ctx, room)
	return args.Error(0)
}

func (m *MockStorage) CloseRoom(ctx context.Context, roomID, reason string, messageCount int, endedAt time.Time) error {
	args := m.Called(ctx, roomID, reason, messageCount, endedAt)
	return args.Error(0)
}

func (m *MockStorage) CloseStaleRooms(ctx context.Context, endedAt time.Time) (int64, error) {
	args := m.Called(ctx, endedAt)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) GetRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	args := m.Called(ctx, roomID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.ChatRoom), args.Error(1)
}

func (m *MockStorage) ListRooms(ctx context.Context, activeOnly bool, limit int) ([]models.ChatRoom, error) {
	args := m.Called(ctx, activeOnly, limit)
	return args.Get(0).([]models.ChatRoom), args.Error(1)
}

func (m *MockStorage) PublishStats(ctx context.Context, stats models.Stats) error {
	args := m.Called(ctx, stats)
	return args.Error(0)
}

func (m *MockStorage) LoadStats(ctx context.Context) (models.Stats, error) {
	args := m.Called(ctx)
	return args.Get(0).(models.Stats), args.Error(1)
}
