package chathub_test

import (
	"encoding/json"
	"math/rand/v2"
	"testing"
	"time"

	"matchchat/backend/internal/chathub"
	apperrors "matchchat/backend/internal/errors"
	"matchchat/backend/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// matchedPair connects a (male, any) and b (female, male) and returns their room.
func matchedPair(t *testing.T, c *chathub.Coordinator) string {
	t.Helper()
	connect(t, c, "a", "b")
	setPrefs(t, c, "a", "male", "any")
	notes := setPrefs(t, c, "b", "female", "male")
	payload := findNote(t, notes, "a", models.EventMatchFound).Data.(models.MatchFoundPayload)
	return payload.RoomID
}

func TestConnect(t *testing.T) {
	c := newTestCoordinator(t)

	notes, err := c.Connect("a")
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.EventConnected, notes[0].Event)
	assert.Equal(t, "a", notes[0].Data.(models.ConnectedPayload).SocketID)

	_, err = c.Connect("a")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeAlreadyExists))
}

func TestScenarioFirstClientWaits(t *testing.T) {
	// Arrange
	c := newTestCoordinator(t)
	connect(t, c, "a")

	// Act
	notes := setPrefs(t, c, "a", "male", "any")

	// Assert
	assert.Equal(t, []string{models.EventPreferencesSet, models.EventWaitingForMatch}, eventsFor(notes, "a"))

	set := notes[0].Data.(models.PreferencesSetPayload)
	assert.Equal(t, "User 1", set.UserInfo.Name)
	assert.Equal(t, models.GenderMale, set.UserInfo.Gender)
	assert.Equal(t, models.PreferAny, set.UserInfo.Preference)

	waiting := notes[1].Data.(models.WaitingPayload)
	assert.Equal(t, 1, waiting.WaitingCount)
	assert.Equal(t, "Looking for a match... (currently waiting: 1)", waiting.Message)

	s, err := c.Session("a")
	require.NoError(t, err)
	assert.Equal(t, models.StatusWaiting, s.Status)
	assert.NoError(t, c.CheckConsistency())
}

func TestScenarioCompatibleClientsMatch(t *testing.T) {
	// Arrange
	c := newTestCoordinator(t)
	connect(t, c, "a", "b")
	setPrefs(t, c, "a", "male", "any")

	// Act
	notes := setPrefs(t, c, "b", "female", "male")

	// Assert
	assert.Equal(t, []string{models.EventPreferencesSet, models.EventMatchFound}, eventsFor(notes, "b"))
	assert.Equal(t, []string{models.EventMatchFound}, eventsFor(notes, "a"))

	forA := findNote(t, notes, "a", models.EventMatchFound).Data.(models.MatchFoundPayload)
	forB := findNote(t, notes, "b", models.EventMatchFound).Data.(models.MatchFoundPayload)
	assert.Equal(t, "b", forA.Partner.ID)
	assert.Equal(t, "User 2", forA.Partner.Name)
	assert.Equal(t, "a", forB.Partner.ID)
	assert.Equal(t, models.GenderMale, forB.Partner.Gender)
	assert.Equal(t, forA.RoomID, forB.RoomID)
	assert.Equal(t, "Match found! Start chatting!", forA.Message)

	assert.Zero(t, c.Stats().Waiting)
	assert.Equal(t, 1, c.Stats().ActiveRooms)
	for _, id := range []string{"a", "b"} {
		count := c.WaitingCount(id)
		require.Len(t, count, 1)
		assert.Equal(t, models.WaitingCountPayload{Count: 0}, count[0].Data)
	}
	assert.NoError(t, c.CheckConsistency())
}

func TestIncompatibleClientsBothWait(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a", "b")
	setPrefs(t, c, "a", "male", "male")
	notes := setPrefs(t, c, "b", "female", "any")

	assert.Equal(t, []string{models.EventPreferencesSet, models.EventWaitingForMatch}, eventsFor(notes, "b"))
	assert.Equal(t, 2, notes[1].Data.(models.WaitingPayload).WaitingCount)
	assert.Equal(t, []string{"a", "b"}, c.WaitingIDs())
}

func TestScenarioSendMessage(t *testing.T) {
	// Arrange
	c := newTestCoordinator(t)
	roomID := matchedPair(t, c)

	// Act
	notes, err := c.SendMessage("a", "  hi  ")

	// Assert
	require.NoError(t, err)
	require.Len(t, notes, 2)

	received := findNote(t, notes, "b", models.EventNewMessage).Data.(models.Message)
	assert.Equal(t, "hi", received.Text)
	assert.Equal(t, "a", received.SenderID)
	assert.Equal(t, "User 1", received.SenderName)
	assert.Equal(t, chathub.Palette[0], received.SenderColor)
	assert.Equal(t, testEpoch, received.Timestamp)
	assert.False(t, received.IsOwnMessage)

	echo := findNote(t, notes, "a", models.EventMessageSent).Data.(models.Message)
	assert.Equal(t, "hi", echo.Text)
	assert.True(t, echo.IsOwnMessage)

	room, err := c.Room(roomID)
	require.NoError(t, err)
	require.Len(t, room.Messages, 1)
	assert.Equal(t, "hi", room.Messages[0].Text)
}

func TestScenarioDisconnectWhileMatched(t *testing.T) {
	// Arrange
	c := newTestCoordinator(t)
	roomID := matchedPair(t, c)

	// Act
	notes, err := c.Disconnect("a")

	// Assert
	require.NoError(t, err)
	got := eventsFor(notes, "b")
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, []string{models.EventPartnerDisconnected, models.EventWaitingForMatch}, got[:2])

	gone := findNote(t, notes, "b", models.EventPartnerDisconnected).Data.(models.PartnerGonePayload)
	assert.Equal(t, "a", gone.Partner.ID)
	assert.Equal(t, "User 1", gone.Partner.Name)

	assert.True(t, c.IsWaiting("b"))
	_, err = c.Room(roomID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRoomNotFound))
	_, err = c.Session("a")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
	assert.NoError(t, c.CheckConsistency())
}

func TestScenarioBlankMessageIsDropped(t *testing.T) {
	c := newTestCoordinator(t)
	roomID := matchedPair(t, c)

	for _, text := range []string{"", "   ", "\n\t"} {
		notes, err := c.SendMessage("a", text)
		assert.NoError(t, err)
		assert.Empty(t, notes)
	}

	room, err := c.Room(roomID)
	require.NoError(t, err)
	assert.Empty(t, room.Messages)
}

func TestSendMessageNotInRoom(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a")
	setPrefs(t, c, "a", "male", "any")

	notes, err := c.SendMessage("a", "hello?")

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotInRoom))
	require.Len(t, notes, 1)
	assert.Equal(t, models.EventError, notes[0].Event)
	assert.Equal(t, "You are not in a chat room", notes[0].Data.(models.MessagePayload).Message)
}

func TestSendMessageTooLong(t *testing.T) {
	c := newTestCoordinator(t, chathub.WithMaxMessageLength(5))
	roomID := matchedPair(t, c)

	notes, err := c.SendMessage("a", "你好你好你好")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
	require.Len(t, notes, 1)
	assert.Equal(t, "a", notes[0].To)
	assert.Equal(t, "Message is too long (max 5 characters)", notes[0].Data.(models.MessagePayload).Message)

	// Exactly at the limit, counted in runes.
	notes, err = c.SendMessage("a", "你好你好你")
	require.NoError(t, err)
	assert.Len(t, notes, 2)

	room, _ := c.Room(roomID)
	assert.Len(t, room.Messages, 1)
}

func TestSetPreferencesInvalid(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a")

	notes, err := c.SetPreferences("a", "robot", "any")

	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidPreference))
	require.Len(t, notes, 1)
	assert.Equal(t, models.EventError, notes[0].Event)
	assert.Equal(t, "a", notes[0].To)

	s, _ := c.Session("a")
	assert.Equal(t, models.StatusUnset, s.Status)
	assert.False(t, c.IsWaiting("a"))
}

func TestSetPreferencesWhileMatched(t *testing.T) {
	c := newTestCoordinator(t)
	roomID := matchedPair(t, c)

	notes, err := c.SetPreferences("a", "other", "female")

	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.EventAlreadyMatched, notes[0].Event)
	payload := notes[0].Data.(models.AlreadyMatchedPayload)
	assert.Equal(t, roomID, payload.RoomID)
	assert.Equal(t, "b", payload.Partner.ID)

	s, _ := c.Session("a")
	assert.Equal(t, models.GenderMale, s.Gender, "preferences cannot change mid-room")
	assert.Equal(t, models.PreferAny, s.Preference)
	assert.Equal(t, roomID, s.RoomID)
	assert.NoError(t, c.CheckConsistency())
}

func TestSetPreferencesAgainWhileWaiting(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a", "c")
	setPrefs(t, c, "a", "male", "female")
	setPrefs(t, c, "c", "male", "female")
	require.Equal(t, []string{"a", "c"}, c.WaitingIDs())

	notes := setPrefs(t, c, "a", "male", "female")

	assert.Equal(t, []string{"c", "a"}, c.WaitingIDs(), "resubmission moves to the back")
	assert.Equal(t, 2, notes[1].Data.(models.WaitingPayload).WaitingCount)
	s, _ := c.Session("a")
	assert.Equal(t, "User 1", s.Name, "identity survives resubmission")
	assert.NoError(t, c.CheckConsistency())
}

func TestSkipMatch(t *testing.T) {
	// Arrange
	c := newTestCoordinator(t)
	roomID := matchedPair(t, c)
	connect(t, c, "c")
	setPrefs(t, c, "c", "male", "male")

	// Act
	notes, err := c.Skip("a")

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{models.EventPartnerSkipped, models.EventWaitingForMatch}, eventsFor(notes, "b"))
	assert.Equal(t, []string{models.EventMatchSkipped, models.EventMatchFound}, eventsFor(notes, "a"))

	skipped := findNote(t, notes, "b", models.EventPartnerSkipped).Data.(models.PartnerGonePayload)
	assert.Equal(t, "a", skipped.Partner.ID)
	assert.Equal(t, 3, findNote(t, notes, "a", models.EventMatchSkipped).Data.(models.WaitingPayload).WaitingCount)

	// c (male, wants male) is older than b in the queue and takes a.
	sa, _ := c.Session("a")
	assert.Equal(t, "c", sa.Partner.ID)
	assert.Equal(t, []string{"b"}, c.WaitingIDs())
	_, err = c.Room(roomID)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeRoomNotFound))
	assert.NoError(t, c.CheckConsistency())
}

func TestSkipRequeuedPartnerMatchesSomeoneElse(t *testing.T) {
	c := newTestCoordinator(t)
	matchedPair(t, c)
	connect(t, c, "c")
	setPrefs(t, c, "c", "male", "female")

	notes, err := c.Skip("a")

	require.NoError(t, err)
	assert.Equal(t, []string{models.EventPartnerSkipped, models.EventWaitingForMatch, models.EventMatchFound}, eventsFor(notes, "b"))
	assert.Equal(t, []string{models.EventMatchFound}, eventsFor(notes, "c"))
	assert.Equal(t, []string{models.EventMatchSkipped}, eventsFor(notes, "a"))
	assert.Equal(t, []string{"a"}, c.WaitingIDs())

	sb, _ := c.Session("b")
	assert.Equal(t, "c", sb.Partner.ID)
	assert.NoError(t, c.CheckConsistency())
}

func TestSkipWithoutPreferences(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a")

	notes, err := c.Skip("a")

	require.NoError(t, err)
	assert.Equal(t, []string{models.EventNeedPreferences}, eventsFor(notes, "a"))
	assert.False(t, c.IsWaiting("a"))
}

func TestSkipWhileWaitingKeepsPosition(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a", "c")
	setPrefs(t, c, "a", "male", "male")
	setPrefs(t, c, "c", "female", "female")

	notes, err := c.Skip("a")

	require.NoError(t, err)
	assert.Equal(t, []string{models.EventMatchSkipped}, eventsFor(notes, "a"))
	assert.Equal(t, []string{"a", "c"}, c.WaitingIDs())
	assert.NoError(t, c.CheckConsistency())
}

func TestRematchWhileMatched(t *testing.T) {
	c := newTestCoordinator(t)
	roomID := matchedPair(t, c)

	notes, err := c.Rematch("a")

	require.NoError(t, err)
	assert.Equal(t, []string{models.EventPartnerLeft, models.EventWaitingForMatch, models.EventMatchFound}, eventsFor(notes, "b"))
	assert.Equal(t, []string{models.EventMatchFound}, eventsFor(notes, "a"))
	assert.Equal(t, "Your partner left, looking for a new match...",
		findNote(t, notes, "b", models.EventPartnerLeft).Data.(models.MessagePayload).Message)

	// Nobody else is waiting, so the same two are paired again in a new room.
	found := findNote(t, notes, "a", models.EventMatchFound).Data.(models.MatchFoundPayload)
	assert.Equal(t, "b", found.Partner.ID)
	assert.Equal(t, "Rematched successfully!", found.Message)
	assert.NotEqual(t, roomID, found.RoomID)
	assert.Empty(t, c.WaitingIDs())
	assert.NoError(t, c.CheckConsistency())
}

func TestLonePairIsNeverLeftWaiting(t *testing.T) {
	tests := []struct {
		name  string
		leave func(c *chathub.Coordinator) ([]models.Notification, error)
	}{
		{"skip", func(c *chathub.Coordinator) ([]models.Notification, error) { return c.Skip("a") }},
		{"rematch", func(c *chathub.Coordinator) ([]models.Notification, error) { return c.Rematch("a") }},
		{"partner skips", func(c *chathub.Coordinator) ([]models.Notification, error) { return c.Skip("b") }},
		{"partner rematches", func(c *chathub.Coordinator) ([]models.Notification, error) { return c.Rematch("b") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator(t)
			matchedPair(t, c)

			_, err := tt.leave(c)
			require.NoError(t, err)
			_ = c.WaitingCount("a")

			assert.Empty(t, c.WaitingIDs())
			sa, err := c.Session("a")
			require.NoError(t, err)
			sb, err := c.Session("b")
			require.NoError(t, err)
			assert.Equal(t, models.StatusMatched, sa.Status)
			assert.Equal(t, sa.RoomID, sb.RoomID)
			assert.Equal(t, 1, c.Stats().ActiveRooms)
			assert.NoError(t, c.CheckConsistency())
		})
	}
}

func TestRematchFindsNewPartner(t *testing.T) {
	c := newTestCoordinator(t)
	matchedPair(t, c)
	connect(t, c, "d")
	setPrefs(t, c, "d", "other", "male")

	notes, err := c.Rematch("a")

	require.NoError(t, err)
	found := findNote(t, notes, "a", models.EventMatchFound).Data.(models.MatchFoundPayload)
	assert.Equal(t, "d", found.Partner.ID)
	assert.Equal(t, "Rematched successfully!", found.Message)
	assert.Equal(t, []string{"b"}, c.WaitingIDs())
	assert.NoError(t, c.CheckConsistency())
}

func TestRematchWithoutPreferences(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a")

	notes, err := c.Rematch("a")

	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.EventNeedPreferences, notes[0].Event)
	assert.Equal(t, "Please set your gender and match preference first", notes[0].Data.(models.MessagePayload).Message)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c := newTestCoordinator(t)
	matchedPair(t, c)

	_, err := c.Disconnect("a")
	require.NoError(t, err)
	before := c.Stats()

	notes, err := c.Disconnect("a")

	assert.NoError(t, err)
	assert.Empty(t, notes)
	assert.Equal(t, before, c.Stats())
	assert.NoError(t, c.CheckConsistency())
}

func TestDisconnectBroadcastsWaitingCount(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a", "b", "c")
	setPrefs(t, c, "a", "male", "male")
	setPrefs(t, c, "b", "female", "female")
	setPrefs(t, c, "c", "other", "male")

	notes, err := c.Disconnect("b")

	require.NoError(t, err)
	require.Len(t, notes, 2)
	for _, id := range []string{"a", "c"} {
		n := findNote(t, notes, id, models.EventWaitingUpdate)
		assert.Equal(t, models.WaitingUpdatePayload{WaitingCount: 2}, n.Data)
	}
}

func TestRequeuedPartnerKeepsPreferences(t *testing.T) {
	c := newTestCoordinator(t)
	matchedPair(t, c)
	before, _ := c.Session("b")

	_, err := c.Disconnect("a")
	require.NoError(t, err)

	after, err := c.Session("b")
	require.NoError(t, err)
	assert.Equal(t, before.Gender, after.Gender)
	assert.Equal(t, before.Preference, after.Preference)
	assert.Equal(t, before.Name, after.Name)

	// b (female, wants male) still rejects a female and accepts a male.
	connect(t, c, "f", "m")
	notes := setPrefs(t, c, "f", "female", "any")
	assert.NotContains(t, eventsFor(notes, "f"), models.EventMatchFound)
	notes = setPrefs(t, c, "m", "male", "female")
	assert.Equal(t, "b", findNote(t, notes, "m", models.EventMatchFound).Data.(models.MatchFoundPayload).Partner.ID)
}

func TestHandleDecodesEvents(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a")

	notes, err := c.Handle(models.InboundEvent{
		ConnID: "a",
		Event:  models.EventSetPreferences,
		Data:   json.RawMessage(`{"gender":"other","matchPreference":"any"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{models.EventPreferencesSet, models.EventWaitingForMatch}, eventsFor(notes, "a"))

	notes, err = c.Handle(models.InboundEvent{ConnID: "a", Event: models.EventGetWaitingCount})
	require.NoError(t, err)
	assert.Equal(t, models.WaitingCountPayload{Count: 1}, notes[0].Data)

	notes, err = c.Handle(models.InboundEvent{ConnID: "a", Event: models.EventSendMessage, Data: json.RawMessage(`{"message":"x"}`)})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotInRoom))
	assert.Equal(t, models.EventError, notes[0].Event)
}

func TestHandleRejectsBadInput(t *testing.T) {
	c := newTestCoordinator(t)
	connect(t, c, "a")

	notes, err := c.Handle(models.InboundEvent{ConnID: "a", Event: "teleport"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidEvent))
	require.Len(t, notes, 1)
	assert.Equal(t, models.EventError, notes[0].Event)

	notes, err = c.Handle(models.InboundEvent{ConnID: "a", Event: models.EventSetPreferences, Data: json.RawMessage(`[1,2]`)})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidInput))
	assert.Equal(t, models.EventError, notes[0].Event)

	// Missing payload is an invalid preference, not a crash.
	_, err = c.Handle(models.InboundEvent{ConnID: "a", Event: models.EventSetPreferences})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidPreference))
}

func TestJournal(t *testing.T) {
	journal := make(chan chathub.JournalEvent, 64)
	c := newTestCoordinator(t, chathub.WithJournal(journal))
	roomID := matchedPair(t, c)
	_, err := c.SendMessage("a", "hi")
	require.NoError(t, err)
	_, err = c.Skip("b")
	require.NoError(t, err)

	var kinds []chathub.JournalKind
	var opened []chathub.JournalEvent
	var closed chathub.JournalEvent
	for len(journal) > 0 {
		ev := <-journal
		kinds = append(kinds, ev.Kind)
		switch ev.Kind {
		case chathub.JournalRoomOpened:
			opened = append(opened, ev)
		case chathub.JournalRoomClosed:
			closed = ev
		}
	}

	assert.Contains(t, kinds, chathub.JournalStats)
	// The skip closes the first room and re-pairs the two in a second one.
	require.Len(t, opened, 2)
	assert.Equal(t, roomID, opened[0].Room.ID)
	assert.NotEqual(t, roomID, opened[1].Room.ID)
	assert.Equal(t, roomID, closed.Room.ID)
	assert.Equal(t, models.CloseSkip, closed.Reason)
	assert.Len(t, closed.Room.Messages, 1)
	assert.Equal(t, chathub.JournalStats, kinds[len(kinds)-1])
}

func TestFullJournalNeverBlocks(t *testing.T) {
	journal := make(chan chathub.JournalEvent)
	c := newTestCoordinator(t, chathub.WithJournal(journal))

	done := make(chan struct{})
	go func() {
		defer close(done)
		matchedPair(t, c)
		_, _ = c.Disconnect("a")
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator blocked on the journal")
	}
}

// TestRandomEventsKeepInvariants drives a small population through random
// events and checks the cross-collection invariants after each one.
func TestRandomEventsKeepInvariants(t *testing.T) {
	c := newTestCoordinator(t)
	rng := rand.New(rand.NewPCG(7, 42))
	ids := []string{"c0", "c1", "c2", "c3", "c4", "c5"}
	online := map[string]bool{}
	genders := []string{"male", "female", "other", "bogus"}
	prefs := []string{"male", "female", "any"}

	for step := 0; step < 2000; step++ {
		id := ids[rng.IntN(len(ids))]
		if !online[id] {
			_, err := c.Connect(id)
			require.NoError(t, err)
			online[id] = true
			continue
		}

		switch rng.IntN(6) {
		case 0:
			_, _ = c.SetPreferences(id, genders[rng.IntN(len(genders))], prefs[rng.IntN(len(prefs))])
		case 1:
			_, _ = c.SendMessage(id, "hello")
		case 2:
			_, _ = c.Skip(id)
		case 3:
			_, _ = c.Rematch(id)
		case 4:
			_ = c.WaitingCount(id)
		case 5:
			_, _ = c.Disconnect(id)
			online[id] = false
		}

		require.NoError(t, c.CheckConsistency(), "step %d", step)
		stats := c.Stats()
		assert.LessOrEqual(t, stats.Waiting+2*stats.ActiveRooms, stats.Online)
	}
}
