package chathub

import (
	"context"

	"matchchat/backend/internal/config"
	"matchchat/backend/internal/models"
	"matchchat/backend/internal/storage"

	"github.com/rs/zerolog/log"
)

// Recorder drains the coordinator journal into storage so that no database
// or redis call ever runs under the coordinator lock.
type Recorder struct {
	Storage storage.Storage
	Events  <-chan JournalEvent
}

func NewRecorder(s storage.Storage, events <-chan JournalEvent) *Recorder {
	return &Recorder{Storage: s, Events: events}
}

// Run records events until ctx is cancelled or Events is closed. Events
// already buffered at cancellation are still written.
func (r *Recorder) Run(ctx context.Context) {
	log.Info().Msg("recorder started")
	for {
		select {
		case ev, ok := <-r.Events:
			if !ok {
				log.Info().Msg("recorder stopped")
				return
			}
			r.record(ev)
		case <-ctx.Done():
			r.drain()
			log.Info().Msg("recorder stopped")
			return
		}
	}
}

func (r *Recorder) drain() {
	for {
		select {
		case ev, ok := <-r.Events:
			if !ok {
				return
			}
			r.record(ev)
		default:
			return
		}
	}
}

func (r *Recorder) record(ev JournalEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), config.StorageOpTimeout)
	defer cancel()

	var err error
	switch ev.Kind {
	case JournalRoomOpened:
		err = r.Storage.SaveRoom(ctx, models.NewChatRoom(ev.Room))
	case JournalRoomClosed:
		err = r.Storage.CloseRoom(ctx, ev.Room.ID, ev.Reason, len(ev.Room.Messages), ev.At)
	case JournalStats:
		err = r.Storage.PublishStats(ctx, ev.Stats)
	default:
		log.Warn().Int("kind", int(ev.Kind)).Msg("unknown journal event")
		return
	}
	if err != nil {
		log.Warn().Err(err).Stringer("kind", ev.Kind).Str("roomId", ev.Room.ID).Msg("failed to record journal event")
	}
}
