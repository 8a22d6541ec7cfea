package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"matchchat/backend/internal/config"
	apperrors "matchchat/backend/internal/errors"
	"matchchat/backend/internal/models"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Storage is the write side used by the Recorder and the read side used by
// the admin CLI. Both backends are optional.
type Storage interface {
	SaveRoom(ctx context.Context, room *models.ChatRoom) error
	CloseRoom(ctx context.Context, roomID, reason string, messageCount int, endedAt time.Time) error
	CloseStaleRooms(ctx context.Context, endedAt time.Time) (int64, error)

	GetRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error)
	ListRooms(ctx context.Context, activeOnly bool, limit int) ([]models.ChatRoom, error)

	PublishStats(ctx context.Context, stats models.Stats) error
	LoadStats(ctx context.Context) (models.Stats, error)
}

// ErrArchiveDisabled is returned by reads when no database is configured.
var ErrArchiveDisabled = errors.New("room archive is disabled")

// ErrStatsDisabled is returned by LoadStats when no redis is configured.
var ErrStatsDisabled = errors.New("stats publishing is disabled")

type Service struct {
	DB    *gorm.DB
	Redis *redis.Client
}

// NewStorageService Constructor. Either argument may be nil; writes to a
// missing backend are no-ops.
func NewStorageService(db *gorm.DB, rdb *redis.Client) *Service {
	return &Service{
		DB:    db,
		Redis: rdb,
	}
}

// SaveRoom inserts (or overwrites) the archive row for a newly opened room.
func (s *Service) SaveRoom(ctx context.Context, room *models.ChatRoom) error {
	if s.DB == nil {
		return nil
	}
	if err := s.DB.WithContext(ctx).Save(room).Error; err != nil {
		return apperrors.Database(err)
	}
	return nil
}

// CloseRoom закриває кімнату, встановлюючи IsActive = false та EndedAt
func (s *Service) CloseRoom(ctx context.Context, roomID, reason string, messageCount int, endedAt time.Time) error {
	if s.DB == nil {
		return nil
	}
	res := s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("room_id = ?", roomID).
		Updates(map[string]interface{}{
			"is_active":     false,
			"ended_at":      endedAt,
			"close_reason":  reason,
			"message_count": messageCount,
		})
	if res.Error != nil {
		return apperrors.Database(res.Error)
	}
	if res.RowsAffected == 0 {
		log.Warn().Str("roomId", roomID).Msg("closed room was never archived")
	}
	return nil
}

// CloseStaleRooms marks every row still active as closed by a restart. Rooms
// live only in memory, so none of them survived.
func (s *Service) CloseStaleRooms(ctx context.Context, endedAt time.Time) (int64, error) {
	if s.DB == nil {
		return 0, nil
	}
	res := s.DB.WithContext(ctx).Model(&models.ChatRoom{}).
		Where("is_active = ?", true).
		Updates(map[string]interface{}{
			"is_active":    false,
			"ended_at":     endedAt,
			"close_reason": models.CloseRestart,
		})
	if res.Error != nil {
		return 0, apperrors.Database(res.Error)
	}
	return res.RowsAffected, nil
}

func (s *Service) GetRoomByID(ctx context.Context, roomID string) (*models.ChatRoom, error) {
	if s.DB == nil {
		return nil, ErrArchiveDisabled
	}
	var room models.ChatRoom

	err := s.DB.WithContext(ctx).Where("room_id = ?", roomID).First(&room).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFound("room " + roomID)
	}
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return &room, nil
}

// ListRooms returns archived rooms, newest first. limit <= 0 means no limit.
func (s *Service) ListRooms(ctx context.Context, activeOnly bool, limit int) ([]models.ChatRoom, error) {
	if s.DB == nil {
		return nil, ErrArchiveDisabled
	}
	q := s.DB.WithContext(ctx).Model(&models.ChatRoom{}).Order("started_at DESC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var rooms []models.ChatRoom
	if err := q.Find(&rooms).Error; err != nil {
		return nil, apperrors.Database(err)
	}
	return rooms, nil
}

// PublishStats writes the counters to the stats hash and announces them on
// the stats channel in one round trip.
func (s *Service) PublishStats(ctx context.Context, stats models.Stats) error {
	if s.Redis == nil {
		return nil
	}
	payload, err := json.Marshal(stats)
	if err != nil {
		return err
	}

	_, err = s.Redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, config.StatsKey, StatsFields(stats))
		pipe.Publish(ctx, config.StatsChannel, payload)
		return nil
	})
	if err != nil {
		return apperrors.External("redis", err)
	}
	return nil
}

// LoadStats reads the last published counters.
func (s *Service) LoadStats(ctx context.Context) (models.Stats, error) {
	if s.Redis == nil {
		return models.Stats{}, ErrStatsDisabled
	}
	fields, err := s.Redis.HGetAll(ctx, config.StatsKey).Result()
	if err != nil {
		return models.Stats{}, apperrors.External("redis", err)
	}
	if len(fields) == 0 {
		return models.Stats{}, apperrors.NotFound("stats")
	}
	return ParseStats(fields)
}

// StatsFields flattens stats into the hash layout stored under StatsKey.
func StatsFields(stats models.Stats) map[string]interface{} {
	return map[string]interface{}{
		"waiting":      stats.Waiting,
		"active_rooms": stats.ActiveRooms,
		"online":       stats.Online,
		"updated_at":   stats.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

// ParseStats is the inverse of StatsFields.
func ParseStats(fields map[string]string) (models.Stats, error) {
	var stats models.Stats
	var err error
	if stats.Waiting, err = strconv.Atoi(fields["waiting"]); err != nil {
		return stats, apperrors.Wrap(apperrors.ErrCodeInternal, "bad waiting field", err)
	}
	if stats.ActiveRooms, err = strconv.Atoi(fields["active_rooms"]); err != nil {
		return stats, apperrors.Wrap(apperrors.ErrCodeInternal, "bad active_rooms field", err)
	}
	if stats.Online, err = strconv.Atoi(fields["online"]); err != nil {
		return stats, apperrors.Wrap(apperrors.ErrCodeInternal, "bad online field", err)
	}
	if stats.UpdatedAt, err = time.Parse(time.RFC3339Nano, fields["updated_at"]); err != nil {
		return stats, apperrors.Wrap(apperrors.ErrCodeInternal, "bad updated_at field", err)
	}
	return stats, nil
}

// Close releases both connections.
func (s *Service) Close() error {
	var errs []error
	if s.Redis != nil {
		errs = append(errs, s.Redis.Close())
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			errs = append(errs, sqlDB.Close())
		} else {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
