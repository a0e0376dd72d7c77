package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cockroachdb/pebble"

	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/state/logger"
	"groupchat/pkg/store/keys"
)

// GetMute returns the user's active mute in the group, or nil. Expired rows
// read as absent whether or not the sweeper has purged them yet.
func (s *Store) GetMute(ctx context.Context, groupID, userID string) (*models.Mute, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	var m models.Mute
	if err := s.getJSON(keys.GenMuteKey(groupID, userID), &m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !m.ActiveAt(s.now()) {
		return nil, nil
	}
	return &m, nil
}

// Mute issues a mute from actorID against targetID in groupID, replacing any
// existing one.
func (s *Store) Mute(ctx context.Context, groupID, targetID, actorID string, d models.MuteDuration) (models.Mute, error) {
	if err := s.check(ctx); err != nil {
		return models.Mute{}, err
	}
	if _, err := models.ParseMuteDuration(string(d)); err != nil {
		return models.Mute{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	a, err := s.actor(ctx, moderation.ActionMute, groupID, actorID)
	if err != nil {
		return models.Mute{}, err
	}
	if err := moderation.CanMute(a, targetID); err != nil {
		return models.Mute{}, err
	}
	if _, err := s.GetMember(ctx, groupID, targetID); err != nil {
		return models.Mute{}, err
	}
	key := keys.GenMuteKey(groupID, targetID)
	l := s.lock(key)
	l.Lock()
	defer l.Unlock()
	m := models.NewMute(groupID, targetID, actorID, d, s.now())
	b := s.db.NewBatch()
	if err := setJSON(b, key, m); err != nil {
		b.Close()
		return models.Mute{}, err
	}
	if err := s.commit(b); err != nil {
		return models.Mute{}, err
	}
	logger.Info("member_muted", "group_id", groupID, "user_id", targetID, "issued_by", actorID, "duration", string(d))
	return m, nil
}

// Unmute clears a mute. removed is false when none was active.
func (s *Store) Unmute(ctx context.Context, groupID, targetID, actorID string) (bool, error) {
	if err := s.check(ctx); err != nil {
		return false, err
	}
	a, err := s.actor(ctx, moderation.ActionUnmute, groupID, actorID)
	if err != nil {
		return false, err
	}
	if err := moderation.CanUnmute(a); err != nil {
		return false, err
	}
	key := keys.GenMuteKey(groupID, targetID)
	l := s.lock(key)
	l.Lock()
	defer l.Unlock()
	active, err := s.GetMute(ctx, groupID, targetID)
	if err != nil {
		return false, err
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return false, err
	}
	return active != nil, nil
}

// SweepExpiredMutes deletes mute rows whose expiry is at or before now.
func (s *Store) SweepExpiredMutes(ctx context.Context, now time.Time) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	var expired [][]byte
	err := s.scanPrefix(keys.MutePfx, func(key, value []byte) bool {
		var m models.Mute
		if err := json.Unmarshal(value, &m); err != nil {
			logger.Warn("mute_decode_failed", "key", string(key), "error", err)
			return true
		}
		if !m.ActiveAt(now) {
			expired = append(expired, append([]byte(nil), key...))
		}
		return ctx.Err() == nil
	})
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, k := range expired {
		ok, err := s.purgeMute(string(k), now)
		if err != nil {
			return purged, err
		}
		if ok {
			purged++
		}
	}
	return purged, ctx.Err()
}

// purgeMute deletes key if the row under it is still expired, so a mute
// reissued since the scan survives.
func (s *Store) purgeMute(key string, now time.Time) (bool, error) {
	l := s.lock(key)
	l.Lock()
	defer l.Unlock()
	var m models.Mute
	if err := s.getJSON(key, &m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if m.ActiveAt(now) {
		return false, nil
	}
	if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
		return false, err
	}
	return true, nil
}
