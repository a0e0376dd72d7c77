package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"

	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/store/keys"
)

// AddReaction stores (message, emoji, user). Adding a held pair is a no-op
// reported as added=false with the existing row.
func (s *Store) AddReaction(ctx context.Context, msgID, emoji, userID string) (r models.Reaction, channelID string, added bool, err error) {
	if err := keys.ValidateEmoji(emoji); err != nil {
		return models.Reaction{}, "", false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	_, _, err = s.mutate(ctx, msgID, func(ch models.Channel, m *models.Message) (bool, error) {
		channelID = ch.ID
		a, err := s.actor(ctx, moderation.ActionReact, ch.GroupID, userID)
		if err != nil {
			return false, err
		}
		if err := moderation.CanReact(a, m); err != nil {
			return false, err
		}
		key := keys.GenReactionKey(msgID, emoji, userID)
		err = s.getJSON(key, &r)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return false, err
		}
		r = models.Reaction{MessageID: msgID, Emoji: emoji, UserID: userID, CreatedTS: s.now().UnixNano()}
		b := s.db.NewBatch()
		if err := setJSON(b, key, r); err != nil {
			b.Close()
			return false, err
		}
		if err := s.commit(b); err != nil {
			return false, err
		}
		added = true
		// the message row itself is unchanged
		return false, nil
	})
	return r, channelID, added, err
}

// RemoveReaction deletes the pair. Removing an absent reaction is not an
// error; removed reports whether a row existed.
func (s *Store) RemoveReaction(ctx context.Context, msgID, emoji, userID string) (r models.Reaction, channelID string, removed bool, err error) {
	if err := keys.ValidateEmoji(emoji); err != nil {
		return models.Reaction{}, "", false, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	r = models.Reaction{MessageID: msgID, Emoji: emoji, UserID: userID}
	_, _, err = s.mutate(ctx, msgID, func(ch models.Channel, m *models.Message) (bool, error) {
		channelID = ch.ID
		if _, err := s.actor(ctx, moderation.ActionReact, ch.GroupID, userID); err != nil {
			return false, err
		}
		key := keys.GenReactionKey(msgID, emoji, userID)
		var existing models.Reaction
		err := s.getJSON(key, &existing)
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if err := s.db.Delete([]byte(key), pebble.Sync); err != nil {
			return false, err
		}
		r = existing
		removed = true
		return false, nil
	})
	return r, channelID, removed, err
}

// ListReactions returns the raw rows for the given messages of a channel.
// Ids that are unknown or belong to another channel are skipped.
func (s *Store) ListReactions(ctx context.Context, channelID string, msgIDs []string) ([]models.Reaction, error) {
	if _, err := s.GetChannel(ctx, channelID); err != nil {
		return nil, err
	}
	var out []models.Reaction
	for _, id := range msgIDs {
		m, err := s.GetMessage(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		if m.ChannelID != channelID {
			continue
		}
		var decodeErr error
		err = s.scanPrefix(keys.GenReactionPrefix(id), func(_, value []byte) bool {
			var r models.Reaction
			if err := json.Unmarshal(value, &r); err != nil {
				decodeErr = err
				return false
			}
			out = append(out, r)
			return true
		})
		if err != nil {
			return nil, err
		}
		if decodeErr != nil {
			return nil, fmt.Errorf("decode reaction: %w", decodeErr)
		}
	}
	return out, nil
}
