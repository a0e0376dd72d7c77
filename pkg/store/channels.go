package store

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/state/logger"
	"groupchat/pkg/store/keys"
)

const maxChannelNameRunes = 100

func upperBound(prefix string) []byte { return keys.UpperBound(prefix) }

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > maxChannelNameRunes {
		return "", fmt.Errorf("%w: channel name must be 1-%d characters", ErrInvalid, maxChannelNameRunes)
	}
	return name, nil
}

// CreateChannel stores a new channel. An empty ID is assigned.
func (s *Store) CreateChannel(ctx context.Context, ch models.Channel) (models.Channel, error) {
	if err := s.check(ctx); err != nil {
		return models.Channel{}, err
	}
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	if err := keys.ValidateID("channel", ch.ID); err != nil {
		return models.Channel{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := keys.ValidateID("group", ch.GroupID); err != nil {
		return models.Channel{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	name, err := validateName(ch.Name)
	if err != nil {
		return models.Channel{}, err
	}
	ch.Name = name

	l := s.lock(keys.GenChannelKey(ch.ID))
	l.Lock()
	defer l.Unlock()

	key := keys.GenChannelKey(ch.ID)
	found, err := s.exists(key)
	if err != nil {
		return models.Channel{}, err
	}
	if found {
		return models.Channel{}, fmt.Errorf("channel %s: %w", ch.ID, ErrExists)
	}
	ch.CreatedTS = s.now().UnixNano()

	b := s.db.NewBatch()
	if err := setJSON(b, key, ch); err != nil {
		b.Close()
		return models.Channel{}, err
	}
	if err := b.Set([]byte(keys.GenGroupChannelKey(ch.GroupID, ch.ID)), nil, nil); err != nil {
		b.Close()
		return models.Channel{}, err
	}
	if err := s.commit(b); err != nil {
		return models.Channel{}, err
	}
	logger.Info("channel_created", "channel_id", ch.ID, "group_id", ch.GroupID)
	return ch, nil
}

func (s *Store) GetChannel(ctx context.Context, channelID string) (models.Channel, error) {
	if err := s.check(ctx); err != nil {
		return models.Channel{}, err
	}
	var ch models.Channel
	if err := s.getJSON(keys.GenChannelKey(channelID), &ch); err != nil {
		return models.Channel{}, fmt.Errorf("channel %s: %w", channelID, err)
	}
	return ch, nil
}

// ListGroupChannels returns the ids of every channel owned by groupID.
func (s *Store) ListGroupChannels(ctx context.Context, groupID string) ([]string, error) {
	if err := s.check(ctx); err != nil {
		return nil, err
	}
	prefix := keys.GenGroupChannelPrefix(groupID)
	var out []string
	err := s.scanPrefix(prefix, func(key, _ []byte) bool {
		out = append(out, strings.TrimPrefix(string(key), prefix))
		return true
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RenameChannel changes the only mutable channel attribute. actorID empty
// means a trusted backend caller; otherwise the actor must be a group admin.
func (s *Store) RenameChannel(ctx context.Context, channelID, name, actorID string) (models.Channel, error) {
	if err := s.check(ctx); err != nil {
		return models.Channel{}, err
	}
	name, err := validateName(name)
	if err != nil {
		return models.Channel{}, err
	}
	l := s.lock(keys.GenChannelKey(channelID))
	l.Lock()
	defer l.Unlock()

	ch, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return models.Channel{}, err
	}
	if actorID != "" {
		a, err := s.actor(ctx, moderation.ActionRename, ch.GroupID, actorID)
		if err != nil {
			return models.Channel{}, err
		}
		if err := moderation.CanRename(a); err != nil {
			return models.Channel{}, err
		}
	}
	ch.Name = name
	b := s.db.NewBatch()
	if err := setJSON(b, keys.GenChannelKey(ch.ID), ch); err != nil {
		b.Close()
		return models.Channel{}, err
	}
	if err := s.commit(b); err != nil {
		return models.Channel{}, err
	}
	return ch, nil
}
