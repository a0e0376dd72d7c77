package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/store/keys"
)

// PutMember upserts a roster entry. Roles other than admin become member.
func (s *Store) PutMember(ctx context.Context, m models.Member) (models.Member, error) {
	if err := s.check(ctx); err != nil {
		return models.Member{}, err
	}
	if err := keys.ValidateID("group", m.GroupID); err != nil {
		return models.Member{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := keys.ValidateID("user", m.ID); err != nil {
		return models.Member{}, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	m.DisplayName = strings.TrimSpace(m.DisplayName)
	if m.DisplayName == "" {
		m.DisplayName = m.ID
	}
	if m.Role != models.RoleAdmin {
		m.Role = models.RoleMember
	}
	// per-channel and derived fields are never stored on the roster row
	m.LastReadTS = 0
	m.Mute = nil

	b := s.db.NewBatch()
	if err := setJSON(b, keys.GenMemberKey(m.GroupID, m.ID), m); err != nil {
		b.Close()
		return models.Member{}, err
	}
	if err := s.commit(b); err != nil {
		return models.Member{}, err
	}
	return m, nil
}

func (s *Store) GetMember(ctx context.Context, groupID, userID string) (models.Member, error) {
	if err := s.check(ctx); err != nil {
		return models.Member{}, err
	}
	var m models.Member
	if err := s.getJSON(keys.GenMemberKey(groupID, userID), &m); err != nil {
		return models.Member{}, fmt.Errorf("member %s/%s: %w", groupID, userID, err)
	}
	return m, nil
}

// actor resolves userID in groupID into a gate actor with its live mute.
func (s *Store) actor(ctx context.Context, action moderation.Action, groupID, userID string) (moderation.Actor, error) {
	m, err := s.GetMember(ctx, groupID, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return moderation.Actor{}, moderation.NotMember(action)
		}
		return moderation.Actor{}, err
	}
	mute, err := s.GetMute(ctx, groupID, userID)
	if err != nil {
		return moderation.Actor{}, err
	}
	return moderation.ActorFor(m, mute), nil
}

// ListMembers returns the channel's roster ordered by display name, with
// each member's read mark for the channel and any active mute.
func (s *Store) ListMembers(ctx context.Context, channelID string) ([]models.Member, error) {
	ch, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return nil, err
	}
	var out []models.Member
	var decodeErr error
	err = s.scanPrefix(keys.GenMemberPrefix(ch.GroupID), func(_, value []byte) bool {
		var m models.Member
		if err := json.Unmarshal(value, &m); err != nil {
			decodeErr = err
			return false
		}
		out = append(out, m)
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode member: %w", decodeErr)
	}
	for i := range out {
		if out[i].LastReadTS, err = s.lastRead(channelID, out[i].ID); err != nil {
			return nil, err
		}
		if out[i].Mute, err = s.GetMute(ctx, ch.GroupID, out[i].ID); err != nil {
			return nil, err
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].DisplayName), strings.ToLower(out[j].DisplayName)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
