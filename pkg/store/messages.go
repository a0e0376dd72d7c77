package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"groupchat/pkg/models"
	"groupchat/pkg/moderation"
	"groupchat/pkg/state/logger"
	"groupchat/pkg/store/keys"
)

func (s *Store) validateContent(content, imageRef string) error {
	if utf8.RuneCountInString(content) > s.opts.MaxContentRunes {
		return fmt.Errorf("%w (max %d characters)", ErrContentTooLong, s.opts.MaxContentRunes)
	}
	if strings.TrimSpace(content) == "" && imageRef == "" {
		return ErrEmptyMessage
	}
	return nil
}

func (s *Store) GetMessage(ctx context.Context, msgID string) (models.Message, error) {
	if err := s.check(ctx); err != nil {
		return models.Message{}, err
	}
	var m models.Message
	if err := s.getJSON(keys.GenMessageKey(msgID), &m); err != nil {
		return models.Message{}, fmt.Errorf("message %s: %w", msgID, err)
	}
	return m, nil
}

func (s *Store) readInt(key string) (int64, error) {
	raw, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	defer closer.Close()
	return strconv.ParseInt(string(raw), 10, 64)
}

// insert assigns id and created_ts and writes the row with its channel
// index. created_ts is strictly increasing per channel.
func (s *Store) insert(ch models.Channel, m models.Message) (models.Message, error) {
	l := s.lock(keys.GenChannelKey(ch.ID))
	l.Lock()
	defer l.Unlock()

	last, err := s.readInt(keys.GenChannelLastTS(ch.ID))
	if err != nil {
		return models.Message{}, fmt.Errorf("read last ts: %w", err)
	}
	ts := s.now().UnixNano()
	if ts <= last {
		ts = last + 1
	}
	m.ID = uuid.NewString()
	m.ChannelID = ch.ID
	m.CreatedTS = ts
	m.UpdatedTS = ts

	b := s.db.NewBatch()
	if err := setJSON(b, keys.GenMessageKey(m.ID), m); err != nil {
		b.Close()
		return models.Message{}, err
	}
	if err := b.Set([]byte(keys.GenChannelMessageIdx(ch.ID, ts, m.ID)), nil, nil); err != nil {
		b.Close()
		return models.Message{}, err
	}
	if err := b.Set([]byte(keys.GenChannelLastTS(ch.ID)), []byte(strconv.FormatInt(ts, 10)), nil); err != nil {
		b.Close()
		return models.Message{}, err
	}
	if err := s.commit(b); err != nil {
		return models.Message{}, err
	}
	return m, nil
}

// SendMessage runs the gate for senderID and persists a normal message.
// A rejected send writes nothing.
func (s *Store) SendMessage(ctx context.Context, channelID, senderID string, req models.SendRequest) (models.Message, error) {
	if err := s.check(ctx); err != nil {
		return models.Message{}, err
	}
	if err := s.validateContent(req.Content, req.ImageRef); err != nil {
		return models.Message{}, err
	}
	ch, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return models.Message{}, err
	}
	a, err := s.actor(ctx, moderation.ActionSend, ch.GroupID, senderID)
	if err != nil {
		return models.Message{}, err
	}
	if err := moderation.CanSend(a, s.now()); err != nil {
		logger.Info("send_rejected", "channel_id", channelID, "user_id", senderID, "error", err)
		return models.Message{}, err
	}
	if req.ReplyToID != "" {
		target, err := s.GetMessage(ctx, req.ReplyToID)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return models.Message{}, ErrInvalidReply
			}
			return models.Message{}, err
		}
		if target.ChannelID != channelID {
			return models.Message{}, ErrInvalidReply
		}
		if err := moderation.CanReply(&target); err != nil {
			return models.Message{}, err
		}
	}
	m, err := s.insert(ch, models.Message{
		SenderID:  senderID,
		Content:   req.Content,
		ImageRef:  req.ImageRef,
		Kind:      models.KindNormal,
		ReplyToID: req.ReplyToID,
	})
	if err != nil {
		return models.Message{}, err
	}
	logger.Debug("message_sent", "channel_id", channelID, "message_id", m.ID, "sender_id", senderID)
	return m, nil
}

// PostSystemMessage stores a lifecycle announcement with no sender.
func (s *Store) PostSystemMessage(ctx context.Context, channelID, content string) (models.Message, error) {
	if err := s.check(ctx); err != nil {
		return models.Message{}, err
	}
	if err := s.validateContent(content, ""); err != nil {
		return models.Message{}, err
	}
	ch, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return models.Message{}, err
	}
	return s.insert(ch, models.Message{Content: content, Kind: models.KindSystem})
}

// mutate serializes changes to one message row. fn returns false when the
// row is unchanged, in which case nothing is written.
func (s *Store) mutate(ctx context.Context, msgID string, fn func(ch models.Channel, m *models.Message) (bool, error)) (models.Message, bool, error) {
	return s.mutateWith(ctx, msgID, fn, nil)
}

// mutateWith is mutate with also writing extra keys into the same batch,
// given the row as it was before fn ran.
func (s *Store) mutateWith(ctx context.Context, msgID string, fn func(ch models.Channel, m *models.Message) (bool, error), also func(b *pebble.Batch, before models.Message) error) (models.Message, bool, error) {
	if err := s.check(ctx); err != nil {
		return models.Message{}, false, err
	}
	l := s.lock(keys.GenMessageKey(msgID))
	l.Lock()
	defer l.Unlock()

	m, err := s.GetMessage(ctx, msgID)
	if err != nil {
		return models.Message{}, false, err
	}
	ch, err := s.GetChannel(ctx, m.ChannelID)
	if err != nil {
		return models.Message{}, false, err
	}
	before := m
	changed, err := fn(ch, &m)
	if err != nil || !changed {
		return m, false, err
	}
	// last write wins: updated_ts only moves forward
	ts := s.now().UnixNano()
	if ts <= m.UpdatedTS {
		ts = m.UpdatedTS + 1
	}
	m.UpdatedTS = ts

	b := s.db.NewBatch()
	if err := setJSON(b, keys.GenMessageKey(m.ID), m); err != nil {
		b.Close()
		return models.Message{}, false, err
	}
	if also != nil {
		if err := also(b, before); err != nil {
			b.Close()
			return models.Message{}, false, err
		}
	}
	if err := s.commit(b); err != nil {
		return models.Message{}, false, err
	}
	return m, true, nil
}

// EditMessage replaces the content of the actor's own message.
func (s *Store) EditMessage(ctx context.Context, msgID, actorID, content string) (models.Message, error) {
	m, _, err := s.mutate(ctx, msgID, func(ch models.Channel, m *models.Message) (bool, error) {
		a, err := s.actor(ctx, moderation.ActionEdit, ch.GroupID, actorID)
		if err != nil {
			return false, err
		}
		if err := moderation.CanEdit(a, m); err != nil {
			return false, err
		}
		if err := s.validateContent(content, m.ImageRef); err != nil {
			return false, err
		}
		m.Content = content
		m.EditedTS = s.now().UnixNano()
		return true, nil
	})
	return m, err
}

// DeleteMessage soft-deletes a message, recording who removed it. The row
// loses its content and image; the original is kept only on the audit key.
func (s *Store) DeleteMessage(ctx context.Context, msgID, actorID string) (models.Message, error) {
	m, _, err := s.mutateWith(ctx, msgID, func(ch models.Channel, m *models.Message) (bool, error) {
		a, err := s.actor(ctx, moderation.ActionDelete, ch.GroupID, actorID)
		if err != nil {
			return false, err
		}
		if err := moderation.CanDelete(a, m); err != nil {
			return false, err
		}
		m.DeletedTS = s.now().UnixNano()
		m.DeletedBy = actorID
		m.Content = ""
		m.ImageRef = ""
		return true, nil
	}, func(b *pebble.Batch, before models.Message) error {
		return setJSON(b, keys.GenAuditMessageKey(msgID), before)
	})
	if err == nil {
		logger.Info("message_deleted", "message_id", msgID, "deleted_by", actorID, "moderator", m.DeletedByModerator())
	}
	return m, err
}

// DeletedOriginal returns a deleted message as it was before deletion.
// ErrNotFound means the message was never deleted or does not exist.
func (s *Store) DeletedOriginal(ctx context.Context, msgID string) (models.Message, error) {
	if err := s.check(ctx); err != nil {
		return models.Message{}, err
	}
	var m models.Message
	if err := s.getJSON(keys.GenAuditMessageKey(msgID), &m); err != nil {
		return models.Message{}, fmt.Errorf("deleted message %s: %w", msgID, err)
	}
	return m, nil
}

// SetPinned pins or unpins. changed is false when the flag already matched.
func (s *Store) SetPinned(ctx context.Context, msgID, actorID string, pin bool) (models.Message, bool, error) {
	return s.mutate(ctx, msgID, func(ch models.Channel, m *models.Message) (bool, error) {
		a, err := s.actor(ctx, moderation.ActionPin, ch.GroupID, actorID)
		if err != nil {
			return false, err
		}
		if err := moderation.CanPin(a, m, pin); err != nil {
			return false, err
		}
		if m.IsPinned == pin {
			return false, nil
		}
		m.IsPinned = pin
		return true, nil
	})
}

// ListMessages returns up to limit messages created before the cursor (0
// means newest), oldest first. more reports whether older messages exist.
func (s *Store) ListMessages(ctx context.Context, channelID string, before int64, limit int) (msgs []models.Message, more bool, err error) {
	if _, err := s.GetChannel(ctx, channelID); err != nil {
		return nil, false, err
	}
	if limit <= 0 {
		limit = s.opts.HistoryPageSize
	}
	if limit > s.opts.HistoryMaxPage {
		limit = s.opts.HistoryMaxPage
	}
	prefix := keys.GenChannelMessagePrefix(channelID)
	upper := upperBound(prefix)
	if before > 0 {
		upper = []byte(keys.GenChannelMessageCursor(channelID, before))
	}
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: []byte(prefix), UpperBound: upper})
	if err != nil {
		return nil, false, err
	}
	defer iter.Close()

	var ids []string
	for iter.Last(); iter.Valid(); iter.Prev() {
		if len(ids) == limit {
			more = true
			break
		}
		p, perr := keys.ParseChannelMessageIdx(string(iter.Key()))
		if perr != nil {
			logger.Warn("bad_index_key", "key", string(iter.Key()), "error", perr)
			continue
		}
		ids = append(ids, p.MsgID)
	}
	if err := iter.Error(); err != nil {
		return nil, false, err
	}
	msgs = make([]models.Message, 0, len(ids))
	for i := len(ids) - 1; i >= 0; i-- {
		m, err := s.GetMessage(ctx, ids[i])
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, false, err
		}
		msgs = append(msgs, m)
	}
	return msgs, more, nil
}

func (s *Store) lastRead(channelID, userID string) (int64, error) {
	return s.readInt(keys.GenReadKey(channelID, userID))
}

// MarkRead moves the user's read mark for the channel forward to ts (now
// when zero). It never moves backwards.
func (s *Store) MarkRead(ctx context.Context, channelID, userID string, ts int64) (int64, error) {
	ch, err := s.GetChannel(ctx, channelID)
	if err != nil {
		return 0, err
	}
	if _, err := s.GetMember(ctx, ch.GroupID, userID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return 0, moderation.NotMember(moderation.ActionRead)
		}
		return 0, err
	}
	if ts <= 0 {
		ts = s.now().UnixNano()
	}
	key := keys.GenReadKey(channelID, userID)
	l := s.lock(key)
	l.Lock()
	defer l.Unlock()
	cur, err := s.readInt(key)
	if err != nil {
		return 0, err
	}
	if ts <= cur {
		return cur, nil
	}
	if err := s.db.Set([]byte(key), []byte(strconv.FormatInt(ts, 10)), pebble.Sync); err != nil {
		return 0, err
	}
	return ts, nil
}
