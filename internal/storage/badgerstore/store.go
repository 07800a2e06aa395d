// Package badgerstore persists the chat in an embedded BadgerDB.
package badgerstore

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"

	"batepapo/internal/model"
	"batepapo/internal/storage"
)

const (
	participantPrefix = "participant:"
	messagePrefix     = "msg:"
	// sequenceBandwidth is how many ids a sequence leases per disk write.
	sequenceBandwidth = 100
	// maxTxnAttempts bounds retries on optimistic transaction conflicts.
	maxTxnAttempts = 5
)

// Store provides BadgerDB-backed persistence.
//
// Participants are keyed "participant:{name}" and carry the sequence number
// used to restore insertion order. Messages are keyed "msg:{seq}" with the
// sequence zero padded to 20 digits so that lexicographical key order is
// insertion order.
type Store struct {
	db             *badger.DB
	participantSeq *badger.Sequence
	messageSeq     *badger.Sequence
}

var _ storage.Store = (*Store)(nil)

// Open opens (or creates) a BadgerDB under dir.
func Open(dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("database opening failed: %w", err)
	}
	s, err := New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an opened BadgerDB. Close releases the sequences and the database.
func New(db *badger.DB) (*Store, error) {
	pSeq, err := db.GetSequence([]byte("seq:participant"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("participant sequence: %w", err)
	}
	mSeq, err := db.GetSequence([]byte("seq:msg"), sequenceBandwidth)
	if err != nil {
		_ = pSeq.Release()
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &Store{db: db, participantSeq: pSeq, messageSeq: mSeq}, nil
}

func (s *Store) Close() error {
	return errors.Join(s.participantSeq.Release(), s.messageSeq.Release(), s.db.Close())
}

func participantKey(name string) []byte {
	return []byte(participantPrefix + name)
}

func messageKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", messagePrefix, seq))
}

// update retries fn when a concurrent transaction touched the same keys.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for range maxTxnAttempts {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

func (s *Store) InsertParticipant(ctx context.Context, p model.Participant) error {
	seq, err := s.participantSeq.Next()
	if err != nil {
		return fmt.Errorf("next participant seq: %w", err)
	}
	value, err := encMode.Marshal(participantRecord{Seq: seq, Name: p.Name, LastStatus: p.LastHeartbeat.UnixNano()})
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		key := participantKey(p.Name)
		if _, err := txn.Get(key); err == nil {
			return storage.ErrConflict
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, value)
	})
}

func (s *Store) GetParticipant(ctx context.Context, name string) (model.Participant, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.Participant{}, false, err
	}
	var rec participantRecord
	found := false
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getParticipant(txn, name, &rec)
		return err
	})
	if err != nil || !found {
		return model.Participant{}, false, err
	}
	return rec.toModel(), true, nil
}

func (s *Store) ListParticipants(ctx context.Context) ([]model.Participant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var records []participantRecord
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, participantPrefix, false, 0, func(value []byte) error {
			var rec participantRecord
			if err := decMode.Unmarshal(value, &rec); err != nil {
				return err
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(records, func(a, b participantRecord) int {
		return cmp.Compare(a.Seq, b.Seq)
	})
	return lo.Map(records, func(rec participantRecord, _ int) model.Participant {
		return rec.toModel()
	}), nil
}

func (s *Store) TouchParticipant(ctx context.Context, name string, at time.Time) (bool, error) {
	found := false
	err := s.update(ctx, func(txn *badger.Txn) error {
		var rec participantRecord
		var err error
		found, err = getParticipant(txn, name, &rec)
		if err != nil || !found {
			return err
		}
		rec.LastStatus = at.UnixNano()
		value, err := encMode.Marshal(rec)
		if err != nil {
			return err
		}
		return txn.Set(participantKey(name), value)
	})
	return found, err
}

func (s *Store) DeleteParticipant(ctx context.Context, name string) (bool, error) {
	found := false
	err := s.update(ctx, func(txn *badger.Txn) error {
		var rec participantRecord
		var err error
		found, err = getParticipant(txn, name, &rec)
		if err != nil || !found {
			return err
		}
		return txn.Delete(participantKey(name))
	})
	return found, err
}

func (s *Store) DeleteAllParticipants(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DropPrefix([]byte(participantPrefix))
}

func (s *Store) InsertMessage(ctx context.Context, m model.Message) error {
	seq, err := s.messageSeq.Next()
	if err != nil {
		return fmt.Errorf("next message seq: %w", err)
	}
	value, err := encMode.Marshal(messageRecord{
		ID:   m.ID[:],
		From: m.From,
		To:   m.To,
		Text: m.Text,
		Kind: string(m.Kind),
		Time: m.Time,
	})
	if err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return txn.Set(messageKey(seq), value)
	})
}

func (s *Store) ListMessages(ctx context.Context) ([]model.Message, error) {
	return s.messages(ctx, false, 0)
}

func (s *Store) RecentMessages(ctx context.Context, limit int) ([]model.Message, error) {
	messages, err := s.messages(ctx, true, limit)
	if err != nil {
		return nil, err
	}
	slices.Reverse(messages)
	return messages, nil
}

func (s *Store) DeleteAllMessages(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.DropPrefix([]byte(messagePrefix))
}

func (s *Store) messages(ctx context.Context, reverse bool, limit int) ([]model.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	messages := []model.Message{}
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, messagePrefix, reverse, limit, func(value []byte) error {
			var rec messageRecord
			if err := decMode.Unmarshal(value, &rec); err != nil {
				return err
			}
			m, err := rec.toModel()
			if err != nil {
				return err
			}
			messages = append(messages, m)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// scan walks every value under prefix; limit <= 0 means no limit.
func scan(txn *badger.Txn, prefix string, reverse bool, limit int, fn func(value []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Reverse = reverse
	opts.Prefix = []byte(prefix)
	it := txn.NewIterator(opts)
	defer it.Close()

	seek := []byte(prefix)
	if reverse {
		// one past the last possible key under the prefix
		seek = append([]byte(prefix), 0xff)
	}

	count := 0
	for it.Seek(seek); it.ValidForPrefix([]byte(prefix)); it.Next() {
		if limit > 0 && count == limit {
			break
		}
		if err := it.Item().Value(fn); err != nil {
			return err
		}
		count++
	}
	return nil
}

func getParticipant(txn *badger.Txn, name string, rec *participantRecord) (bool, error) {
	item, err := txn.Get(participantKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, item.Value(func(value []byte) error {
		return decMode.Unmarshal(value, rec)
	})
}

func (rec participantRecord) toModel() model.Participant {
	return model.Participant{Name: rec.Name, LastHeartbeat: time.Unix(0, rec.LastStatus).UTC()}
}

func (rec messageRecord) toModel() (model.Message, error) {
	id, err := uuid.FromBytes(rec.ID)
	if err != nil {
		return model.Message{}, fmt.Errorf("decode message id: %w", err)
	}
	return model.Message{
		ID:   id,
		From: rec.From,
		To:   rec.To,
		Text: rec.Text,
		Kind: model.Kind(rec.Kind),
		Time: rec.Time,
	}, nil
}
