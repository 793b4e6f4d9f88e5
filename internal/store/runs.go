package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/listenupapp/takeout-fixer/internal/domain"
)

// SaveRun inserts or replaces a run record and keeps the start-time index
// in step, in one transaction.
func (s *Store) SaveRun(ctx context.Context, run *domain.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run == nil || run.ID == "" || run.StartedAt.IsZero() {
		return ErrInvalidRun
	}

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}

	key := buildKey(runPrefix, run.ID)
	defer releaseKey(key)

	return s.db.Update(func(txn *badger.Txn) error {
		var existing domain.Run
		switch err := getTxn(txn, key, &existing); {
		case err == nil:
			if !existing.StartedAt.Equal(run.StartedAt) {
				old := formatTimestampIndexKey(runStartedIdx, existing.StartedAt, runEntityType, run.ID)
				if err := txn.Delete(old); err != nil {
					return err
				}
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return fmt.Errorf("load existing run: %w", err)
		}

		if err := txn.Set(key, data); err != nil {
			return err
		}
		return txn.Set(formatTimestampIndexKey(runStartedIdx, run.StartedAt, runEntityType, run.ID), nil)
	})
}

// GetRun returns the run with id, or ErrRunNotFound.
func (s *Store) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := buildKey(runPrefix, id)
	defer releaseKey(key)

	var run domain.Run
	if err := s.get(key, &run); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, ErrRunNotFound.WithDetails(map[string]string{"id": id})
		}
		return nil, fmt.Errorf("get run %s: %w", id, err)
	}
	return &run, nil
}

// RunExists reports whether a run with id is stored.
func (s *Store) RunExists(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key := buildKey(runPrefix, id)
	defer releaseKey(key)
	return s.exists(key)
}

// ListRuns pages through runs, newest first.
func (s *Store) ListRuns(ctx context.Context, params PaginationParams) (*PaginatedResult[*domain.Run], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	params.Validate()

	startKey, err := DecodeCursor(params.Cursor)
	if err != nil {
		return nil, ErrInvalidCursor.WithCause(err)
	}

	result := &PaginatedResult[*domain.Run]{Items: []*domain.Run{}}
	prefix := []byte(runStartedIdx)

	err = s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		opts.Reverse = true

		it := txn.NewIterator(opts)
		defer it.Close()

		if startKey != "" {
			it.Seek([]byte(startKey))
			// The cursor key was the last item of the previous page.
			if it.Valid() && string(it.Item().Key()) == startKey {
				it.Next()
			}
		} else {
			// Reverse iteration starts at the greatest key <= seek.
			it.Seek(append(append([]byte{}, prefix...), 0xFF))
		}

		var lastKey string
		for ; it.ValidForPrefix(prefix); it.Next() {
			if len(result.Items) == params.Limit {
				result.HasMore = true
				break
			}

			idxKey := it.Item().KeyCopy(nil)
			_, runID, err := parseTimestampIndexKey(idxKey, runStartedIdx)
			if err != nil {
				s.logger.Warn("skipping malformed run index key", "key", string(idxKey), "error", err)
				continue
			}

			var run domain.Run
			key := buildKey(runPrefix, runID)
			err = getTxn(txn, key, &run)
			releaseKey(key)
			if errors.Is(err, badger.ErrKeyNotFound) {
				s.logger.Warn("run index points at missing run", "id", runID)
				continue
			}
			if err != nil {
				return fmt.Errorf("get run %s: %w", runID, err)
			}

			result.Items = append(result.Items, &run)
			lastKey = string(idxKey)
		}

		if result.HasMore {
			result.NextCursor = EncodeCursor(lastKey)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// DeleteRun removes a run and its index entry. Deleting a missing run
// returns ErrRunNotFound.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	run, err := s.GetRun(ctx, id)
	if err != nil {
		return err
	}

	key := buildKey(runPrefix, id)
	defer releaseKey(key)

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(key); err != nil {
			return err
		}
		return txn.Delete(formatTimestampIndexKey(runStartedIdx, run.StartedAt, runEntityType, id))
	})
}
