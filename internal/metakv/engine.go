// Package metakv implements the metadata KV engine (spec.md §4.4, C4): an
// ordered store keyed by absolute path, valued by serialized metadata
// (internal/metadata), with associative merge operators for size updates.
//
// go.etcd.io/bbolt is the backing store — an embedded, ordered, single-file
// B+Tree with serialized read-write transactions. bbolt has no native
// merge-operator hook, so the merge protocol (original_source
// include/daemon/backend/metadata/db.hpp, merge.hpp) is reproduced here in
// application code: pending operands are appended to a per-path bucket and
// applied transactionally (full merge) the next time the key is read,
// removed, renamed, or listed; a Put discards them. Every operand append and merge-apply happens inside a
// single bbolt read-write transaction, which bbolt serializes — this is
// what gives concurrent size updates to the same file their lock-free,
// race-free guarantee at the KV layer.
package metakv

import (
	"errors"
	"fmt"
	"strings"

	"gkfs/internal/metadata"

	"go.etcd.io/bbolt"
)

var (
	ErrNotFound = errors.New("metakv: not found")
	ErrExists   = errors.New("metakv: already exists")
)

var (
	recordsBucket  = []byte("records")
	operandsBucket = []byte("operands")
)

// Engine is the metadata KV engine backing one daemon.
type Engine struct {
	db *bbolt.DB
}

// Open opens (creating if absent) the bbolt file at path and ensures the
// top-level buckets exist.
func Open(path string) (*Engine, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("metakv: open %s: %w", path, err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(recordsBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(operandsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("metakv: init buckets: %w", err)
	}
	return &Engine{db: db}, nil
}

// Close closes the underlying bbolt file.
func (e *Engine) Close() error {
	return e.db.Close()
}

// Dirent is one entry returned by GetDirents.
type Dirent struct {
	Name  string
	IsDir bool
}

// mergeApply applies any pending operands for key against its base value,
// writes the merged result back to the records bucket, and clears the
// pending operand list. Must run inside tx, a writable transaction. Returns
// the current (post-merge) value, or ErrNotFound if the key has neither a
// base record nor pending operands.
func mergeApply(tx *bbolt.Tx, key string) ([]byte, error) {
	records := tx.Bucket(recordsBucket)
	operands := tx.Bucket(operandsBucket)

	base := records.Get([]byte(key))

	sub := operands.Bucket([]byte(key))
	if sub == nil {
		if base == nil {
			return nil, ErrNotFound
		}
		// Copy: bbolt values are only valid for the transaction's lifetime.
		out := make([]byte, len(base))
		copy(out, base)
		return out, nil
	}

	var pending []string
	c := sub.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		pending = append(pending, string(v))
	}

	merged, err := fullMerge(base, pending)
	if err != nil {
		return nil, err
	}
	if err := records.Put([]byte(key), merged); err != nil {
		return nil, err
	}
	if err := operands.DeleteBucket([]byte(key)); err != nil {
		return nil, err
	}
	return merged, nil
}

// appendOperand enqueues op against key, coalescing it with the most
// recently enqueued pending operand when the partial-merge rules allow
// (spec.md §4.4). Must run inside a writable transaction.
func appendOperand(tx *bbolt.Tx, key string, op Operand) error {
	operands := tx.Bucket(operandsBucket)
	sub, err := operands.CreateBucketIfNotExists([]byte(key))
	if err != nil {
		return err
	}

	c := sub.Cursor()
	lastKey, lastVal := c.Last()
	if lastKey != nil {
		if prevOp, err := ParseOperand(string(lastVal)); err == nil {
			if combined, ok := combine(prevOp, op); ok {
				return sub.Put(lastKey, []byte(combined.Serialize()))
			}
		}
	}

	seq, err := sub.NextSequence()
	if err != nil {
		return err
	}
	return sub.Put(seqKey(seq), []byte(op.Serialize()))
}

// clearOperands removes key's pending-operand bucket, if any.
func clearOperands(tx *bbolt.Tx, key string) error {
	err := tx.Bucket(operandsBucket).DeleteBucket([]byte(key))
	if err != nil && !errors.Is(err, bbolt.ErrBucketNotFound) {
		return err
	}
	return nil
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(seq)
		seq >>= 8
	}
	return b
}

// Get returns the current (merge-applied) value for key.
func (e *Engine) Get(key string) (string, error) {
	var out string
	err := e.db.Update(func(tx *bbolt.Tx) error {
		v, err := mergeApply(tx, key)
		if err != nil {
			return err
		}
		out = string(v)
		return nil
	})
	return out, err
}

// Put unconditionally overwrites key's value, discarding any pending
// operands (a later Put supersedes them entirely).
func (e *Engine) Put(key, value string) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(recordsBucket).Put([]byte(key), []byte(value)); err != nil {
			return err
		}
		return clearOperands(tx, key)
	})
}

// Remove deletes key, failing with ErrNotFound if absent.
func (e *Engine) Remove(key string) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		if _, err := mergeApply(tx, key); err != nil {
			return err
		}
		if err := tx.Bucket(recordsBucket).Delete([]byte(key)); err != nil {
			return err
		}
		return clearOperands(tx, key)
	})
}

// Exists reports whether key has a current value.
func (e *Engine) Exists(key string) (bool, error) {
	_, err := e.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Update atomically renames oldKey to newKey and sets newKey's value,
// per spec.md §4.4 (used when a rename changes the primary key).
func (e *Engine) Update(oldKey, newKey, value string) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		if _, err := mergeApply(tx, oldKey); err != nil {
			return err
		}
		if err := tx.Bucket(recordsBucket).Delete([]byte(oldKey)); err != nil {
			return err
		}
		if err := tx.Bucket(recordsBucket).Put([]byte(newKey), []byte(value)); err != nil {
			return err
		}
		return clearOperands(tx, newKey)
	})
}

// Create enqueues a create-if-absent merge operand carrying metadata.
func (e *Engine) Create(key, serialized string) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		return appendOperand(tx, key, CreateOperand{Metadata: serialized})
	})
}

// IncreaseSize enqueues an IncreaseSize merge operand. Merge-only: the
// size update is not visible until the key is next read or listed.
func (e *Engine) IncreaseSize(key string, delta int64, isAppend bool) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		return appendOperand(tx, key, IncreaseSizeOperand{N: delta, Append: isAppend})
	})
}

// DecreaseSize enqueues a DecreaseSize merge operand.
func (e *Engine) DecreaseSize(key string, delta int64) error {
	return e.db.Update(func(tx *bbolt.Tx) error {
		return appendOperand(tx, key, DecreaseSizeOperand{N: delta})
	})
}

// GetDirents returns the immediate children of dir: keys whose prefix is
// dir+"/" and that contain no further "/". Lexicographic bbolt key order
// gives listing order directly (spec.md §3).
func (e *Engine) GetDirents(dir string) ([]Dirent, error) {
	prefix := dir
	if !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	var out []Dirent
	err := e.db.Update(func(tx *bbolt.Tx) error {
		operands := tx.Bucket(operandsBucket)
		var pendingKeys []string
		c := operands.Cursor()
		for k, v := c.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = c.Next() {
			if v == nil { // nested bucket entries surface with nil value
				pendingKeys = append(pendingKeys, string(k))
			}
		}
		for _, k := range pendingKeys {
			if _, err := mergeApply(tx, k); err != nil && !errors.Is(err, ErrNotFound) {
				return err
			}
		}

		records := tx.Bucket(recordsBucket)
		rc := records.Cursor()
		for k, v := rc.Seek([]byte(prefix)); k != nil && strings.HasPrefix(string(k), prefix); k, v = rc.Next() {
			rest := strings.TrimPrefix(string(k), prefix)
			if rest == "" || strings.Contains(rest, "/") {
				continue
			}
			rec, err := decodeForDirent(v)
			if err != nil {
				return err
			}
			out = append(out, Dirent{Name: rest, IsDir: rec})
		}
		return nil
	})
	return out, err
}

func decodeForDirent(serialized []byte) (isDir bool, err error) {
	rec, err := metadata.Deserialize(string(serialized))
	if err != nil {
		return false, err
	}
	return rec.IsDir(), nil
}
