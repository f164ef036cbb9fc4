// Package archive keeps revisions of exported knowledge-store projects in
// an embedded BadgerDB.
//
// Every Save stores the project payload under a fresh revision ID together
// with a metadata record (name, timestamp, checksum, counts). Load verifies
// the payload checksum before decoding, so silent on-disk corruption
// surfaces as ErrChecksumMismatch instead of a half-parsed graph.
//
// Key Structure:
//   - Meta:    0x01 + revisionID -> JSON(Revision)
//   - Payload: 0x02 + revisionID -> project JSON bytes
//
// Example:
//
//	arc, err := archive.Open("./uks-archive")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer arc.Close()
//
//	rev, err := arc.Save("nightly", store.Export())
//	fmt.Printf("saved %s (%d statements)\n", rev.ID, rev.Statements)
package archive

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/orneryd/uks/pkg/snapshot"
)

// Key prefixes for archive storage organization.
// Using single-byte prefixes for efficiency.
const (
	prefixMeta    = byte(0x01) // meta:revisionID -> JSON(Revision)
	prefixPayload = byte(0x02) // payload:revisionID -> project bytes
)

// Errors returned by archive operations.
var (
	ErrRevisionNotFound  = errors.New("revision not found")
	ErrChecksumMismatch  = errors.New("revision payload checksum mismatch")
	ErrClosed            = errors.New("archive is closed")
	ErrNilProject        = errors.New("nil project")
	ErrEmptyRevisionName = errors.New("revision name is empty")
)

// Revision describes one stored project snapshot.
type Revision struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CreatedAt  time.Time `json:"created_at"`
	Checksum   string    `json:"checksum"` // blake2b-256 of the payload, hex
	Things     int       `json:"things"`
	Statements int       `json:"statements"`
	Bytes      int       `json:"bytes"`
}

// Archive is a Badger-backed revision store. Safe for concurrent use.
type Archive struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Open opens (creating if needed) an archive in dir.
func Open(dir string) (*Archive, error) {
	return open(badger.DefaultOptions(dir))
}

// OpenInMemory opens a throwaway archive backed by RAM. Meant for tests;
// nothing survives Close.
func OpenInMemory() (*Archive, error) {
	return open(badger.DefaultOptions("").WithInMemory(true))
}

func open(opts badger.Options) (*Archive, error) {
	// Archive payloads are small; keep Badger's buffers modest and its
	// internal logging quiet.
	opts = opts.
		WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	return &Archive{db: db}, nil
}

// Save stores p as a new revision under name and returns its metadata.
func (a *Archive) Save(name string, p *snapshot.Project) (*Revision, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, ErrEmptyRevisionName
	}
	if p == nil {
		return nil, ErrNilProject
	}

	payload, err := p.JSON()
	if err != nil {
		return nil, err
	}
	sum := blake2b.Sum256(payload)

	rev := &Revision{
		ID:         uuid.NewString(),
		Name:       name,
		CreatedAt:  time.Now().UTC(),
		Checksum:   hex.EncodeToString(sum[:]),
		Things:     len(p.Things),
		Statements: len(p.Statements),
		Bytes:      len(payload),
	}
	meta, err := json.Marshal(rev)
	if err != nil {
		return nil, fmt.Errorf("encode revision: %w", err)
	}

	err = a.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(metaKey(rev.ID), meta); err != nil {
			return err
		}
		return txn.Set(payloadKey(rev.ID), payload)
	})
	if err != nil {
		return nil, fmt.Errorf("save revision: %w", err)
	}
	return rev, nil
}

// List returns all revision metadata, newest first.
func (a *Archive) List() ([]*Revision, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}

	var revs []*Revision
	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte{prefixMeta}
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var rev Revision
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rev)
			}); err != nil {
				return err
			}
			revs = append(revs, &rev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}

	sort.Slice(revs, func(i, j int) bool {
		return revs[i].CreatedAt.After(revs[j].CreatedAt)
	})
	return revs, nil
}

// Load fetches and decodes the revision payload, verifying its checksum
// first.
func (a *Archive) Load(id string) (*snapshot.Project, error) {
	if err := a.checkOpen(); err != nil {
		return nil, err
	}

	var rev Revision
	var payload []byte
	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(metaKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRevisionNotFound
			}
			return err
		}
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rev)
		}); err != nil {
			return err
		}

		item, err = txn.Get(payloadKey(id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRevisionNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			payload = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrRevisionNotFound) {
			return nil, ErrRevisionNotFound
		}
		return nil, fmt.Errorf("load revision %s: %w", id, err)
	}

	sum := blake2b.Sum256(payload)
	if hex.EncodeToString(sum[:]) != rev.Checksum {
		return nil, fmt.Errorf("%w: revision %s", ErrChecksumMismatch, id)
	}
	return snapshot.FromJSON(payload)
}

// Delete removes a revision and its payload.
func (a *Archive) Delete(id string) error {
	if err := a.checkOpen(); err != nil {
		return err
	}

	err := a.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(metaKey(id)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrRevisionNotFound
			}
			return err
		}
		if err := txn.Delete(metaKey(id)); err != nil {
			return err
		}
		return txn.Delete(payloadKey(id))
	})
	if err != nil {
		if errors.Is(err, ErrRevisionNotFound) {
			return ErrRevisionNotFound
		}
		return fmt.Errorf("delete revision %s: %w", id, err)
	}
	return nil
}

// Close flushes and closes the underlying database. Idempotent.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func (a *Archive) checkOpen() error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return ErrClosed
	}
	return nil
}

func metaKey(id string) []byte {
	return append([]byte{prefixMeta}, id...)
}

func payloadKey(id string) []byte {
	return append([]byte{prefixPayload}, id...)
}
