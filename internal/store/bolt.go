package store

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/nbd-wtf/go-nostr"
	bolt "go.etcd.io/bbolt"

	"github.com/keanuklestil/groups-relay/internal/nip1"
	"github.com/keanuklestil/groups-relay/internal/scope"
)

var bucketScopes = []byte("scopes")

// scopeBuckets are the four sub-buckets kept per scope, all nested under a
// top-level bucket named "scope:<name>".
var (
	subEvents      = []byte("events")         // orderKey -> json event
	subByID        = []byte("by_id")          // id -> orderKey
	subReplaceable = []byte("by_replaceable") // pubkey|kind -> id
	subAddressable = []byte("by_addressable") // pubkey|kind|dtag -> id
)

// BoltStore is the durable Backend: one bucket tree per scope, with
// secondary-index buckets for replaceable/addressable coordinate lookup.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if absent) a bbolt database at dataDir/events.db.
func NewBoltStore(dataDir string) (*BoltStore, error) {
	dbPath := filepath.Join(dataDir, "events.db")

	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketScopes)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func scopeBucketName(sc scope.Scope) []byte {
	return []byte("scope:" + sc.String())
}

func orderKey(event *nostr.Event) []byte {
	key := make([]byte, 8+len(event.ID))
	binary.BigEndian.PutUint64(key[:8], uint64(event.CreatedAt))
	copy(key[8:], event.ID)
	return key
}

func replaceableKey(pubkey string, kind int) []byte {
	return []byte(pubkey + "|" + strconv.Itoa(kind))
}

func addressableKey(pubkey string, kind int, dTag string) []byte {
	return []byte(pubkey + "|" + strconv.Itoa(kind) + "|" + dTag)
}

// ensureScope creates the per-scope bucket tree if it doesn't exist yet and
// records the scope name in the top-level scopes bucket.
func ensureScope(tx *bolt.Tx, sc scope.Scope) (*bolt.Bucket, error) {
	root, err := tx.CreateBucketIfNotExists(scopeBucketName(sc))
	if err != nil {
		return nil, err
	}
	for _, name := range [][]byte{subEvents, subByID, subReplaceable, subAddressable} {
		if _, err := root.CreateBucketIfNotExists(name); err != nil {
			return nil, err
		}
	}

	scopes := tx.Bucket(bucketScopes)
	return root, scopes.Put([]byte(sc.String()), []byte{1})
}

// Save persists event in scope s, overwriting any prior event sharing its
// replaceable or addressable coordinate. If that prior event has a later
// created_at, it is kept and event is not written; on equal created_at the
// later save wins.
func (s *BoltStore) Save(sc scope.Scope, event *nostr.Event) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := ensureScope(tx, sc)
		if err != nil {
			return err
		}

		events := root.Bucket(subEvents)
		byID := root.Bucket(subByID)

		if nip1.IsReplaceable(event.Kind) {
			key := replaceableKey(event.PubKey, event.Kind)
			idx := root.Bucket(subReplaceable)
			if oldID := idx.Get(key); oldID != nil {
				if newerExists(byID, oldID, event) {
					return nil
				}
				if err := deleteByID(events, byID, string(oldID)); err != nil {
					return err
				}
			}
			if err := idx.Put(key, []byte(event.ID)); err != nil {
				return err
			}
		} else if coord, ok := nip1.CoordinateOf(event); ok {
			key := addressableKey(coord.Pubkey, coord.Kind, coord.DTag)
			idx := root.Bucket(subAddressable)
			if oldID := idx.Get(key); oldID != nil {
				if newerExists(byID, oldID, event) {
					return nil
				}
				if err := deleteByID(events, byID, string(oldID)); err != nil {
					return err
				}
			}
			if err := idx.Put(key, []byte(event.ID)); err != nil {
				return err
			}
		}

		data, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		key := orderKey(event)
		if err := events.Put(key, data); err != nil {
			return err
		}
		return byID.Put([]byte(event.ID), key)
	})
}

// newerExists reports whether the stored event oldID has a later created_at
// than event; its order key starts with that created_at.
func newerExists(byID *bolt.Bucket, oldID []byte, event *nostr.Event) bool {
	oldKey := byID.Get(oldID)
	return len(oldKey) >= 8 && binary.BigEndian.Uint64(oldKey[:8]) > uint64(event.CreatedAt)
}

func deleteByID(events, byID *bolt.Bucket, id string) error {
	key := byID.Get([]byte(id))
	if key == nil {
		return nil
	}
	if err := events.Delete(key); err != nil {
		return err
	}
	return byID.Delete([]byte(id))
}

// Delete removes every event in scope s matching filter, returning the
// number of events removed.
func (s *BoltStore) Delete(sc scope.Scope, filter nostr.Filter) (int, error) {
	deleted := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(scopeBucketName(sc))
		if root == nil {
			return nil
		}
		events := root.Bucket(subEvents)
		byID := root.Bucket(subByID)

		var toDelete []*nostr.Event
		c := events.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var ev nostr.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			if nip1.MatchesFilter(&ev, filter) {
				toDelete = append(toDelete, &ev)
			}
		}

		replaceableIdx := root.Bucket(subReplaceable)
		addressableIdx := root.Bucket(subAddressable)
		for _, ev := range toDelete {
			if err := deleteByID(events, byID, ev.ID); err != nil {
				return err
			}
			if nip1.IsReplaceable(ev.Kind) {
				replaceableIdx.Delete(replaceableKey(ev.PubKey, ev.Kind))
			} else if coord, ok := nip1.CoordinateOf(ev); ok {
				addressableIdx.Delete(addressableKey(coord.Pubkey, coord.Kind, coord.DTag))
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

// Query returns every event in scope s matching any of filters, newest
// first with descending-id tiebreak, deduplicated across filters. A filter
// carrying Limit=N stops contributing once N of its own matches have been
// returned, so `limit` truncates to the N newest per filter as the store
// collaborator contract requires.
func (s *BoltStore) Query(sc scope.Scope, filters []nostr.Filter) ([]*nostr.Event, error) {
	var out []*nostr.Event
	seen := make(map[string]bool)
	counts := make([]int, len(filters))

	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(scopeBucketName(sc))
		if root == nil {
			return nil
		}
		events := root.Bucket(subEvents)

		c := events.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if allFiltersFull(filters, counts) {
				break
			}
			var ev nostr.Event
			if err := json.Unmarshal(v, &ev); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			if seen[ev.ID] {
				continue
			}
			for i, f := range filters {
				if f.Limit > 0 && counts[i] >= f.Limit {
					continue
				}
				if nip1.MatchesFilter(&ev, f) {
					out = append(out, &ev)
					seen[ev.ID] = true
					counts[i]++
					break
				}
			}
		}
		return nil
	})
	return out, err
}

func allFiltersFull(filters []nostr.Filter, counts []int) bool {
	for i, f := range filters {
		if f.Limit <= 0 || counts[i] < f.Limit {
			return false
		}
	}
	return true
}

// ListScopes returns every scope that has ever had an event saved into it.
func (s *BoltStore) ListScopes() ([]scope.Scope, error) {
	var out []scope.Scope
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketScopes)
		return b.ForEach(func(k, _ []byte) error {
			name := string(k)
			if name == "default" {
				out = append(out, scope.Default)
			} else {
				out = append(out, scope.Named(name))
			}
			return nil
		})
	})
	return out, err
}
