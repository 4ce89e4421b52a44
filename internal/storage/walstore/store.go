// Package walstore keeps positions, transactions and ledgers in a write-ahead log.
// Every mutation is appended as a full record; the in-memory view is rebuilt by
// replaying the log on open.
package walstore

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/vadiminshakov/gowal"
	"github.com/vadiminshakov/infbuy/internal/domain"
	"github.com/vadiminshakov/infbuy/internal/storage"
	"go.uber.org/zap"
)

const (
	DefaultDir       = "./wal/infbuy"
	segmentThreshold = 1000
	maxSegments      = 10000
	dirPermissions   = 0o755

	positionKeyPrefix    = "position_"
	transactionKeyPrefix = "transaction_"
	ledgerKeyPrefix      = "ledger_"
	deleteKeyPrefix      = "del_"
)

var tombstone = []byte("{}")

// Store is a WAL-backed implementation of the position, transaction and ledger stores.
type Store struct {
	wal *gowal.Wal
	l   *zap.Logger
	mu  sync.RWMutex

	positions map[string]*domain.Position
	txs       map[string]*domain.Transaction
	txOrder   map[string][]string // position id -> transaction ids in append order
	ledgers   map[string]domain.Ledger
}

// Open initializes the WAL in dir and replays it.
func Open(l *zap.Logger, dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, dirPermissions); err != nil {
		return nil, errors.Wrapf(err, "failed to ensure WAL directory %s", dir)
	}

	wal, err := gowal.NewWAL(gowal.Config{
		Dir:              dir,
		Prefix:           "infbuy_",
		SegmentThreshold: segmentThreshold,
		MaxSegments:      maxSegments,
		IsInSyncDiskMode: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, "init infbuy WAL")
	}

	s := &Store{
		wal:       wal,
		l:         l,
		positions: make(map[string]*domain.Position),
		txs:       make(map[string]*domain.Transaction),
		txOrder:   make(map[string][]string),
		ledgers:   make(map[string]domain.Ledger),
	}
	s.replay()

	return s, nil
}

func (s *Store) replay() {
	records := 0
	for msg := range s.wal.Iterator() {
		records++
		if err := s.applyRecord(msg.Key, msg.Value); err != nil {
			s.l.Error("failed to replay WAL record", zap.Error(err), zap.String("key", msg.Key))
		}
	}
	s.l.Info("WAL replayed",
		zap.Int("records", records),
		zap.Int("positions", len(s.positions)),
		zap.Int("transactions", len(s.txs)))
}

func (s *Store) applyRecord(key string, payload []byte) error {
	switch {
	case strings.HasPrefix(key, deleteKeyPrefix+positionKeyPrefix):
		delete(s.positions, strings.TrimPrefix(key, deleteKeyPrefix+positionKeyPrefix))
	case strings.HasPrefix(key, deleteKeyPrefix+transactionKeyPrefix):
		s.dropTransaction(strings.TrimPrefix(key, deleteKeyPrefix+transactionKeyPrefix))
	case strings.HasPrefix(key, deleteKeyPrefix+ledgerKeyPrefix):
		delete(s.ledgers, strings.TrimPrefix(key, deleteKeyPrefix+ledgerKeyPrefix))
	case strings.HasPrefix(key, positionKeyPrefix):
		var p domain.Position
		if err := json.Unmarshal(payload, &p); err != nil {
			return errors.Wrap(err, "unmarshal position")
		}
		s.positions[p.ID] = &p
	case strings.HasPrefix(key, transactionKeyPrefix):
		var t domain.Transaction
		if err := json.Unmarshal(payload, &t); err != nil {
			return errors.Wrap(err, "unmarshal transaction")
		}
		if _, exists := s.txs[t.ID]; !exists {
			s.txOrder[t.PositionID] = append(s.txOrder[t.PositionID], t.ID)
		}
		s.txs[t.ID] = &t
	case strings.HasPrefix(key, ledgerKeyPrefix):
		var entries domain.Ledger
		if err := json.Unmarshal(payload, &entries); err != nil {
			return errors.Wrap(err, "unmarshal ledger")
		}
		s.ledgers[strings.TrimPrefix(key, ledgerKeyPrefix)] = entries
	default:
		return errors.Errorf("unknown record key %q", key)
	}
	return nil
}

func (s *Store) dropTransaction(id string) {
	t, ok := s.txs[id]
	if !ok {
		return
	}
	order := s.txOrder[t.PositionID]
	for i, txID := range order {
		if txID == id {
			s.txOrder[t.PositionID] = append(order[:i:i], order[i+1:]...)
			break
		}
	}
	if len(s.txOrder[t.PositionID]) == 0 {
		delete(s.txOrder, t.PositionID)
	}
	delete(s.txs, id)
}

// append writes one record; callers hold the write lock.
func (s *Store) append(key string, v interface{}) error {
	if s == nil || s.wal == nil {
		return errors.New("WAL store is not initialized")
	}

	payload := tombstone
	if v != nil {
		var err error
		if payload, err = json.Marshal(v); err != nil {
			return errors.Wrapf(err, "marshal %s", key)
		}
	}

	nextIndex := s.wal.CurrentIndex() + 1
	return errors.Wrapf(s.wal.Write(nextIndex, key, payload), "write %s", key)
}

// Close flushes and closes the WAL.
func (s *Store) Close() error {
	if s == nil || s.wal == nil {
		return nil
	}
	return s.wal.Close()
}

// GetAll returns every position ordered by creation time.
func (s *Store) GetAll(_ context.Context) ([]*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Position, 0, len(s.positions))
	for _, p := range s.positions {
		out = append(out, p.Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetByID returns ErrNotFound if the position does not exist.
func (s *Store) GetByID(_ context.Context, id string) (*domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.positions[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return p.Clone(), nil
}

// Create appends a position record.
func (s *Store) Create(_ context.Context, p *domain.Position) (string, error) {
	if p == nil {
		return "", storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c := p.Clone()
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, exists := s.positions[c.ID]; exists {
		return "", storage.ErrDuplicateKey
	}
	if err := s.append(positionKeyPrefix+c.ID, c); err != nil {
		return "", err
	}
	s.positions[c.ID] = c
	return c.ID, nil
}

// Update appends the patched position as a full record.
func (s *Store) Update(_ context.Context, id string, patch domain.PositionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.positions[id]
	if !ok {
		return storage.ErrNotFound
	}
	next := p.Clone()
	patch.Apply(next)
	if err := s.append(positionKeyPrefix+id, next); err != nil {
		return err
	}
	s.positions[id] = next
	return nil
}

// Delete appends a position tombstone.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.positions[id]; !ok {
		return storage.ErrNotFound
	}
	if err := s.append(deleteKeyPrefix+positionKeyPrefix+id, nil); err != nil {
		return err
	}
	delete(s.positions, id)
	return nil
}

var _ storage.PositionStore = (*Store)(nil)

// Transactions exposes the store through the storage.TransactionStore interface.
func (s *Store) Transactions() storage.TransactionStore {
	return txView{s}
}

// Ledgers exposes the store through the storage.LedgerStore interface.
func (s *Store) Ledgers() storage.LedgerStore {
	return ledgerView{s}
}

// Stores bundles the three views and the WAL closer.
func (s *Store) Stores() storage.Stores {
	return storage.Stores{
		Positions:    s,
		Transactions: s.Transactions(),
		Ledgers:      s.Ledgers(),
		Close:        s.Close,
	}
}

type txView struct{ s *Store }

func (v txView) GetByPositionID(_ context.Context, positionID string) ([]*domain.Transaction, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	ids := v.s.txOrder[positionID]
	out := make([]*domain.Transaction, 0, len(ids))
	for _, id := range ids {
		c := *v.s.txs[id]
		out = append(out, &c)
	}
	return out, nil
}

func (v txView) Add(_ context.Context, positionID string, t *domain.Transaction) (string, error) {
	if t == nil || positionID == "" {
		return "", storage.ErrInvalidInput
	}

	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	c := *t
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if _, exists := v.s.txs[c.ID]; exists {
		return "", storage.ErrDuplicateKey
	}
	c.PositionID = positionID
	if err := v.s.append(transactionKeyPrefix+c.ID, &c); err != nil {
		return "", err
	}
	v.s.txs[c.ID] = &c
	v.s.txOrder[positionID] = append(v.s.txOrder[positionID], c.ID)
	return c.ID, nil
}

func (v txView) Delete(_ context.Context, id string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if _, ok := v.s.txs[id]; !ok {
		return storage.ErrNotFound
	}
	if err := v.s.append(deleteKeyPrefix+transactionKeyPrefix+id, nil); err != nil {
		return err
	}
	v.s.dropTransaction(id)
	return nil
}

func (v txView) DeleteByPositionID(_ context.Context, positionID string) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	ids := append([]string(nil), v.s.txOrder[positionID]...)
	for _, id := range ids {
		if err := v.s.append(deleteKeyPrefix+transactionKeyPrefix+id, nil); err != nil {
			return err
		}
		v.s.dropTransaction(id)
	}
	return nil
}

var _ storage.TransactionStore = txView{}

type ledgerView struct{ s *Store }

func (v ledgerView) Get(_ context.Context, positionID string) (domain.Ledger, error) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()

	return append(domain.Ledger{}, v.s.ledgers[positionID]...), nil
}

func (v ledgerView) Put(_ context.Context, positionID string, entries domain.Ledger) error {
	v.s.mu.Lock()
	defer v.s.mu.Unlock()

	if len(entries) == 0 {
		if _, ok := v.s.ledgers[positionID]; !ok {
			return nil
		}
		if err := v.s.append(deleteKeyPrefix+ledgerKeyPrefix+positionID, nil); err != nil {
			return err
		}
		delete(v.s.ledgers, positionID)
		return nil
	}

	c := append(domain.Ledger{}, entries...)
	if err := v.s.append(ledgerKeyPrefix+positionID, c); err != nil {
		return err
	}
	v.s.ledgers[positionID] = c
	return nil
}

var _ storage.LedgerStore = ledgerView{}
