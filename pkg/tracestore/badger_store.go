package tracestore

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/hyperforge/capiforge/pkg/engerr"
	"github.com/hyperforge/capiforge/pkg/obslog"
	"github.com/hyperforge/capiforge/pkg/types"
)

var log = obslog.WithPrefix("tracestore")

// Key prefixes for BadgerDB storage organization: one prefix for the
// primary trace record, one for the parent->child index scanned by
// ChildrenOf.
const (
	prefixTrace       = byte(0x01) // trace:traceID -> serialized trace
	prefixParentIndex = byte(0x02) // parentidx:parentID:0x00:traceID -> []byte{}
)

func traceKey(id types.TraceID) []byte {
	return append([]byte{prefixTrace}, []byte(id)...)
}

func parentIndexKey(parent, child types.TraceID) []byte {
	key := make([]byte, 0, 1+len(parent)+1+len(child))
	key = append(key, prefixParentIndex)
	key = append(key, []byte(parent)...)
	key = append(key, 0x00)
	key = append(key, []byte(child)...)
	return key
}

func parentIndexPrefix(parent types.TraceID) []byte {
	key := make([]byte, 0, 1+len(parent)+1)
	key = append(key, prefixParentIndex)
	key = append(key, []byte(parent)...)
	key = append(key, 0x00)
	return key
}

func extractTraceIDFromIndexKey(key []byte, parentLen int) types.TraceID {
	// prefix byte + parent + 0x00 + traceID
	start := 1 + parentLen + 1
	if start > len(key) {
		return ""
	}
	return types.TraceID(key[start:])
}

// serializableTrace is the JSON-on-disk shape; time.Time fields are
// stored as UnixNano to keep encode/decode a pure round trip without
// depending on JSON's RFC3339 time handling.
type serializableTrace struct {
	TraceID        types.TraceID
	ParentTraceID  types.TraceID
	Kind           types.TraceKind
	NodeID         types.NodeID
	StartedAtNano  int64
	FinishedAtNano int64
	Success        bool
	ExecutedPath   []types.NodeID
	IntentText     string
	IntentEmb      []float32
	Priority       float64
	UserID         string
	AgentID        string
	Decisions      []types.Decision
	TaskResults    []types.Value
}

func toSerializable(t *types.ExecutionTrace) serializableTrace {
	return serializableTrace{
		TraceID:        t.TraceID,
		ParentTraceID:  t.ParentTraceID,
		Kind:           t.Kind,
		NodeID:         t.NodeID,
		StartedAtNano:  t.StartedAt.UnixNano(),
		FinishedAtNano: t.FinishedAt.UnixNano(),
		Success:        t.Success,
		ExecutedPath:   t.ExecutedPath,
		IntentText:     t.IntentText,
		IntentEmb:      t.IntentEmb,
		Priority:       t.Priority,
		UserID:         t.UserID,
		AgentID:        t.AgentID,
		Decisions:      t.Decisions,
		TaskResults:    t.TaskResults,
	}
}

func fromSerializable(s serializableTrace) *types.ExecutionTrace {
	return &types.ExecutionTrace{
		TraceID:       s.TraceID,
		ParentTraceID: s.ParentTraceID,
		Kind:          s.Kind,
		NodeID:        s.NodeID,
		StartedAt:     time.Unix(0, s.StartedAtNano),
		FinishedAt:    time.Unix(0, s.FinishedAtNano),
		Success:       s.Success,
		ExecutedPath:  s.ExecutedPath,
		IntentText:    s.IntentText,
		IntentEmb:     s.IntentEmb,
		Priority:      s.Priority,
		UserID:        s.UserID,
		AgentID:       s.AgentID,
		Decisions:     s.Decisions,
		TaskResults:   s.TaskResults,
	}
}

func encodeTrace(t *types.ExecutionTrace) ([]byte, error) {
	return json.Marshal(toSerializable(t))
}

func decodeTrace(data []byte) (*types.ExecutionTrace, error) {
	var s serializableTrace
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return fromSerializable(s), nil
}

// BadgerOptions configures a BadgerStore.
type BadgerOptions struct {
	DataDir    string
	InMemory   bool
	SyncWrites bool
}

// BadgerStore is the durable Repository backend: a BadgerDB keyspace
// partitioned by single-byte prefixes, JSON-serialized records,
// prefix-scan iteration for indexes.
type BadgerStore struct {
	mu     sync.RWMutex
	db     *badger.DB
	closed bool
}

// NewBadgerStore opens (or creates) a durable trace store at dataDir.
func NewBadgerStore(dataDir string) (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: dataDir})
}

// NewBadgerStoreInMemory opens an in-RAM BadgerDB instance, useful for
// exercising the durable code path from tests without touching disk.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	return NewBadgerStoreWithOptions(BadgerOptions{DataDir: "in-memory", InMemory: true})
}

// NewBadgerStoreWithOptions opens a BadgerStore with full control over
// durability/memory trade-offs, tuned low for containerized deployments.
func NewBadgerStoreWithOptions(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)
	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.
		WithLogger(nil).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(32 << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, engerr.New(engerr.KindInternal, "NewBadgerStore", err)
	}
	log.Info("store opened", map[string]any{"data_dir": opts.DataDir, "in_memory": opts.InMemory})
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) ensureOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return engerr.New(engerr.KindInvalidInput, "BadgerStore", nil)
	}
	return nil
}

func (b *BadgerStore) SaveTrace(in SaveInput) (*types.ExecutionTrace, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	id := in.TraceID
	if id == "" {
		id = newTraceID()
	}
	t := sanitize(in, id)

	err := b.db.Update(func(txn *badger.Txn) error {
		data, err := encodeTrace(t)
		if err != nil {
			return err
		}
		if err := txn.Set(traceKey(t.TraceID), data); err != nil {
			return err
		}
		if t.ParentTraceID != "" {
			if err := txn.Set(parentIndexKey(t.ParentTraceID, t.TraceID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, engerr.New(engerr.KindInternal, "SaveTrace", err)
	}
	return t.Clone(), nil
}

func (b *BadgerStore) GetByID(id types.TraceID) (*types.ExecutionTrace, bool) {
	if err := b.ensureOpen(); err != nil {
		return nil, false
	}
	var t *types.ExecutionTrace
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(traceKey(id))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			decoded, decErr := decodeTrace(val)
			if decErr != nil {
				return decErr
			}
			t = decoded
			return nil
		})
	})
	if err != nil {
		return nil, false
	}
	return t, true
}

func (b *BadgerStore) ChildrenOf(id types.TraceID) ([]*types.ExecutionTrace, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	var out []*types.ExecutionTrace
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := parentIndexPrefix(id)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			childID := extractTraceIDFromIndexKey(it.Item().KeyCopy(nil), len(id))
			if childID == "" {
				continue
			}
			item, err := txn.Get(traceKey(childID))
			if err != nil {
				continue // index entry outlived its trace; skip
			}
			if err := item.Value(func(val []byte) error {
				decoded, decErr := decodeTrace(val)
				if decErr != nil {
					return decErr
				}
				out = append(out, decoded)
				return nil
			}); err != nil {
				continue
			}
		}
		return nil
	})
	if err != nil {
		return nil, engerr.New(engerr.KindInternal, "ChildrenOf", err)
	}
	sortByStartedAt(out)
	return out, nil
}

func (b *BadgerStore) AllTraces() ([]*types.ExecutionTrace, error) {
	if err := b.ensureOpen(); err != nil {
		return nil, err
	}
	var out []*types.ExecutionTrace
	err := b.db.View(func(txn *badger.Txn) error {
		prefix := []byte{prefixTrace}
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := it.Item().Value(func(val []byte) error {
				decoded, decErr := decodeTrace(val)
				if decErr != nil {
					return decErr
				}
				out = append(out, decoded)
				return nil
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, engerr.New(engerr.KindInternal, "AllTraces", err)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TraceID < out[j].TraceID })
	return out, nil
}

func (b *BadgerStore) SampleByPriority(limit int, minPriority, alpha float64) ([]*types.ExecutionTrace, error) {
	if limit <= 0 {
		return nil, nil
	}
	all, err := b.AllTraces()
	if err != nil {
		return nil, err
	}
	pool := make([]*types.ExecutionTrace, 0, len(all))
	for _, t := range all {
		if t.Priority >= minPriority {
			pool = append(pool, t)
		}
	}
	if len(pool) == 0 {
		return nil, nil
	}
	if limit > len(pool) {
		limit = len(pool)
	}
	if alpha == 0 || priorityVariance(pool) < coldStartVarianceFloor {
		return sampleUniform(pool, limit), nil
	}
	return sampleWeighted(pool, limit, alpha), nil
}

func (b *BadgerStore) AnonymizeUserTraces(userID string) (int, error) {
	if userID == "" {
		return 0, engerr.New(engerr.KindInvalidInput, "AnonymizeUserTraces", nil)
	}
	all, err := b.AllTraces()
	if err != nil {
		return 0, err
	}
	count := 0
	err = b.db.Update(func(txn *badger.Txn) error {
		for _, t := range all {
			if t.UserID != userID {
				continue
			}
			t.UserID = "anonymized"
			t.IntentText = ""
			t.AgentID = ""
			data, encErr := encodeTrace(t)
			if encErr != nil {
				return encErr
			}
			if err := txn.Set(traceKey(t.TraceID), data); err != nil {
				return err
			}
			count++
		}
		return nil
	})
	if err != nil {
		return 0, engerr.New(engerr.KindInternal, "AnonymizeUserTraces", err)
	}
	log.Info("user traces anonymized", map[string]any{"user_id": userID, "count": count})
	return count, nil
}

func (b *BadgerStore) Stats() Stats {
	all, err := b.AllTraces()
	if err != nil || len(all) == 0 {
		return DefaultStats
	}
	var successful int
	var totalDurationMs, totalPriority float64
	for _, t := range all {
		if t.Success {
			successful++
		}
		totalDurationMs += float64(t.FinishedAt.Sub(t.StartedAt).Milliseconds())
		totalPriority += t.Priority
	}
	n := float64(len(all))
	return Stats{
		Total:         len(all),
		Successful:    successful,
		AvgDurationMs: totalDurationMs / n,
		AvgPriority:   totalPriority / n,
	}
}

func (b *BadgerStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}
