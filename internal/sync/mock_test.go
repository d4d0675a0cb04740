package sync

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote"
)

var testLogger = slog.Default()

// testNow is the fixed clock used by most tests.
var testNow = time.UnixMilli(1_700_000_000_000)

func fixedClock() time.Time { return testNow }

// --- Mock Local Store --------------------------------------------------------

type mockLocal struct {
	mu       sync.Mutex
	docs     map[string]map[string]model.Document // collection → id → doc
	settings map[string]string
}

func newMockLocal() *mockLocal {
	return &mockLocal{
		docs:     make(map[string]map[string]model.Document),
		settings: make(map[string]string),
	}
}

func (m *mockLocal) seed(collection string, docs ...model.Document) {
	for _, d := range docs {
		_ = m.Put(context.Background(), collection, d)
	}
}

func (m *mockLocal) Put(_ context.Context, collection string, doc model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]model.Document)
	}
	m.docs[collection][doc.ID] = doc.Clone()
	return nil
}

func (m *mockLocal) Get(_ context.Context, collection, id string) (*model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	if !ok {
		return nil, nil
	}
	d = d.Clone()
	return &d, nil
}

func (m *mockLocal) GetAll(_ context.Context, collection string) ([]model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Document
	for _, d := range m.docs[collection] {
		out = append(out, d.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *mockLocal) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs[collection], id)
	return nil
}

func (m *mockLocal) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.settings[key]
	return v, ok, nil
}

func (m *mockLocal) SaveSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *mockLocal) ids(collection string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []string
	for id := range m.docs[collection] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *mockLocal) snapshot(collection string) map[string]model.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]model.Document, len(m.docs[collection]))
	for id, d := range m.docs[collection] {
		out[id] = d.Clone()
	}
	return out
}

// --- Mock Remote Store -------------------------------------------------------

type mockRemote struct {
	mu   sync.Mutex
	docs map[string]map[string]model.Document

	queries   int
	gets      int
	sets      int
	lastQuery remote.Query

	queryErr error
	setErr   error
	// gate, when non-nil, blocks Query until it is closed.
	gate chan struct{}
}

func newMockRemote() *mockRemote {
	return &mockRemote{docs: make(map[string]map[string]model.Document)}
}

func (m *mockRemote) seed(collection string, docs ...model.Document) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]model.Document)
	}
	for _, d := range docs {
		m.docs[collection][d.ID] = d.Clone()
	}
}

func (m *mockRemote) Get(_ context.Context, collection, id string) (model.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	d, ok := m.docs[collection][id]
	if !ok {
		return model.Document{}, fmt.Errorf("%s/%s: %w", collection, id, remote.ErrNotFound)
	}
	return d.Clone(), nil
}

func (m *mockRemote) Query(_ context.Context, collection string, q remote.Query) ([]model.Document, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries++
	m.lastQuery = q
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	var all []model.Document
	for _, d := range m.docs[collection] {
		all = append(all, d.Clone())
	}
	return q.Apply(all), nil
}

func (m *mockRemote) Set(_ context.Context, collection string, doc model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sets++
	if m.setErr != nil {
		return m.setErr
	}
	if m.docs[collection] == nil {
		m.docs[collection] = make(map[string]model.Document)
	}
	m.docs[collection][doc.ID] = doc.Clone()
	return nil
}

// Transaction applies the buffered writes after fn returns. The mock has no
// concurrent writers to conflict with.
func (m *mockRemote) Transaction(ctx context.Context, fn func(tx remote.Tx) error) error {
	tx := &mockTx{remote: m}
	if err := fn(tx); err != nil {
		return err
	}
	for _, w := range tx.writes {
		if err := m.Set(ctx, w.collection, w.doc); err != nil {
			return err
		}
	}
	return nil
}

type mockWrite struct {
	collection string
	doc        model.Document
}

type mockTx struct {
	remote *mockRemote
	writes []mockWrite
}

func (t *mockTx) Get(ctx context.Context, collection, id string) (model.Document, error) {
	return t.remote.Get(ctx, collection, id)
}

func (t *mockTx) Set(_ context.Context, collection string, doc model.Document) error {
	t.writes = append(t.writes, mockWrite{collection: collection, doc: doc.Clone()})
	return nil
}

func (m *mockRemote) doc(collection, id string) (model.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection][id]
	return d.Clone(), ok
}

func (m *mockRemote) queryCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queries
}

func (m *mockRemote) has(collection, id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.docs[collection][id]
	return ok
}

// --- helpers -----------------------------------------------------------------

func vaccineDoc(id, petID string, createdAt int64) model.Document {
	return model.Document{
		ID: id,
		Fields: map[string]any{
			"petId":          petID,
			"name":           "Rabies",
			"administeredAt": createdAt,
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func invoiceDoc(id, ownerID string, createdAt int64) model.Document {
	return model.Document{
		ID: id,
		Fields: map[string]any{
			"ownerId":     ownerID,
			"bookingId":   "bk-" + id,
			"number":      "INV-" + id,
			"amountCents": 4500,
			"currency":    "EUR",
			"status":      string(model.InvoiceIssued),
		},
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

// failureRecorder collects background failures.
type failureRecorder struct {
	mu       sync.Mutex
	failures []*Failure
}

func (r *failureRecorder) record(f *Failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, f)
}

func (r *failureRecorder) all() []*Failure {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*Failure(nil), r.failures...)
}

func newTestEngine(local LocalStore, rem RemoteStore, opts ...Option) *Engine {
	return NewEngine(local, rem, testLogger, append([]Option{WithClock(fixedClock)}, opts...)...)
}

func (m *mockRemote) lastQueryFilters() []remote.Filter {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]remote.Filter(nil), m.lastQuery.Filters...)
}
