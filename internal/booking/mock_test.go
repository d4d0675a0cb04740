package booking

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/njoerd114/pawsync/internal/model"
	"github.com/njoerd114/pawsync/internal/remote/memstore"
	"github.com/njoerd114/pawsync/internal/retry"
)

var (
	testLogger = slog.Default()
	testRetry  = retry.Policy{Attempts: 20, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
	testDates  = model.DateRange{Start: 1_700_000_000_000, End: 1_700_259_200_000}
)

// --- Mock Local Store --------------------------------------------------------

type mockLocal struct {
	mu   sync.Mutex
	docs map[string]model.Document
}

func newMockLocal() *mockLocal {
	return &mockLocal{docs: make(map[string]model.Document)}
}

func (m *mockLocal) Put(_ context.Context, collection string, doc model.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.docs[collection+"/"+doc.ID] = doc.Clone()
	return nil
}

func (m *mockLocal) get(collection, id string) (model.Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[collection+"/"+id]
	return d, ok
}

func (m *mockLocal) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// --- helpers -----------------------------------------------------------------

func seedUnit(t interface{ Fatal(...any) }, store *memstore.Store, id string, capacity, available int) {
	err := store.Set(context.Background(), model.CollBookableUnits, model.Document{
		ID: id,
		Fields: map[string]any{
			"kennelId":  "kennel-1",
			"name":      "Run " + id,
			"capacity":  capacity,
			"available": available,
		},
	})
	if err != nil {
		t.Fatal(err)
	}
}

func unitOf(t interface{ Fatal(...any) }, store *memstore.Store, id string) model.BookableUnit {
	doc, err := store.Get(context.Background(), model.CollBookableUnits, id)
	if err != nil {
		t.Fatal(err)
	}
	u, err := model.Decode[model.BookableUnit](doc)
	if err != nil {
		t.Fatal(err)
	}
	return u
}

func request(unitID string) Request {
	return Request{UnitID: unitID, OwnerID: "owner-1", PetID: "pet-1", Dates: testDates, AmountCents: 9000}
}
