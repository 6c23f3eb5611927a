package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/dukerupert/chorechart/internal/avatar"
	"github.com/dukerupert/chorechart/internal/chore"
	"github.com/dukerupert/chorechart/internal/database"
	"github.com/dukerupert/chorechart/internal/model"
	"github.com/dukerupert/chorechart/internal/store"
	"github.com/dukerupert/chorechart/internal/websocket"
)

type fakeDeleter struct {
	deleted []string
}

func (f *fakeDeleter) Delete(ctx context.Context, assetID string) error {
	f.deleted = append(f.deleted, assetID)
	return nil
}

// syncBuffer collects log output written from several goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type recordingHub struct {
	mu   sync.Mutex
	msgs []websocket.Message
}

func (h *recordingHub) Broadcast(msg websocket.Message) int {
	h.mu.Lock()
	h.msgs = append(h.msgs, msg)
	h.mu.Unlock()
	return 0
}

func (h *recordingHub) messages() []websocket.Message {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]websocket.Message(nil), h.msgs...)
}

type testEnv struct {
	kids        *store.KidStore
	chores      *store.ChoreStore
	assignments *store.AssignmentStore
	deleter     *fakeDeleter
	hub         *recordingHub
	logs        *syncBuffer
	kidH        *KidHandler
	choreH      *ChoreHandler
	assignH     *AssignmentHandler
}

var testNow = time.Date(2026, 2, 5, 15, 0, 0, 0, time.UTC)

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, nil))
	env := &testEnv{
		hub:         &recordingHub{},
		logs:        logs,
		kids:        store.NewKidStore(db),
		chores:      store.NewChoreStore(db),
		assignments: store.NewAssignmentStore(db),
		deleter:     &fakeDeleter{},
	}
	resolver := avatar.NewResolver(avatar.Config{}, nil, logger)
	writer := chore.NewBatchWriter(env.assignments, 4, logger)

	env.kidH = NewKidHandler(env.kids, resolver, env.deleter, env.hub, logger)
	env.choreH = NewChoreHandler(env.chores, env.hub, logger)
	env.assignH = NewAssignmentHandler(env.assignments, env.kids, env.chores, writer, resolver, env.hub, time.UTC, logger)
	env.assignH.now = func() time.Time { return testNow }
	return env
}

func do(t *testing.T, h http.HandlerFunc, method, target string, body any, id int64) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	if id != 0 {
		req.SetPathValue("id", strconv.FormatInt(id, 10))
	}
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func (env *testEnv) seed(t *testing.T) (kidIDs, choreIDs []int64) {
	t.Helper()
	for _, name := range []string{"Mia", "Ben"} {
		k, err := env.kids.Create(name, avatar.DefaultFallback, true)
		if err != nil {
			t.Fatalf("create kid: %v", err)
		}
		kidIDs = append(kidIDs, k.ID)
	}
	for _, title := range []string{"Dishes", "Laundry", "Trash"} {
		c, err := env.chores.Create(title, title+" duty", model.FrequencyDaily)
		if err != nil {
			t.Fatalf("create chore: %v", err)
		}
		choreIDs = append(choreIDs, c.ID)
	}
	return kidIDs, choreIDs
}
