package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/chorechart/internal/chore"
	"github.com/dukerupert/chorechart/internal/middleware"
	"github.com/dukerupert/chorechart/internal/model"
	"github.com/dukerupert/chorechart/internal/store"
)

func TestBatchAssignsCrossProduct(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)

	rec := do(t, env.assignH.Batch, "POST", "/api/assignments/batch", map[string]any{
		"kid_ids": kids, "chore_ids": chores, "date": "2026-02-05",
	}, 0)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got batchResponse
	decode(t, rec, &got)
	if got.Outcome != chore.OutcomeSuccess || got.SuccessCount != 6 {
		t.Errorf("outcome = %q success = %d, want success/6", got.Outcome, got.SuccessCount)
	}
	if got.Message != "6 chore(s) assigned successfully!" {
		t.Errorf("message = %q", got.Message)
	}
	for _, a := range got.Created {
		if a.Status != model.StatusPending {
			t.Errorf("assignment %d status = %q, want pending", a.ID, a.Status)
		}
	}
}

func TestBatchPartialFailure(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)

	// 3 kids x 2 chores where the third kid does not exist: 4 succeed, 2 fail.
	rec := do(t, env.assignH.Batch, "POST", "/api/assignments/batch", map[string]any{
		"kid_ids": append(kids, 404), "chore_ids": chores[:2], "date": "2026-02-05",
	}, 0)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got batchResponse
	decode(t, rec, &got)
	if got.Outcome != chore.OutcomePartial {
		t.Errorf("outcome = %q, want partial", got.Outcome)
	}
	if got.SuccessCount != 4 || len(got.Failures) != 2 {
		t.Errorf("success = %d failures = %d, want 4/2", got.SuccessCount, len(got.Failures))
	}
	if got.Warning != "Some chores could not be assigned. 2 failed." {
		t.Errorf("warning = %q", got.Warning)
	}
	for _, f := range got.Failures {
		if f.KidID != 404 {
			t.Errorf("failure for kid %d, want 404", f.KidID)
		}
	}
}

func TestBatchValidation(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)

	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{"no kids", map[string]any{"kid_ids": []int64{}, "chore_ids": chores, "date": "2026-02-05"}, "kid_ids"},
		{"no chores", map[string]any{"kid_ids": kids, "chore_ids": []int64{}, "date": "2026-02-05"}, "chore_ids"},
		{"no date", map[string]any{"kid_ids": kids, "chore_ids": chores}, "date"},
		{"bad date", map[string]any{"kid_ids": kids, "chore_ids": chores, "date": "tomorrow"}, "date"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, env.assignH.Batch, "POST", "/api/assignments/batch", tt.body, 0)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", rec.Code)
			}
			var got struct {
				Field string `json:"field"`
			}
			decode(t, rec, &got)
			if got.Field != tt.field {
				t.Errorf("field = %q, want %q", got.Field, tt.field)
			}
		})
	}

	all, _ := env.assignments.List(context.Background(), store.AssignmentFilter{})
	if len(all) != 0 {
		t.Errorf("rows = %d, want none written", len(all))
	}
}

func TestBatchRefusedWhileInFlight(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)

	env.assignH.batching.Store(true)
	rec := do(t, env.assignH.Batch, "POST", "/api/assignments/batch", map[string]any{
		"kid_ids": kids, "chore_ids": chores, "date": "2026-02-05",
	}, 0)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}

func TestToggleUpdatesProgress(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)
	created := env.assign(t, kids[:1], chores[:2])

	rec := do(t, env.assignH.Toggle, "POST", "/api/assignments/x/toggle", nil, created[0].ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}
	var got toggleResponse
	decode(t, rec, &got)
	if got.Result != chore.ResultConfirmed || got.Status != model.StatusDone {
		t.Errorf("result = %q status = %q, want confirmed/done", got.Result, got.Status)
	}
	if got.Progress.Total != 2 || got.Progress.Done != 1 || got.Progress.Percent != 50 {
		t.Errorf("progress = %+v, want 1/2 = 50%%", got.Progress)
	}

	// Toggling back returns to pending and 0%.
	rec = do(t, env.assignH.Toggle, "POST", "/api/assignments/x/toggle", nil, created[0].ID)
	decode(t, rec, &got)
	if got.Status != model.StatusPending || got.Progress.Percent != 0 {
		t.Errorf("second toggle: status = %q percent = %v", got.Status, got.Progress.Percent)
	}
}

func TestToggleErrors(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)
	created := env.assign(t, kids[:1], chores[:1])

	if rec := do(t, env.assignH.Toggle, "POST", "/api/assignments/x/toggle", nil, 9999); rec.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", rec.Code)
	}

	env.assignH.claim(created[0].ID)
	if rec := do(t, env.assignH.Toggle, "POST", "/api/assignments/x/toggle", nil, created[0].ID); rec.Code != http.StatusConflict {
		t.Errorf("in flight: status = %d, want 409", rec.Code)
	}
	env.assignH.release(created[0].ID)

	a, _ := env.assignments.GetByID(context.Background(), created[0].ID)
	if a.Status != model.StatusPending {
		t.Errorf("status = %q, want untouched pending", a.Status)
	}
}

func TestKidProgressWindows(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)
	created := env.assign(t, kids[:1], chores)
	env.assignments.UpdateAssignmentStatus(context.Background(), created[0].ID, model.StatusDone)

	tests := []struct {
		name  string
		query string
		code  int
		total int
		done  int
	}{
		{"today default", "", http.StatusOK, 3, 1},
		{"explicit day", "?date=2026-02-05", http.StatusOK, 3, 1},
		{"other day", "?date=2026-02-06", http.StatusOK, 0, 0},
		{"range", "?start=2026-02-01&end=2026-02-28", http.StatusOK, 3, 1},
		{"half range", "?start=2026-02-01", http.StatusBadRequest, 0, 0},
		{"inverted range", "?start=2026-02-10&end=2026-02-01", http.StatusBadRequest, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, env.assignH.KidProgress, "GET", "/api/kids/x/progress"+tt.query, nil, kids[0])
			if rec.Code != tt.code {
				t.Fatalf("status = %d, want %d (%s)", rec.Code, tt.code, rec.Body)
			}
			if tt.code != http.StatusOK {
				return
			}
			var got chore.Progress
			decode(t, rec, &got)
			if got.Total != tt.total || got.Done != tt.done {
				t.Errorf("progress = %+v, want %d/%d", got, tt.done, tt.total)
			}
			if got.Percent < 0 || got.Percent > 100 {
				t.Errorf("percent = %v out of range", got.Percent)
			}
		})
	}
}

func TestDashboardIncludesEveryKid(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)
	created := env.assign(t, kids[:1], chores[:2])
	env.assignments.UpdateAssignmentStatus(context.Background(), created[1].ID, model.StatusDone)

	rec := do(t, env.assignH.Dashboard, "GET", "/api/kids/progress", nil, 0)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Kids []dashboardRow `json:"kids"`
	}
	decode(t, rec, &got)
	if len(got.Kids) != 2 {
		t.Fatalf("rows = %d, want 2", len(got.Kids))
	}
	byID := map[int64]dashboardRow{}
	for _, row := range got.Kids {
		byID[row.Kid.ID] = row
	}
	if p := byID[kids[0]].Progress; p.Percent != 50 {
		t.Errorf("kid %d percent = %v, want 50", kids[0], p.Percent)
	}
	if p := byID[kids[1]].Progress; p.Total != 0 || p.Percent != 0 {
		t.Errorf("kid %d progress = %+v, want empty", kids[1], p)
	}
}

func TestKidAssignmentsJoinsChores(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)
	env.assign(t, kids[:1], chores[:2])

	rec := do(t, env.assignH.KidAssignments, "GET", "/api/kids/x/assignments?date=2026-02-05", nil, kids[0])
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got struct {
		Assignments []kidAssignment `json:"assignments"`
	}
	decode(t, rec, &got)
	if len(got.Assignments) != 2 {
		t.Fatalf("assignments = %d, want 2", len(got.Assignments))
	}
	if got.Assignments[0].ChoreTitle != "Dishes" || got.Assignments[0].ChoreDescription != "Dishes duty" {
		t.Errorf("first = %+v", got.Assignments[0])
	}
}

func TestOptions(t *testing.T) {
	env := setupEnv(t)
	env.seed(t)

	rec := do(t, env.assignH.Options, "GET", "/api/assign/options", nil, 0)
	var got struct {
		Today  string        `json:"today"`
		Kids   []model.Kid   `json:"kids"`
		Chores []model.Chore `json:"chores"`
	}
	decode(t, rec, &got)
	if got.Today != "2026-02-05" || len(got.Kids) != 2 || len(got.Chores) != 3 {
		t.Errorf("options = %+v", got)
	}
}

func (env *testEnv) assign(t *testing.T, kidIDs, choreIDs []int64) []model.Assignment {
	t.Helper()
	reqs, err := chore.Expand(kidIDs, choreIDs, "2026-02-05", time.UTC)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	var out []model.Assignment
	for _, r := range reqs {
		a, err := env.assignments.CreateAssignment(context.Background(), r)
		if err != nil {
			t.Fatalf("create assignment: %v", err)
		}
		out = append(out, *a)
	}
	return out
}

type failingUpdater struct {
	err error
}

func (f failingUpdater) UpdateAssignmentStatus(ctx context.Context, id int64, status model.AssignmentStatus) (*model.Assignment, error) {
	return nil, f.err
}

func TestBatchCompletesWhenClientGoesAway(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)

	body, _ := json.Marshal(map[string]any{"kid_ids": kids[:1], "chore_ids": chores, "date": "2026-02-05"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest("POST", "/api/assignments/batch", bytes.NewReader(body)).WithContext(ctx)
	rec := httptest.NewRecorder()
	env.assignH.Batch(rec, req)

	all, err := env.assignments.List(context.Background(), store.AssignmentFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != len(chores) {
		t.Errorf("stored %d of %d assignments after the client went away", len(all), len(chores))
	}
}

func TestToggleRevertsWhenStoreFails(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)
	created := env.assign(t, kids[:1], chores[:2])
	env.assignments.UpdateAssignmentStatus(context.Background(), created[1].ID, model.StatusDone)
	env.assignH.updater = failingUpdater{err: errors.New("store unavailable")}

	h := middleware.RequestLogger(env.assignH.logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.SetPathValue("id", strconv.FormatInt(created[0].ID, 10))
		env.assignH.Toggle(w, r)
	}))
	req := httptest.NewRequest("POST", "/api/assignments/x/toggle", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502 (%s)", rec.Code, rec.Body)
	}
	var got toggleResponse
	decode(t, rec, &got)
	if got.Result != chore.ResultReverted {
		t.Errorf("result = %q, want reverted", got.Result)
	}
	if got.Reason == "" {
		t.Error("reason is empty")
	}
	if got.Assignment.Status != model.StatusPending || got.Status != model.StatusPending {
		t.Errorf("assignment status = %q / %q, want pending", got.Assignment.Status, got.Status)
	}
	if got.Progress.Total != 2 || got.Progress.Done != 1 || got.Progress.Percent != 50 {
		t.Errorf("progress = %+v, want the pre-toggle 1/2", got.Progress)
	}
	if msgs := env.hub.messages(); len(msgs) != 0 {
		t.Errorf("broadcast %d messages for a reverted toggle", len(msgs))
	}

	stored, _ := env.assignments.GetByID(context.Background(), created[0].ID)
	if stored.Status != model.StatusPending {
		t.Errorf("stored status = %q, want pending", stored.Status)
	}

	var reverted string
	for _, line := range strings.Split(env.logs.String(), "\n") {
		if strings.Contains(line, "assignment toggle reverted") {
			reverted = line
		}
	}
	if !strings.Contains(reverted, "request_id=req-42") {
		t.Errorf("reverted log line lacks request id: %q", reverted)
	}
}

func TestToggleBroadcastsOnConfirm(t *testing.T) {
	env := setupEnv(t)
	kids, chores := env.seed(t)
	created := env.assign(t, kids[:1], chores[:1])

	if rec := do(t, env.assignH.Toggle, "POST", "/api/assignments/x/toggle", nil, created[0].ID); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	msgs := env.hub.messages()
	if len(msgs) != 1 || msgs[0].Type != "assignment_toggled" || msgs[0].KidID != kids[0] {
		t.Errorf("messages = %+v, want one assignment_toggled for kid %d", msgs, kids[0])
	}
}
