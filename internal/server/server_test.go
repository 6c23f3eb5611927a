package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/dukerupert/chorechart/internal/config"
	"github.com/dukerupert/chorechart/internal/database"
)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := &config.Config{BatchConcurrency: 4, Location: time.UTC}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := httptest.NewServer(New(db, cfg, nil, logger).Router())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealth(t *testing.T) {
	srv := setupServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("missing request id header")
	}
}

func TestAssignAndToggleFlow(t *testing.T) {
	srv := setupServer(t)

	var kid struct {
		ID int64 `json:"id"`
	}
	json.NewDecoder(postJSON(t, srv.URL+"/api/kids", map[string]any{"name": "Mia"}).Body).Decode(&kid)
	var c struct {
		ID int64 `json:"id"`
	}
	json.NewDecoder(postJSON(t, srv.URL+"/api/chores", map[string]any{"title": "Dishes"}).Body).Decode(&c)
	if kid.ID == 0 || c.ID == 0 {
		t.Fatalf("seed failed: kid %d chore %d", kid.ID, c.ID)
	}

	resp := postJSON(t, srv.URL+"/api/assignments/batch", map[string]any{
		"kid_ids": []int64{kid.ID}, "chore_ids": []int64{c.ID}, "date": "2026-02-05",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("batch status = %d", resp.StatusCode)
	}
	var batch struct {
		Created []struct {
			ID int64 `json:"id"`
		} `json:"created"`
	}
	json.NewDecoder(resp.Body).Decode(&batch)
	if len(batch.Created) != 1 {
		t.Fatalf("created = %d, want 1", len(batch.Created))
	}

	resp = postJSON(t, srv.URL+"/api/assignments/"+itoa(batch.Created[0].ID)+"/toggle", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d", resp.StatusCode)
	}

	progResp, err := http.Get(srv.URL + "/api/kids/" + itoa(kid.ID) + "/progress?date=2026-02-05")
	if err != nil {
		t.Fatalf("get progress: %v", err)
	}
	defer progResp.Body.Close()
	var p struct {
		Total   int     `json:"total"`
		Done    int     `json:"done"`
		Percent float64 `json:"percent"`
	}
	json.NewDecoder(progResp.Body).Decode(&p)
	if p.Total != 1 || p.Done != 1 || p.Percent != 100 {
		t.Errorf("progress = %+v, want 1/1 = 100%%", p)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
