package main

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// newTestServer starts a server whose data directory is a fresh temp dir.
func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	srv := newServer(zaptest.NewLogger(t).Sugar(), dir)
	srv.pollInterval = 10 * time.Millisecond
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	return ts, dir
}

func writeCSV(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func jobJSON(t *testing.T, dir, leftPath string) []byte {
	t.Helper()
	right := writeCSV(t, dir, "right.csv", "id,name,zip\na,john,1000\nb,anna,2000\n")
	job := map[string]interface{}{
		"left":  map[string]string{"path": leftPath, "id_column": "id"},
		"right": map[string]string{"path": right, "id_column": "id"},
		"index": []map[string]interface{}{{"strategy": "block", "on": []string{"zip"}}},
		"rules": []map[string]interface{}{
			{"left": "name", "kind": "string", "method": "jarowinkler", "threshold": 0.85, "label": "name"},
			{"left": "zip", "kind": "exact"},
		},
		"output": map[string]string{"path": filepath.Join(dir, "ignored.csv")},
	}
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return data
}

func submit(t *testing.T, ts *httptest.Server, body []byte) (int, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(ts.URL+"/api/link", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func getTask(t *testing.T, ts *httptest.Server, id string) LinkTask {
	t.Helper()
	resp, err := http.Get(ts.URL + "/api/task/" + id)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var task LinkTask
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&task))
	return task
}

func waitFinished(t *testing.T, ts *httptest.Server, id string) LinkTask {
	t.Helper()
	var task LinkTask
	require.Eventually(t, func() bool {
		task = getTask(t, ts, id)
		return task.Status == statusCompleted || task.Status == statusFailed
	}, 5*time.Second, 10*time.Millisecond)
	return task
}

func TestLinkTaskLifecycle(t *testing.T) {
	ts, dir := newTestServer(t)
	left := writeCSV(t, dir, "left.csv", "id,name,zip\n1,jon,1000\n2,ann,2000\n3,bob,3000\n")

	status, body := submit(t, ts, jobJSON(t, dir, left))
	require.Equal(t, http.StatusAccepted, status)
	id, _ := body["task_id"].(string)
	require.NotEmpty(t, id)

	task := waitFinished(t, ts, id)
	require.Equal(t, statusCompleted, task.Status, task.Error)
	assert.Equal(t, 100, task.Progress)
	require.NotNil(t, task.Result)
	assert.Equal(t, 2, task.Result.Candidates)
	assert.Equal(t, 2, task.Result.Rows)
	assert.Equal(t, []string{"name", "zip"}, task.Result.Labels)
	assert.Len(t, task.Result.Stats, 2)

	resp, err := http.Get(ts.URL + "/api/task/" + id + "/features")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/csv; charset=utf-8", resp.Header.Get("Content-Type"))
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "id_a,id_b,name,zip\n1,a,1,1\n2,b,1,1\n", string(data))

	resp, err = http.Get(ts.URL + "/api/task/" + id + "/features?format=json")
	require.NoError(t, err)
	defer resp.Body.Close()
	var matrix struct {
		Labels []string `json:"labels"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&matrix))
	assert.Equal(t, []string{"name", "zip"}, matrix.Labels)
}

func TestLinkRejectsInvalidJob(t *testing.T) {
	ts, _ := newTestServer(t)

	status, body := submit(t, ts, []byte(`{"left": {"path": "a.csv"}, "index": [], "rules": []}`))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "no indexing pass")
	assert.NotEmpty(t, body["hints"])

	resp, err := http.Post(ts.URL+"/api/link", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFailedTask(t *testing.T) {
	ts, dir := newTestServer(t)

	status, body := submit(t, ts, jobJSON(t, dir, filepath.Join(dir, "absent.csv")))
	require.Equal(t, http.StatusAccepted, status)
	id := body["task_id"].(string)

	task := waitFinished(t, ts, id)
	assert.Equal(t, statusFailed, task.Status)
	assert.Contains(t, task.Error, "absent.csv")

	resp, err := http.Get(ts.URL + "/api/task/" + id + "/features")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUnknownTask(t *testing.T) {
	ts, _ := newTestServer(t)

	for _, path := range []string{"/api/task/nope", "/api/task/nope/features", "/api/ws?task_id=nope"} {
		resp, err := http.Get(ts.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode, path)
	}
}

func TestWebSocketStreamsUntilDone(t *testing.T) {
	ts, dir := newTestServer(t)
	left := writeCSV(t, dir, "left.csv", "id,name,zip\n1,jon,1000\n")

	_, body := submit(t, ts, jobJSON(t, dir, left))
	id := body["task_id"].(string)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/ws?task_id=" + id
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var last LinkTask
	for {
		var task LinkTask
		if err := conn.ReadJSON(&task); err != nil {
			break
		}
		assert.Equal(t, id, task.ID)
		last = task
	}
	assert.Equal(t, statusCompleted, last.Status)
}

func TestTestSource(t *testing.T) {
	ts, dir := newTestServer(t)
	outside := writeCSV(t, t.TempDir(), "secret.csv", "id,name\n1,x\n")
	csvPath := writeCSV(t, dir, "people.csv", "id,name\n1,ann\n")

	dbPath := filepath.Join(dir, "people.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE people (pid INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	tests := []struct {
		name    string
		source  string
		success bool
	}{
		{"csv", `{"path": "` + filepath.ToSlash(csvPath) + `"}`, true},
		{"missing csv", `{"path": "` + filepath.ToSlash(filepath.Join(dir, "absent.csv")) + `"}`, false},
		{"sqlite", `{"type": "sqlite3", "dsn": "` + filepath.ToSlash(dbPath) + `", "table": "people", "id_column": "pid"}`, true},
		{"sqlite missing table", `{"type": "sqlite3", "dsn": "` + filepath.ToSlash(dbPath) + `", "table": "ghosts", "id_column": "pid"}`, false},
		{"relative csv", `{"path": "people.csv"}`, true},
		{"csv outside data dir", `{"path": "` + filepath.ToSlash(outside) + `"}`, false},
		{"csv escaping data dir", `{"path": "../` + filepath.Base(filepath.Dir(outside)) + `/secret.csv"}`, false},
		{"sqlite outside data dir", `{"type": "sqlite3", "dsn": "file:` + filepath.ToSlash(outside) + `?mode=ro", "table": "people", "id_column": "pid"}`, false},
		{"unknown type", `{"type": "oracle"}`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(ts.URL+"/api/test-source", "application/json", strings.NewReader(tt.source))
			require.NoError(t, err)
			defer resp.Body.Close()
			var out map[string]interface{}
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, tt.success, out["success"], out["message"])
		})
	}
}

func TestInspectSource(t *testing.T) {
	ts, dir := newTestServer(t)
	csvPath := writeCSV(t, dir, "people.csv", "id,name,city\n1,ann,leeds\n2,bob,york\n")

	resp, err := http.Post(ts.URL+"/api/inspect-source", "application/json",
		strings.NewReader(`{"path": "`+filepath.ToSlash(csvPath)+`", "id_column": "id"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		Name    string   `json:"name"`
		Columns []string `json:"columns"`
		Records int      `json:"records"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "people", out.Name)
	assert.Equal(t, []string{"name", "city"}, out.Columns)
	assert.Equal(t, 2, out.Records)

	resp, err = http.Post(ts.URL+"/api/inspect-source", "application/json", strings.NewReader(`{"type": "oracle"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLinkRejectsSourceOutsideDataDir(t *testing.T) {
	ts, dir := newTestServer(t)
	outside := writeCSV(t, t.TempDir(), "left.csv", "id,name,zip\n1,jon,1000\n")

	status, body := submit(t, ts, jobJSON(t, dir, outside))
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, body["error"], "outside the data directory")
}

func TestFileSourcesDisabledWithoutDataDir(t *testing.T) {
	srv := newServer(zaptest.NewLogger(t).Sugar(), "")
	ts := httptest.NewServer(srv.routes())
	t.Cleanup(ts.Close)
	csvPath := writeCSV(t, t.TempDir(), "people.csv", "id,name\n1,ann\n")

	resp, err := http.Post(ts.URL+"/api/inspect-source", "application/json",
		strings.NewReader(`{"path": "`+filepath.ToSlash(csvPath)+`", "id_column": "id"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out["error"], "disabled")
	assert.NotEmpty(t, out["hints"])
}

func TestResolveSQLiteDSN(t *testing.T) {
	dir := t.TempDir()
	srv := newServer(zaptest.NewLogger(t).Sugar(), dir)

	tests := []struct {
		dsn  string
		want string
		ok   bool
	}{
		{":memory:", ":memory:", true},
		{"people.db", filepath.Join(dir, "people.db"), true},
		{"file:people.db?mode=ro", "file:" + filepath.Join(dir, "people.db") + "?mode=ro", true},
		{"../people.db", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			got, err := srv.resolveSQLiteDSN(tt.dsn)
			if !tt.ok {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCleanupFinishedTasks(t *testing.T) {
	srv := newServer(zaptest.NewLogger(t).Sugar(), "")
	now := time.Now()
	old := now.Add(-2 * time.Hour)
	srv.tasks = map[string]*LinkTask{
		"done-old":    {ID: "done-old", Status: statusCompleted, UpdatedAt: old},
		"failed-old":  {ID: "failed-old", Status: statusFailed, UpdatedAt: old},
		"running-old": {ID: "running-old", Status: statusRunning, UpdatedAt: old},
		"done-new":    {ID: "done-new", Status: statusCompleted, UpdatedAt: now},
	}

	assert.Equal(t, 2, srv.cleanupFinished(now.Add(-time.Hour)))
	_, ok := srv.snapshot("done-old")
	assert.False(t, ok)
	_, ok = srv.snapshot("running-old")
	assert.True(t, ok, "unfinished tasks are kept")
	_, ok = srv.snapshot("done-new")
	assert.True(t, ok)
}

func TestReapTasksEvictsCompletedTask(t *testing.T) {
	srv := newServer(zaptest.NewLogger(t).Sugar(), "")
	srv.retention = time.Millisecond
	id := "finished"
	srv.tasks[id] = &LinkTask{ID: id, Status: statusCompleted, UpdatedAt: time.Now()}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.reapTasks(ctx, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		_, ok := srv.snapshot(id)
		return !ok
	}, time.Second, 5*time.Millisecond)
}
