package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/nkoub/recordlinkage/internal/config"
	"github.com/nkoub/recordlinkage/internal/errors"
	"github.com/nkoub/recordlinkage/internal/export"
	"github.com/nkoub/recordlinkage/internal/features"
	"github.com/nkoub/recordlinkage/internal/pipeline"
)

// 任务状态
const (
	statusPending   = "pending"
	statusRunning   = "running"
	statusCompleted = "completed"
	statusFailed    = "failed"
)

// DefaultTaskRetention 已结束任务的保留时长
const DefaultTaskRetention = time.Hour

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// LinkTask 匹配任务
type LinkTask struct {
	ID        string         `json:"id"`
	Status    string         `json:"status"`          // pending/running/completed/failed
	Stage     pipeline.Stage `json:"stage,omitempty"` // 当前阶段
	Progress  int            `json:"progress"`        // 0-100
	Message   string         `json:"message"`
	Error     string         `json:"error,omitempty"`
	Hints     []string       `json:"hints,omitempty"` // 错误提示
	Result    *LinkResult    `json:"result,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`

	job    config.Config
	matrix *features.Matrix
	cancel context.CancelFunc
}

// LinkResult 任务结果摘要
type LinkResult struct {
	Left       string                 `json:"left"`
	Right      string                 `json:"right,omitempty"`
	Candidates int                    `json:"candidates"`
	Rows       int                    `json:"rows"`
	Labels     []string               `json:"labels"`
	Stats      []features.ColumnStats `json:"stats"`
	ElapsedMS  int64                  `json:"elapsed_ms"`
}

type server struct {
	mu    sync.RWMutex
	tasks map[string]*LinkTask

	log          *zap.SugaredLogger
	pollInterval time.Duration // websocket 推送间隔
	retention    time.Duration // 已结束任务保留时长，0 表示不清理
	dataDir      string        // 文件数据源根目录，为空时禁用 csv/sqlite
}

func newServer(log *zap.SugaredLogger, dataDir string) *server {
	return &server{
		tasks:        make(map[string]*LinkTask),
		log:          log,
		pollInterval: 500 * time.Millisecond,
		retention:    DefaultTaskRetention,
		dataDir:      dataDir,
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/link", s.handleLink)
	mux.HandleFunc("GET /api/task/{id}", s.handleTaskStatus)
	mux.HandleFunc("GET /api/task/{id}/features", s.handleTaskFeatures)
	mux.HandleFunc("GET /api/ws", s.handleWebSocket)
	mux.HandleFunc("POST /api/test-source", s.handleTestSource)
	mux.HandleFunc("POST /api/inspect-source", s.handleInspectSource)
	return mux
}

// snapshot 读锁下复制任务
func (s *server) snapshot(id string) (LinkTask, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	task, ok := s.tasks[id]
	if !ok {
		return LinkTask{}, false
	}
	return *task, true
}

// cleanupFinished 删除 cutoff 之前结束的任务，返回删除数量
func (s *server) cleanupFinished(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, task := range s.tasks {
		finished := task.Status == statusCompleted || task.Status == statusFailed
		if finished && task.UpdatedAt.Before(cutoff) {
			delete(s.tasks, id)
			removed++
		}
	}
	return removed
}

// reapTasks 定期清理过期任务，直到 ctx 结束
func (s *server) reapTasks(ctx context.Context, interval time.Duration) {
	if s.retention <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if n := s.cleanupFinished(now.Add(-s.retention)); n > 0 {
				s.log.Debugw("evicted finished tasks", "count", n, "remaining", s.taskCount())
			}
		}
	}
}

func (s *server) taskCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

func (s *server) cancelAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, task := range s.tasks {
		if task.cancel != nil {
			task.cancel()
		}
	}
}

// handleLink 提交匹配任务（异步执行）
func (s *server) handleLink(w http.ResponseWriter, r *http.Request) {
	job := config.Default()
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode job"))
		return
	}
	// 结果通过 HTTP 获取，不写服务器文件
	job.Output.Path = ""
	left, err := s.restrictSource(job.Left)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "left"))
		return
	}
	job.Left = left
	if job.Right != nil {
		right, err := s.restrictSource(*job.Right)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.Wrap(err, "right"))
			return
		}
		job.Right = &right
	}
	if err := job.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	task := &LinkTask{
		ID:        uuid.NewString(),
		Status:    statusPending,
		Message:   "task created, waiting to run",
		CreatedAt: now,
		UpdatedAt: now,
		job:       job,
		cancel:    cancel,
	}

	s.mu.Lock()
	s.tasks[task.ID] = task
	s.mu.Unlock()

	go s.runLink(ctx, task)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"task_id": task.ID,
		"status":  statusPending,
	})
}

func (s *server) handleTaskStatus(w http.ResponseWriter, r *http.Request) {
	task, ok := s.snapshot(r.PathValue("id"))
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleTaskFeatures 下载特征矩阵，?format=csv(默认)/json/markdown
func (s *server) handleTaskFeatures(w http.ResponseWriter, r *http.Request) {
	task, ok := s.snapshot(r.PathValue("id"))
	if !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}
	if task.Status != statusCompleted {
		http.Error(w, "task is "+task.Status, http.StatusConflict)
		return
	}
	format := export.CSV
	if f := r.URL.Query().Get("format"); f != "" {
		parsed, err := export.ParseFormat(f)
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		format = parsed
	}
	switch format {
	case export.JSON:
		w.Header().Set("Content-Type", "application/json")
	case export.Markdown:
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	}
	if err := export.Write(w, format, task.matrix); err != nil {
		s.log.Warnw("write features", "task", task.ID, "error", err)
	}
}

// handleWebSocket 推送任务状态直到结束
func (s *server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Query().Get("task_id")
	if _, ok := s.snapshot(taskID); !ok {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnw("websocket upgrade", "error", err)
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		task, ok := s.snapshot(taskID)
		if !ok {
			return
		}
		if err := conn.WriteJSON(task); err != nil {
			return
		}
		if task.Status == statusCompleted || task.Status == statusFailed {
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, task.Status))
			return
		}
		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

// runLink 执行任务
func (s *server) runLink(ctx context.Context, task *LinkTask) {
	defer task.cancel()

	updateTask := func(status string, stage pipeline.Stage, progress int, message string) {
		s.mu.Lock()
		defer s.mu.Unlock()
		task.Status = status
		// 并发回调可能乱序，进度只前进
		if progress >= task.Progress {
			task.Stage = stage
			task.Progress = progress
			task.Message = message
		}
		task.UpdatedAt = time.Now()
	}

	updateTask(statusRunning, pipeline.StageLoad, 1, "starting")
	log := s.log.With("task", task.ID)

	res, err := pipeline.Run(ctx, &task.job, func(stage pipeline.Stage, percent int, message string) {
		updateTask(statusRunning, stage, percent, message)
	}, pipeline.WithLogger(log))
	if err != nil {
		log.Warnw("link failed", "error", err)
		s.mu.Lock()
		task.Status = statusFailed
		task.Message = "link failed"
		task.Error = err.Error()
		task.Hints = errors.GetAllHints(err)
		task.UpdatedAt = time.Now()
		s.mu.Unlock()
		return
	}

	result := &LinkResult{
		Left:       res.Left.Name(),
		Candidates: res.Candidates,
		Rows:       res.Matrix.Len(),
		Labels:     res.Matrix.Labels(),
		Stats:      res.Matrix.Summary(),
		ElapsedMS:  res.Elapsed.Milliseconds(),
	}
	if res.Right != nil {
		result.Right = res.Right.Name()
	}

	s.mu.Lock()
	task.Result = result
	task.matrix = res.Matrix
	task.Status = statusCompleted
	task.Stage = pipeline.StageDone
	task.Progress = 100
	task.Message = "link completed"
	task.UpdatedAt = time.Now()
	s.mu.Unlock()
}

// handleTestSource 测试数据源连接
func (s *server) handleTestSource(w http.ResponseWriter, r *http.Request) {
	var src config.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode source"))
		return
	}
	src, err := s.restrictSource(src)
	if err == nil {
		err = testSource(r.Context(), src)
	}
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"success": false,
			"message": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"message": "source reachable",
	})
}

// handleInspectSource 加载数据源，返回列和记录数
func (s *server) handleInspectSource(w http.ResponseWriter, r *http.Request) {
	var src config.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		writeError(w, http.StatusBadRequest, errors.Wrap(err, "decode source"))
		return
	}
	src, err := s.restrictSource(src)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	table, err := pipeline.LoadSource(r.Context(), src)
	if err != nil {
		status := http.StatusBadGateway
		if errors.IsConfiguration(err) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"name":    table.Name(),
		"columns": table.Columns(),
		"records": table.Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	body := map[string]interface{}{"error": err.Error()}
	if hints := errors.GetAllHints(err); len(hints) > 0 {
		body["hints"] = hints
	}
	writeJSON(w, status, body)
}
