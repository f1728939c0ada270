package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/pai-study/internal/study"
	"github.com/p-n-ai/pai-study/internal/video"
)

const testChecklist = `Here is your checklist:
1. Arrays and slices basics
2. Maps and hash tables
3. Goroutines and channels`

// stubGenerator answers checklist prompts with testChecklist and every
// question prompt with a question whose correct option is A.
type stubGenerator struct {
	err error
}

func (g stubGenerator) Generate(_ context.Context, prompt string, _ int) (string, error) {
	if g.err != nil {
		return "", g.err
	}
	if strings.Contains(prompt, "concise checklist") {
		return testChecklist, nil
	}
	return `Question: Which option is correct?
A) Alpha choice
B) Beta choice
C) Gamma choice
D) Delta choice
Correct: A`, nil
}

// flakyGenerator behaves like stubGenerator until failing is set.
type flakyGenerator struct {
	failing atomic.Bool
}

func (g *flakyGenerator) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if g.failing.Load() {
		return "", errors.New("provider down")
	}
	return stubGenerator{}.Generate(ctx, prompt, maxTokens)
}

type testClient struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
	engine *study.Engine
}

func newTestServer(t *testing.T, gen study.Generator) *testClient {
	t.Helper()
	engine := study.NewEngine(study.EngineConfig{
		Generator: gen,
		Searcher: video.NewMockSearcher(map[string]video.Video{
			"Maps and hash tables": {ID: "abc", Title: "Maps", URL: video.WatchURL("abc")},
		}),
	})
	mux := http.NewServeMux()
	New(engine, "test-secret", time.Hour).Register(mux)

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &testClient{t: t, srv: srv, client: &http.Client{Jar: jar}, engine: engine}
}

// do sends a request and decodes a JSON response into out when out is set.
func (c *testClient) do(method, path string, body any, out any) *http.Response {
	c.t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, c.srv.URL+path, rdr)
	if err != nil {
		c.t.Fatal(err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("%s %s: decode: %v", method, path, err)
		}
	}
	return resp
}

func wantStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		t.Fatalf("%s %s status = %d, want %d", resp.Request.Method, resp.Request.URL.Path, resp.StatusCode, want)
	}
}

func TestStudyFlow(t *testing.T) {
	c := newTestServer(t, stubGenerator{})

	var view study.SessionView
	resp := c.do(http.MethodPost, "/api/session", nil, &view)
	wantStatus(t, resp, http.StatusCreated)
	if view.ID == "" {
		t.Fatal("created session has no id")
	}
	if resp.Header.Get(HeaderName) != view.ID {
		t.Errorf("%s header = %q, want %q", HeaderName, resp.Header.Get(HeaderName), view.ID)
	}

	wantStatus(t, c.do(http.MethodPut, "/api/session/topic", map[string]string{"topic": "  Go   basics "}, &view), http.StatusOK)
	if view.Topic != "Go basics" {
		t.Errorf("Topic = %q, want %q", view.Topic, "Go basics")
	}

	wantStatus(t, c.do(http.MethodPost, "/api/session/checklist", nil, &view), http.StatusOK)
	if view.Checklist.Total != 3 {
		t.Fatalf("checklist total = %d, want 3", view.Checklist.Total)
	}
	if got := view.Checklist.Items[1].URL; got != video.WatchURL("abc") {
		t.Errorf("item 2 URL = %q", got)
	}

	ref := view.Checklist.Items[0].ID
	wantStatus(t, c.do(http.MethodPatch, "/api/session/checklist/items/"+ref, map[string]bool{"completed": true}, &view), http.StatusOK)
	if view.Checklist.Completed != 1 || view.Checklist.Percentage != 33.3 {
		t.Errorf("completed = %d (%.1f%%), want 1 (33.3%%)", view.Checklist.Completed, view.Checklist.Percentage)
	}

	wantStatus(t, c.do(http.MethodPost, "/api/session/quiz", map[string]any{"difficulty": "beginner", "count": 2, "strategy": "all"}, &view), http.StatusOK)
	if view.Quiz == nil || view.Quiz.Total != 2 {
		t.Fatalf("quiz = %+v, want 2 questions", view.Quiz)
	}
	if view.Quiz.Difficulty != study.DifficultyEasy {
		t.Errorf("Difficulty = %q, want Easy", view.Quiz.Difficulty)
	}

	wantStatus(t, c.do(http.MethodPut, "/api/session/quiz/answers/1", map[string]string{"option": "Alpha choice"}, &view), http.StatusOK)

	var errBody errorBody
	resp = c.do(http.MethodPost, "/api/session/quiz/submit", nil, &errBody)
	wantStatus(t, resp, http.StatusConflict)
	if errBody.Kind != "state" || len(errBody.Missing) != 1 || errBody.Missing[0] != 2 {
		t.Errorf("incomplete submit body = %+v, want kind state missing [2]", errBody)
	}

	wantStatus(t, c.do(http.MethodPut, "/api/session/quiz/answers/2", map[string]string{"option": "B"}, &view), http.StatusOK)

	var result study.QuizResult
	wantStatus(t, c.do(http.MethodPost, "/api/session/quiz/submit", nil, &result), http.StatusOK)
	if result.Score != 1 || result.Total != 2 || result.Percentage != 50 {
		t.Errorf("result = %d/%d (%.1f), want 1/2 (50.0)", result.Score, result.Total, result.Percentage)
	}

	var review struct {
		Items []study.ReviewItem `json:"items"`
	}
	wantStatus(t, c.do(http.MethodGet, "/api/session/quiz/review", nil, &review), http.StatusOK)
	if len(review.Items) != 2 || !review.Items[0].IsCorrect || review.Items[1].IsCorrect {
		t.Errorf("review = %+v", review.Items)
	}

	var history struct {
		History []study.QuizResult `json:"history"`
		Scores  study.ScoreSummary `json:"scores"`
	}
	wantStatus(t, c.do(http.MethodGet, "/api/session/history", nil, &history), http.StatusOK)
	if len(history.History) != 1 || history.Scores.Attempts != 1 {
		t.Errorf("history = %+v", history)
	}

	wantStatus(t, c.do(http.MethodPost, "/api/session/quiz/retake", nil, &view), http.StatusOK)
	if view.Quiz == nil || view.Quiz.State != study.QuizConfiguring || view.Quiz.Total != 2 {
		t.Errorf("retake quiz = %+v", view.Quiz)
	}

	wantStatus(t, c.do(http.MethodDelete, "/api/session/quiz", nil, &view), http.StatusOK)
	if view.Quiz != nil {
		t.Error("quiz should be cleared")
	}

	wantStatus(t, c.do(http.MethodDelete, "/api/session", nil, nil), http.StatusNoContent)
	wantStatus(t, c.do(http.MethodGet, "/api/session", nil, nil), http.StatusNotFound)
}

func TestHeaderSession(t *testing.T) {
	c := newTestServer(t, stubGenerator{})

	var view study.SessionView
	wantStatus(t, c.do(http.MethodPost, "/api/session", nil, &view), http.StatusCreated)

	// A client without the cookie jar must use the header.
	req, _ := http.NewRequest(http.MethodGet, c.srv.URL+"/api/session", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	wantStatus(t, resp, http.StatusNotFound)

	req, _ = http.NewRequest(http.MethodGet, c.srv.URL+"/api/session", nil)
	req.Header.Set(HeaderName, view.ID)
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	wantStatus(t, resp, http.StatusOK)

	var got study.SessionView
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.ID != view.ID {
		t.Errorf("ID = %q, want %q", got.ID, view.ID)
	}
}

func TestErrorMapping(t *testing.T) {
	c := newTestServer(t, stubGenerator{})
	wantStatus(t, c.do(http.MethodPost, "/api/session", nil, nil), http.StatusCreated)

	tests := []struct {
		name       string
		method     string
		path       string
		body       any
		wantStatus int
		wantKind   string
	}{
		{"empty topic", http.MethodPut, "/api/session/topic", map[string]string{"topic": "  "}, http.StatusBadRequest, "validation"},
		{"malformed body", http.MethodPut, "/api/session/topic", "not an object", http.StatusBadRequest, "validation"},
		{"checklist without topic", http.MethodPost, "/api/session/checklist", nil, http.StatusConflict, "state"},
		{"quiz without checklist", http.MethodPost, "/api/session/quiz", map[string]any{"count": 2}, http.StatusConflict, "state"},
		{"bad difficulty", http.MethodPost, "/api/session/quiz", map[string]any{"difficulty": "extreme", "count": 2}, http.StatusBadRequest, "validation"},
		{"bad strategy", http.MethodPost, "/api/session/quiz", map[string]any{"strategy": "sometimes", "count": 2}, http.StatusBadRequest, "validation"},
		{"answer without quiz", http.MethodPut, "/api/session/quiz/answers/1", map[string]string{"option": "A"}, http.StatusConflict, "state"},
		{"non-numeric index", http.MethodPut, "/api/session/quiz/answers/first", map[string]string{"option": "A"}, http.StatusBadRequest, "validation"},
		{"unknown item", http.MethodPatch, "/api/session/checklist/items/nope", map[string]bool{"completed": true}, http.StatusNotFound, "not_found"},
		{"review without quiz", http.MethodGet, "/api/session/quiz/review", nil, http.StatusConflict, "state"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body errorBody
			resp := c.do(tt.method, tt.path, tt.body, &body)
			wantStatus(t, resp, tt.wantStatus)
			if body.Kind != tt.wantKind {
				t.Errorf("kind = %q, want %q", body.Kind, tt.wantKind)
			}
			if body.Error == "" {
				t.Error("error message is empty")
			}
		})
	}
}

func TestGenerationFailure(t *testing.T) {
	c := newTestServer(t, stubGenerator{err: errors.New("provider down")})
	wantStatus(t, c.do(http.MethodPost, "/api/session", nil, nil), http.StatusCreated)

	var body errorBody
	resp := c.do(http.MethodPost, "/api/session/checklist", map[string]string{"topic": "Databases"}, &body)
	wantStatus(t, resp, http.StatusBadGateway)
	if body.Kind != "generation" {
		t.Errorf("kind = %q, want generation", body.Kind)
	}

	var view study.SessionView
	wantStatus(t, c.do(http.MethodGet, "/api/session", nil, &view), http.StatusOK)
	if view.Topic != "" || view.Checklist.Total != 0 {
		t.Errorf("view after failure = topic %q, %d items", view.Topic, view.Checklist.Total)
	}
}

func TestFailedChecklistKeepsTopic(t *testing.T) {
	gen := &flakyGenerator{}
	c := newTestServer(t, gen)

	var view study.SessionView
	wantStatus(t, c.do(http.MethodPost, "/api/session", nil, &view), http.StatusCreated)
	wantStatus(t, c.do(http.MethodPost, "/api/session/checklist", map[string]string{"topic": "Go"}, &view), http.StatusOK)
	if view.Checklist.Total != 3 {
		t.Fatalf("checklist total = %d, want 3", view.Checklist.Total)
	}

	gen.failing.Store(true)
	wantStatus(t, c.do(http.MethodPost, "/api/session/checklist", map[string]string{"topic": "Rust"}, nil), http.StatusBadGateway)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	wsURL := "ws" + strings.TrimPrefix(c.srv.URL, "http") + "/api/session/checklist/stream?topic=Rust"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{HeaderName: {view.ID}},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.CloseNow() }()
	for {
		var frame streamFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if frame.Type == "progress" {
			continue
		}
		if frame.Type != "error" || frame.Error.Kind != "generation" {
			t.Fatalf("frame = %+v, want generation error", frame)
		}
		break
	}

	wantStatus(t, c.do(http.MethodGet, "/api/session", nil, &view), http.StatusOK)
	if view.Topic != "Go" || view.Checklist.Total != 3 {
		t.Errorf("view after failure = topic %q, %d items, want Go with 3", view.Topic, view.Checklist.Total)
	}
}

func TestForeignSessionRejected(t *testing.T) {
	c := newTestServer(t, stubGenerator{})
	ctx := context.Background()

	const chatID = "telegram:12345"
	if _, err := c.engine.Ensure(ctx, chatID); err != nil {
		t.Fatal(err)
	}
	if _, err := c.engine.SetTopic(ctx, chatID, "Private exam prep"); err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{chatID, "not-a-session", "{00000000-0000-0000-0000-000000000000}"} {
		for _, method := range []string{http.MethodGet, http.MethodPut} {
			req, _ := http.NewRequest(method, c.srv.URL+"/api/session/topic", strings.NewReader(`{"topic":"hijacked"}`))
			if method == http.MethodGet {
				req, _ = http.NewRequest(method, c.srv.URL+"/api/session", nil)
			}
			req.Header.Set(HeaderName, id)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatal(err)
			}
			_ = resp.Body.Close()
			if resp.StatusCode != http.StatusNotFound {
				t.Errorf("%s with id %q: status = %d, want 404", method, id, resp.StatusCode)
			}
		}
	}

	view, err := c.engine.View(ctx, chatID)
	if err != nil {
		t.Fatal(err)
	}
	if view.Topic != "Private exam prep" {
		t.Errorf("chat session topic = %q, want it unchanged", view.Topic)
	}
}

func TestChecklistStream(t *testing.T) {
	c := newTestServer(t, stubGenerator{})

	var view study.SessionView
	wantStatus(t, c.do(http.MethodPost, "/api/session", nil, &view), http.StatusCreated)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(c.srv.URL, "http") + "/api/session/checklist/stream?topic=Go+concurrency"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{HeaderName: {view.ID}},
	})
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer func() { _ = conn.CloseNow() }()

	var stages []string
	for {
		var frame streamFrame
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			t.Fatalf("Read() error = %v", err)
		}
		if frame.Type == "progress" {
			stages = append(stages, frame.Progress.Stage)
			continue
		}
		if frame.Type != "checklist" {
			t.Fatalf("frame type = %q (%+v), want checklist", frame.Type, frame.Error)
		}
		if frame.Session.Topic != "Go concurrency" || frame.Session.Checklist.Total != 3 {
			t.Errorf("session = topic %q, %d items", frame.Session.Topic, frame.Session.Checklist.Total)
		}
		break
	}

	if len(stages) == 0 || stages[0] != study.StageGenerating || stages[len(stages)-1] != study.StageDone {
		t.Errorf("stages = %v, want generating ... done", stages)
	}
}

func TestHistoryXLSX(t *testing.T) {
	c := newTestServer(t, stubGenerator{})
	wantStatus(t, c.do(http.MethodPost, "/api/session", nil, nil), http.StatusCreated)
	wantStatus(t, c.do(http.MethodPost, "/api/session/checklist", map[string]string{"topic": "SQL"}, nil), http.StatusOK)

	req, _ := http.NewRequest(http.MethodGet, c.srv.URL+"/api/session/history.xlsx", nil)
	resp, err := c.client.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	wantStatus(t, resp, http.StatusOK)
	if ct := resp.Header.Get("Content-Type"); ct != xlsxType {
		t.Errorf("Content-Type = %q", ct)
	}

	f, err := excelize.OpenReader(resp.Body)
	if err != nil {
		t.Fatalf("OpenReader() error = %v", err)
	}
	defer func() { _ = f.Close() }()

	if got, _ := f.GetCellValue("History", "A1"); got != "Attempt" {
		t.Errorf("History!A1 = %q, want Attempt", got)
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{study.ErrEmptyTopic, http.StatusBadRequest},
		{study.ErrSessionNotFound, http.StatusNotFound},
		{study.ErrNoQuiz, http.StatusConflict},
		{&study.GenerationError{Op: "x", Err: errors.New("boom")}, http.StatusBadGateway},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(errorResponse(tt.err).Kind); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
