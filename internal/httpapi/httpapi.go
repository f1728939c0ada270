// Package httpapi exposes the study engine as a JSON API.
package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/p-n-ai/pai-study/internal/report"
	"github.com/p-n-ai/pai-study/internal/study"
)

const (
	// CookieName is the name of the session cookie.
	CookieName = "study-session"
	// HeaderName lets non-browser clients pass the session id directly.
	HeaderName = "X-Study-Session"

	sessionKey   = "id"
	maxBodyBytes = 64 << 10
	xlsxType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Server serves the study API.
type Server struct {
	engine  *study.Engine
	cookies *sessions.CookieStore
}

// New creates a Server. secret signs the session cookie; maxAge is the
// cookie lifetime.
func New(engine *study.Engine, secret string, maxAge time.Duration) *Server {
	cookies := sessions.NewCookieStore([]byte(secret))
	cookies.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return &Server{engine: engine, cookies: cookies}
}

// Register adds the API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/session", s.createSession)
	mux.HandleFunc("GET /api/session", s.withSession(s.viewSession))
	mux.HandleFunc("DELETE /api/session", s.withSession(s.endSession))
	mux.HandleFunc("PUT /api/session/topic", s.withSession(s.setTopic))
	mux.HandleFunc("POST /api/session/checklist", s.withSession(s.generateChecklist))
	mux.HandleFunc("GET /api/session/checklist/stream", s.withSession(s.streamChecklist))
	mux.HandleFunc("PATCH /api/session/checklist/items/{ref}", s.withSession(s.toggleItem))
	mux.HandleFunc("POST /api/session/quiz", s.withSession(s.generateQuiz))
	mux.HandleFunc("DELETE /api/session/quiz", s.withSession(s.newQuiz))
	mux.HandleFunc("PUT /api/session/quiz/answers/{index}", s.withSession(s.answer))
	mux.HandleFunc("POST /api/session/quiz/submit", s.withSession(s.submit))
	mux.HandleFunc("POST /api/session/quiz/retake", s.withSession(s.retake))
	mux.HandleFunc("GET /api/session/quiz/review", s.withSession(s.review))
	mux.HandleFunc("GET /api/session/history", s.withSession(s.history))
	mux.HandleFunc("GET /api/session/history.xlsx", s.withSession(s.historyXLSX))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, id string)

// withSession resolves the session id from the header or the cookie. Only
// ids in the form CreateSession hands out are accepted; sessions owned by
// chat channels are not reachable over HTTP.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderName))
		if id == "" {
			if sess, err := s.cookies.Get(r, CookieName); err == nil {
				id, _ = sess.Values[sessionKey].(string)
			}
		}
		if id == "" {
			writeError(w, fmt.Errorf("%w: no session cookie or %s header", study.ErrSessionNotFound, HeaderName))
			return
		}
		if !isWebSessionID(id) {
			slog.Warn("rejected foreign session id", "session_id", id, "remote", r.RemoteAddr)
			writeError(w, fmt.Errorf("%w: %q", study.ErrSessionNotFound, id))
			return
		}
		h(w, r, id)
	}
}

func isWebSessionID(id string) bool {
	u, err := uuid.Parse(id)
	return err == nil && u.String() == id
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	view, err := s.engine.CreateSession(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	// A stale or foreign cookie yields a fresh session object; either way
	// the new id overwrites it.
	sess, _ := s.cookies.Get(r, CookieName)
	sess.Values[sessionKey] = view.ID
	if err := sess.Save(r, w); err != nil {
		slog.Warn("failed to set session cookie", "session_id", view.ID, "error", err)
	}
	w.Header().Set(HeaderName, view.ID)
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) viewSession(w http.ResponseWriter, r *http.Request, id string) {
	view, err := s.engine.View(r.Context(), id)
	respond(w, view, err)
}

func (s *Server) endSession(w http.ResponseWriter, r *http.Request, id string) {
	if err := s.engine.EndSession(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	if sess, err := s.cookies.Get(r, CookieName); err == nil {
		sess.Options.MaxAge = -1
		_ = sess.Save(r, w)
	}
	w.WriteHeader(http.StatusNoContent)
}

type topicRequest struct {
	Topic string `json:"topic"`
}

func (s *Server) setTopic(w http.ResponseWriter, r *http.Request, id string) {
	var req topicRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	view, err := s.engine.SetTopic(r.Context(), id, req.Topic)
	respond(w, view, err)
}

func (s *Server) generateChecklist(w http.ResponseWriter, r *http.Request, id string) {
	var req topicRequest
	if err := decode(r, &req, true); err != nil {
		writeError(w, err)
		return
	}
	view, err := s.engine.GenerateChecklistFor(r.Context(), id, req.Topic, nil)
	respond(w, view, err)
}

// streamFrame is one websocket message of the checklist stream.
type streamFrame struct {
	Type     string             `json:"type"` // progress, checklist or error
	Progress *study.Progress    `json:"progress,omitempty"`
	Session  *study.SessionView `json:"session,omitempty"`
	Error    *errorBody         `json:"error,omitempty"`
}

// streamChecklist generates the checklist over a websocket, sending a
// progress frame per report and then the session view. The optional
// "topic" query parameter switches the topic along with the new checklist.
// Closing the socket cancels generation and commits nothing.
func (s *Server) streamChecklist(w http.ResponseWriter, r *http.Request, id string) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "session_id", id, "error", err)
		return
	}
	defer func() { _ = conn.CloseNow() }()

	ctx := conn.CloseRead(r.Context())

	frame := streamFrame{Type: "checklist"}
	view, err := s.engine.GenerateChecklistFor(ctx, id, r.URL.Query().Get("topic"), func(p study.Progress) {
		if werr := wsjson.Write(ctx, conn, streamFrame{Type: "progress", Progress: &p}); werr != nil {
			slog.Debug("progress frame dropped", "session_id", id, "error", werr)
		}
	})
	if err != nil {
		body := errorResponse(err)
		frame = streamFrame{Type: "error", Error: &body}
	} else {
		frame.Session = &view
	}

	if err := wsjson.Write(ctx, conn, frame); err != nil {
		slog.Warn("failed to write checklist frame", "session_id", id, "error", err)
		return
	}
	_ = conn.Close(websocket.StatusNormalClosure, "")
}

type toggleRequest struct {
	Completed bool `json:"completed"`
}

func (s *Server) toggleItem(w http.ResponseWriter, r *http.Request, id string) {
	var req toggleRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	view, err := s.engine.ToggleItem(r.Context(), id, r.PathValue("ref"), req.Completed)
	respond(w, view, err)
}

type quizRequest struct {
	Difficulty string `json:"difficulty"`
	Count      int    `json:"count"`
	Strategy   string `json:"strategy"`
}

func (r quizRequest) parse() (study.QuizRequest, error) {
	out := study.QuizRequest{Count: r.Count}
	if r.Difficulty != "" {
		d, err := study.ParseDifficulty(r.Difficulty)
		if err != nil {
			return out, err
		}
		out.Difficulty = d
	}
	if r.Strategy != "" {
		st, err := study.ParseStrategy(r.Strategy)
		if err != nil {
			return out, err
		}
		out.Strategy = st
	}
	return out, nil
}

func (s *Server) generateQuiz(w http.ResponseWriter, r *http.Request, id string) {
	var body quizRequest
	if err := decode(r, &body, false); err != nil {
		writeError(w, err)
		return
	}
	req, err := body.parse()
	if err != nil {
		writeError(w, err)
		return
	}
	view, err := s.engine.GenerateQuiz(r.Context(), id, req)
	respond(w, view, err)
}

func (s *Server) newQuiz(w http.ResponseWriter, r *http.Request, id string) {
	view, err := s.engine.NewQuiz(r.Context(), id)
	respond(w, view, err)
}

type answerRequest struct {
	Option string `json:"option"`
}

func (s *Server) answer(w http.ResponseWriter, r *http.Request, id string) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		writeError(w, fmt.Errorf("%w: %q", study.ErrInvalidIndex, r.PathValue("index")))
		return
	}
	var req answerRequest
	if err := decode(r, &req, false); err != nil {
		writeError(w, err)
		return
	}
	view, err := s.engine.Answer(r.Context(), id, index, req.Option)
	respond(w, view, err)
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request, id string) {
	result, err := s.engine.Submit(r.Context(), id)
	respond(w, result, err)
}

func (s *Server) retake(w http.ResponseWriter, r *http.Request, id string) {
	view, err := s.engine.Retake(r.Context(), id)
	respond(w, view, err)
}

func (s *Server) review(w http.ResponseWriter, r *http.Request, id string) {
	items, err := s.engine.Review(r.Context(), id)
	respond(w, map[string]any{"items": items}, err)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, id string) {
	history, err := s.engine.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if history == nil {
		history = []study.QuizResult{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"history": history,
		"scores":  study.Summarize(history),
	})
}

func (s *Server) historyXLSX(w http.ResponseWriter, r *http.Request, id string) {
	view, err := s.engine.View(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	history, err := s.engine.History(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteHistory(&buf, view, history); err != nil {
		slog.Error("failed to build history workbook", "session_id", id, "error", err)
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", xlsxType)
	w.Header().Set("Content-Disposition", `attachment; filename="study-history.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// errBadRequest marks malformed request bodies.
var errBadRequest = errors.New("malformed request body")

// decode reads a JSON body into v. With optional set, an empty body is
// accepted.
func decode(r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

type errorBody struct {
	Error   string `json:"error"`
	Kind    string `json:"kind"`
	Missing []int  `json:"missing,omitempty"`
}

func errorResponse(err error) errorBody {
	kind := study.KindOf(err)
	if kind == study.KindUnknown && errors.Is(err, errBadRequest) {
		kind = study.KindValidation
	}
	return errorBody{
		Error:   err.Error(),
		Kind:    kind.String(),
		Missing: study.MissingAnswers(err),
	}
}

func statusFor(kind string) int {
	switch kind {
	case study.KindValidation.String():
		return http.StatusBadRequest
	case study.KindNotFound.String():
		return http.StatusNotFound
	case study.KindState.String():
		return http.StatusConflict
	case study.KindGeneration.String(), study.KindLookup.String():
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeError(w http.ResponseWriter, err error) {
	body := errorResponse(err)
	status := statusFor(body.Kind)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}
