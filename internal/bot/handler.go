// Package bot maps chat commands onto study engine actions.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/p-n-ai/pai-study/internal/chat"
	"github.com/p-n-ai/pai-study/internal/study"
)

const (
	defaultQuizCount = 5
	defaultTimeout   = 3 * time.Minute

	msgTechnical = "Sorry, something went wrong on my side. Please try again in a moment."
)

// Commands is the command menu published to chat platforms.
var Commands = []chat.Command{
	{Name: "start", Description: "Start or resume your study session"},
	{Name: "topic", Description: "Set what you want to study"},
	{Name: "checklist", Description: "Generate a study checklist"},
	{Name: "done", Description: "Mark a checklist item as done"},
	{Name: "undo", Description: "Mark a checklist item as not done"},
	{Name: "quiz", Description: "Start a quiz: /quiz [easy|medium|hard] [count] [random|incomplete|all]"},
	{Name: "answer", Description: "Answer a question: /answer 2 B"},
	{Name: "submit", Description: "Submit the quiz for grading"},
	{Name: "retake", Description: "Retake the quiz with new questions"},
	{Name: "newquiz", Description: "Discard the quiz and configure a new one"},
	{Name: "progress", Description: "Show checklist and score progress"},
	{Name: "history", Description: "Show past quiz scores"},
	{Name: "help", Description: "List commands"},
}

// Handler turns inbound chat messages into replies.
type Handler struct {
	engine  *study.Engine
	timeout time.Duration
}

// NewHandler creates a handler over engine.
func NewHandler(engine *study.Engine) *Handler {
	return &Handler{engine: engine, timeout: defaultTimeout}
}

// SessionID returns the study session bound to a chat conversation.
func SessionID(msg chat.InboundMessage) string {
	return msg.Channel + ":" + msg.UserID
}

// Listen returns a gateway callback that processes each message and sends
// the reply back on the channel it came from.
func (h *Handler) Listen(ctx context.Context, gw *chat.Gateway) func(chat.InboundMessage) {
	return func(msg chat.InboundMessage) {
		ctx, cancel := context.WithTimeout(ctx, h.timeout)
		defer cancel()

		if err := gw.SendTyping(ctx, msg.Channel, msg.UserID); err != nil {
			slog.Debug("typing indicator failed", "channel", msg.Channel, "error", err)
		}
		reply, err := h.ProcessMessage(ctx, msg)
		if err != nil {
			slog.Error("failed to process message", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
			reply = msgTechnical
		}
		if reply == "" {
			return
		}
		if err := gw.Send(ctx, chat.OutboundMessage{
			Channel: msg.Channel,
			UserID:  msg.UserID,
			Text:    reply,
		}); err != nil {
			slog.Error("failed to send reply", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
		}
	}
}

// ProcessMessage handles one message and returns the reply text. Study
// failures become guidance text; only infrastructure failures are errors.
func (h *Handler) ProcessMessage(ctx context.Context, msg chat.InboundMessage) (string, error) {
	slog.Info("processing message",
		"channel", msg.Channel,
		"user_id", msg.UserID,
		"text_len", len(msg.Text),
	)

	id := SessionID(msg)
	if _, err := h.engine.Ensure(ctx, id); err != nil {
		return "", fmt.Errorf("ensure session %s: %w", id, err)
	}

	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return h.handleText(ctx, id, text)
	}
	return h.handleCommand(ctx, id, msg, text)
}

func (h *Handler) handleCommand(ctx context.Context, id string, msg chat.InboundMessage, text string) (string, error) {
	cmd, args := splitCommand(text)

	switch cmd {
	case "/start":
		return handleStart(msg), nil
	case "/help":
		return helpText(), nil
	case "/topic":
		return h.handleTopic(ctx, id, args)
	case "/checklist":
		return h.handleChecklist(ctx, id, args)
	case "/done":
		return h.handleToggle(ctx, id, args, true)
	case "/undo":
		return h.handleToggle(ctx, id, args, false)
	case "/quiz":
		return h.handleQuiz(ctx, id, args)
	case "/answer":
		return h.handleAnswer(ctx, id, args)
	case "/submit":
		return h.handleSubmit(ctx, id)
	case "/retake":
		view, err := h.engine.Retake(ctx, id)
		if err != nil {
			return guidance(err)
		}
		return "Here is a fresh set of questions.\n\n" + formatQuiz(view.Quiz), nil
	case "/newquiz":
		if _, err := h.engine.NewQuiz(ctx, id); err != nil {
			return guidance(err)
		}
		return "Quiz cleared. Start a new one with /quiz [easy|medium|hard] [count] [random|incomplete|all].", nil
	case "/progress":
		view, err := h.engine.View(ctx, id)
		if err != nil {
			return guidance(err)
		}
		return formatProgress(view), nil
	case "/history":
		history, err := h.engine.History(ctx, id)
		if err != nil {
			return guidance(err)
		}
		return formatHistory(history), nil
	default:
		return fmt.Sprintf("Unknown command: %s\nUse /help to see what I can do.", cmd), nil
	}
}

// handleText accepts "2 B" style answers while a quiz is open; anything
// else gets a hint.
func (h *Handler) handleText(ctx context.Context, id, text string) (string, error) {
	fields := strings.Fields(text)
	if len(fields) == 2 {
		if _, err := strconv.Atoi(fields[0]); err == nil {
			view, err := h.engine.View(ctx, id)
			if err == nil && view.Quiz != nil && view.Quiz.State != study.QuizSubmitted {
				return h.handleAnswer(ctx, id, fields)
			}
		}
	}
	return "Send /topic <subject> to choose what to study, or /help for all commands.", nil
}

func handleStart(msg chat.InboundMessage) string {
	name := msg.FirstName
	if name == "" {
		name = msg.Username
	}
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf("Hi %s!\n\nI'm your study companion. Tell me a topic and I'll build a checklist with a video for each item, then quiz you on it.\n\n%s", name, helpText())
}

func helpText() string {
	var b strings.Builder
	b.WriteString("Commands:\n")
	for _, c := range Commands {
		fmt.Fprintf(&b, "/%s - %s\n", c.Name, c.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) handleTopic(ctx context.Context, id string, args []string) (string, error) {
	if len(args) == 0 {
		return "Usage: /topic <subject>, for example /topic Data structures", nil
	}
	view, err := h.engine.SetTopic(ctx, id, strings.Join(args, " "))
	if err != nil {
		return guidance(err)
	}
	return fmt.Sprintf("Topic set to %s. Send /checklist to generate your study checklist.", view.Topic), nil
}

func (h *Handler) handleChecklist(ctx context.Context, id string, args []string) (string, error) {
	view, err := h.engine.GenerateChecklistFor(ctx, id, strings.Join(args, " "), nil)
	if err != nil {
		return guidance(err)
	}
	return formatChecklist(view) + "\n\nMark items with /done <n>, then test yourself with /quiz.", nil
}

func (h *Handler) handleToggle(ctx context.Context, id string, args []string, completed bool) (string, error) {
	cmd := "/done"
	if !completed {
		cmd = "/undo"
	}
	if len(args) == 0 {
		return fmt.Sprintf("Usage: %s <item number>", cmd), nil
	}

	view, err := h.engine.View(ctx, id)
	if err != nil {
		return guidance(err)
	}
	ref := strings.Join(args, " ")
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(view.Checklist.Items) {
			if len(view.Checklist.Items) == 0 {
				return "Your checklist is empty. Generate one with /checklist.", nil
			}
			return fmt.Sprintf("There is no item %d. Pick a number from 1 to %d.", n, len(view.Checklist.Items)), nil
		}
		ref = view.Checklist.Items[n-1].ID
	}

	view, err = h.engine.ToggleItem(ctx, id, ref, completed)
	if err != nil {
		return guidance(err)
	}
	c := view.Checklist
	return fmt.Sprintf("Progress: %d/%d done (%s%%).", c.Completed, c.Total, formatPercent(c.Percentage)), nil
}

func (h *Handler) handleQuiz(ctx context.Context, id string, args []string) (string, error) {
	req, err := parseQuizArgs(args)
	if err != nil {
		return guidance(err)
	}
	view, err := h.engine.GenerateQuiz(ctx, id, req)
	if err != nil {
		return guidance(err)
	}
	return formatQuiz(view.Quiz), nil
}

// parseQuizArgs accepts difficulty, count and strategy in any order.
func parseQuizArgs(args []string) (study.QuizRequest, error) {
	req := study.QuizRequest{Count: defaultQuizCount}
	for _, arg := range args {
		if n, err := strconv.Atoi(arg); err == nil {
			if n < 1 {
				return req, study.ErrInvalidCount
			}
			req.Count = n
			continue
		}
		if d, err := study.ParseDifficulty(arg); err == nil {
			req.Difficulty = d
			continue
		}
		if s, err := study.ParseStrategy(arg); err == nil {
			req.Strategy = s
			continue
		}
		return req, fmt.Errorf("%w: unrecognised quiz option %q", errUsage, arg)
	}
	return req, nil
}

func (h *Handler) handleAnswer(ctx context.Context, id string, args []string) (string, error) {
	if len(args) < 2 {
		return "Usage: /answer <question number> <letter>, for example /answer 2 B", nil
	}
	index, err := strconv.Atoi(args[0])
	if err != nil {
		return "The question number must be a number, for example /answer 2 B", nil
	}
	view, err := h.engine.Answer(ctx, id, index, strings.Join(args[1:], " "))
	if err != nil {
		return guidance(err)
	}
	q := view.Quiz
	if q.Answered == q.Total {
		return fmt.Sprintf("Answer to question %d saved. All %d questions answered, send /submit when ready.", index, q.Total), nil
	}
	return fmt.Sprintf("Answer to question %d saved (%d/%d answered).", index, q.Answered, q.Total), nil
}

func (h *Handler) handleSubmit(ctx context.Context, id string) (string, error) {
	result, err := h.engine.Submit(ctx, id)
	if err != nil {
		return guidance(err)
	}
	review, err := h.engine.Review(ctx, id)
	if err != nil {
		return guidance(err)
	}
	return formatResult(result, review), nil
}

var errUsage = errors.New("invalid command arguments")

// guidance turns a study error into a user-facing hint. Errors that are not
// study errors are returned for logging.
func guidance(err error) (string, error) {
	if missing := study.MissingAnswers(err); len(missing) > 0 {
		return fmt.Sprintf("Please answer question %s before submitting, e.g. /answer %d A.", joinInts(missing), missing[0]), nil
	}

	switch {
	case errors.Is(err, errUsage):
		return err.Error() + "\nUsage: /quiz [easy|medium|hard] [count] [random|incomplete|all]", nil
	case errors.Is(err, study.ErrNoTopic):
		return "Set a topic first with /topic <subject>.", nil
	case errors.Is(err, study.ErrNoChecklist):
		return "Generate a checklist first with /checklist.", nil
	case errors.Is(err, study.ErrNoQuiz):
		return "There is no active quiz. Start one with /quiz.", nil
	case errors.Is(err, study.ErrEmptyPool):
		return "No checklist items match that selection. Try /quiz with the random strategy.", nil
	case errors.Is(err, study.ErrAlreadySubmitted), errors.Is(err, study.ErrQuizClosed):
		return "This quiz is already submitted. Use /retake for new questions or /newquiz to start over.", nil
	case errors.Is(err, study.ErrNotSubmitted):
		return "Submit the quiz with /submit to see your results.", nil
	case errors.Is(err, study.ErrInvalidOption):
		return "That is not one of the options. Reply with a letter A to D.", nil
	}

	switch study.KindOf(err) {
	case study.KindValidation, study.KindNotFound:
		return capitalize(err.Error()) + ".", nil
	case study.KindGeneration:
		slog.Warn("generation failed", "error", err)
		return "I couldn't generate that right now. Please try again in a moment.", nil
	case study.KindState:
		return capitalize(err.Error()) + ".", nil
	default:
		return "", err
	}
}

func splitCommand(text string) (string, []string) {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	// Group chats address commands as /cmd@botname.
	if at := strings.IndexByte(cmd, '@'); at > 0 {
		cmd = cmd[:at]
	}
	return cmd, fields[1:]
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ", ")
}
