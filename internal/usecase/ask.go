package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mentor-ai/internal/domain"
)

const (
	defaultMaxContext  = 10
	defaultMaxQuestion = 300
	defaultMaxTurns    = 50
	paramSystemPrompt  = "/system_prompt"
	paramModel         = "/config/model"
)

type ParamGetter interface {
	GetParameters(ctx context.Context, names []string) (map[string]string, error)
}

type LLMClient interface {
	Chat(ctx context.Context, model string, messages []domain.ChatMessage) (string, error)
	Moderate(ctx context.Context, input string) (bool, error)
}

// TurnLog stores completed question/answer turns per conversation.
type TurnLog interface {
	TurnCount(ctx context.Context, conversationID string) (int, error)
	RecentTurns(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error)
	AppendTurn(ctx context.Context, conversationID, question, answer string, turns int) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// Settings tunes AskService. Zero values fall back to defaults.
type Settings struct {
	ParamPrefix     string
	MaxContextTurns int
	MaxQuestionLen  int
	MaxTurns        int
	Moderation      bool

	// LLMRequestsPerMinute caps upstream model calls for the whole process.
	// Zero means unlimited.
	LLMRequestsPerMinute int
}

type AskService struct {
	params   ParamGetter
	llm      LLMClient
	turns    TurnLog
	settings Settings
	logger   *slog.Logger
	limiter  *rate.Limiter

	cacheMu       sync.RWMutex
	cacheLoaded   bool
	subjectPrompt string
	model         string
}

type AskInput struct {
	Question       string
	ConversationID string
}

type AskOutput struct {
	Answer         string
	ConversationID string
}

func NewAskService(p ParamGetter, llm LLMClient, turns TurnLog, settings Settings, logger *slog.Logger) (*AskService, error) {
	if p == nil {
		return nil, errors.New("usecase: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if turns == nil {
		return nil, errors.New("usecase: turn log must not be nil")
	}
	settings.ParamPrefix = strings.TrimRight(strings.TrimSpace(settings.ParamPrefix), "/")
	if settings.ParamPrefix == "" {
		return nil, errors.New("usecase: parameter prefix must not be empty")
	}
	if settings.MaxContextTurns <= 0 {
		settings.MaxContextTurns = defaultMaxContext
	}
	if settings.MaxQuestionLen <= 0 {
		settings.MaxQuestionLen = defaultMaxQuestion
	}
	if settings.MaxTurns <= 0 {
		settings.MaxTurns = defaultMaxTurns
	}
	if logger == nil {
		logger = slog.Default()
	}
	svc := &AskService{
		params:   p,
		llm:      llm,
		turns:    turns,
		settings: settings,
		logger:   logger.With("component", "ask"),
	}
	if n := settings.LLMRequestsPerMinute; n > 0 {
		svc.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(n)), n)
	}
	return svc, nil
}

func (s *AskService) Ask(ctx context.Context, in AskInput) (AskOutput, error) {
	question := strings.TrimSpace(in.Question)
	if question == "" {
		return AskOutput{}, newError(domain.ErrorInvalidInput, "empty_question", nil)
	}
	if utf8.RuneCountInString(question) > s.settings.MaxQuestionLen {
		return AskOutput{}, newError(domain.ErrorInvalidInput, "question_too_long", nil)
	}
	if err := s.ensureConfig(ctx); err != nil {
		return AskOutput{}, newError(domain.ErrorGeneric, "ssm_load_error", err)
	}

	convID := strings.TrimSpace(in.ConversationID)
	existingTurns := 0
	if convID == "" {
		convID = newUUID()
	} else {
		count, err := s.turns.TurnCount(ctx, convID)
		if err != nil {
			return AskOutput{}, newError(domain.ErrorGeneric, "dynamodb_turn_count_error", err)
		}
		existingTurns = count
		if existingTurns >= s.settings.MaxTurns {
			return AskOutput{}, newError(domain.ErrorInvalidInput, "conversation_turn_limit", nil)
		}
	}

	if s.limiter != nil && !s.limiter.Allow() {
		return AskOutput{}, newError(domain.ErrorServiceUnavailable, "rate_limited", nil)
	}

	if s.settings.Moderation {
		flagged, err := s.llm.Moderate(ctx, question)
		if err != nil {
			return AskOutput{}, newError(domain.ErrorServiceUnavailable, upstreamReason("moderation", err), err)
		}
		if flagged {
			return AskOutput{}, newError(domain.ErrorInvalidInput, "moderation_flagged", nil)
		}
	}

	var history []domain.Turn
	if existingTurns > 0 {
		h, err := s.turns.RecentTurns(ctx, convID, s.settings.MaxContextTurns)
		if err != nil {
			return AskOutput{}, newError(domain.ErrorGeneric, "dynamodb_history_error", err)
		}
		history = h
	}

	raw, err := s.llm.Chat(ctx, s.model, buildPromptMessages(s.subjectPrompt, question, history))
	if err != nil {
		return AskOutput{}, newError(domain.ErrorServiceUnavailable, upstreamReason("llm", err), err)
	}

	decision, err := parseScopedAnswer(raw)
	if err != nil {
		return AskOutput{}, newError(domain.ErrorServiceUnavailable, "llm_malformed_response", err)
	}
	answer := decision.Answer
	if !decision.InScope {
		s.logger.Info("question out of scope", "conversation_id", convID)
		answer = offTopicAnswer
	}

	if err := s.turns.AppendTurn(ctx, convID, question, answer, existingTurns+1); err != nil {
		return AskOutput{}, newError(domain.ErrorGeneric, "dynamodb_write_error", err)
	}

	return AskOutput{
		Answer:         answer,
		ConversationID: convID,
	}, nil
}

// ensureConfig loads the prompt and model once. A failed load is retried on
// the next request.
func (s *AskService) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	subjectPrompt, model, err := s.loadSSMParams(ctx)
	if err != nil {
		return err
	}

	s.subjectPrompt = subjectPrompt
	s.model = model
	s.cacheLoaded = true
	return nil
}

func (s *AskService) loadSSMParams(ctx context.Context) (subjectPrompt, model string, err error) {
	promptName := s.settings.ParamPrefix + paramSystemPrompt
	modelName := s.settings.ParamPrefix + paramModel

	vals, err := s.params.GetParameters(ctx, []string{promptName, modelName})
	if err != nil {
		return "", "", fmt.Errorf("usecase: load parameters: %w", err)
	}
	subjectPrompt, ok := vals[promptName]
	if !ok {
		return "", "", fmt.Errorf("usecase: parameter %q missing", promptName)
	}
	model = strings.TrimSpace(vals[modelName])
	if model == "" {
		return "", "", fmt.Errorf("usecase: parameter %q missing", modelName)
	}
	return subjectPrompt, model, nil
}

func upstreamReason(prefix string, err error) string {
	if status, ok := upstreamStatusCode(err); ok && status == http.StatusTooManyRequests {
		return prefix + "_rate_limited"
	}
	return prefix + "_error"
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

var newUUID = func() string {
	return uuid.NewString()
}
