package usecase

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"mentor-ai/internal/domain"
)

// offTopicAnswer is returned when the model marks a question as non-academic.
const offTopicAnswer = "I can only help with academic subjects such as mathematics, the sciences, " +
	"computer science, the humanities, languages and music theory. " +
	"Which of these would you like to explore?"

type scopedAnswerResponse struct {
	InScope bool   `json:"in_scope"`
	Answer  string `json:"answer"`
}

func buildPromptMessages(subjectPrompt, question string, history []domain.Turn) []domain.ChatMessage {
	messages := []domain.ChatMessage{
		{Role: domain.RoleSystem, Content: buildPolicyPrompt()},
	}
	if p := strings.TrimSpace(subjectPrompt); p != "" {
		messages = append(messages, domain.ChatMessage{Role: domain.RoleSystem, Content: p})
	}

	for _, t := range history {
		messages = append(messages, turnToPromptMessages(t)...)
	}

	messages = append(messages, domain.ChatMessage{
		Role:    domain.RoleUser,
		Content: question,
	})
	return messages
}

func buildPolicyPrompt() string {
	return strings.Join([]string{
		"Role:",
		"You are MentorAI, an educational assistant for students.",
		"",
		"Task:",
		"Decide whether the current question belongs to a formal academic subject.",
		"If it does, answer it as a tutor.",
		"If it does not, return out of scope.",
		"",
		"Academic Subjects:",
		"- Mathematics and statistics",
		"- Natural sciences",
		"- Computer science and programming",
		"- History, geography, literature and philosophy",
		"- Languages and linguistics",
		"- Art history and music theory",
		"",
		"Behavior Rules:",
		behaviorRules(),
		"",
		"Output Contract:",
		outputContract(),
	}, "\n")
}

func behaviorRules() string {
	return strings.Join([]string{
		"1) Answer only the current user question in this request.",
		"2) Use a clear, instructive tone and structure longer answers with markdown.",
		"3) Prefer facts, theories and worked examples over opinion.",
		"4) Greetings are in scope: reply briefly and invite an academic question.",
		"5) Sports, entertainment, current events, personal advice, fashion and gaming are off-topic unless asked about their academic principles.",
		"6) Use completed conversation turns only as context for follow-up questions.",
	}, "\n")
}

func outputContract() string {
	return "Return JSON only with keys in_scope (boolean) and answer (string). " +
		"If out of scope, return in_scope=false and answer=\"\". " +
		"If in scope, return in_scope=true and provide the final user-facing answer in answer."
}

func turnToPromptMessages(t domain.Turn) []domain.ChatMessage {
	question := strings.TrimSpace(t.Question)
	answer := strings.TrimSpace(t.Answer)
	if question == "" || answer == "" {
		return nil
	}
	return []domain.ChatMessage{
		{Role: domain.RoleUser, Content: question},
		{Role: domain.RoleAssistant, Content: answer},
	}
}

func parseScopedAnswer(raw string) (scopedAnswerResponse, error) {
	var out scopedAnswerResponse
	dec := json.NewDecoder(bytes.NewBufferString(strings.TrimSpace(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return scopedAnswerResponse{}, fmt.Errorf("usecase: decode scoped answer: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return scopedAnswerResponse{}, errors.New("usecase: decode scoped answer: multiple JSON values")
		}
		return scopedAnswerResponse{}, fmt.Errorf("usecase: decode scoped answer trailing data: %w", err)
	}
	if out.InScope && strings.TrimSpace(out.Answer) == "" {
		return scopedAnswerResponse{}, errors.New("usecase: scoped answer missing answer for in-scope question")
	}
	return out, nil
}
