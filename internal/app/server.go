// Package app wires the tutoring service from environment configuration.
package app

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"mentor-ai/handler"
	"mentor-ai/internal/integrations/openai"
	"mentor-ai/internal/integrations/paramstore"
	"mentor-ai/internal/repository"
	"mentor-ai/internal/usecase"
)

// ServerConfig is read once at startup.
type ServerConfig struct {
	StateTable      string
	ParamPrefix     string
	MaxContextTurns int
	MaxQuestionLen  int
	MaxTurns        int
	Moderation      bool
	LLMRateLimit    int
	LLMBaseURL      string
	TokenParameter  string
	AllowedOrigins  []string
	Port            string
}

// ServerConfigFromEnv reads ServerConfig from the process environment.
func ServerConfigFromEnv() (ServerConfig, error) {
	return serverConfigFrom(os.LookupEnv)
}

func serverConfigFrom(lookup func(string) (string, bool)) (ServerConfig, error) {
	env := func(key, def string) string {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
		return def
	}
	envInt := func(key string, def int) int {
		n, err := strconv.Atoi(env(key, ""))
		if err != nil {
			return def
		}
		return n
	}
	envBool := func(key string, def bool) bool {
		b, err := strconv.ParseBool(env(key, ""))
		if err != nil {
			return def
		}
		return b
	}

	cfg := ServerConfig{
		StateTable:      env("STATE_TABLE", ""),
		ParamPrefix:     env("PARAM_PREFIX", ""),
		MaxContextTurns: envInt("MAX_CONTEXT_TURNS", 10),
		MaxQuestionLen:  envInt("MAX_QUESTION_LENGTH", 300),
		MaxTurns:        envInt("MAX_CONVERSATION_TURNS", 50),
		Moderation:      envBool("MODERATION_ENABLED", false),
		LLMRateLimit:    envInt("LLM_REQUESTS_PER_MINUTE", 0),
		LLMBaseURL:      env("LLM_BASE_URL", openai.DefaultBaseURL),
		TokenParameter:  env("LLM_TOKEN_PARAMETER", "llm-token"),
		AllowedOrigins:  splitList(env("CORS_ORIGINS", "http://localhost:3000")),
		Port:            env("PORT", "8000"),
	}
	if err := cfg.Validate(); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func (c ServerConfig) Validate() error {
	var errs []error
	if c.StateTable == "" {
		errs = append(errs, errors.New("STATE_TABLE is required"))
	}
	if c.ParamPrefix == "" {
		errs = append(errs, errors.New("PARAM_PREFIX is required"))
	}
	if c.MaxQuestionLen <= 0 {
		errs = append(errs, errors.New("MAX_QUESTION_LENGTH must be > 0"))
	}
	if c.MaxTurns <= 0 {
		errs = append(errs, errors.New("MAX_CONVERSATION_TURNS must be > 0"))
	}
	if c.LLMRateLimit < 0 {
		errs = append(errs, errors.New("LLM_REQUESTS_PER_MINUTE must be >= 0"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("app: invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// BuildHandler constructs the request handler and its AWS-backed dependencies.
func BuildHandler(cfg ServerConfig, awsCfg aws.Config, logger *slog.Logger) (*handler.Handler, error) {
	if logger == nil {
		logger = slog.Default()
	}

	params, err := paramstore.New(awsssm.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("app: create SSM client: %w", err)
	}
	turns, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.StateTable)
	if err != nil {
		return nil, fmt.Errorf("app: create state client: %w", err)
	}
	llm, err := openai.NewClient(params, cfg.ParamPrefix,
		openai.WithBaseURL(cfg.LLMBaseURL),
		openai.WithTokenParameter(cfg.TokenParameter),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create LLM client: %w", err)
	}

	askService, err := usecase.NewAskService(params, llm, turns, usecase.Settings{
		ParamPrefix:     cfg.ParamPrefix,
		MaxContextTurns: cfg.MaxContextTurns,
		MaxQuestionLen:  cfg.MaxQuestionLen,
		MaxTurns:        cfg.MaxTurns,
		Moderation:      cfg.Moderation,

		LLMRequestsPerMinute: cfg.LLMRateLimit,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("app: create ask service: %w", err)
	}

	h, err := handler.NewHandler(askService,
		handler.WithLogger(logger),
		handler.WithAllowedOrigins(cfg.AllowedOrigins...),
	)
	if err != nil {
		return nil, fmt.Errorf("app: create handler: %w", err)
	}
	return h, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
