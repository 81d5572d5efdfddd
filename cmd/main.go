package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"

	"honeypot-agent/handler"
	"honeypot-agent/internal/integrations/callback"
	"honeypot-agent/internal/integrations/openai"
	"honeypot-agent/internal/integrations/paramstore"
	"honeypot-agent/internal/persona"
	"honeypot-agent/internal/repository"
	"honeypot-agent/internal/usecase"
)

func main() {
	ctx := context.Background()

	// ---- Configuration (read only here) ----
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel(os.Getenv("LOG_LEVEL"))}))
	slog.SetDefault(logger)

	paramPrefix := strings.TrimRight(mustEnv("PARAM_PREFIX"), "/")
	sessionBackend := envString("SESSION_BACKEND", "memory")
	llmBaseURL := envString("LLM_BASE_URL", "https://api.groq.com/openai/v1")
	llmTimeout := envDuration("LLM_TIMEOUT", 8*time.Second)
	notifyMaxAttempts := envInt("NOTIFY_MAX_ATTEMPTS", 3)
	notifyPolicy, err := usecase.ParseNotifyFailurePolicy(os.Getenv("NOTIFY_FAILURE_POLICY"))
	if err != nil {
		fatal("invalid NOTIFY_FAILURE_POLICY", err)
	}

	// ---- AWS SDK config ----
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		fatal("failed to load AWS config", err)
	}

	// ---- Clients ----
	ssmClient, err := paramstore.New(awsssm.NewFromConfig(cfg))
	if err != nil {
		fatal("failed to create SSM client", err)
	}

	apiKeyParam := paramPrefix + "/api-key"
	callbackParam := paramPrefix + "/config/callback_url"
	modelParam := paramPrefix + "/config/llm_model"
	params, err := ssmClient.GetParameters(ctx, apiKeyParam, callbackParam, modelParam)
	if err != nil {
		fatal("failed to load parameters", err)
	}

	store, err := sessionStore(sessionBackend, cfg)
	if err != nil {
		fatal("failed to create session store", err)
	}
	sessions, err := repository.NewSessions(store)
	if err != nil {
		fatal("failed to create session driver", err)
	}

	llmClient, err := openai.NewClient(ssmClient, paramPrefix+"/llm-token",
		openai.WithBaseURL(llmBaseURL),
		openai.WithTimeout(llmTimeout),
	)
	if err != nil {
		fatal("failed to create LLM client", err)
	}
	generator, err := persona.NewGenerator(llmClient, params[modelParam], llmTimeout, logger)
	if err != nil {
		fatal("failed to create reply generator", err)
	}

	notifier, err := callback.NewClient(params[callbackParam])
	if err != nil {
		fatal("failed to create callback client", err)
	}

	// ---- Handler ----
	respondService, err := usecase.NewRespondService(sessions, generator, notifier, logger,
		usecase.WithNotifyFailurePolicy(notifyPolicy, notifyMaxAttempts),
	)
	if err != nil {
		fatal("failed to create respond service", err)
	}

	h, err := handler.NewHandler(respondService, params[apiKeyParam], logger)
	if err != nil {
		fatal("failed to create handler", err)
	}

	logger.Info("honeypot agent starting", "session_backend", sessionBackend, "notify_failure_policy", notifyPolicy)
	lambda.Start(h.Handle)
}

func sessionStore(backend string, cfg aws.Config) (repository.SessionStore, error) {
	switch backend {
	case "memory":
		return repository.NewMemoryStore(), nil
	case "dynamodb":
		client, err := repository.New(awsdynamodb.NewFromConfig(cfg), mustEnv("STATE_TABLE"))
		if err != nil {
			return nil, err
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown SESSION_BACKEND %q", backend)
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}

func logLevel(v string) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return slog.LevelInfo
	}
	return level
}

func mustEnv(key string) string {
	v := os.Getenv(key)
	if v == "" {
		slog.Error("required environment variable is not set", "key", key)
		os.Exit(1)
	}
	return v
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
