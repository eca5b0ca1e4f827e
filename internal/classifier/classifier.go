// Package classifier determines how to install, build and run a repository.
// Deterministic manifest analysis is the source of truth whenever a parseable
// manifest exists; the AI classifier is the fallback for everything else.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"repolaunch-server/internal/config"
	"repolaunch-server/internal/model"
)

// Signals are the repository facts classification works from.
type Signals struct {
	Owner       string
	Repo        string
	Language    string
	Description string
	FilePaths   []string
	// ConfigFiles maps allow-listed file names to their contents.
	ConfigFiles map[string]string
}

// Result is a classified environment plus provenance. Source is "static"
// when a deterministic manifest produced the configuration and "classifier"
// when the AI fallback did.
type Result struct {
	Config     model.EnvironmentConfig
	Confidence float64
	Reasoning  string
	Source     string
}

// Classifier infers an environment configuration from repository signals.
type Classifier interface {
	Classify(ctx context.Context, signals *Signals) (*Result, error)
}

// ConfigFileAllowList names the files the analyze phase fetches contents
// for. Only these ever reach the classifier; nothing else in the repository
// is read ahead of the clone.
var ConfigFileAllowList = []string{
	"package.json",
	"requirements.txt",
	"pyproject.toml",
	"go.mod",
	"Cargo.toml",
	"Gemfile",
	"composer.json",
	"pom.xml",
	"build.gradle",
	"Dockerfile",
	"index.html",
	"Procfile",
}

// AIClassifier calls an OpenAI-style chat completions endpoint and parses a
// JSON environment configuration out of the reply.
type AIClassifier struct {
	endpoint   string
	model      string
	apiKey     string
	httpClient *http.Client
}

// NewAIClassifier builds the AI classifier from configuration.
func NewAIClassifier(cfg *config.Config) *AIClassifier {
	return &AIClassifier{
		endpoint:   cfg.Classifier.Endpoint,
		model:      cfg.Classifier.Model,
		apiKey:     cfg.Classifier.APIKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

const systemPrompt = "You are a strict development environment classifier.\n" +
	"Given a repository's file listing and configuration files, respond with ONLY a JSON object, no markdown code blocks:\n" +
	`{"type":"nodejs|python|rust|go|ruby|php|java|static|docker|unknown",` +
	`"name":"<human readable>","port":<number>,"install_command":"<or empty>",` +
	`"build_command":"<or empty>","start_command":"<required>",` +
	`"env":{},"expose_port":<bool>,"confidence":<0..1>,"reasoning":"<one sentence>"}` + "\n" +
	"Commands must be non-interactive and runnable in a fresh Linux container."

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// classifiedEnv is the JSON envelope the model is instructed to emit.
type classifiedEnv struct {
	Type           string            `json:"type"`
	Name           string            `json:"name"`
	Port           int               `json:"port"`
	InstallCommand string            `json:"install_command"`
	BuildCommand   string            `json:"build_command"`
	StartCommand   string            `json:"start_command"`
	Env            map[string]string `json:"env"`
	ExposePort     bool              `json:"expose_port"`
	Confidence     float64           `json:"confidence"`
	Reasoning      string            `json:"reasoning"`
}

// Classify sends the repository signals to the model and parses its answer.
func (c *AIClassifier) Classify(ctx context.Context, signals *Signals) (*Result, error) {
	if c.apiKey == "" {
		return nil, errors.New("classifier not configured (missing API key)")
	}

	reqBody := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: buildUserPrompt(signals)},
		},
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("classifier request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("classifier API error: status %d", resp.StatusCode)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse classifier response: %w", err)
	}
	if chatResp.Error != nil {
		return nil, fmt.Errorf("classifier API error: %s", chatResp.Error.Message)
	}
	if len(chatResp.Choices) == 0 {
		return nil, errors.New("classifier returned no choices")
	}

	return parseClassifiedEnv(chatResp.Choices[0].Message.Content)
}

func buildUserPrompt(signals *Signals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Repository: %s/%s\n", signals.Owner, signals.Repo)
	if signals.Language != "" {
		fmt.Fprintf(&b, "Primary language: %s\n", signals.Language)
	}
	if signals.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", signals.Description)
	}

	b.WriteString("Files:\n")
	// Cap the listing; big monorepos would blow the prompt budget.
	paths := signals.FilePaths
	if len(paths) > 200 {
		paths = paths[:200]
	}
	for _, p := range paths {
		b.WriteString("  ")
		b.WriteString(p)
		b.WriteString("\n")
	}

	for name, content := range signals.ConfigFiles {
		if len(content) > 4096 {
			content = content[:4096]
		}
		fmt.Fprintf(&b, "\n--- %s ---\n%s\n", name, content)
	}
	return b.String()
}

func parseClassifiedEnv(content string) (*Result, error) {
	// Models occasionally fence the JSON despite instructions.
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var env classifiedEnv
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &env); err != nil {
		return nil, fmt.Errorf("classifier returned unparseable config: %w", err)
	}
	if env.StartCommand == "" {
		return nil, errors.New("classifier returned no start command")
	}
	if env.Port == 0 {
		env.Port = 8080
	}

	return &Result{
		Config: model.EnvironmentConfig{
			Type:           env.Type,
			Name:           env.Name,
			Port:           env.Port,
			InstallCommand: env.InstallCommand,
			BuildCommand:   env.BuildCommand,
			StartCommand:   env.StartCommand,
			Env:            env.Env,
			ExposePort:     env.ExposePort,
		},
		Confidence: env.Confidence,
		Reasoning:  env.Reasoning,
		Source:     "classifier",
	}, nil
}
