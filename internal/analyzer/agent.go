package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agent-api/core/pkg/agent"
	"github.com/agent-api/core/types"
	"github.com/agent-api/ollama"
)

const (
	DefaultBaseURL = "http://localhost"
	DefaultPort    = 11434
	DefaultModel   = "llama3.2-vision:11b"

	systemPrompt = "You are a visual analysis assistant. You describe single video frames briefly and precisely."

	healthTimeout = 5 * time.Second
)

// ErrUnavailable is returned when the Ollama server cannot be reached.
var ErrUnavailable = errors.New("vision model unavailable")

// AgentConfig locates the Ollama server and names the vision model.
type AgentConfig struct {
	BaseURL string
	Port    int
	Model   string
}

func (c AgentConfig) withDefaults() AgentConfig {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Port == 0 {
		c.Port = DefaultPort
	}
	if c.Model == "" {
		c.Model = DefaultModel
	}
	return c
}

func (c AgentConfig) endpoint() string {
	return fmt.Sprintf("%s:%d", strings.TrimSuffix(c.BaseURL, "/"), c.Port)
}

// Model answers a prompt about the image stored at imagePath.
type Model interface {
	Ask(ctx context.Context, prompt, imagePath string) (string, error)
}

type agentModel struct {
	agent *agent.DefaultAgent
}

func (m *agentModel) Ask(ctx context.Context, prompt, imagePath string) (string, error) {
	response := m.agent.Run(
		ctx,
		agent.WithInput(prompt),
		agent.WithImagePath(imagePath),
	)
	if response.Err != nil {
		return "", response.Err
	}
	if len(response.Messages) == 0 {
		return "", nil
	}

	// last message is the model's reply
	return response.Messages[len(response.Messages)-1].Content, nil
}

// NewAgent checks that Ollama is running and returns the vision model
// behind it.
func NewAgent(ctx context.Context, cfg AgentConfig, logger *slog.Logger) (Model, error) {
	cfg = cfg.withDefaults()

	if err := checkHealth(ctx, cfg.endpoint()); err != nil {
		return nil, err
	}

	provider := ollama.NewProvider(&ollama.ProviderOpts{
		Logger:  logger,
		BaseURL: cfg.BaseURL,
		Port:    cfg.Port,
	})
	provider.UseModel(ctx, &types.Model{
		ID: cfg.Model,
	})

	a := agent.NewAgent(&agent.NewAgentConfig{
		Provider:     provider,
		Logger:       logger,
		SystemPrompt: systemPrompt,
	})

	logger.Info("vision agent ready", "endpoint", cfg.endpoint(), "model", cfg.Model)
	return &agentModel{agent: a}, nil
}

func checkHealth(ctx context.Context, endpoint string) error {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/api/tags", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %s returned %s", ErrUnavailable, endpoint, resp.Status)
	}
	return nil
}
