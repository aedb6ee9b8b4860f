package agent

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"

	"github.com/team-llm/experiment-platform/internal/model"
	"github.com/team-llm/experiment-platform/pkg/logger"

	"go.uber.org/zap"
)

// defaultProvider is assumed when a model identifier carries no provider prefix.
const defaultProvider = "openai"

// Options configures agent construction.
type Options struct {
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// TopicMatchChance and IdleChance drive the participation policy and
	// TypoRate the message perturbation. The values are taken as given, so
	// zero switches the behavior off; the configuration layer owns the
	// deployment defaults.
	TopicMatchChance float64
	IdleChance       float64
	TypoRate         float64

	MaxAttempts int // provider retry budget, default 3

	// Rand seeds all probabilistic behavior. Nil gets a time-seeded source.
	Rand *rand.Rand
}

func (o *Options) withDefaults() Options {
	out := *o
	if out.MaxAttempts == 0 {
		out.MaxAttempts = 3
	}
	if out.Rand == nil {
		out.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return out
}

// Factory resolves role model identifiers into concrete Agent instances.
type Factory struct {
	opts Options
	rng  *lockedRand
	log  *logger.Logger
}

// NewFactory creates an agent factory.
func NewFactory(opts Options, log *logger.Logger) *Factory {
	o := opts.withDefaults()
	return &Factory{
		opts: o,
		rng:  newLockedRand(o.Rand),
		log:  log,
	}
}

// Create builds an agent for one configured role. The model identifier uses
// the provider/model-name format; a missing provider defaults to openai.
// Unknown providers fail with a ConfigurationError.
func (f *Factory) Create(role model.Role) (Agent, error) {
	provider := defaultProvider
	modelID := role.Model
	if before, _, found := strings.Cut(role.Model, "/"); found {
		provider = strings.ToLower(before)
	} else if strings.EqualFold(role.Model, "mock") {
		provider = "mock"
	}

	b := base{
		name:      role.Name,
		modelID:   modelID,
		persona:   role.Persona,
		strategy:  role.Strategy,
		knowledge: role.Knowledge,
		policy:    NewPolicy(f.opts.TopicMatchChance, f.opts.IdleChance, f.rng),
		typos:     NewPerturber(f.opts.TypoRate, f.rng),
	}

	switch provider {
	case "openai":
		if f.opts.OpenAIAPIKey == "" {
			return nil, &ConfigurationError{Reason: "OpenAI API key is not configured"}
		}
		return &OpenAIAgent{
			base:        b,
			client:      openai.NewClient(f.opts.OpenAIAPIKey),
			maxAttempts: f.opts.MaxAttempts,
			retryBase:   time.Second,
			log:         f.log,
		}, nil

	case "anthropic":
		if f.opts.AnthropicAPIKey == "" {
			return nil, &ConfigurationError{Reason: "Anthropic API key is not configured"}
		}
		client := anthropic.NewClient(option.WithAPIKey(f.opts.AnthropicAPIKey))
		return &AnthropicAgent{
			base:        b,
			messages:    client.Messages,
			maxAttempts: f.opts.MaxAttempts,
			retryBase:   time.Second,
			log:         f.log,
		}, nil

	case "mock":
		return &MockAgent{
			base:     b,
			rng:      f.rng,
			minThink: 500 * time.Millisecond,
			maxThink: 2 * time.Second,
		}, nil

	default:
		return nil, &ConfigurationError{Reason: fmt.Sprintf("unknown model provider: %s", provider)}
	}
}

// CreateFromConfig builds one agent per AI-typed role, keyed by role name.
// A role that cannot be built is skipped with a warning; it never aborts the
// rest of the roster. A duplicate role name overwrites the earlier entry.
func (f *Factory) CreateFromConfig(cfg *model.ExperimentConfig) map[string]Agent {
	agents := make(map[string]Agent)
	for _, role := range cfg.AIRoles() {
		a, err := f.Create(role)
		if err != nil {
			f.log.Warn("skipping unbuildable AI role",
				zap.String("role", role.Name),
				zap.String("model", role.Model),
				zap.Error(err),
			)
			continue
		}
		agents[role.Name] = a
	}
	return agents
}
