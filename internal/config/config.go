/*
GOLDEN RULES & DEVELOPER MANIFESTO (THE NORTH STAR)
--------------------------------------------------------------------------------
"Work is love made visible. And if you cannot work with love but only with
distaste, it is better that you should leave your work and sit at the gate of
the temple and take alms of those who work with joy." — Kahlil Gibran

1.  LOVE AND CARE (Primary Driver)
    - This is a craft. Build with pride, honesty, and kindness.
    - If you put love in your work, you build something deserving of love.
    - Be helpful: Code is read more than written; optimize for the reader.

2.  WRITE WHAT YOU MEAN (Explicit > Implicit)
    - Use WHOLE WORDS: `RequestIdentifier` not `ReqID`.
    - No magic numbers: Move application settings to `project.toml`.
    - Secure by design: Keep API keys and secrets strictly in `.env`.
    - No ambiguity: If you assume something, document it.

3.  SIMPLE IS EFFICIENT (Minimal Viable Elegance)
    - Avoid over-engineering. Small interfaces, clear structs.
    - If a design requires a hack, stop. Redesign it with elegance.
    - Lean, Clean, Mean: Delete dead code immediately.

4.  NO BASELESS ASSUMPTIONS (Scientific Rigor)
    - Do not guess. Base decisions on documentation and proven patterns.
    - If you do not know, ask or verify.

5.  NON-BLOCKING & ROBUST
    - Never block the main goroutine. Use Context for cancellation.
    - Handle errors explicitly: Don't just return them, wrap them with context.

--------------------------------------------------------------------------------
EXAMPLES OF "LOVE AND CARE" IN THIS CONTEXT:
--------------------------------------------------------------------------------
(A) NAMING
    Indifferent:  func Gen(t string, v string)
    With Love:    func GenerateSoundscape(ctx context.Context, textPrompt string, voiceID string)
    *Why: The Agent reading this next year will know exactly what it does and that it is cancellable.*

(B) CONFIGURATION
    Indifferent:  const Timeout = 30 // Hardcoded
    With Love:    config.App.TimeoutSeconds // Loaded from project.toml
    *Why: Allows behavior tuning without recompiling or touching the codebase.*

(C) ERROR HANDLING
    Indifferent:  if err != nil { return err }
    With Love:    if err != nil { return fmt.Errorf("failed to initialize vox engine: %w", err) }
    *Why: Wrapping the error gives the user the 'trace of breadcrumbs' they need to fix it. That is kindness.*
--------------------------------------------------------------------------------
*/

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

const DefaultConfigFilename = "project.toml"

// Defaults applied to zero values by ApplyDefaults.
const (
	DefaultLogDir                 = "logs"
	DefaultHTTPAddress            = ":8080"
	DefaultRequestTimeoutSeconds  = 600
	DefaultAPIKeyVariable         = "GEMINI_API_KEY"
	DefaultModel                  = "gemini-2.5-flash"
	DefaultTemperature            = 0.7
	DefaultLLMTimeoutSeconds      = 120
	DefaultMaxRetries             = 1
	DefaultThemeMaxOutputTokens   = 1000
	DefaultSectionMaxOutputTokens = 4000
	DefaultNarratorVoice          = "Professional narrator voice"
	DefaultNATSURL                = "nats://127.0.0.1:4222"
	DefaultStream                 = "AUDIOGUIDE"
	DefaultConsumerSubject        = "audioguide.*.requested"
	DefaultDurable                = "audioguide-manuscript-workers"
	DefaultDLQSubject             = "audioguide.dlq"
	DefaultManuscriptBucket       = "AUDIOGUIDE_MANUSCRIPTS"
	maxTemperature                = 2.0
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Service ServiceSettings `toml:"service"`
	LLM     LLMSettings     `toml:"llm"`
	Prompts PromptSettings  `toml:"prompts"`
	NATS    NATSSettings    `toml:"nats"`
}

type ServiceSettings struct {
	LogDir                string `toml:"log_dir"`
	HTTPAddress           string `toml:"http_address"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

type LLMSettings struct {
	APIKeyEnvironmentVariable string   `toml:"api_key_variable"`
	BaseURL                   string   `toml:"base_url"`
	Model                     string   `toml:"model"`
	MaxRetries                int      `toml:"max_retries"`
	RetryDelaySeconds         int      `toml:"retry_delay_seconds"`
	TimeoutSeconds            int      `toml:"timeout_seconds"`
	// Temperature is nil when the file does not set it; 0 is a valid value.
	Temperature               *float64 `toml:"temperature"`
	ThemeMaxOutputTokens      int      `toml:"theme_max_output_tokens"`
	SectionMaxOutputTokens    int      `toml:"section_max_output_tokens"`
}

// PromptSettings overrides the built-in system instructions. Empty values
// keep the built-in Swedish instructions.
type PromptSettings struct {
	ThemeSystemInstruction   string `toml:"theme_system_instruction"`
	SectionSystemInstruction string `toml:"section_system_instruction"`
	DefaultNarratorVoice     string `toml:"default_narrator_voice"`
}

type NATSSettings struct {
	Enabled     bool                `toml:"enabled"`
	URL         string              `toml:"url"`
	DLQSubject  string              `toml:"dlq_subject"`
	Consumer    ConsumerSettings    `toml:"consumer"`
	Subjects    SubjectSettings     `toml:"subjects"`
	ObjectStore ObjectStoreSettings `toml:"object_store"`
}

type ConsumerSettings struct {
	Stream  string `toml:"stream"`
	Subject string `toml:"subject"`
	Durable string `toml:"durable"`
}

type SubjectSettings struct {
	ThemesRequested     string `toml:"themes_requested"`
	ThemesProposed      string `toml:"themes_proposed"`
	ManuscriptRequested string `toml:"manuscript_requested"`
	ManuscriptProgress  string `toml:"manuscript_progress"`
	ManuscriptCompleted string `toml:"manuscript_completed"`
	GenerationFailed    string `toml:"generation_failed"`
}

type ObjectStoreSettings struct {
	ManuscriptBucket string `toml:"manuscript_bucket"`
}

// Load reads, defaults and validates the TOML file at filePath.
func Load(filePath string, loggerInstance *logger.Logger) (*Config, error) {
	if filePath == "" {
		filePath = DefaultConfigFilename
	}

	configFile, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file '%s': %w", filePath, err)
	}
	defer func() {
		if closeErr := configFile.Close(); closeErr != nil && loggerInstance != nil {
			loggerInstance.Warnf("Failed to close config file: %v", closeErr)
		}
	}()

	return Parse(configFile)
}

// Parse decodes TOML from reader, then applies defaults and validates.
// Unknown keys are rejected.
func Parse(reader io.Reader) (*Config, error) {
	var configuration Config

	decoder := toml.NewDecoder(reader)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(&configuration); err != nil {
		return nil, fmt.Errorf("failed to decode TOML configuration: %w", err)
	}

	configuration.ApplyDefaults()

	if err := configuration.Validate(); err != nil {
		return nil, err
	}

	return &configuration, nil
}

// ApplyDefaults fills every zero value with its default. Temperature is only
// defaulted when it is missing from the file.
func (c *Config) ApplyDefaults() {
	setString(&c.Service.LogDir, DefaultLogDir)
	setString(&c.Service.HTTPAddress, DefaultHTTPAddress)
	setInt(&c.Service.RequestTimeoutSeconds, DefaultRequestTimeoutSeconds)

	setString(&c.LLM.APIKeyEnvironmentVariable, DefaultAPIKeyVariable)
	setString(&c.LLM.Model, DefaultModel)
	setInt(&c.LLM.MaxRetries, DefaultMaxRetries)
	setInt(&c.LLM.TimeoutSeconds, DefaultLLMTimeoutSeconds)
	setInt(&c.LLM.ThemeMaxOutputTokens, DefaultThemeMaxOutputTokens)
	setInt(&c.LLM.SectionMaxOutputTokens, DefaultSectionMaxOutputTokens)

	if c.LLM.Temperature == nil {
		temperature := DefaultTemperature
		c.LLM.Temperature = &temperature
	}

	setString(&c.Prompts.DefaultNarratorVoice, DefaultNarratorVoice)

	setString(&c.NATS.URL, DefaultNATSURL)
	setString(&c.NATS.DLQSubject, DefaultDLQSubject)
	setString(&c.NATS.Consumer.Stream, DefaultStream)
	setString(&c.NATS.Consumer.Subject, DefaultConsumerSubject)
	setString(&c.NATS.Consumer.Durable, DefaultDurable)
	setString(&c.NATS.Subjects.ThemesRequested, "audioguide.themes.requested")
	setString(&c.NATS.Subjects.ThemesProposed, "audioguide.themes.proposed")
	setString(&c.NATS.Subjects.ManuscriptRequested, "audioguide.manuscript.requested")
	setString(&c.NATS.Subjects.ManuscriptProgress, "audioguide.manuscript.progress")
	setString(&c.NATS.Subjects.ManuscriptCompleted, "audioguide.manuscript.completed")
	setString(&c.NATS.Subjects.GenerationFailed, "audioguide.generation.failed")
	setString(&c.NATS.ObjectStore.ManuscriptBucket, DefaultManuscriptBucket)
}

// Validate reports the first invalid setting, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.LLM.Model) == "":
		return fmt.Errorf("%w: llm.model is empty", ErrInvalidConfig)
	case c.LLM.ThemeMaxOutputTokens < 0 || c.LLM.SectionMaxOutputTokens < 0:
		return fmt.Errorf("%w: llm output token budgets must not be negative", ErrInvalidConfig)
	case c.LLM.TimeoutSeconds < 0 || c.Service.RequestTimeoutSeconds < 0:
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	case c.LLM.MaxRetries < 0 || c.LLM.RetryDelaySeconds < 0:
		return fmt.Errorf("%w: llm retry settings must not be negative", ErrInvalidConfig)
	case c.LLM.Temperature != nil && (*c.LLM.Temperature < 0 || *c.LLM.Temperature > maxTemperature):
		return fmt.Errorf("%w: llm.temperature %.2f outside 0-%.0f", ErrInvalidConfig, *c.LLM.Temperature, maxTemperature)
	}

	if !c.NATS.Enabled {
		return nil
	}

	required := []struct{ key, value string }{
		{"nats.url", c.NATS.URL},
		{"nats.dlq_subject", c.NATS.DLQSubject},
		{"nats.consumer.stream", c.NATS.Consumer.Stream},
		{"nats.consumer.subject", c.NATS.Consumer.Subject},
		{"nats.consumer.durable", c.NATS.Consumer.Durable},
		{"nats.object_store.manuscript_bucket", c.NATS.ObjectStore.ManuscriptBucket},
	}

	for _, setting := range required {
		if strings.TrimSpace(setting.value) == "" {
			return fmt.Errorf("%w: %s is required when NATS is enabled", ErrInvalidConfig, setting.key)
		}
	}

	return nil
}

func (c *Config) GetAPIKey() string {
	return os.Getenv(c.LLM.APIKeyEnvironmentVariable)
}

func setString(target *string, fallback string) {
	if strings.TrimSpace(*target) == "" {
		*target = fallback
	}
}

func setInt(target *int, fallback int) {
	if *target == 0 {
		*target = fallback
	}
}
