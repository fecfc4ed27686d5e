package config

import (
	"fmt"
	"io"
	"os"

	"call-relay/internal/clients/openai"
	"call-relay/internal/voice/audio"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const defaultInstructions = `You are a helpful, casual and friendly AI voice assistant. Answer questions
clearly and confidently, solve problems fully, and keep the tone relaxed.
Switch to an encouraging tone when someone is down. Never talk down to the
caller. Keep answers short enough to be comfortable to listen to on a phone call.`

const defaultGreeting = `Greet the user with "Hello there! I'm an AI voice assistant. How can I help?"`

// Agent is the assistant persona and session settings sent to the model.
type Agent struct {
	Voice             string   `yaml:"voice" validate:"required"`
	Instructions      string   `yaml:"instructions"`
	Greeting          string   `yaml:"greeting"`
	TurnDetection     string   `yaml:"turn_detection" validate:"omitempty,oneof=server_vad semantic_vad"`
	Temperature       float64  `yaml:"temperature" validate:"gte=0.6,lte=1.2"`
	AudioFormat       string   `yaml:"audio_format" validate:"oneof=g711_ulaw"`
	Modalities        []string `yaml:"modalities" validate:"min=1,dive,oneof=text audio"`
	VerboseEventTypes []string `yaml:"verbose_event_types"`
}

// DefaultAgent is used when no persona file is configured. Persona files
// are decoded on top of it, so they only need to set what they change.
func DefaultAgent() Agent {
	return Agent{
		Voice:             "sage",
		Instructions:      defaultInstructions,
		Greeting:          defaultGreeting,
		TurnDetection:     "server_vad",
		Temperature:       0.8,
		AudioFormat:       audio.FormatG711Ulaw,
		Modalities:        []string{"text", "audio"},
		VerboseEventTypes: append([]string(nil), openai.DefaultVerboseEventTypes...),
	}
}

var validate = validator.New()

// LoadAgentFile reads a YAML persona file.
func LoadAgentFile(path string) (*Agent, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open agent file %q: %w", path, err)
	}
	defer f.Close()

	agent, err := LoadAgent(f)
	if err != nil {
		return nil, fmt.Errorf("config: agent file %q: %w", path, err)
	}
	return agent, nil
}

// LoadAgent decodes a YAML persona over DefaultAgent and validates it.
// Unknown keys are rejected.
func LoadAgent(r io.Reader) (*Agent, error) {
	agent := DefaultAgent()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&agent); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if err := validate.Struct(agent); err != nil {
		return nil, fmt.Errorf("invalid agent: %w", err)
	}
	return &agent, nil
}
