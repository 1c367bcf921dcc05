package pipeline

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Prompts holds the fixed instructions sent to the model. Any field may be
// overridden from a YAML file; "{language}" in SummaryInstruction is
// replaced with the configured answer language.
type Prompts struct {
	IntentInstruction  string `yaml:"intent_instruction"`
	IntentFormat       string `yaml:"intent_format"`
	ErrorInstruction   string `yaml:"error_instruction"`
	SummaryInstruction string `yaml:"summary_instruction"`
}

func DefaultPrompts() Prompts {
	return Prompts{
		IntentInstruction: "You are a data analysis assistant. Analyze the user's message and determine:\n" +
			"1. What data analysis they want to perform\n" +
			"2. Which CSV files might be needed\n" +
			"3. What operations to perform (summary, filter, specific analysis)\n",
		IntentFormat: "Respond with a JSON object containing: intent (string), csv_file (string or null), operations (list of strings). " +
			"If the user wants to filter rows you may add filters (object mapping column name to the value to match).",
		ErrorInstruction:   "Provide a helpful error message to the user.",
		SummaryInstruction: "Provide a clear, concise summary of the analysis results in {language}.",
	}
}

// LoadPrompts returns the defaults overlaid with the non-empty fields of the
// YAML file at path. An empty path yields the defaults.
func LoadPrompts(path string) (Prompts, error) {
	p := DefaultPrompts()
	if path == "" {
		return p, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return p, fmt.Errorf("read prompts: %w", err)
	}
	var override Prompts
	if err := yaml.Unmarshal(data, &override); err != nil {
		return p, fmt.Errorf("parse prompts %s: %w", path, err)
	}
	if s := strings.TrimSpace(override.IntentInstruction); s != "" {
		p.IntentInstruction = override.IntentInstruction
	}
	if s := strings.TrimSpace(override.IntentFormat); s != "" {
		p.IntentFormat = override.IntentFormat
	}
	if s := strings.TrimSpace(override.ErrorInstruction); s != "" {
		p.ErrorInstruction = override.ErrorInstruction
	}
	if s := strings.TrimSpace(override.SummaryInstruction); s != "" {
		p.SummaryInstruction = override.SummaryInstruction
	}
	return p, nil
}
