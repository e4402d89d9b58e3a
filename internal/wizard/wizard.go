// Package wizard collects API configuration and confirmations interactively.
package wizard

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/xamun-dev/xamun/internal/models"
	"golang.org/x/term"
)

// Providers lists the API providers offered by the configuration wizard.
var Providers = []string{"copilot", "mock", "anthropic", "openrouter", "openai", "ollama"}

// ConfigAnswers holds the fields collected by RunConfigWizard.
type ConfigAnswers struct {
	Provider string
	ModelID  string
	APIKey   string
	BaseURL  string
}

// usesBaseURL reports whether the provider is reached through a
// user-supplied endpoint.
func usesBaseURL(provider string) bool {
	return provider == "openai" || provider == "ollama"
}

// RunConfigWizard runs an interactive huh form seeded with the current
// configuration. Secrets are never pre-filled; leaving the key empty keeps
// the stored one.
func RunConfigWizard(in io.Reader, out io.Writer, current models.APIConfiguration) (*ConfigAnswers, error) {
	a := &ConfigAnswers{Provider: current.APIProvider}
	if !slices.Contains(Providers, a.Provider) {
		a.Provider = Providers[0]
	}
	switch a.Provider {
	case "openai":
		a.ModelID, a.BaseURL = current.OpenAIModelID, current.OpenAIBaseURL
	case "ollama":
		a.ModelID, a.BaseURL = current.OllamaModelID, current.OllamaBaseURL
	default:
		a.ModelID = current.APIModelID
	}

	options := make([]huh.Option[string], 0, len(Providers))
	for _, p := range Providers {
		options = append(options, huh.NewOption(p, p))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("API provider").
				Options(options...).
				Value(&a.Provider),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Model").
				Description("Model id to use for new tasks").
				Value(&a.ModelID),
			huh.NewInput().
				Title("API key").
				Description("Leave empty to keep the stored key").
				EchoMode(huh.EchoModePassword).
				Value(&a.APIKey),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Base URL").
				Placeholder("http://localhost:11434").
				Value(&a.BaseURL).
				Validate(func(s string) error {
					s = strings.TrimSpace(s)
					if s != "" && !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
						return fmt.Errorf("base URL must start with http:// or https://")
					}
					return nil
				}),
		).WithHideFunc(func() bool { return !usesBaseURL(a.Provider) }),
	).
		WithInput(in).
		WithOutput(out).
		WithAccessible(!isTerminal(in))

	if err := form.Run(); err != nil {
		return nil, fmt.Errorf("configuration wizard failed: %w", err)
	}

	a.ModelID = strings.TrimSpace(a.ModelID)
	a.APIKey = strings.TrimSpace(a.APIKey)
	a.BaseURL = strings.TrimSpace(a.BaseURL)
	return a, nil
}

// Values maps the answers onto configuration keys, ready for
// updateConfiguration. The API key is omitted when it was left empty.
func (a *ConfigAnswers) Values() map[string]any {
	values := map[string]any{"apiProvider": a.Provider}

	modelKey, keyKey, baseKey := "apiModelId", "apiKey", ""
	switch a.Provider {
	case "openai":
		modelKey, keyKey, baseKey = "openAiModelId", "openAiApiKey", "openAiBaseUrl"
	case "ollama":
		modelKey, keyKey, baseKey = "ollamaModelId", "", "ollamaBaseUrl"
	case "openrouter":
		keyKey = "openRouterApiKey"
	case "copilot":
		keyKey = "githubToken"
	case "mock":
		keyKey = ""
	}

	values[modelKey] = a.ModelID
	if keyKey != "" && a.APIKey != "" {
		values[keyKey] = a.APIKey
	}
	if baseKey != "" {
		values[baseKey] = a.BaseURL
	}
	return values
}

// Confirm asks a yes/no question. Non-terminal input is read in accessible
// mode.
func Confirm(in io.Reader, out io.Writer, title string) (bool, error) {
	var ok bool
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&ok),
		),
	).
		WithInput(in).
		WithOutput(out).
		WithAccessible(!isTerminal(in)).
		Run()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// isTerminal reports whether in is an interactive terminal.
func isTerminal(in io.Reader) bool {
	f, ok := in.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
