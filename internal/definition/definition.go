// Package definition loads agent definitions: markdown files with a YAML
// front matter block naming the model tier and capability allow-list,
// followed by "## Section" headed instruction text.
package definition

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/atomic/pkg/models"
)

// Provider names the backend a definition is dispatched to.
type Provider string

const (
	// ProviderAnthropic routes invocations through the Anthropic Messages API.
	ProviderAnthropic Provider = "anthropic"
	// ProviderOpenAI routes invocations through the OpenAI Responses API.
	ProviderOpenAI Provider = "openai"
)

// UnitOfWork is a parsed agent definition. It is immutable once loaded and may
// be shared across concurrent invocations.
type UnitOfWork struct {
	// Name is the definition identity (the file stem).
	Name string
	// Description is the one-line summary from the front matter.
	Description string
	// ArgumentHint describes the expected input.
	ArgumentHint string
	// Model is the model-tier hint (alias or concrete model id).
	Model string
	// Provider selects the backend; empty means ProviderAnthropic.
	Provider Provider
	// Capabilities is the ordered allow-list of capability names.
	Capabilities []string

	// Purpose is the "## Purpose" section.
	Purpose string
	// Variables holds "KEY: value" lines from the "## Variables" section.
	Variables map[string]string
	// Instructions holds the bullet items from the "## Instructions" section.
	Instructions []string
	// Workflow is the "## Workflow" section.
	Workflow string
	// Report is the "## Report" section, if any.
	Report string
	// Body is the full markdown after the front matter.
	Body string
}

// ModelTier returns the model hint, defaulting to the sonnet tier.
func (u *UnitOfWork) ModelTier() string {
	if u.Model == "" {
		return string(models.DefaultModelTier)
	}
	return u.Model
}

// Backend returns the provider, defaulting to Anthropic.
func (u *UnitOfWork) Backend() Provider {
	if u.Provider == "" {
		return ProviderAnthropic
	}
	return u.Provider
}

// HasCapability reports whether name is in the allow-list.
func (u *UnitOfWork) HasCapability(name string) bool {
	for _, c := range u.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// SystemPrompt renders the instruction prompt sent as the system message.
func (u *UnitOfWork) SystemPrompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", u.Name)
	if u.Purpose != "" {
		b.WriteString(u.Purpose)
		b.WriteString("\n\n")
	}

	b.WriteString("## Instructions\n")
	for _, instruction := range u.Instructions {
		fmt.Fprintf(&b, "- %s\n", instruction)
	}

	if len(u.Capabilities) > 0 {
		b.WriteString("\n## Capabilities\n")
		b.WriteString("You may only use the following capabilities:\n")
		for _, c := range u.Capabilities {
			fmt.Fprintf(&b, "- %s\n", c)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

// UserPrompt renders the per-invocation message: purpose, workflow, the
// project directory outputs must be written to, and the task input.
func (u *UnitOfWork) UserPrompt(projectDir, input string) string {
	var parts []string
	if u.Purpose != "" {
		parts = append(parts, u.Purpose)
	}
	if u.Workflow != "" {
		parts = append(parts, u.Workflow)
	}
	if u.Report != "" {
		parts = append(parts, "## Report\n"+u.Report)
	}
	if projectDir != "" {
		parts = append(parts, "## Project Directory\nWrite all output files to: "+projectDir)
	}
	parts = append(parts, "## Task Input\n"+input)
	return strings.Join(parts, "\n\n")
}
