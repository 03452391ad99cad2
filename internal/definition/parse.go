package definition

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"
)

var (
	// ErrNotFound indicates no definition exists for an identity.
	ErrNotFound = errors.New("definition: not found")
	// ErrParse indicates a stored definition is malformed.
	ErrParse = errors.New("definition: malformed")
)

type frontMatter struct {
	Description  string `yaml:"description"`
	ArgumentHint string `yaml:"argument-hint"`
	Model        string `yaml:"model"`
	Provider     string `yaml:"provider"`
	// Tools is kept as a raw node so an empty value can be told apart from
	// a missing key.
	Tools yaml.Node `yaml:"tools"`
}

// decodeList accepts either a YAML sequence or a comma separated scalar,
// so both `tools: [Read, Write]` and `tools: Read, Write` parse.
func decodeList(node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return nil, err
		}
		return trimAll(items), nil
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" || strings.TrimSpace(node.Value) == "" {
			return []string{}, nil
		}
		return trimAll(strings.Split(node.Value, ",")), nil
	default:
		return nil, fmt.Errorf("line %d: expected list or string", node.Line)
	}
}

func trimAll(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := strings.TrimSpace(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Parse parses a definition document. The name is the definition identity.
// A document must open with a `---` fenced YAML block that at least declares
// `tools` (possibly empty).
func Parse(name string, content []byte) (*UnitOfWork, error) {
	normalized := bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, fmt.Errorf("%w: %s: missing front matter", ErrParse, name)
	}

	rest := normalized[4:]
	var metaBytes, body []byte
	if bytes.HasPrefix(rest, []byte("---\n")) {
		body = rest[4:]
	} else {
		parts := bytes.SplitN(rest, []byte("\n---\n"), 2)
		if len(parts) < 2 {
			if !bytes.HasSuffix(rest, []byte("\n---")) {
				return nil, fmt.Errorf("%w: %s: unterminated front matter", ErrParse, name)
			}
			parts = [][]byte{bytes.TrimSuffix(rest, []byte("\n---")), nil}
		}
		metaBytes, body = parts[0], parts[1]
	}

	var meta frontMatter
	if err := yaml.Unmarshal(metaBytes, &meta); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrParse, name, err)
	}
	if meta.Tools.Kind == 0 {
		return nil, fmt.Errorf("%w: %s: front matter missing required field \"tools\"", ErrParse, name)
	}
	tools, err := decodeList(&meta.Tools)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: tools: %v", ErrParse, name, err)
	}

	provider := Provider(strings.ToLower(strings.TrimSpace(meta.Provider)))
	switch provider {
	case "", ProviderAnthropic, ProviderOpenAI:
	default:
		return nil, fmt.Errorf("%w: %s: unknown provider %q", ErrParse, name, meta.Provider)
	}

	text := string(body)
	sections := parseSections(text)

	return &UnitOfWork{
		Name:         name,
		Description:  strings.TrimSpace(meta.Description),
		ArgumentHint: strings.TrimSpace(meta.ArgumentHint),
		Model:        strings.TrimSpace(meta.Model),
		Provider:     provider,
		Capabilities: tools,
		Purpose:      sections["Purpose"],
		Variables:    parseVariables(sections["Variables"]),
		Instructions: parseInstructions(sections["Instructions"]),
		Workflow:     sections["Workflow"],
		Report:       sections["Report"],
		Body:         text,
	}, nil
}

// parseSections splits markdown on level-two headers. Deeper headers stay in
// the enclosing section; text before the first header is dropped.
func parseSections(content string) map[string]string {
	sections := make(map[string]string)
	var current string
	var lines []string
	inSection := false

	flush := func() {
		if inSection {
			sections[current] = strings.TrimSpace(strings.Join(lines, "\n"))
		}
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, "## ") {
			flush()
			current = strings.TrimSpace(line[3:])
			lines = lines[:0]
			inSection = true
			continue
		}
		if inSection {
			lines = append(lines, line)
		}
	}
	flush()

	return sections
}

func parseVariables(section string) map[string]string {
	vars := make(map[string]string)
	for _, line := range strings.Split(section, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		vars[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return vars
}

func parseInstructions(section string) []string {
	var out []string
	for _, line := range strings.Split(section, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "- ") {
			out = append(out, strings.TrimSpace(line[2:]))
		}
	}
	return out
}
