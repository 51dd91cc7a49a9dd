// Package prompt loads system messages stored as markdown with optional
// YAML frontmatter.
package prompt

import (
	"bufio"
	"bytes"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed system_message.md
var defaultSystemMessage []byte

// Prompt is a parsed system message file.
type Prompt struct {
	Name        string
	Description string
	Content     string
	FilePath    string // empty for the built-in prompt
}

type promptFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// Default returns the built-in system message.
func Default() *Prompt {
	p, err := Parse(defaultSystemMessage)
	if err != nil {
		panic(fmt.Sprintf("built-in system message: %v", err))
	}
	return p
}

// Load parses the prompt file at path. Its name defaults to the file name
// without extension.
func Load(path string) (*Prompt, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading prompt file: %w", err)
	}

	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing prompt file %s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	p.FilePath = path
	return p, nil
}

// Parse parses prompt text. Frontmatter is optional.
func Parse(data []byte) (*Prompt, error) {
	fm, content, err := parseFrontmatter(data)
	if err != nil {
		return nil, err
	}

	p := &Prompt{Content: content}
	if len(fm) > 0 {
		var meta promptFrontmatter
		if err := yaml.Unmarshal(fm, &meta); err != nil {
			return nil, fmt.Errorf("parsing prompt frontmatter: %w", err)
		}
		p.Name = meta.Name
		p.Description = meta.Description
	}
	if p.Content == "" {
		return nil, fmt.Errorf("prompt has no content")
	}
	return p, nil
}

// parseFrontmatter splits "---" delimited YAML from the text after it.
// Text without a complete frontmatter block is returned whole.
func parseFrontmatter(data []byte) (frontmatter []byte, content string, err error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))

	if !scanner.Scan() {
		return nil, strings.TrimSpace(string(data)), nil
	}
	if strings.TrimSpace(scanner.Text()) != "---" {
		return nil, strings.TrimSpace(string(data)), nil
	}

	var fmLines []string
	foundClosing := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "---" {
			foundClosing = true
			break
		}
		fmLines = append(fmLines, line)
	}
	if !foundClosing {
		return nil, strings.TrimSpace(string(data)), nil
	}

	var contentLines []string
	for scanner.Scan() {
		contentLines = append(contentLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, "", fmt.Errorf("scanning prompt: %w", err)
	}

	return []byte(strings.Join(fmLines, "\n")), strings.TrimSpace(strings.Join(contentLines, "\n")), nil
}
