// Package grounding builds the deterministic glossary/context preamble
// prepended to committee prompts, grounded on configs/grounding.py's
// make_context. The glossary file is loaded once via sync.Once, matching
// the Python module-level memoized _GLOSS.
package grounding

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Term is one glossary entry.
type Term struct {
	Name       string `yaml:"name"`
	Full       string `yaml:"full"`
	Definition string `yaml:"definition"`
}

type glossaryFile struct {
	Terms map[string]Term `yaml:"terms"`
	Notes struct {
		Constraints string `yaml:"constraints"`
	} `yaml:"notes"`
}

// Builder loads a glossary file once and builds prompt context from it.
type Builder struct {
	path string
	once sync.Once
	g    glossaryFile
	err  error
}

// New creates a Builder reading the glossary at path on first use.
func New(path string) *Builder {
	return &Builder{path: path}
}

func (b *Builder) load() {
	b.once.Do(func() {
		data, err := os.ReadFile(b.path)
		if err != nil {
			b.err = fmt.Errorf("reading glossary %s: %w", b.path, err)
			return
		}
		if err := yaml.Unmarshal(data, &b.g); err != nil {
			b.err = fmt.Errorf("parsing glossary %s: %w", b.path, err)
		}
	})
}

// BuildContext assembles the [Glossary]/[User context]/[Constraints]
// preamble. extraTerms selects which glossary entries to include, in
// order; entries absent from the glossary are silently skipped. A
// glossary load failure yields an empty glossary section rather than an
// error, since grounding context is an enrichment, not a precondition for
// voting.
func (b *Builder) BuildContext(userContext string, extraTerms []string) string {
	b.load()

	var lines []string
	if b.err == nil {
		for _, t := range extraTerms {
			if term, ok := b.g.Terms[t]; ok {
				lines = append(lines, fmt.Sprintf("- %s (%s): %s", term.Name, term.Full, term.Definition))
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("[Glossary]\n")
	sb.WriteString(strings.Join(lines, "\n"))
	sb.WriteString("\n")

	if userContext != "" {
		sb.WriteString("\n[User context]\n")
		sb.WriteString(strings.TrimSpace(userContext))
	}

	if b.err == nil && b.g.Notes.Constraints != "" {
		sb.WriteString("\n[Constraints]\n")
		sb.WriteString(b.g.Notes.Constraints)
	}

	return sb.String()
}
