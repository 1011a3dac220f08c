package skills

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// TranslatorSpec describes a translation skill to scaffold
type TranslatorSpec struct {
	Name   string
	Source string
	Target string
	// Noisy marks the stage that receives corrupted input
	Noisy bool
}

// DefaultTranslators returns the three skills of the round-trip chain
func DefaultTranslators() []TranslatorSpec {
	return []TranslatorSpec{
		{Name: "english-to-french-translator", Source: "English", Target: "French", Noisy: true},
		{Name: "french-to-hebrew-translator", Source: "French", Target: "Hebrew"},
		{Name: "hebrew-to-english-translator", Source: "Hebrew", Target: "English"},
	}
}

// Render produces the SKILL.md content for spec
func (s TranslatorSpec) Render() ([]byte, error) {
	front, err := yaml.Marshal(Metadata{
		Name:        s.Name,
		Description: fmt.Sprintf("Translates %s text into %s while preserving meaning", s.Source, s.Target),
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal frontmatter")
	}

	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(front)
	buf.WriteString("---\n\n")
	fmt.Fprintf(&buf, "# %s to %s Translator\n\n", s.Source, s.Target)

	fmt.Fprintf(&buf, "## Description\n\nTranslate %s input into natural, fluent %s. This skill is one stage of a multi-step translation chain.\n\n", s.Source, s.Target)

	buf.WriteString("## Instructions\n\n")
	fmt.Fprintf(&buf, "1. Read the entire %s input before translating.\n", s.Source)
	if s.Noisy {
		buf.WriteString("2. The input may contain spelling mistakes. Infer the intended words from context and translate the intended meaning.\n")
	} else {
		buf.WriteString("2. Preserve technical terms and the relationships between them.\n")
	}
	fmt.Fprintf(&buf, "3. Produce a single %s translation that keeps the original meaning and tone.\n\n", s.Target)

	fmt.Fprintf(&buf, "## Input Format\n\nPlain %s text, usually one sentence.\n\n", s.Source)
	fmt.Fprintf(&buf, "## Output Format\n\nOnly the %s translation. No explanations, quotes or code fences.\n\n", s.Target)
	buf.WriteString("## Edge Cases\n\n- Empty input: return an empty response.\n- Ambiguous words: choose the reading that fits the surrounding sentence.\n")
	if s.Noisy {
		buf.WriteString("- Heavily misspelled words: prefer the closest common word.\n")
	}
	buf.WriteString("\n## Examples\n\n")
	fmt.Fprintf(&buf, "Input (%s): a short sentence.\nOutput (%s): its translation, nothing else.\n\n", s.Source, s.Target)
	buf.WriteString("## Quality Criteria\n\n- Meaning is preserved.\n- Output is grammatical and fluent.\n- No content is added or dropped.\n\n")
	buf.WriteString("## Notes\n\nThe output of this skill is fed directly into the next stage.\n")

	return buf.Bytes(), nil
}

// Scaffold writes spec as <dir>/<name>/SKILL.md and returns the file path.
// An existing file is kept unless force is set.
func Scaffold(dir string, spec TranslatorSpec, force bool) (string, error) {
	path := filepath.Join(dir, spec.Name, skillFileName)

	if _, err := os.Stat(path); err == nil && !force {
		return path, atmerr.New(atmerr.KindFileOperation, "skill already exists", atmerr.Details{"path": path})
	}

	content, err := spec.Render()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", atmerr.Wrap(err, atmerr.KindFileOperation, "failed to create skill directory", atmerr.Details{"path": path})
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", atmerr.Wrap(err, atmerr.KindFileOperation, "failed to write skill file", atmerr.Details{"path": path})
	}
	return path, nil
}
