// Package skills loads the agent skills that drive each stage of the
// translation chain. A skill is a directory holding a SKILL.md file: optional
// YAML frontmatter followed by markdown whose H2 headings (Description,
// Instructions, Input Format, Output Format, Edge Cases, Examples, Quality
// Criteria, Notes) become addressable sections.
package skills

import (
	"fmt"
	"strings"
)

// Standard section keys of a SKILL.md file
const (
	SectionDescription     = "description"
	SectionInstructions    = "instructions"
	SectionInputFormat     = "input_format"
	SectionOutputFormat    = "output_format"
	SectionEdgeCases       = "edge_cases"
	SectionExamples        = "examples"
	SectionQualityCriteria = "quality_criteria"
	SectionNotes           = "notes"
)

// StandardSections lists the section keys in the order a scaffold writes them
var StandardSections = []string{
	SectionDescription,
	SectionInstructions,
	SectionInputFormat,
	SectionOutputFormat,
	SectionEdgeCases,
	SectionExamples,
	SectionQualityCriteria,
	SectionNotes,
}

// Skill represents a discovered skill
type Skill struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Directory   string            `json:"directory"`
	Content     string            `json:"-"` // SKILL.md body without frontmatter
	Raw         string            `json:"-"` // SKILL.md as read from disk
	Sections    map[string]string `json:"sections,omitempty"`
}

// Section returns the raw markdown under the given H2 heading
func (s *Skill) Section(key string) (string, bool) {
	v, ok := s.Sections[key]
	return v, ok
}

// MissingSections reports which standard sections the skill lacks
func (s *Skill) MissingSections() []string {
	var missing []string
	for _, key := range StandardSections {
		if _, ok := s.Sections[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// Metadata represents the YAML frontmatter in SKILL.md files
type Metadata struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

// BuildPrompt renders the single-turn prompt that asks a model to apply the
// skill to input. The skill is introduced by name, the directory the chain
// refers to it by, followed by the whole SKILL.md file.
func BuildPrompt(name string, skill *Skill, input string) string {
	content := skill.Raw
	if content == "" {
		content = skill.Content
	}
	return fmt.Sprintf(`You are using the "%s" skill.

%s

---

Please translate the following text according to the skill instructions above.
Return ONLY the translation, with no explanations or additional text.

Input text:
%s`, name, content, input)
}

// SectionKey normalises a heading into a section key
func SectionKey(heading string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(heading)), " ", "_")
}
