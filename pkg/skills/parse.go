package skills

import (
	"bytes"
	"strings"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	meta "github.com/yuin/goldmark-meta"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(meta.Meta))

// Parse builds a Skill from the content of a SKILL.md file. Frontmatter is
// optional: the name falls back to fallbackName and the description to the
// first paragraph of the Description section.
func Parse(content []byte, fallbackName string) (*Skill, error) {
	pctx := parser.NewContext()
	doc := markdown.Parser().Parse(text.NewReader(content), parser.WithContext(pctx))

	metaData, err := meta.TryGet(pctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse frontmatter")
	}

	name, _ := metaData["name"].(string)
	description, _ := metaData["description"].(string)

	body := extractBodyContent(string(content))
	sections := extractSections(doc, content)

	if name == "" {
		name = fallbackName
	}
	if name == "" {
		return nil, errors.New("skill name is required")
	}
	if description == "" {
		description = firstParagraph(sections[SectionDescription])
	}

	return &Skill{
		Name:        name,
		Description: description,
		Content:     body,
		Raw:         string(content),
		Sections:    sections,
	}, nil
}

// extractSections maps every H2 heading to the raw markdown beneath it, up to
// the next H2 or the end of the document.
func extractSections(doc ast.Node, source []byte) map[string]string {
	type mark struct {
		key       string
		lineStart int
		bodyStart int
	}

	var marks []mark
	for n := doc.FirstChild(); n != nil; n = n.NextSibling() {
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Level != 2 || heading.Lines().Len() == 0 {
			continue
		}
		seg := heading.Lines().At(0)
		title := string(seg.Value(source))
		marks = append(marks, mark{
			key:       SectionKey(title),
			lineStart: lineStart(source, seg.Start),
			bodyStart: lineEnd(source, seg.Stop),
		})
	}

	sections := make(map[string]string, len(marks))
	for i, m := range marks {
		end := len(source)
		if i+1 < len(marks) {
			end = marks[i+1].lineStart
		}
		if m.bodyStart > end {
			m.bodyStart = end
		}
		sections[m.key] = strings.TrimSpace(string(source[m.bodyStart:end]))
	}
	return sections
}

func lineStart(source []byte, pos int) int {
	if i := bytes.LastIndexByte(source[:pos], '\n'); i >= 0 {
		return i + 1
	}
	return 0
}

func lineEnd(source []byte, pos int) int {
	if pos >= len(source) {
		return len(source)
	}
	if i := bytes.IndexByte(source[pos:], '\n'); i >= 0 {
		return pos + i + 1
	}
	return len(source)
}

func firstParagraph(section string) string {
	for _, para := range strings.Split(section, "\n\n") {
		if p := strings.TrimSpace(para); p != "" {
			return strings.Join(strings.Fields(p), " ")
		}
	}
	return ""
}

// extractBodyContent removes YAML frontmatter and returns the body
func extractBodyContent(content string) string {
	if !strings.HasPrefix(content, "---") {
		return content
	}

	lines := strings.Split(content, "\n")
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "---" {
			return strings.TrimLeft(strings.Join(lines[i+1:], "\n"), "\n")
		}
	}
	return content
}
