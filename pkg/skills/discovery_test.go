package skills

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSkill(t *testing.T, dir, name, content string) string {
	t.Helper()
	skillDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(skillDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(skillDir, "SKILL.md"), []byte(content), 0o644))
	return skillDir
}

const frenchSkill = `---
name: english-to-french-translator
description: Translates English into French
---

# English to French

## Instructions
Translate the text.

## Output Format
Only French.
`

const bareSkill = `# Hebrew to English

## Description

Turns Hebrew
into English.

## Notes
Nothing else.
`

func TestNewDiscovery(t *testing.T) {
	t.Run("default dir", func(t *testing.T) {
		d, err := NewDiscovery()
		require.NoError(t, err)
		assert.Equal(t, []string{"./skills"}, d.skillDirs)
	})

	t.Run("custom dirs", func(t *testing.T) {
		d, err := NewDiscovery(WithSkillDirs("/tmp/a", "/tmp/b"))
		require.NoError(t, err)
		assert.Equal(t, []string{"/tmp/a", "/tmp/b"}, d.skillDirs)
	})

	t.Run("invalid pattern", func(t *testing.T) {
		_, err := NewDiscovery(WithSkillDirs("/tmp/[a"))
		assert.Error(t, err)
	})
}

func TestDiscoverSkills(t *testing.T) {
	tmpDir := t.TempDir()
	frenchDir := writeSkill(t, tmpDir, "english-to-french-translator", frenchSkill)
	writeSkill(t, tmpDir, "hebrew-to-english-translator", bareSkill)
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "README.md"), []byte("ignored"), 0o644))

	d, err := NewDiscovery(WithSkillDirs(tmpDir))
	require.NoError(t, err)

	skills, err := d.DiscoverSkills()
	require.NoError(t, err)
	require.Len(t, skills, 2)

	french := skills["english-to-french-translator"]
	require.NotNil(t, french)
	assert.Equal(t, "Translates English into French", french.Description)
	assert.Equal(t, frenchDir, french.Directory)
	assert.NotContains(t, french.Content, "description:")
	assert.Equal(t, "Translate the text.", french.Sections[SectionInstructions])
	assert.Equal(t, "Only French.", french.Sections[SectionOutputFormat])

	hebrew := skills["hebrew-to-english-translator"]
	require.NotNil(t, hebrew)
	assert.Equal(t, "Turns Hebrew into English.", hebrew.Description)
	assert.Equal(t, "Nothing else.", hebrew.Sections[SectionNotes])
}

func TestDiscoverSkills_FirstDirWins(t *testing.T) {
	first := t.TempDir()
	second := t.TempDir()
	writeSkill(t, first, "english-to-french-translator", frenchSkill)
	writeSkill(t, second, "english-to-french-translator", frenchSkill)

	d, err := NewDiscovery(WithSkillDirs(first, second))
	require.NoError(t, err)

	skills, err := d.DiscoverSkills()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(first, "english-to-french-translator"), skills["english-to-french-translator"].Directory)
}

func TestDiscoverSkills_GlobDirs(t *testing.T) {
	root := t.TempDir()
	writeSkill(t, filepath.Join(root, "plugins", "lang", "skills"), "english-to-french-translator", frenchSkill)
	writeSkill(t, filepath.Join(root, "plugins", "other", "skills"), "hebrew-to-english-translator", bareSkill)

	d, err := NewDiscovery(WithSkillDirs(filepath.Join(root, "plugins", "*", "skills")))
	require.NoError(t, err)

	names, err := d.ListSkillNames()
	require.NoError(t, err)
	assert.Equal(t, []string{"english-to-french-translator", "hebrew-to-english-translator"}, names)
}

func TestLoad(t *testing.T) {
	tmpDir := t.TempDir()
	writeSkill(t, tmpDir, "english-to-french-translator", frenchSkill)

	d, err := NewDiscovery(WithSkillDirs(tmpDir))
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		skill, err := d.Load("english-to-french-translator")
		require.NoError(t, err)
		assert.Equal(t, "english-to-french-translator", skill.Name)
	})

	t.Run("missing", func(t *testing.T) {
		_, err := d.Load("french-to-hebrew-translator")
		require.Error(t, err)
		assert.True(t, errors.Is(err, atmerr.ErrSkillNotFound))
		assert.Equal(t, filepath.Join(tmpDir, "french-to-hebrew-translator", "SKILL.md"), atmerr.DetailsOf(err)["path"])
	})
}

func TestFilterByAllowlist(t *testing.T) {
	skills := map[string]*Skill{
		"english-to-french-translator": {Name: "english-to-french-translator"},
		"french-to-hebrew-translator":  {Name: "french-to-hebrew-translator"},
		"summarizer":                   {Name: "summarizer"},
	}

	tests := []struct {
		name     string
		patterns []string
		expected []string
	}{
		{"empty keeps all", nil, []string{"english-to-french-translator", "french-to-hebrew-translator", "summarizer"}},
		{"exact name", []string{"summarizer"}, []string{"summarizer"}},
		{"glob", []string{"*-translator"}, []string{"english-to-french-translator", "french-to-hebrew-translator"}},
		{"no match", []string{"nothing*"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			filtered := FilterByAllowlist(skills, tt.patterns)
			var names []string
			for name := range filtered {
				names = append(names, name)
			}
			assert.ElementsMatch(t, tt.expected, names)
		})
	}
}
