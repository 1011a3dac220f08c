package skills

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/bmatcuk/doublestar/v4"
	"github.com/gobwas/glob"
	"github.com/pkg/errors"
)

const skillFileName = "SKILL.md"

// Discovery finds skills in a set of directories. Directory entries may be
// doublestar patterns such as "plugins/*/skills".
type Discovery struct {
	skillDirs []string
}

// Option is a function that configures a Discovery
type Option func(*Discovery) error

// WithSkillDirs sets the directories (or patterns) to search
func WithSkillDirs(dirs ...string) Option {
	return func(d *Discovery) error {
		for _, dir := range dirs {
			if !doublestar.ValidatePathPattern(dir) {
				return errors.Errorf("invalid skill directory pattern: %s", dir)
			}
		}
		d.skillDirs = dirs
		return nil
	}
}

// NewDiscovery creates a new skill discovery instance. Without options it
// searches ./skills.
func NewDiscovery(opts ...Option) (*Discovery, error) {
	d := &Discovery{skillDirs: []string{"./skills"}}
	for _, opt := range opts {
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Dirs returns the concrete directories after pattern expansion, in
// configuration order.
func (d *Discovery) Dirs() []string {
	var dirs []string
	seen := map[string]bool{}
	for _, pattern := range d.skillDirs {
		matches := []string{pattern}
		if hasMeta(pattern) {
			matches = dirsOnly(pattern)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				dirs = append(dirs, m)
			}
		}
	}
	return dirs
}

func hasMeta(pattern string) bool {
	for _, c := range pattern {
		switch c {
		case '*', '?', '[', '{':
			return true
		}
	}
	return false
}

func dirsOnly(pattern string) []string {
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, m := range matches {
		if info, err := os.Stat(m); err == nil && info.IsDir() {
			dirs = append(dirs, m)
		}
	}
	sort.Strings(dirs)
	return dirs
}

// DiscoverSkills finds all available skills. When two directories hold a skill
// with the same name the first one wins.
func (d *Discovery) DiscoverSkills() (map[string]*Skill, error) {
	skills := make(map[string]*Skill)
	for _, dir := range d.Dirs() {
		d.discoverSkillsFromDir(dir, skills)
	}
	return skills, nil
}

func (d *Discovery) discoverSkillsFromDir(dir string, skills map[string]*Skill) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}

	for _, entry := range entries {
		entryPath := filepath.Join(dir, entry.Name())

		info, err := os.Stat(entryPath)
		if err != nil || !info.IsDir() {
			continue
		}

		skill, err := loadSkill(filepath.Join(entryPath, skillFileName), entry.Name())
		if err != nil {
			continue
		}

		if _, exists := skills[skill.Name]; !exists {
			skill.Directory = entryPath
			skills[skill.Name] = skill
		}
	}
}

// Load returns the skill stored in the directory called name. Lookup is by
// directory, matching how the chain refers to its stages.
func (d *Discovery) Load(name string) (*Skill, error) {
	dirs := d.Dirs()
	if len(dirs) == 0 {
		dirs = d.skillDirs
	}

	var firstPath string
	for _, dir := range dirs {
		path := filepath.Join(dir, name, skillFileName)
		if firstPath == "" {
			firstPath = path
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		skill, err := loadSkill(path, name)
		if err != nil {
			return nil, atmerr.Wrap(err, atmerr.KindSkillNotFound, "cannot read skill file: "+name, atmerr.Details{"path": path})
		}
		skill.Directory = filepath.Dir(path)
		return skill, nil
	}

	return nil, atmerr.New(atmerr.KindSkillNotFound, "skill not found: "+name, atmerr.Details{"path": firstPath})
}

// ListSkillNames returns the sorted names of all available skills
func (d *Discovery) ListSkillNames() ([]string, error) {
	skills, err := d.DiscoverSkills()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(skills))
	for name := range skills {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func loadSkill(path, fallbackName string) (*Skill, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read skill file")
	}
	return Parse(content, fallbackName)
}

// FilterByAllowlist keeps the skills whose name matches any of the glob
// patterns. An empty allowlist keeps everything; invalid patterns are ignored.
func FilterByAllowlist(skills map[string]*Skill, patterns []string) map[string]*Skill {
	if len(patterns) == 0 {
		return skills
	}

	var globs []glob.Glob
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		globs = append(globs, g)
	}

	filtered := make(map[string]*Skill)
	for name, skill := range skills {
		for _, g := range globs {
			if g.Match(name) {
				filtered[name] = skill
				break
			}
		}
	}
	return filtered
}
