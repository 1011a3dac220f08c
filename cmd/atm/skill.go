package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/agentic-turing/atm/pkg/atmerr"
	"github.com/agentic-turing/atm/pkg/config"
	"github.com/agentic-turing/atm/pkg/presenter"
	"github.com/agentic-turing/atm/pkg/skills"
)

// SkillInitConfig holds the options of `atm skill init`
type SkillInitConfig struct {
	Dir   string
	Force bool
}

// NewSkillInitConfig creates a SkillInitConfig with default values
func NewSkillInitConfig() *SkillInitConfig {
	return &SkillInitConfig{}
}

func newSkillCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "skill",
		Short: "Manage translation skills",
		Long:  `List, inspect and scaffold the SKILL.md files that drive the translation agents.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
	cmd.AddCommand(newSkillListCmd(), newSkillShowCmd(), newSkillInitCmd())
	return cmd
}

func newSkillListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the available skills",
		Long:  `List every skill found in the skill directories that the allowlist permits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			return listSkills(cfg, cmd.OutOrStdout())
		},
	}
}

func newSkillShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <name>",
		Short: "Show a skill and its sections",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			return showSkill(cfg, args[0], cmd.OutOrStdout())
		},
	}
}

func newSkillInitCmd() *cobra.Command {
	defaults := NewSkillInitConfig()
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Scaffold the default translator skills",
		Long: `Write the english-to-french, french-to-hebrew and hebrew-to-english translator
skills. Existing skills are left untouched unless --force is given.

Examples:
  atm skill init
  atm skill init --dir ./my-skills --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			return initSkills(getSkillInitConfigFromFlags(cmd, cfg))
		},
	}
	cmd.Flags().String("dir", defaults.Dir, "Directory to write the skills to (default: the skills directory)")
	cmd.Flags().Bool("force", defaults.Force, "Overwrite existing skills")
	return cmd
}

func getSkillInitConfigFromFlags(cmd *cobra.Command, cfg *config.Config) *SkillInitConfig {
	sc := NewSkillInitConfig()
	sc.Dir = cfg.Paths.Skills
	if dir, err := cmd.Flags().GetString("dir"); err == nil && dir != "" {
		sc.Dir = dir
	}
	if force, err := cmd.Flags().GetBool("force"); err == nil {
		sc.Force = force
	}
	return sc
}

func newDiscovery(cfg *config.Config) (*skills.Discovery, error) {
	discovery, err := skills.NewDiscovery(skills.WithSkillDirs(cfg.Skills.Dirs...))
	if err != nil {
		return nil, atmerr.Wrap(err, atmerr.KindConfiguration, "invalid skill directories", atmerr.Details{"dirs": cfg.Skills.Dirs})
	}
	return discovery, nil
}

func listSkills(cfg *config.Config, out io.Writer) error {
	discovery, err := newDiscovery(cfg)
	if err != nil {
		return err
	}
	found, err := discovery.DiscoverSkills()
	if err != nil {
		return err
	}
	found = skills.FilterByAllowlist(found, cfg.Skills.Allowed)

	if len(found) == 0 {
		presenter.Info("No skills found. Run `atm skill init` to create the default translators.")
		return nil
	}

	names := make([]string, 0, len(found))
	for name := range found {
		names = append(names, name)
	}
	sort.Strings(names)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tDESCRIPTION\tDIRECTORY")
	for _, name := range names {
		s := found[name]
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name, s.Description, s.Directory)
	}
	return w.Flush()
}

func showSkill(cfg *config.Config, name string, out io.Writer) error {
	discovery, err := newDiscovery(cfg)
	if err != nil {
		return err
	}
	skill, err := discovery.Load(name)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Name:        %s\n", skill.Name)
	fmt.Fprintf(out, "Description: %s\n", skill.Description)
	fmt.Fprintf(out, "Directory:   %s\n\n", skill.Directory)
	fmt.Fprintln(out, strings.TrimSpace(skill.Content))

	if missing := skill.MissingSections(); len(missing) > 0 {
		presenter.Warning("skill is missing sections: " + strings.Join(missing, ", "))
	}
	return nil
}

func initSkills(sc *SkillInitConfig) error {
	written := 0
	for _, spec := range skills.DefaultTranslators() {
		path, err := skills.Scaffold(sc.Dir, spec, sc.Force)
		if err != nil {
			if atmerr.KindOf(err) == atmerr.KindFileOperation && path != "" {
				presenter.Warning(fmt.Sprintf("%s already exists, skipping (use --force to overwrite)", path))
				continue
			}
			return err
		}
		written++
		presenter.Success("Created " + path)
	}
	presenter.Info(fmt.Sprintf("%d skill(s) written to %s", written, sc.Dir))
	return nil
}
