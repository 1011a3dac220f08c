// Package pipeline runs the translation chain: a noisy English sentence is
// passed through a fixed sequence of skill-driven translation stages, each
// stage's output feeding the next.
package pipeline

// InputFileName is the file holding the chain input of a noise level.
const InputFileName = "input.txt"

// Stage is one step of the translation chain
type Stage struct {
	Number     int
	Skill      string
	Source     string
	Target     string
	OutputFile string
}

// DefaultStages is the English to French to Hebrew to English round trip
var DefaultStages = []Stage{
	{Number: 1, Skill: "english-to-french-translator", Source: "English", Target: "French", OutputFile: "agent1_french.txt"},
	{Number: 2, Skill: "french-to-hebrew-translator", Source: "French", Target: "Hebrew", OutputFile: "agent2_hebrew.txt"},
	{Number: 3, Skill: "hebrew-to-english-translator", Source: "Hebrew", Target: "English", OutputFile: "agent3_english.txt"},
}

// FinalFile is the output file of the last stage
func FinalFile(stages []Stage) string {
	if len(stages) == 0 {
		return ""
	}
	return stages[len(stages)-1].OutputFile
}

// IntermediateFiles lists the output files of every stage but the last
func IntermediateFiles(stages []Stage) []string {
	if len(stages) == 0 {
		return nil
	}
	files := make([]string, 0, len(stages)-1)
	for _, s := range stages[:len(stages)-1] {
		files = append(files, s.OutputFile)
	}
	return files
}

// SkillNames lists the skill of every stage in chain order
func SkillNames(stages []Stage) []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Skill
	}
	return names
}
