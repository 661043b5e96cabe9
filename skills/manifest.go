package skills

import (
	"bytes"
	"context"
	"encoding/json"
	"os/exec"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kanephamphu/connex-agi/agierr"
	"github.com/kanephamphu/connex-agi/apitypes"
)

// manifestFrontmatter is the YAML block a SKILL.md declares between
// leading "---" fences, describing a directory-discovered skill's
// contract.
type manifestFrontmatter struct {
	Name         string         `yaml:"name"`
	Description  string         `yaml:"description"`
	Category     string         `yaml:"category"`
	SubCategory  string         `yaml:"sub_category"`
	InputSchema  map[string]any `yaml:"input_schema"`
	OutputSchema map[string]any `yaml:"output_schema"`
	Version      string         `yaml:"version"`
}

func parseFrontmatter(raw []byte) (manifestFrontmatter, error) {
	text := string(raw)
	const fence = "---"
	start := strings.Index(text, fence)
	if start == -1 {
		return manifestFrontmatter{}, agierr.New(agierr.KindValidation, "skills: SKILL.md missing frontmatter fence")
	}
	rest := text[start+len(fence):]
	end := strings.Index(rest, fence)
	if end == -1 {
		return manifestFrontmatter{}, agierr.New(agierr.KindValidation, "skills: SKILL.md frontmatter not closed")
	}
	var fm manifestFrontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return manifestFrontmatter{}, agierr.Wrap(agierr.KindValidation, "skills: parse SKILL.md frontmatter", agierr.FromError(err))
	}
	return fm, nil
}

// manifestSkill is a Skill backed by a discovered directory: its
// Execute shells out to the entry point, passing inputs as a JSON
// document on stdin and expecting a JSON document on stdout.
type manifestSkill struct {
	meta       apitypes.SkillMetadata
	entryPoint string
}

func newManifestSkill(dirName, dir, entryPoint string, manifestRaw []byte) (*manifestSkill, error) {
	fm, err := parseFrontmatter(manifestRaw)
	if err != nil {
		return nil, err
	}
	name := fm.Name
	if name == "" {
		name = dirName
	}
	return &manifestSkill{
		meta: apitypes.SkillMetadata{
			Name:         name,
			Description:  fm.Description,
			Category:     fm.Category,
			SubCategory:  fm.SubCategory,
			InputSchema:  fm.InputSchema,
			OutputSchema: fm.OutputSchema,
			Version:      fm.Version,
		},
		entryPoint: entryPoint,
	}, nil
}

func (s *manifestSkill) Metadata() apitypes.SkillMetadata { return s.meta }

func (s *manifestSkill) ValidateInputs(inputs map[string]any) error {
	return nil
}

func (s *manifestSkill) CheckConfig() error { return nil }

func (s *manifestSkill) Execute(ctx context.Context, inputs map[string]any) (map[string]any, error) {
	payload, err := json.Marshal(inputs)
	if err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "skills: marshal inputs", agierr.FromError(err))
	}
	cmd := exec.CommandContext(ctx, "sh", s.entryPoint)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "skills: "+s.meta.Name+": "+stderr.String(), agierr.FromError(err))
	}
	var out map[string]any
	if stdout.Len() == 0 {
		return map[string]any{}, nil
	}
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "skills: "+s.meta.Name+": entry point did not return JSON", agierr.FromError(err))
	}
	return out, nil
}
