package perception

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

// manifestFrontmatter is the YAML block a PERCEPTION.md declares
// between leading "---" fences, mirroring the Skill Registry's
// SKILL.md contract.
type manifestFrontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	SubCategory string `yaml:"sub_category"`
	Version     string `yaml:"version"`
}

func parseFrontmatter(raw []byte) (manifestFrontmatter, error) {
	text := string(raw)
	const fence = "---"
	start := strings.Index(text, fence)
	if start == -1 {
		return manifestFrontmatter{}, agierr.New(agierr.KindValidation, "perception: PERCEPTION.md missing frontmatter fence")
	}
	rest := text[start+len(fence):]
	end := strings.Index(rest, fence)
	if end == -1 {
		return manifestFrontmatter{}, agierr.New(agierr.KindValidation, "perception: PERCEPTION.md frontmatter not closed")
	}
	var fm manifestFrontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return manifestFrontmatter{}, agierr.Wrap(agierr.KindValidation, "perception: parse PERCEPTION.md frontmatter", agierr.FromError(err))
	}
	return fm, nil
}

// manifestModule is a Module backed by a discovered directory: Perceive
// shells out to the entry point, passing the query as a single JSON
// document on stdin and expecting one back on stdout.
type manifestModule struct {
	meta       apitypes.PerceptionMetadata
	entryPoint string
}

func newManifestModule(dirName, dir, entryPoint string, manifestRaw []byte) (*manifestModule, error) {
	fm, err := parseFrontmatter(manifestRaw)
	if err != nil {
		return nil, err
	}
	name := fm.Name
	if name == "" {
		name = dirName
	}
	return &manifestModule{
		meta: apitypes.PerceptionMetadata{
			Name:        name,
			Description: fm.Description,
			Category:    fm.Category,
			SubCategory: fm.SubCategory,
			Version:     fm.Version,
			Type:        "perception",
			Enabled:     true,
		},
		entryPoint: entryPoint,
	}, nil
}

func (m *manifestModule) Metadata() apitypes.PerceptionMetadata { return m.meta }

func (m *manifestModule) Connect(ctx context.Context) error { return nil }

func (m *manifestModule) Disconnect(ctx context.Context) error { return nil }

func (m *manifestModule) Perceive(ctx context.Context, query string) (any, error) {
	payload, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "perception: marshal query", agierr.FromError(err))
	}
	cmd := exec.CommandContext(ctx, "sh", m.entryPoint)
	cmd.Stdin = bytes.NewReader(payload)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "perception: "+m.meta.Name+": "+stderr.String(), agierr.FromError(err))
	}
	if stdout.Len() == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, agierr.Wrap(agierr.KindExecution, "perception: "+m.meta.Name+": entry point did not return JSON", agierr.FromError(err))
	}
	return out, nil
}
