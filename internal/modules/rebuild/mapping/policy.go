package mapping

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/deckrebuild-backend/internal/pkg/logger"
)

const mappingPolicyEnv = "MAPPING_POLICY_YAML"

//go:embed mapping_policy.yaml
var mappingPolicyFS embed.FS

// Policy is the NO-GEN vocabulary plus the oracle prompts.
type Policy struct {
	Name               string   `yaml:"policy"`
	Version            int      `yaml:"version"`
	ForbiddenKeys      []string `yaml:"forbidden_keys"`
	ForbiddenFragments []string `yaml:"forbidden_fragments"`
	ForbiddenPrefixes  []string `yaml:"forbidden_prefixes"`
	PreviewChars       int      `yaml:"preview_chars"`
	SystemPrompt       string   `yaml:"system_prompt"`
	UserPrompt         string   `yaml:"user_prompt"`

	userTmpl *template.Template
}

// fallback vocabulary when the YAML cannot be loaded
var fallbackPolicy = Policy{
	Name:              "mapping_no_gen",
	Version:           1,
	ForbiddenKeys:     []string{"generated_text", "new_content", "modified_text", "ai_content", "llm_output"},
	ForbiddenPrefixes: []string{"ai_", "llm_"},
	PreviewChars:      50,
	SystemPrompt:      "Respond with one JSON mapping object only. Never write or alter content.",
	UserPrompt:        "SOURCE ELEMENTS:\n{{.Elements}}\n\nTEMPLATE PLACEHOLDERS:\n{{.Placeholders}}\n",
}

var (
	policyOnce  sync.Once
	policyCache *Policy
	policyErr   error
)

// CurrentPolicy returns the loaded policy, or the built-in fallback if loading failed.
func CurrentPolicy(log *logger.Logger) *Policy {
	policyOnce.Do(func() {
		policyCache, policyErr = loadPolicy()
	})
	if policyErr != nil {
		if log != nil {
			log.Warn("mapping: policy load failed; using fallback", "error", policyErr)
		}
		p := fallbackPolicy
		_ = p.compile()
		return &p
	}
	return policyCache
}

func loadPolicy() (*Policy, error) {
	data, err := readPolicy()
	if err != nil {
		return nil, err
	}
	return ParsePolicy(data)
}

func readPolicy() ([]byte, error) {
	if path := strings.TrimSpace(os.Getenv(mappingPolicyEnv)); path != "" {
		return os.ReadFile(path)
	}
	return mappingPolicyFS.ReadFile("mapping_policy.yaml")
}

// ParsePolicy decodes and validates a policy document.
func ParsePolicy(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	if strings.TrimSpace(p.Name) != "mapping_no_gen" {
		return nil, fmt.Errorf("unexpected policy: %q", p.Name)
	}
	if len(p.ForbiddenKeys) == 0 {
		return nil, errors.New("no forbidden keys defined")
	}
	if strings.TrimSpace(p.SystemPrompt) == "" || strings.TrimSpace(p.UserPrompt) == "" {
		return nil, errors.New("prompts are required")
	}
	if p.PreviewChars <= 0 || p.PreviewChars > 50 {
		p.PreviewChars = 50
	}
	for i := range p.ForbiddenKeys {
		p.ForbiddenKeys[i] = strings.ToLower(strings.TrimSpace(p.ForbiddenKeys[i]))
	}
	for i := range p.ForbiddenFragments {
		p.ForbiddenFragments[i] = strings.ToLower(strings.TrimSpace(p.ForbiddenFragments[i]))
	}
	for i := range p.ForbiddenPrefixes {
		p.ForbiddenPrefixes[i] = strings.ToLower(strings.TrimSpace(p.ForbiddenPrefixes[i]))
	}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Policy) compile() error {
	t, err := template.New("user_prompt").Option("missingkey=error").Parse(p.UserPrompt)
	if err != nil {
		return fmt.Errorf("user_prompt: %w", err)
	}
	p.userTmpl = t
	return nil
}

// Forbidden reports whether a JSON key implies generated or modified content.
func (p *Policy) Forbidden(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return false
	}
	for _, f := range p.ForbiddenKeys {
		if k == f {
			return true
		}
	}
	for _, f := range p.ForbiddenPrefixes {
		if f != "" && strings.HasPrefix(k, f) {
			return true
		}
	}
	for _, f := range p.ForbiddenFragments {
		if f != "" && strings.Contains(k, f) {
			return true
		}
	}
	return false
}
