// Package mapping owns the oracle contract: the prompt sent out and the
// staged validation of whatever comes back.
package mapping

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/yungbote/deckrebuild-backend/internal/domain/rebuild"
)

// Inputs are the extraction outputs a mapping is checked against.
type Inputs struct {
	Elements     []rebuild.DeckElement
	Placeholders []rebuild.TemplatePlaceholder
}

// Document carries one oracle response through the stages.
type Document struct {
	Raw    string
	Tree   any
	Result *rebuild.MappingResult
}

// Stage is one validation step. A stage may rely on fields set by earlier stages.
type Stage interface {
	Kind() rebuild.Kind
	Check(doc *Document, in Inputs) error
}

// Validator runs its stages in order and stops at the first failure.
type Validator struct {
	stages []Stage
}

func NewValidator(policy *Policy) *Validator {
	return &Validator{stages: []Stage{
		formatStage{},
		schemaStage{},
		referenceStage{},
		policyStage{policy: policy},
	}}
}

// Stages lists the stage kinds in execution order.
func (v *Validator) Stages() []rebuild.Kind {
	out := make([]rebuild.Kind, 0, len(v.stages))
	for _, s := range v.stages {
		out = append(out, s.Kind())
	}
	return out
}

func (v *Validator) Validate(raw string, in Inputs) (*rebuild.MappingResult, error) {
	doc := &Document{Raw: raw}
	for _, s := range v.stages {
		if err := s.Check(doc, in); err != nil {
			return nil, err
		}
	}
	return doc.Result, nil
}

type formatStage struct{}

func (formatStage) Kind() rebuild.Kind { return rebuild.KindFormat }

func (formatStage) Check(doc *Document, _ Inputs) error {
	text := strings.TrimSpace(doc.Raw)
	if text == "" {
		return &rebuild.MappingFormatError{Raw: doc.Raw, Err: errors.New("empty response")}
	}
	dec := json.NewDecoder(strings.NewReader(text))
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return &rebuild.MappingFormatError{Raw: doc.Raw, Err: err}
	}
	if _, err := dec.Token(); err != io.EOF {
		return &rebuild.MappingFormatError{Raw: doc.Raw, Err: errors.New("trailing data after JSON value")}
	}
	doc.Tree = tree
	return nil
}

type schemaStage struct{}

func (schemaStage) Kind() rebuild.Kind { return rebuild.KindSchema }

func (schemaStage) Check(doc *Document, _ Inputs) error {
	v := &schemaCheck{}
	v.result(doc.Tree)
	if len(v.violations) > 0 {
		return &rebuild.MappingSchemaError{Raw: doc.Raw, Violations: v.violations}
	}
	// Integral floats such as 0.0 passed the index checks; rewrite them so the
	// typed decode into int fields accepts them.
	data, err := json.Marshal(integralNumbers(doc.Tree))
	if err != nil {
		return &rebuild.MappingSchemaError{Raw: doc.Raw, Violations: []string{err.Error()}}
	}
	var out rebuild.MappingResult
	if err := json.Unmarshal(data, &out); err != nil {
		return &rebuild.MappingSchemaError{Raw: doc.Raw, Violations: []string{err.Error()}}
	}
	if out.SkippedElements == nil {
		out.SkippedElements = []string{}
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	doc.Result = &out
	return nil
}

type schemaCheck struct {
	violations []string
	mapped     map[string]string
}

func (c *schemaCheck) fail(path, format string, args ...any) {
	c.violations = append(c.violations, path+": "+fmt.Sprintf(format, args...))
}

func (c *schemaCheck) result(tree any) {
	root, ok := tree.(map[string]any)
	if !ok {
		c.fail("$", "must be an object")
		return
	}
	c.mapped = map[string]string{}
	slides, ok := root["slide_mappings"].([]any)
	switch {
	case !ok:
		c.fail("slide_mappings", "must be an array")
	case len(slides) == 0:
		c.fail("slide_mappings", "must not be empty")
	}
	for i, s := range slides {
		c.slide(fmt.Sprintf("slide_mappings[%d]", i), s)
	}
	c.stringList("skipped_elements", root["skipped_elements"], -1)
	c.stringList("warnings", root["warnings"], rebuild.MaxWarnings)
}

func (c *schemaCheck) slide(path string, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		c.fail(path, "must be an object")
		return
	}
	c.index(path+".output_slide_index", m["output_slide_index"], true)
	c.index(path+".layout_index", m["layout_index"], true)
	if _, ok := m["layout_name"].(string); !ok {
		c.fail(path+".layout_name", "must be a string")
	}
	ems, ok := m["element_mappings"].([]any)
	if !ok {
		c.fail(path+".element_mappings", "must be an array")
		return
	}
	for j, em := range ems {
		c.element(fmt.Sprintf("%s.element_mappings[%d]", path, j), em)
	}
}

func (c *schemaCheck) element(path string, v any) {
	m, ok := v.(map[string]any)
	if !ok {
		c.fail(path, "must be an object")
		return
	}
	src, ok := m["source_element_id"].(string)
	if !ok || strings.TrimSpace(src) == "" {
		c.fail(path+".source_element_id", "must be a non-empty string")
	}
	rawAction, _ := m["action"].(string)
	action := rebuild.MappingAction(rawAction)
	if !action.Valid() {
		c.fail(path+".action", "must be one of MAP, SKIP, OVERFLOW")
	}
	target, present := m["target_placeholder_id"]
	if target == nil {
		present = false
	}
	switch action {
	case rebuild.ActionMap:
		if s, ok := target.(string); !present || !ok || strings.TrimSpace(s) == "" {
			c.fail(path+".target_placeholder_id", "required when action is MAP")
		}
		if src != "" {
			if first, dup := c.mapped[src]; dup {
				c.fail(path+".source_element_id", "duplicate source element mapping: %s (first mapped at %s)", src, first)
			} else {
				c.mapped[src] = path
			}
		}
	case rebuild.ActionSkip, rebuild.ActionOverflow:
		if present {
			c.fail(path+".target_placeholder_id", "must be null when action is %s", action)
		}
	}
	c.index(path+".target_layout_index", m["target_layout_index"], false)
	c.index(path+".target_slide_index", m["target_slide_index"], false)
	if r, ok := m["reason"]; ok && r != nil {
		s, isStr := r.(string)
		switch {
		case !isStr:
			c.fail(path+".reason", "must be a string")
		case len([]rune(s)) > rebuild.MaxReasonLen:
			c.fail(path+".reason", "longer than %d characters", rebuild.MaxReasonLen)
		}
	}
}

func (c *schemaCheck) index(path string, v any, required bool) {
	if v == nil {
		if required {
			c.fail(path, "required")
		}
		return
	}
	n, ok := v.(json.Number)
	if !ok {
		c.fail(path, "must be an integer")
		return
	}
	i, ok := integral(n)
	if !ok || i > math.MaxInt32 || i < math.MinInt32 {
		c.fail(path, "must be an integer")
		return
	}
	if i < 0 {
		c.fail(path, "must be >= 0")
	}
}

// integral reports n as an int64 when it has no fractional part, so 3 and
// 3.0 both pass while 3.5 does not.
func integral(n json.Number) (int64, bool) {
	if i, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return i, true
	}
	f, err := strconv.ParseFloat(n.String(), 64)
	if err != nil || f != math.Trunc(f) || math.Abs(f) > 1<<53 {
		return 0, false
	}
	return int64(f), true
}

// integralNumbers rewrites integral json.Number values in place to their
// integer form.
func integralNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, ok := integral(t); ok {
			return json.Number(strconv.FormatInt(i, 10))
		}
		return t
	case map[string]any:
		for k, child := range t {
			t[k] = integralNumbers(child)
		}
		return t
	case []any:
		for i, child := range t {
			t[i] = integralNumbers(child)
		}
		return t
	default:
		return v
	}
}

func (c *schemaCheck) stringList(path string, v any, max int) {
	if v == nil {
		return
	}
	list, ok := v.([]any)
	if !ok {
		c.fail(path, "must be an array of strings")
		return
	}
	if max >= 0 && len(list) > max {
		c.fail(path, "at most %d entries allowed", max)
	}
	for i, item := range list {
		if _, ok := item.(string); !ok {
			c.fail(fmt.Sprintf("%s[%d]", path, i), "must be a string")
		}
	}
}

type referenceStage struct{}

func (referenceStage) Kind() rebuild.Kind { return rebuild.KindReference }

func (referenceStage) Check(doc *Document, in Inputs) error {
	if problems := CheckReferences(doc.Result, in); len(problems) > 0 {
		return &rebuild.MappingReferenceError{Raw: doc.Raw, Violations: problems}
	}
	return nil
}

// CheckReferences returns every id in result that does not occur in the
// extraction outputs, in document order.
func CheckReferences(result *rebuild.MappingResult, in Inputs) []string {
	elements := make(map[string]struct{}, len(in.Elements))
	for _, e := range in.Elements {
		elements[e.ElementID] = struct{}{}
	}
	placeholders := make(map[string]struct{}, len(in.Placeholders))
	for _, p := range in.Placeholders {
		placeholders[p.PlaceholderID] = struct{}{}
	}
	var problems []string
	for _, sm := range result.SlideMappings {
		for _, em := range sm.ElementMappings {
			if _, ok := elements[em.SourceElementID]; !ok {
				problems = append(problems, "Unknown source element: "+em.SourceElementID)
			}
			if em.Action == rebuild.ActionMap && em.TargetPlaceholderID != nil {
				if _, ok := placeholders[*em.TargetPlaceholderID]; !ok {
					problems = append(problems, "Unknown target placeholder: "+*em.TargetPlaceholderID)
				}
			}
		}
	}
	for _, id := range result.SkippedElements {
		if _, ok := elements[id]; !ok {
			problems = append(problems, "Unknown skipped element: "+id)
		}
	}
	return problems
}

type policyStage struct {
	policy *Policy
}

func (policyStage) Kind() rebuild.Kind { return rebuild.KindPolicy }

func (s policyStage) Check(doc *Document, _ Inputs) error {
	if problems := s.policy.Scan(doc.Tree); len(problems) > 0 {
		return &rebuild.MappingPolicyError{Raw: doc.Raw, Violations: problems}
	}
	return nil
}

// Scan walks a decoded JSON tree at any depth and reports every forbidden key.
func (p *Policy) Scan(tree any) []string {
	var problems []string
	var walk func(path string, v any)
	walk = func(path string, v any) {
		switch t := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				child := k
				if path != "" {
					child = path + "." + k
				}
				if p.Forbidden(k) {
					problems = append(problems, "Forbidden field found: "+child)
				}
				walk(child, t[k])
			}
		case []any:
			for i, item := range t {
				walk(fmt.Sprintf("%s[%d]", path, i), item)
			}
		}
	}
	walk("", tree)
	return problems
}
