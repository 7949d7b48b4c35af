package extract

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Veraticus/parcel/internal/model"
)

// PatternType says what a pattern detects.
type PatternType string

const (
	// PatternTypeAction detects the verb of the request.
	PatternTypeAction PatternType = "action"
	// PatternTypeEntity detects the record type.
	PatternTypeEntity PatternType = "entity"
	// PatternTypeField pulls field values out of capture groups.
	PatternTypeField PatternType = "field"
)

// Pattern is one extraction rule. Field patterns map capture group i+1 to
// Fields[i] and only run for the listed Entities (all entities when empty).
type Pattern struct {
	Name          string
	Type          PatternType
	Action        model.Action
	Entity        model.Entity
	Regex         string
	Fields        []string
	Entities      []model.Entity
	Priority      int // Higher priority patterns are checked first
	CaseSensitive bool
}

type compiledPattern struct {
	re *regexp.Regexp
	Pattern
}

func (p compiledPattern) appliesTo(e model.Entity) bool {
	if len(p.Entities) == 0 {
		return true
	}
	for _, allowed := range p.Entities {
		if allowed == e {
			return true
		}
	}
	return false
}

// PatternExtractor is the deterministic extractor. It never calls out and
// always returns promptly.
type PatternExtractor struct {
	actions    []compiledPattern
	entities   []compiledPattern
	fields     []compiledPattern
	confidence float64
	mu         sync.RWMutex
}

// NewPatternExtractor compiles patterns. Candidates carry the given fixed
// confidence.
func NewPatternExtractor(patterns []Pattern, confidence float64) (*PatternExtractor, error) {
	pe := &PatternExtractor{confidence: confidence}
	if err := pe.UpdatePatterns(patterns); err != nil {
		return nil, err
	}
	return pe, nil
}

// UpdatePatterns replaces the rule set.
func (pe *PatternExtractor) UpdatePatterns(patterns []Pattern) error {
	var actions, entities, fields []compiledPattern

	for _, p := range patterns {
		regexStr := p.Regex
		if !p.CaseSensitive && !strings.HasPrefix(regexStr, "(?i)") {
			regexStr = "(?i)" + regexStr
		}

		re, err := regexp.Compile(regexStr)
		if err != nil {
			return fmt.Errorf("failed to compile pattern %s: %w", p.Name, err)
		}
		if p.Type == PatternTypeField && re.NumSubexp() < len(p.Fields) {
			return fmt.Errorf("pattern %s has %d groups for %d fields", p.Name, re.NumSubexp(), len(p.Fields))
		}

		cp := compiledPattern{Pattern: p, re: re}
		switch p.Type {
		case PatternTypeAction:
			actions = append(actions, cp)
		case PatternTypeEntity:
			entities = append(entities, cp)
		case PatternTypeField:
			fields = append(fields, cp)
		default:
			return fmt.Errorf("pattern %s has unknown type %q", p.Name, p.Type)
		}
	}

	for _, list := range [][]compiledPattern{actions, entities, fields} {
		sort.SliceStable(list, func(i, j int) bool { return list[i].Priority > list[j].Priority })
	}

	pe.mu.Lock()
	pe.actions, pe.entities, pe.fields = actions, entities, fields
	pe.mu.Unlock()
	return nil
}

// PatternCount returns the number of loaded patterns.
func (pe *PatternExtractor) PatternCount() int {
	pe.mu.RLock()
	defer pe.mu.RUnlock()
	return len(pe.actions) + len(pe.entities) + len(pe.fields)
}

// Extract implements Extractor. History is ignored.
func (pe *PatternExtractor) Extract(ctx context.Context, in model.RawInput, _ []model.Exchange) (model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return model.Candidate{}, err
	}
	return pe.Detect(in.Text), nil
}

// Detect runs every rule against text. When neither an action nor an entity
// can be determined the candidate has an empty Kind.
func (pe *PatternExtractor) Detect(text string) model.Candidate {
	pe.mu.RLock()
	defer pe.mu.RUnlock()

	cand := model.Candidate{Path: model.PathPattern, Confidence: pe.confidence}

	action, _ := earliest(pe.actions, text, func(p compiledPattern) string { return string(p.Action) })
	entity, _ := earliest(pe.entities, text, func(p compiledPattern) string { return string(p.Entity) })

	var params model.Params
	if entity != "" {
		params = pe.extractFields(text, model.Entity(entity))
	} else {
		entity, params = pe.inferEntity(text)
	}
	if entity == "" {
		return cand
	}

	if action == "" {
		action = string(model.ActionCreate)
		if len(params.Present()) == 0 && params.Target != "" {
			action = string(model.ActionFind)
		}
	}

	kind := model.NewOperationKind(model.Action(action), model.Entity(entity))
	if kind.Action() == model.ActionUpdate {
		promoteNaturalKey(&params)
	}

	cand.Kind = kind
	cand.Params = params
	return cand
}

// earliest returns the label of the pattern whose first match starts earliest
// in text; ties go to the higher priority pattern.
func earliest(patterns []compiledPattern, text string, label func(compiledPattern) string) (string, int) {
	best, bestPos := "", -1
	for _, p := range patterns {
		loc := p.re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		if bestPos == -1 || loc[0] < bestPos {
			best, bestPos = label(p), loc[0]
		}
	}
	return best, bestPos
}

type span struct{ start, end int }

func overlaps(used []span, start, end int) bool {
	for _, u := range used {
		if start < u.end && u.start < end {
			return true
		}
	}
	return false
}

func (pe *PatternExtractor) extractFields(text string, entity model.Entity) model.Params {
	params := model.NewParams(entity)
	var used []span

	for _, p := range pe.fields {
		if !p.appliesTo(entity) || allSet(params, p.Fields) {
			continue
		}
		for _, m := range p.re.FindAllStringSubmatchIndex(text, -1) {
			if overlaps(used, m[0], m[1]) {
				continue
			}
			assigned := false
			for i, field := range p.Fields {
				s, e := m[2*(i+1)], m[2*(i+1)+1]
				if s < 0 || params.Get(field) != "" {
					continue
				}
				value := strings.TrimRight(strings.TrimSpace(text[s:e]), ".,;:")
				if value == "" {
					continue
				}
				if err := params.Set(field, value); err == nil {
					assigned = true
				}
			}
			if assigned {
				used = append(used, span{m[0], m[1]})
				break
			}
		}
	}
	return params
}

func allSet(params model.Params, fields []string) bool {
	for _, f := range fields {
		if params.Get(f) == "" {
			return false
		}
	}
	return true
}

// inferEntity guesses the record type from which fields the text carries
// when no entity keyword appears.
func (pe *PatternExtractor) inferEntity(text string) (string, model.Params) {
	client := pe.extractFields(text, model.EntityClient)
	property := pe.extractFields(text, model.EntityProperty)

	hasContact := client.Get(model.FieldEmail) != "" || client.Get(model.FieldPhone) != ""
	hasAddress := property.Get(model.FieldAddress) != ""

	switch {
	case hasAddress && hasContact:
		return string(model.EntityTransaction), pe.extractFields(text, model.EntityTransaction)
	case hasAddress:
		return string(model.EntityProperty), property
	case hasContact || client.Get(model.FieldFirstName) != "":
		return string(model.EntityClient), client
	case client.Target != "":
		return string(model.EntityClient), client
	}
	return "", model.Params{}
}

// naturalKeys lists the field used to identify an existing record.
var naturalKeys = map[model.Entity][]string{
	model.EntityClient:      {model.FieldEmail, model.FieldPhone},
	model.EntityProperty:    {model.FieldAddress},
	model.EntityTransaction: {model.FieldPropertyAddress},
}

// promoteNaturalKey moves the natural key into Target for updates that name
// no record id, provided another field remains to change.
func promoteNaturalKey(params *model.Params) {
	if params.Target != "" || len(params.Present()) < 2 {
		return
	}
	for _, key := range naturalKeys[params.Entity()] {
		if v := params.Get(key); v != "" {
			params.Target = v
			_ = params.Set(key, "")
			return
		}
	}
}
