package service

import (
	"sort"
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"

	"github.com/unclebandit/reviewleopard-backend/internal/config"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

// Score weights.
const (
	keywordWeight     = 2
	serviceTypeWeight = 1
	triggerWeight     = 1
)

// Matcher picks the template that fits a trigger event best. Eligibility is one of
// the config.Eligibility policies.
type Matcher struct {
	Eligibility string
}

// Candidate is a template with the score it earned against one event.
type Candidate struct {
	Template *model.AutomationTemplate
	Score    int
	Matched  []string
}

// Match returns the winning template for ev among templates, or nil when none applies.
// The result depends only on its inputs.
func (m *Matcher) Match(templates []*model.AutomationTemplate, ev model.TriggerEvent) *model.AutomationTemplate {
	ranked := m.Rank(templates, ev)
	if len(ranked) > 0 && ranked[0].Score > 0 {
		return ranked[0].Template
	}
	for _, c := range ranked {
		if c.Template.IsFallback {
			return c.Template
		}
	}
	return nil
}

// Rank scores every eligible template and orders them best first: score, then most
// recently updated, then id.
func (m *Matcher) Rank(templates []*model.AutomationTemplate, ev model.TriggerEvent) []Candidate {
	var eligible []*model.AutomationTemplate
	for _, t := range templates {
		if t.BusinessID != ev.BusinessID || !m.eligible(t) {
			continue
		}
		if t.TriggerType != "" && model.TriggerType(t.TriggerType) != ev.TriggerType {
			continue
		}
		eligible = append(eligible, t)
	}
	if len(eligible) == 0 {
		return nil
	}

	idx := newTermIndex(eligible)
	hits := idx.scan(ev.FreeText)

	out := make([]Candidate, len(eligible))
	for i, t := range eligible {
		c := Candidate{Template: t}
		if t.TriggerType != "" {
			c.Score += triggerWeight
		}
		for _, term := range idx.keywords[i] {
			if hits[term] {
				c.Score += keywordWeight
				c.Matched = append(c.Matched, term)
			}
		}
		for _, term := range idx.services[i] {
			if hits[term] {
				c.Score += serviceTypeWeight
				c.Matched = append(c.Matched, term)
			}
		}
		out[i] = c
	}

	sort.SliceStable(out, func(a, b int) bool {
		ta, tb := out[a].Template, out[b].Template
		if out[a].Score != out[b].Score {
			return out[a].Score > out[b].Score
		}
		if !ta.UpdatedAt.Equal(tb.UpdatedAt) {
			return ta.UpdatedAt.After(tb.UpdatedAt)
		}
		return ta.ID < tb.ID
	})
	return out
}

func (m *Matcher) eligible(t *model.AutomationTemplate) bool {
	switch t.Status {
	case model.TemplateActive:
		return true
	case model.TemplateReady:
		return m.Eligibility == config.EligibilityWithReady
	default:
		return false
	}
}

// termIndex holds the normalized keyword and service-type terms of each template
// plus one automaton over all of them.
type termIndex struct {
	keywords [][]string
	services [][]string
	terms    []string
	matcher  *ahocorasick.Matcher
}

func newTermIndex(templates []*model.AutomationTemplate) *termIndex {
	idx := &termIndex{
		keywords: make([][]string, len(templates)),
		services: make([][]string, len(templates)),
	}
	seen := map[string]bool{}
	add := func(term string) {
		if !seen[term] {
			seen[term] = true
			idx.terms = append(idx.terms, term)
		}
	}
	for i, t := range templates {
		idx.keywords[i] = normalizeTerms(t.Config.Keywords)
		idx.services[i] = normalizeTerms(t.ServiceTypes)
		for _, term := range idx.keywords[i] {
			add(term)
		}
		for _, term := range idx.services[i] {
			add(term)
		}
	}
	if len(idx.terms) > 0 {
		idx.matcher = ahocorasick.NewStringMatcher(idx.terms)
	}
	return idx
}

// scan reports which terms occur in text as case-insensitive substrings.
func (idx *termIndex) scan(text string) map[string]bool {
	hits := map[string]bool{}
	if idx.matcher == nil || text == "" {
		return hits
	}
	for _, i := range idx.matcher.Match([]byte(strings.ToLower(text))) {
		if i < len(idx.terms) {
			hits[idx.terms[i]] = true
		}
	}
	return hits
}

// normalizeTerms lowercases, trims and de-duplicates terms, dropping empty ones.
func normalizeTerms(in []string) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.ToLower(strings.Join(strings.Fields(s), " "))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
