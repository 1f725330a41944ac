package network

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"
)

// Candidate detection methods
const (
	MethodCoOccurrence      = "co-occurrence"
	MethodTransitive        = "transitive"
	MethodSharedConnections = "shared-connections"
	MethodSimilarContext    = "similar-context"
)

// DefaultMinCandidateConfidence is the confidence a candidate needs to be reported
const DefaultMinCandidateConfidence = 0.6

const (
	coOccurrenceConfidence   = 0.6
	transitiveConfidence     = 0.7
	similarContextConfidence = 0.65
	sharedBaseConfidence     = 0.5
	sharedMaxConfidence      = 0.9
	minSharedConnections     = 2
	aggregateStep            = 0.1
	aggregateMaxConfidence   = 0.95
	// Name parts shorter than this are too common to count as a mention
	minNamePartLength = 3
)

var sentenceSplit = regexp.MustCompile(`[.!?]+`)

// Candidate is a relationship the graph suggests but does not contain.
// Source and Target are entity names as stored.
type Candidate struct {
	Source     string   `json:"source"`
	Target     string   `json:"target"`
	Confidence float64  `json:"confidence"`
	Methods    []string `json:"methods"`
	Evidence   []string `json:"evidence"`
	Via        string   `json:"via,omitempty"`
	SharedWith []string `json:"shared_with,omitempty"`
}

// FindCandidates looks for missing relationships in n. Co-occurrence needs
// text; the other methods work from the graph and entity descriptions alone.
// Candidates found by several methods are merged and gain confidence. Pairs
// already related are dropped, as is anything below minConfidence. Results
// are ordered by confidence, highest first. n is not modified.
func FindCandidates(n *Network, text string, minConfidence float64) []Candidate {
	g := newGraphIndex(n)

	var all []Candidate
	if strings.TrimSpace(text) != "" {
		all = append(all, aggregate(g.coOccurrences(text))...)
	}
	all = append(all, g.similarContexts()...)
	all = append(all, aggregate(g.transitiveConnections())...)
	all = append(all, g.sharedConnections()...)

	out := make([]Candidate, 0)
	for _, c := range aggregate(all) {
		if g.connected(c.Source, c.Target) || c.Confidence < minConfidence {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// graphIndex resolves names case-insensitively and holds adjacency.
type graphIndex struct {
	n         *Network
	canonical map[string]string // lower-cased name -> stored name
	neighbors map[string]map[string]struct{}
	pairs     map[pairKey]struct{}
}

func newGraphIndex(n *Network) *graphIndex {
	g := &graphIndex{
		n:         n,
		canonical: make(map[string]string, len(n.Entities)),
		neighbors: make(map[string]map[string]struct{}),
		pairs:     make(map[pairKey]struct{}, len(n.Relationships)),
	}
	for _, e := range n.Entities {
		g.canonical[strings.ToLower(e.Name)] = e.Name
	}
	for _, r := range n.Relationships {
		src, tgt := strings.ToLower(r.Source), strings.ToLower(r.Target)
		g.pairs[newPairKey(src, tgt)] = struct{}{}
		g.link(src, tgt)
		g.link(tgt, src)
	}
	return g
}

func (g *graphIndex) link(from, to string) {
	if g.neighbors[from] == nil {
		g.neighbors[from] = make(map[string]struct{})
	}
	g.neighbors[from][to] = struct{}{}
}

func (g *graphIndex) connected(a, b string) bool {
	_, ok := g.pairs[newPairKey(a, b)]
	return ok
}

func (g *graphIndex) name(s string) (string, bool) {
	name, ok := g.canonical[strings.ToLower(s)]
	return name, ok
}

// coOccurrences pairs up entities mentioned in the same sentence.
func (g *graphIndex) coOccurrences(text string) []Candidate {
	var out []Candidate
	for _, sentence := range sentenceSplit.Split(text, -1) {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		lower := strings.ToLower(sentence)

		var present []string
		for _, e := range g.n.Entities {
			if mentions(lower, e.Name) {
				present = append(present, e.Name)
			}
		}
		for i := 0; i < len(present); i++ {
			for j := i + 1; j < len(present); j++ {
				out = append(out, newCandidate(present[i], present[j], coOccurrenceConfidence, MethodCoOccurrence, sentence))
			}
		}
	}
	return out
}

// mentions reports whether a lower-cased sentence names the entity, in full
// or by one of its longer name parts ("Low" for "Jho Low").
func mentions(sentence, name string) bool {
	lname := strings.ToLower(name)
	if strings.Contains(sentence, lname) {
		return true
	}
	for _, part := range strings.Fields(lname) {
		if len(part) >= minNamePartLength && strings.Contains(sentence, part) {
			return true
		}
	}
	return false
}

// transitiveConnections proposes A-C for every chain A->B, B->C.
func (g *graphIndex) transitiveConnections() []Candidate {
	var out []Candidate
	for _, r1 := range g.n.Relationships {
		for _, r2 := range g.n.Relationships {
			if !strings.EqualFold(r1.Target, r2.Source) || strings.EqualFold(r1.Source, r2.Target) {
				continue
			}
			if g.connected(r1.Source, r2.Target) {
				continue
			}
			src, ok1 := g.name(r1.Source)
			tgt, ok2 := g.name(r2.Target)
			via, ok3 := g.name(r1.Target)
			if !ok1 || !ok2 || !ok3 {
				continue
			}
			c := newCandidate(src, tgt, transitiveConfidence, MethodTransitive,
				fmt.Sprintf("%s via %s, then %s", orConnected(r1.Type), via, orConnected(r2.Type)))
			c.Via = via
			out = append(out, c)
		}
	}
	return out
}

func orConnected(relType string) string {
	if relType == "" {
		return "connected"
	}
	return relType
}

// sharedConnections proposes pairs of unrelated entities with at least two
// neighbors in common.
func (g *graphIndex) sharedConnections() []Candidate {
	var out []Candidate
	ents := g.n.Entities
	for i := 0; i < len(ents); i++ {
		for j := i + 1; j < len(ents); j++ {
			a, b := strings.ToLower(ents[i].Name), strings.ToLower(ents[j].Name)
			if g.connected(a, b) {
				continue
			}

			var shared []string
			for _, e := range ents {
				key := strings.ToLower(e.Name)
				_, inA := g.neighbors[a][key]
				_, inB := g.neighbors[b][key]
				if inA && inB {
					shared = append(shared, e.Name)
				}
			}
			if len(shared) < minSharedConnections {
				continue
			}

			conf := math.Min(sharedBaseConfidence+float64(len(shared))*aggregateStep, sharedMaxConfidence)
			c := newCandidate(ents[i].Name, ents[j].Name, roundConfidence(conf), MethodSharedConnections,
				"Both connected to: "+strings.Join(shared, ", "))
			c.SharedWith = shared
			out = append(out, c)
		}
	}
	return out
}

// similarContexts pairs people whose descriptions mention the same organization.
func (g *graphIndex) similarContexts() []Candidate {
	var people, orgs []Entity
	for _, e := range g.n.Entities {
		switch e.Type {
		case "person":
			people = append(people, e)
		case "organization", "corporation":
			orgs = append(orgs, e)
		}
	}

	var out []Candidate
	for i := 0; i < len(people); i++ {
		for j := i + 1; j < len(people); j++ {
			d1 := strings.ToLower(people[i].Description)
			d2 := strings.ToLower(people[j].Description)
			for _, org := range orgs {
				lorg := strings.ToLower(org.Name)
				if strings.Contains(d1, lorg) && strings.Contains(d2, lorg) {
					out = append(out, newCandidate(people[i].Name, people[j].Name, similarContextConfidence,
						MethodSimilarContext, "Both associated with "+org.Name))
				}
			}
		}
	}
	return out
}

func newCandidate(source, target string, confidence float64, method, evidence string) Candidate {
	return Candidate{
		Source:     source,
		Target:     target,
		Confidence: confidence,
		Methods:    []string{method},
		Evidence:   []string{evidence},
	}
}

// aggregate merges candidates for the same unordered pair. Each repeat adds
// aggregateStep to the confidence, up to aggregateMaxConfidence.
func aggregate(cands []Candidate) []Candidate {
	index := make(map[pairKey]int, len(cands))
	out := make([]Candidate, 0, len(cands))

	for _, c := range cands {
		key := newPairKey(c.Source, c.Target)
		i, seen := index[key]
		if !seen {
			c.Methods = append([]string(nil), c.Methods...)
			c.Evidence = append([]string(nil), c.Evidence...)
			index[key] = len(out)
			out = append(out, c)
			continue
		}

		existing := &out[i]
		existing.Confidence = roundConfidence(math.Min(existing.Confidence+aggregateStep, aggregateMaxConfidence))
		for _, m := range c.Methods {
			if !containsString(existing.Methods, m) {
				existing.Methods = append(existing.Methods, m)
			}
		}
		existing.Evidence = append(existing.Evidence, c.Evidence...)
		if existing.Via == "" {
			existing.Via = c.Via
		}
		if len(existing.SharedWith) == 0 {
			existing.SharedWith = c.SharedWith
		}
	}
	return out
}

func roundConfidence(v float64) float64 {
	return math.Round(v*100) / 100
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
