package valueset

import "github.com/gofhir/terminology/model"

// Member is one concept of an expansion.
type Member struct {
	System      string
	Version     string
	Code        string
	Display     string
	Abstract    bool
	Inactive    bool
	Designation []model.Designation
}

// Coding returns the member as a Coding.
func (m Member) Coding() model.Coding {
	return model.Coding{System: m.System, Version: m.Version, Code: m.Code, Display: m.Display}
}

// Contains renders the member as an expansion entry.
func (m Member) Contains(withDesignations bool) model.Contains {
	c := model.Contains{
		System:   m.System,
		Version:  m.Version,
		Code:     m.Code,
		Display:  m.Display,
		Abstract: m.Abstract,
		Inactive: m.Inactive,
	}
	if withDesignations {
		c.Designation = m.Designation
	}
	return c
}

type memberKey struct {
	system, version, code string
}

type codeKey struct {
	system, code string
}

// conceptSet is an insertion-ordered set of members keyed by
// (system, version, code).
type conceptSet struct {
	order   []memberKey
	members map[memberKey]Member
	byCode  map[codeKey][]string
}

func newConceptSet() *conceptSet {
	return &conceptSet{
		members: make(map[memberKey]Member),
		byCode:  make(map[codeKey][]string),
	}
}

func setOf(members []Member) *conceptSet {
	s := newConceptSet()
	for _, m := range members {
		s.add(m)
	}
	return s
}

func (s *conceptSet) len() int { return len(s.members) }

func (s *conceptSet) add(m Member) {
	k := memberKey{m.System, m.Version, m.Code}
	if _, ok := s.members[k]; ok {
		return
	}
	s.members[k] = m
	s.order = append(s.order, k)
	ck := codeKey{m.System, m.Code}
	s.byCode[ck] = append(s.byCode[ck], m.Version)
}

// has reports whether m is in the set. A member without a version matches
// any version of the same code and vice versa.
func (s *conceptSet) has(m Member) bool {
	for _, v := range s.byCode[codeKey{m.System, m.Code}] {
		if v == m.Version || v == "" || m.Version == "" {
			if _, ok := s.members[memberKey{m.System, v, m.Code}]; ok {
				return true
			}
		}
	}
	return false
}

func (s *conceptSet) union(o *conceptSet) {
	for _, k := range o.order {
		s.add(o.members[k])
	}
}

// filter returns a new set with the members keep accepts.
func (s *conceptSet) filter(keep func(Member) bool) *conceptSet {
	out := newConceptSet()
	for _, k := range s.order {
		if m, ok := s.members[k]; ok && keep(m) {
			out.add(m)
		}
	}
	return out
}

func (s *conceptSet) intersect(o *conceptSet) *conceptSet {
	return s.filter(o.has)
}

func (s *conceptSet) subtract(o *conceptSet) *conceptSet {
	return s.filter(func(m Member) bool { return !o.has(m) })
}

func (s *conceptSet) list() []Member {
	out := make([]Member, 0, len(s.order))
	for _, k := range s.order {
		if m, ok := s.members[k]; ok {
			out = append(out, m)
		}
	}
	return out
}
