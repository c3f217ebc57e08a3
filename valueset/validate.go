package valueset

import (
	"context"
	"fmt"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/normalize"
)

// ValidateRequest asks whether a code is a member of a ValueSet.
type ValidateRequest struct {
	// ValueSet is the canonical of a registered ValueSet. It is ignored when
	// Resource is set.
	ValueSet string
	Resource *model.ValueSet

	System  string
	Version string
	Code    string
	Display string
}

// ValidateResult is the answer to a ValidateRequest.
type ValidateResult struct {
	Result  bool
	System  string
	Version string
	Code    string
	Display string
	Message string
	Issues  []ft.Issue
}

// DisplayMismatch formats the message for a display that does not match.
func DisplayMismatch(display, code, system string) string {
	return fmt.Sprintf("The display '%s' is incorrect for code '%s' from code system '%s'", display, code, system)
}

// ValidateCode checks membership of a code in a ValueSet. A code that is not
// a member is a negative result, not an error; errors mean the ValueSet
// could not be evaluated.
func (e *Expander) ValidateCode(ctx context.Context, req ValidateRequest) (*ValidateResult, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if req.Code == "" {
		return e.record(negative(req, "No code provided", ft.IssueTypeInvalid)), nil
	}

	var x *expansion
	var err error
	label := req.ValueSet
	if req.Resource != nil {
		label = req.Resource.Canonical().String()
		var members []Member
		if members, err = e.evaluate(ctx, req.Resource, nil); err == nil {
			x = newExpansion(members)
		}
	} else {
		var vs *model.ValueSet
		if vs, err = e.reg.ValueSet(req.ValueSet); err == nil {
			x, err = e.expandShared(ctx, vs)
		}
	}
	if err != nil {
		return nil, err
	}

	m, ok := e.find(ctx, x, req)
	if !ok {
		msg := fmt.Sprintf("The code '%s' from system '%s' is not in the value set '%s'", req.Code, req.System, label)
		if req.System == "" {
			msg = fmt.Sprintf("The code '%s' is not in the value set '%s'", req.Code, label)
		}
		return e.record(negative(req, msg, ft.IssueTypeCodeInvalid)), nil
	}

	res := &ValidateResult{
		Result:  true,
		System:  m.System,
		Version: m.Version,
		Code:    m.Code,
		Display: m.Display,
	}

	if m.Inactive {
		res.Issues = append(res.Issues, ft.Warning(ft.IssueTypeCodeInvalid).
			Diagnostics(fmt.Sprintf("The concept '%s' is inactive", m.Code)).
			At("code").
			Build())
	}

	if req.Display != "" && !displayMatches(m, req.Display) {
		msg := DisplayMismatch(req.Display, m.Code, m.System)
		if e.opts.StrictDisplay {
			res.Result = false
			res.Message = msg
			res.Issues = append(res.Issues, ft.Error(ft.IssueTypeInvalid).Diagnostics(msg).At("display").Build())
		} else {
			res.Issues = append(res.Issues, ft.Warning(ft.IssueTypeInvalid).Diagnostics(msg).At("display").Build())
		}
	}

	return e.record(res), nil
}

func (e *Expander) record(res *ValidateResult) *ValidateResult {
	e.metrics.RecordValidation(res.Result)
	return res
}

func negative(req ValidateRequest, msg string, code ft.IssueType) *ValidateResult {
	return &ValidateResult{
		Result:  false,
		System:  req.System,
		Version: req.Version,
		Code:    req.Code,
		Display: req.Display,
		Message: msg,
		Issues:  []ft.Issue{ft.Error(code).Diagnostics(msg).At("code").Build()},
	}
}

// find locates the member for the requested code. Exact code matches win;
// otherwise codes from case-insensitive systems match after normalization.
func (e *Expander) find(ctx context.Context, x *expansion, req ValidateRequest) (Member, bool) {
	for _, i := range x.exact[req.Code] {
		if m := x.members[i]; matchesSystem(m, req) {
			return m, true
		}
	}

	insensitive := make(map[string]bool)
	for _, i := range x.folded[normalize.String(req.Code)] {
		m := x.members[i]
		if !matchesSystem(m, req) {
			continue
		}
		sys := model.Canonical{URL: m.System, Version: m.Version}.String()
		ci, seen := insensitive[sys]
		if !seen {
			ci = e.caseInsensitive(ctx, sys)
			insensitive[sys] = ci
		}
		if ci {
			return m, true
		}
	}
	return Member{}, false
}

func matchesSystem(m Member, req ValidateRequest) bool {
	if req.System != "" && m.System != req.System {
		return false
	}
	return req.Version == "" || m.Version == "" || m.Version == req.Version
}

// caseInsensitive reports whether a code system compares codes without
// case. Unknown systems compare exactly.
func (e *Expander) caseInsensitive(ctx context.Context, canonical string) bool {
	idx, err := e.reg.Index(ctx, canonical)
	if err != nil {
		return false
	}
	return !idx.CaseSensitive()
}

func displayMatches(m Member, display string) bool {
	if normalize.Equal(m.Display, display, false) {
		return true
	}
	for _, d := range m.Designation {
		if normalize.Equal(d.Value, display, false) {
			return true
		}
	}
	return false
}
