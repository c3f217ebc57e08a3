package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	ft "github.com/gofhir/terminology"
	"github.com/gofhir/terminology/binding"
	"github.com/gofhir/terminology/conceptmap"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/service"
	"github.com/gofhir/terminology/stream"
	"github.com/gofhir/terminology/valueset"
)

// IssueOutput represents a single issue in JSON output
type IssueOutput struct {
	Severity    string   `json:"severity"`
	Code        string   `json:"code"`
	Diagnostics string   `json:"diagnostics"`
	Expression  []string `json:"expression,omitempty"`
}

// ValidateOutput is the JSON output of validate-code.
type ValidateOutput struct {
	ValueSet string        `json:"valueSet"`
	Result   bool          `json:"result"`
	System   string        `json:"system,omitempty"`
	Version  string        `json:"version,omitempty"`
	Code     string        `json:"code"`
	Display  string        `json:"display,omitempty"`
	Message  string        `json:"message,omitempty"`
	Issues   []IssueOutput `json:"issues,omitempty"`
}

// MatchOutput is one translation in JSON output.
type MatchOutput struct {
	Equivalence string       `json:"equivalence"`
	Concept     model.Coding `json:"concept"`
	Source      string       `json:"source,omitempty"`
	Comment     string       `json:"comment,omitempty"`
}

// TranslateOutput is the JSON output of translate.
type TranslateOutput struct {
	Result  bool          `json:"result"`
	Message string        `json:"message,omitempty"`
	Matches []MatchOutput `json:"matches,omitempty"`
}

// BindingOutput is the JSON output of check-binding.
type BindingOutput struct {
	Path     string           `json:"path"`
	ValueSet string           `json:"valueSet"`
	Valid    bool             `json:"valid"`
	Codings  []ValidateOutput `json:"codings,omitempty"`
	Issues   []IssueOutput    `json:"issues,omitempty"`
}

// SummaryOutput is the JSON output of inspect.
type SummaryOutput struct {
	Entries int            `json:"entries"`
	ByType  map[string]int `json:"byType"`
	Errors  []string       `json:"errors,omitempty"`
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func toIssues(issues []ft.Issue) []IssueOutput {
	out := make([]IssueOutput, 0, len(issues))
	for _, iss := range issues {
		out = append(out, IssueOutput{
			Severity:    string(iss.Severity),
			Code:        string(iss.Code),
			Diagnostics: iss.Diagnostics,
			Expression:  iss.Expression,
		})
	}
	return out
}

func toValidateOutput(req valueset.ValidateRequest, res *valueset.ValidateResult) ValidateOutput {
	return ValidateOutput{
		ValueSet: req.ValueSet,
		Result:   res.Result,
		System:   res.System,
		Version:  res.Version,
		Code:     res.Code,
		Display:  res.Display,
		Message:  res.Message,
		Issues:   toIssues(res.Issues),
	}
}

func toTranslateOutput(res *conceptmap.Result) TranslateOutput {
	out := TranslateOutput{Result: res.Result, Message: res.Message}
	for _, m := range res.Matches {
		out.Matches = append(out.Matches, MatchOutput{
			Equivalence: string(m.Equivalence),
			Concept:     m.Concept,
			Source:      m.Source,
			Comment:     m.Comment,
		})
	}
	return out
}

func toBindingOutput(res *binding.Result) BindingOutput {
	out := BindingOutput{Path: res.Path, ValueSet: res.ValueSet, Valid: res.Valid, Issues: toIssues(res.Issues)}
	for _, c := range res.Codings {
		out.Codings = append(out.Codings, toValidateOutput(valueset.ValidateRequest{ValueSet: res.ValueSet}, c.Result))
	}
	return out
}

func toSummaryOutput(s *stream.Summary) SummaryOutput {
	out := SummaryOutput{Entries: s.Entries, ByType: s.ByType}
	for _, err := range s.Errors {
		out.Errors = append(out.Errors, err.Error())
	}
	return out
}

func printExpansion(w io.Writer, vs *model.ValueSet) {
	x := vs.Expansion
	fmt.Fprintf(w, "== %s ==\n", vs.Canonical())
	fmt.Fprintf(w, "Total: %d", x.Total)
	if x.Offset > 0 || len(x.Contains) < x.Total {
		fmt.Fprintf(w, " (showing %d from offset %d)", len(x.Contains), x.Offset)
	}
	fmt.Fprintln(w)
	for _, c := range x.Contains {
		flags := ""
		if c.Inactive {
			flags += " [inactive]"
		}
		if c.Abstract {
			flags += " [abstract]"
		}
		fmt.Fprintf(w, "  %s|%s  %s%s\n", c.System, c.Code, c.Display, flags)
	}
}

func printIssues(w io.Writer, issues []ft.Issue) {
	for _, iss := range issues {
		location := ""
		if len(iss.Expression) > 0 {
			location = fmt.Sprintf(" @ %s", strings.Join(iss.Expression, ", "))
		}
		fmt.Fprintf(w, "  %s [%s] %s%s\n", severityLabel(iss.Severity), iss.Code, iss.Diagnostics, location)
	}
}

func severityLabel(severity ft.IssueSeverity) string {
	switch severity {
	case ft.SeverityFatal, ft.SeverityError:
		return "ERROR"
	case ft.SeverityWarning:
		return "WARN "
	case ft.SeverityInformation:
		return "INFO "
	default:
		return "     "
	}
}

func printValidate(w io.Writer, out ValidateOutput) {
	status := "VALID"
	if !out.Result {
		status = "INVALID"
	}
	fmt.Fprintf(w, "%s: %s|%s in %s\n", status, out.System, out.Code, out.ValueSet)
	if out.Display != "" {
		fmt.Fprintf(w, "Display: %s\n", out.Display)
	}
	if out.Message != "" {
		fmt.Fprintf(w, "Message: %s\n", out.Message)
	}
	for _, iss := range out.Issues {
		location := ""
		if len(iss.Expression) > 0 {
			location = fmt.Sprintf(" @ %s", strings.Join(iss.Expression, ", "))
		}
		fmt.Fprintf(w, "  %s [%s] %s%s\n", severityLabel(ft.IssueSeverity(iss.Severity)), iss.Code, iss.Diagnostics, location)
	}
}

func printLookup(w io.Writer, info *service.CodeInfo) {
	fmt.Fprintf(w, "%s|%s\n", info.System, info.Code)
	if info.Name != "" {
		fmt.Fprintf(w, "Name: %s\n", info.Name)
	}
	if info.Version != "" {
		fmt.Fprintf(w, "Version: %s\n", info.Version)
	}
	fmt.Fprintf(w, "Display: %s\n", info.Display)
	if info.Definition != "" {
		fmt.Fprintf(w, "Definition: %s\n", info.Definition)
	}
	if info.Abstract {
		fmt.Fprintln(w, "Abstract: true")
	}
	if info.Inactive {
		fmt.Fprintln(w, "Inactive: true")
	}
	if len(info.Parents) > 0 {
		fmt.Fprintf(w, "Parents: %s\n", strings.Join(info.Parents, ", "))
	}
	if len(info.Children) > 0 {
		fmt.Fprintf(w, "Children: %s\n", strings.Join(info.Children, ", "))
	}
	for _, p := range info.Properties {
		fmt.Fprintf(w, "  %s = %s\n", p.Code, p.Value)
	}
	for _, d := range info.Designation {
		fmt.Fprintf(w, "  [%s] %s\n", d.Language, d.Value)
	}
}

func printTranslate(w io.Writer, res *conceptmap.Result) {
	if !res.Result && len(res.Matches) == 0 {
		fmt.Fprintf(w, "No match: %s\n", res.Message)
		return
	}
	for _, m := range res.Matches {
		fmt.Fprintf(w, "%-12s %s|%s  %s\n", m.Equivalence, m.Concept.System, m.Concept.Code, m.Concept.Display)
	}
}

func printClosure(w io.Writer, cm *model.ConceptMap) {
	fmt.Fprintf(w, "Closure version %s\n", cm.Version)
	for _, g := range cm.Group {
		for _, e := range g.Element {
			for _, t := range e.Target {
				fmt.Fprintf(w, "  %s|%s -> %s|%s\n", g.Source, e.Code, g.Target, t.Code)
			}
		}
	}
}

func printBinding(w io.Writer, res *binding.Result) {
	status := "VALID"
	if !res.Valid {
		status = "INVALID"
	}
	fmt.Fprintf(w, "%s: %s bound to %s\n", status, res.Path, res.ValueSet)
	for _, c := range res.Codings {
		mark := "-"
		if c.Result.Result {
			mark = "+"
		}
		fmt.Fprintf(w, "  %s %s|%s\n", mark, c.Coding.System, c.Coding.Code)
	}
	printIssues(w, res.Issues)
}

func printSummary(w io.Writer, s *stream.Summary) {
	fmt.Fprintln(w, s)
	types := make([]string, 0, len(s.ByType))
	for t := range s.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-12s %d\n", t, s.ByType[t])
	}
	for _, err := range s.Errors {
		fmt.Fprintf(w, "  error: %v\n", err)
	}
}
