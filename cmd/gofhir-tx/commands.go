package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/gofhir/terminology/conceptmap"
	"github.com/gofhir/terminology/loader"
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/stream"
	"github.com/gofhir/terminology/valueset"
)

func expandCmd(a *app) *cobra.Command {
	var params valueset.Params
	cmd := &cobra.Command{
		Use:   "expand <valueset-url>",
		Short: "Expand a ValueSet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			vs, err := eng.Expand(cmd.Context(), args[0], params)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				r4vs, err := loader.ToR4ValueSet(vs)
				if err != nil {
					return err
				}
				return writeJSON(a.out(cmd), r4vs)
			}
			printExpansion(a.out(cmd), vs)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&params.Filter, "filter", "", "keep concepts whose code or display contains this text")
	f.IntVar(&params.Offset, "offset", 0, "skip this many concepts")
	f.IntVar(&params.Count, "count", 0, "return at most this many concepts (0 = all)")
	f.BoolVar(&params.ActiveOnly, "active-only", false, "drop inactive concepts")
	f.BoolVar(&params.ExcludeNotForUI, "exclude-not-for-ui", false, "drop abstract concepts")
	f.BoolVar(&params.IncludeDesignations, "designations", false, "include designations")
	f.StringVar(&params.DisplayLanguage, "language", "", "preferred display language")
	return cmd
}

func validateCodeCmd(a *app) *cobra.Command {
	var req valueset.ValidateRequest
	cmd := &cobra.Command{
		Use:   "validate-code",
		Short: "Check whether a code is in a ValueSet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			res, err := eng.Validate(cmd.Context(), req)
			if err != nil {
				return err
			}
			out := toValidateOutput(req, res)
			if a.jsonOutput() {
				err = writeJSON(a.out(cmd), out)
			} else {
				printValidate(a.out(cmd), out)
			}
			if err != nil {
				return err
			}
			if !res.Result {
				return errNegative
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ValueSet, "valueset", "", "canonical URL of the ValueSet")
	f.StringVar(&req.System, "system", "", "code system URL")
	f.StringVar(&req.Version, "version", "", "code system version")
	f.StringVar(&req.Code, "code", "", "code to check")
	f.StringVar(&req.Display, "display", "", "display to check")
	_ = cmd.MarkFlagRequired("valueset")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func lookupCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <system> <code>",
		Short: "Show the details of a code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			info, err := eng.LookupCode(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(a.out(cmd), info)
			}
			printLookup(a.out(cmd), info)
			return nil
		},
	}
}

func subsumesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "subsumes <system> <codeA> <codeB>",
		Short: "Test the subsumption relationship between two codes",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			outcome, err := eng.Subsumes(cmd.Context(), args[0], args[1], args[2])
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(a.out(cmd), map[string]string{"outcome": string(outcome)})
			}
			fmt.Fprintln(a.out(cmd), outcome)
			return nil
		},
	}
}

func translateCmd(a *app) *cobra.Command {
	var req conceptmap.Request
	cmd := &cobra.Command{
		Use:   "translate",
		Short: "Translate a code using the loaded ConceptMaps",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			res, err := eng.Translate(cmd.Context(), req)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				err = writeJSON(a.out(cmd), toTranslateOutput(res))
			} else {
				printTranslate(a.out(cmd), res)
			}
			if err != nil {
				return err
			}
			if !res.Result {
				return errNegative
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&req.ConceptMap, "conceptmap", "", "canonical URL of the ConceptMap to use")
	f.StringVar(&req.Source, "source", "", "source ValueSet scope")
	f.StringVar(&req.Target, "target", "", "target ValueSet scope")
	f.StringVar(&req.TargetSystem, "target-system", "", "keep only translations into this code system")
	f.StringVar(&req.System, "system", "", "code system of the code")
	f.StringVar(&req.Version, "version", "", "code system version")
	f.StringVar(&req.Code, "code", "", "code to translate")
	f.BoolVar(&req.Reverse, "reverse", false, "translate from target codes to source codes")
	_ = cmd.MarkFlagRequired("code")
	return cmd
}

func closureCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "closure <system> <code>...",
		Short: "Compute the subsumption closure of a set of codes",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			const name = "cli"
			if err := eng.InitClosure(name); err != nil {
				return err
			}
			codings := make([]model.Coding, 0, len(args)-1)
			for _, code := range args[1:] {
				codings = append(codings, model.Coding{System: args[0], Code: code})
			}
			cm, err := eng.Closure(cmd.Context(), name, codings)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				return writeJSON(a.out(cmd), cm)
			}
			printClosure(a.out(cmd), cm)
			return nil
		},
	}
}

func checkBindingCmd(a *app) *cobra.Command {
	var path, vs string
	cmd := &cobra.Command{
		Use:   "check-binding <resource.json|->",
		Short: "Check the codes a FHIRPath expression selects in a resource against a ValueSet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readInput(cmd, args[0])
			if err != nil {
				return err
			}
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			res, err := eng.CheckBinding(cmd.Context(), data, path, vs)
			if err != nil {
				return err
			}
			if a.jsonOutput() {
				err = writeJSON(a.out(cmd), toBindingOutput(res))
			} else {
				printBinding(a.out(cmd), res)
			}
			if err != nil {
				return err
			}
			if !res.Valid {
				return errNegative
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&path, "path", "", "FHIRPath expression selecting Coding or CodeableConcept elements")
	cmd.Flags().StringVar(&vs, "valueset", "", "canonical URL of the bound ValueSet")
	_ = cmd.MarkFlagRequired("path")
	_ = cmd.MarkFlagRequired("valueset")
	return cmd
}

func inspectCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <bundle.json|->",
		Short: "Summarize the entries of a Bundle without loading it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, closeFn, err := openInput(cmd, args[0])
			if err != nil {
				return err
			}
			defer closeFn()

			s := stream.Summarize(stream.NewDecoder().Entries(cmd.Context(), r))
			if a.jsonOutput() {
				return writeJSON(a.out(cmd), toSummaryOutput(s))
			}
			printSummary(a.out(cmd), s)
			return nil
		},
	}
}

func statsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Load the configured content and report what was loaded",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eng, err := a.engine(cmd)
			if err != nil {
				return err
			}
			s := eng.Registry().Stats()
			if a.jsonOutput() {
				return writeJSON(a.out(cmd), s)
			}
			fmt.Fprintf(a.out(cmd), "Code systems: %d (%d supplements)\nValue sets:   %d\nConcept maps: %d\n",
				s.CodeSystems, s.Supplements, s.ValueSets, s.ConceptMaps)
			return nil
		},
	}
}

func openInput(cmd *cobra.Command, name string) (io.Reader, func(), error) {
	if name == "-" {
		return cmd.InOrStdin(), func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}

func readInput(cmd *cobra.Command, name string) ([]byte, error) {
	r, closeFn, err := openInput(cmd, name)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return io.ReadAll(r)
}
