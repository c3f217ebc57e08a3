// Package builtin provides a small set of commonly used FHIR code systems
// and value sets so that an engine can answer basic questions without
// loading any package.
package builtin

import (
	"github.com/gofhir/terminology/model"
	"github.com/gofhir/terminology/registry"
)

// Version is the business version given to the built-in resources.
const Version = "4.0.1"

type system struct {
	url       string
	name      string
	valueSet  string
	hierarchy model.HierarchyMeaning
	concepts  []model.Concept
}

// flat builds top-level concepts from code/display pairs.
func flat(pairs ...string) []model.Concept {
	out := make([]model.Concept, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, model.Concept{Code: pairs[i], Display: pairs[i+1]})
	}
	return out
}

func concept(code, display string, children ...model.Concept) model.Concept {
	return model.Concept{Code: code, Display: display, Concept: children}
}

var systems = []system{
	{
		url: "http://hl7.org/fhir/administrative-gender", name: "AdministrativeGender",
		valueSet: "http://hl7.org/fhir/ValueSet/administrative-gender",
		concepts: flat("male", "Male", "female", "Female", "other", "Other", "unknown", "Unknown"),
	},
	{
		url: "http://terminology.hl7.org/CodeSystem/v2-0136", name: "v2.0136",
		valueSet: "http://terminology.hl7.org/ValueSet/v2-0136",
		concepts: flat("Y", "Yes", "N", "No"),
	},
	{
		url: "http://hl7.org/fhir/contact-point-system", name: "ContactPointSystem",
		valueSet: "http://hl7.org/fhir/ValueSet/contact-point-system",
		concepts: flat("phone", "Phone", "fax", "Fax", "email", "Email", "pager", "Pager", "url", "URL", "sms", "SMS", "other", "Other"),
	},
	{
		url: "http://hl7.org/fhir/contact-point-use", name: "ContactPointUse",
		valueSet: "http://hl7.org/fhir/ValueSet/contact-point-use",
		concepts: flat("home", "Home", "work", "Work", "temp", "Temp", "old", "Old", "mobile", "Mobile"),
	},
	{
		url: "http://hl7.org/fhir/name-use", name: "NameUse",
		valueSet: "http://hl7.org/fhir/ValueSet/name-use",
		concepts: []model.Concept{
			concept("usual", "Usual"),
			concept("official", "Official"),
			concept("temp", "Temp"),
			concept("nickname", "Nickname"),
			concept("anonymous", "Anonymous"),
			concept("old", "Old", concept("maiden", "Name changed for Marriage")),
		},
	},
	{
		url: "http://hl7.org/fhir/address-use", name: "AddressUse",
		valueSet: "http://hl7.org/fhir/ValueSet/address-use",
		concepts: flat("home", "Home", "work", "Work", "temp", "Temporary", "old", "Old / Incorrect", "billing", "Billing"),
	},
	{
		url: "http://hl7.org/fhir/address-type", name: "AddressType",
		valueSet: "http://hl7.org/fhir/ValueSet/address-type",
		concepts: flat("postal", "Postal", "physical", "Physical", "both", "Postal & Physical"),
	},
	{
		url: "http://hl7.org/fhir/identifier-use", name: "IdentifierUse",
		valueSet: "http://hl7.org/fhir/ValueSet/identifier-use",
		concepts: flat("usual", "Usual", "official", "Official", "temp", "Temp", "secondary", "Secondary", "old", "Old"),
	},
	{
		url: "http://hl7.org/fhir/observation-status", name: "ObservationStatus",
		valueSet: "http://hl7.org/fhir/ValueSet/observation-status",
		concepts: []model.Concept{
			concept("registered", "Registered"),
			concept("preliminary", "Preliminary"),
			concept("final", "Final"),
			concept("amended", "Amended", concept("corrected", "Corrected")),
			concept("cancelled", "Cancelled"),
			concept("entered-in-error", "Entered in Error"),
			concept("unknown", "Unknown"),
		},
	},
	{
		url: "http://hl7.org/fhir/bundle-type", name: "BundleType",
		valueSet: "http://hl7.org/fhir/ValueSet/bundle-type",
		concepts: flat(
			"document", "Document", "message", "Message",
			"transaction", "Transaction", "transaction-response", "Transaction Response",
			"batch", "Batch", "batch-response", "Batch Response",
			"history", "History List", "searchset", "Search Results", "collection", "Collection",
		),
	},
	{
		url: "http://hl7.org/fhir/http-verb", name: "HTTPVerb",
		valueSet: "http://hl7.org/fhir/ValueSet/http-verb",
		concepts: flat("GET", "GET", "HEAD", "HEAD", "POST", "POST", "PUT", "PUT", "DELETE", "DELETE", "PATCH", "PATCH"),
	},
	{
		url: "http://hl7.org/fhir/publication-status", name: "PublicationStatus",
		valueSet: "http://hl7.org/fhir/ValueSet/publication-status",
		concepts: flat("draft", "Draft", "active", "Active", "retired", "Retired", "unknown", "Unknown"),
	},
	{
		url: "http://hl7.org/fhir/request-status", name: "RequestStatus",
		valueSet: "http://hl7.org/fhir/ValueSet/request-status",
		concepts: flat("draft", "Draft", "active", "Active", "on-hold", "On Hold", "revoked", "Revoked",
			"completed", "Completed", "entered-in-error", "Entered in Error", "unknown", "Unknown"),
	},
	{
		url: "http://terminology.hl7.org/CodeSystem/condition-clinical", name: "ConditionClinicalStatusCodes",
		valueSet:  "http://hl7.org/fhir/ValueSet/condition-clinical",
		hierarchy: model.HierarchyIsA,
		concepts: []model.Concept{
			concept("active", "Active",
				concept("recurrence", "Recurrence"),
				concept("relapse", "Relapse"),
			),
			concept("inactive", "Inactive",
				concept("remission", "Remission"),
				concept("resolved", "Resolved"),
			),
		},
	},
	{
		url: "http://terminology.hl7.org/CodeSystem/condition-ver-status", name: "ConditionVerificationStatus",
		valueSet:  "http://hl7.org/fhir/ValueSet/condition-ver-status",
		hierarchy: model.HierarchyIsA,
		concepts: []model.Concept{
			concept("unconfirmed", "Unconfirmed",
				concept("provisional", "Provisional"),
				concept("differential", "Differential"),
			),
			concept("confirmed", "Confirmed"),
			concept("refuted", "Refuted"),
			concept("entered-in-error", "Entered in Error"),
		},
	},
}

// CodeSystems returns fresh copies of the built-in code systems.
func CodeSystems() []*model.CodeSystem {
	sensitive := true
	out := make([]*model.CodeSystem, 0, len(systems))
	for _, s := range systems {
		out = append(out, &model.CodeSystem{
			ResourceType:     model.ResourceCodeSystem,
			URL:              s.url,
			Version:          Version,
			Name:             s.name,
			Status:           model.StatusActive,
			CaseSensitive:    &sensitive,
			ValueSet:         s.valueSet,
			HierarchyMeaning: s.hierarchy,
			Content:          model.ContentComplete,
			Concept:          clone(s.concepts),
		})
	}
	return out
}

// ValueSets returns one value set per built-in code system, each including
// the whole system.
func ValueSets() []*model.ValueSet {
	out := make([]*model.ValueSet, 0, len(systems))
	for _, s := range systems {
		out = append(out, &model.ValueSet{
			ResourceType: model.ResourceValueSet,
			URL:          s.valueSet,
			Version:      Version,
			Name:         s.name,
			Status:       model.StatusActive,
			Compose:      &model.Compose{Include: []model.Include{{System: s.url}}},
		})
	}
	return out
}

// Register adds the built-in resources to reg and returns how many were added.
func Register(reg *registry.Registry) (int, error) {
	n := 0
	for _, cs := range CodeSystems() {
		if err := reg.AddCodeSystem(cs); err != nil {
			return n, err
		}
		n++
	}
	for _, vs := range ValueSets() {
		if err := reg.AddValueSet(vs); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func clone(in []model.Concept) []model.Concept {
	if in == nil {
		return nil
	}
	out := make([]model.Concept, len(in))
	for i, c := range in {
		out[i] = c
		out[i].Concept = clone(c.Concept)
	}
	return out
}
