// Package label defines the classification labels predicted for chat messages.
package label

import "strings"

// Label is a predicted message category.
type Label string

const (
	// None means no label is known. It never matches or conflicts with another label.
	None Label = ""
	// BugReport is a report of broken behavior.
	BugReport Label = "bug_report"
	// SupportQuestion is a request for help using the product.
	SupportQuestion Label = "support_question"
	// FeatureRequest asks for new functionality.
	FeatureRequest Label = "feature_request"
	// ProductQuestion asks about product capabilities.
	ProductQuestion Label = "product_question"
	// Irrelevant covers greetings, social chatter and acknowledgments.
	Irrelevant Label = "irrelevant"
)

var known = map[Label]struct{}{
	BugReport:       {},
	SupportQuestion: {},
	FeatureRequest:  {},
	ProductQuestion: {},
	Irrelevant:      {},
}

// Parse maps a raw oracle string onto a Label. Unknown values become Irrelevant,
// an empty string stays None.
func Parse(s string) Label {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return None
	}
	l := Label(s)
	if _, ok := known[l]; ok {
		return l
	}
	return Irrelevant
}

// String returns the wire representation.
func (l Label) String() string { return string(l) }

// IsZero reports whether the label is absent.
func (l Label) IsZero() bool { return l == None }

// All returns every known label in a stable order.
func All() []Label {
	return []Label{BugReport, SupportQuestion, FeatureRequest, ProductQuestion, Irrelevant}
}
