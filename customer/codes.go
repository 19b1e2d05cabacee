package customer

import (
	"strings"

	"golang.org/x/text/cases"
)

// Label sets, indexed by code.
var (
	genderLabels   = []string{"Female", "Male"}
	yesNoLabels    = []string{"No", "Yes"}
	internetLabels = []string{"No Internet", "DSL", "Fiber Optic"}
	serviceLabels  = []string{"Not Available", "Yes", "No"}
	contractLabels = []string{"Month-to-Month", "One Year", "Two Year"}
	paymentLabels  = []string{"Electronic Check", "Mailed Check", "Bank Transfer", "Credit Card"}
)

// Labels returns the human-readable labels of a coded field, indexed by code.
func Labels(name string) ([]string, error) {
	f, ok := fieldsByName[name]
	if !ok {
		return nil, invalid(name, "unknown field")
	}
	if f.kind != kindCode {
		return nil, invalid(name, "not a coded field")
	}
	return append([]string(nil), f.labels...), nil
}

// Encode maps a label such as "fiber optic" to its code. Matching ignores
// case and surrounding whitespace; anything else must match exactly.
func Encode(name, label string) (int, error) {
	labels, err := Labels(name)
	if err != nil {
		return 0, err
	}
	folder := cases.Fold()
	want := folder.String(strings.TrimSpace(label))
	for code, l := range labels {
		if folder.String(l) == want {
			return code, nil
		}
	}
	return 0, invalid(name, "unknown value %q (expected one of %s)", label, strings.Join(labels, ", "))
}

// Decode maps a code back to its label.
func Decode(name string, code int) (string, error) {
	labels, err := Labels(name)
	if err != nil {
		return "", err
	}
	if code < 0 || code >= len(labels) {
		return "", invalid(name, "code %d outside [0, %d]", code, len(labels)-1)
	}
	return labels[code], nil
}
