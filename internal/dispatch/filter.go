package dispatch

import "strings"

// Filters narrow a batch to matching successes. Failed results always
// pass, so a filtered report still shows every URL needing attention.
type Filters struct {
	Sender    string
	Recipient string
	Carrier   string
}

// Empty reports whether no filter is set.
func (f Filters) Empty() bool {
	return f.Sender == "" && f.Recipient == "" && f.Carrier == ""
}

// Apply keeps the results whose package matches every set filter, plus
// every failed result. Matching is case-insensitive substring matching.
func (f Filters) Apply(results []Result) []Result {
	if f.Empty() {
		return results
	}
	out := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Err != nil || f.matches(r) {
			out = append(out, r)
		}
	}
	return out
}

func (f Filters) matches(r Result) bool {
	if r.Package == nil {
		return false
	}
	if f.Carrier != "" && !containsFold(r.Package.Channel, f.Carrier) {
		return false
	}
	if f.Sender != "" && !containsFoldPtr(r.Package.Sender, f.Sender) {
		return false
	}
	if f.Recipient != "" && !containsFoldPtr(r.Package.Recipient, f.Recipient) {
		return false
	}
	return true
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func containsFoldPtr(haystack *string, needle string) bool {
	return haystack != nil && containsFold(*haystack, needle)
}
