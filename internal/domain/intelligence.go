package domain

import "encoding/json"

// StringSet is an insertion-ordered set of strings. The zero value is an
// empty set. Operations never mutate the receiver.
type StringSet []string

// NewStringSet builds a set from values, dropping duplicates and keeping
// first-seen order.
func NewStringSet(values ...string) StringSet {
	s, _ := StringSet(nil).Union(values)
	return s
}

// Contains reports whether v is a member of the set.
func (s StringSet) Contains(v string) bool {
	for _, existing := range s {
		if existing == v {
			return true
		}
	}
	return false
}

// Union returns a new set holding s followed by the members of values not
// already present, and the number of members added.
func (s StringSet) Union(values []string) (StringSet, int) {
	out := make(StringSet, len(s), len(s)+len(values))
	copy(out, s)
	added := 0
	for _, v := range values {
		if out.Contains(v) {
			continue
		}
		out = append(out, v)
		added++
	}
	if len(out) == 0 {
		return nil, 0
	}
	return out, added
}

// MarshalJSON encodes an empty set as [] rather than null.
func (s StringSet) MarshalJSON() ([]byte, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal([]string(s))
}

// IntelligenceSet is the cumulative intelligence harvested from a
// conversation. Values never leave a category once added.
type IntelligenceSet struct {
	BankAccounts       StringSet `json:"bankAccounts"`
	UPIIDs             StringSet `json:"upiIds"`
	PhishingLinks      StringSet `json:"phishingLinks"`
	PhoneNumbers       StringSet `json:"phoneNumbers"`
	SuspiciousKeywords StringSet `json:"suspiciousKeywords"`
}

// Len is the total number of values across all categories.
func (i IntelligenceSet) Len() int {
	return len(i.BankAccounts) + len(i.UPIIDs) + len(i.PhishingLinks) +
		len(i.PhoneNumbers) + len(i.SuspiciousKeywords)
}

// IsEmpty reports whether no category holds a value.
func (i IntelligenceSet) IsEmpty() bool {
	return i.Len() == 0
}

// HasConfirmed reports whether at least one concrete artifact is present.
// Suspicious keywords alone are not confirmation.
func (i IntelligenceSet) HasConfirmed() bool {
	return len(i.BankAccounts) > 0 || len(i.UPIIDs) > 0 ||
		len(i.PhishingLinks) > 0 || len(i.PhoneNumbers) > 0
}

// Clone returns a copy that shares no backing arrays with i.
func (i IntelligenceSet) Clone() IntelligenceSet {
	return IntelligenceSet{
		BankAccounts:       NewStringSet(i.BankAccounts...),
		UPIIDs:             NewStringSet(i.UPIIDs...),
		PhishingLinks:      NewStringSet(i.PhishingLinks...),
		PhoneNumbers:       NewStringSet(i.PhoneNumbers...),
		SuspiciousKeywords: NewStringSet(i.SuspiciousKeywords...),
	}
}

// Merge unions incoming into existing category by category. grew is true
// only when the total number of values strictly increased, so merging the
// same fragment twice reports growth at most once.
func Merge(existing, incoming IntelligenceSet) (updated IntelligenceSet, grew bool) {
	var added, n int
	updated.BankAccounts, n = existing.BankAccounts.Union(incoming.BankAccounts)
	added += n
	updated.UPIIDs, n = existing.UPIIDs.Union(incoming.UPIIDs)
	added += n
	updated.PhishingLinks, n = existing.PhishingLinks.Union(incoming.PhishingLinks)
	added += n
	updated.PhoneNumbers, n = existing.PhoneNumbers.Union(incoming.PhoneNumbers)
	added += n
	updated.SuspiciousKeywords, n = existing.SuspiciousKeywords.Union(incoming.SuspiciousKeywords)
	added += n
	return updated, added > 0
}
