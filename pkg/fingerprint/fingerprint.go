// Package fingerprint derives a content hash identifying a product by its
// review set, independent of the URL it was crawled from. Size and colour
// variants of one product render the same reviews, so equal hashes mean
// "the same underlying product".
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"regexp"
	"sort"
	"strings"

	"review-scraper/pkg/models"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// canonicalTuple is the normalized payload hashed per review. Field order is
// fixed by the struct, which keeps the serialization deterministic.
type canonicalTuple struct {
	User    string `json:"user"`
	Rating  string `json:"rating"`
	Comment string `json:"comment"`
	Date    string `json:"date"`
}

// CleanString collapses whitespace runs (including non-breaking spaces),
// trims and lower-cases s.
func CleanString(s string) string {
	s = strings.ReplaceAll(s, " ", " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	return strings.ToLower(strings.TrimSpace(s))
}

// FromReviews computes the product fingerprint for a sample of reviews.
// The same multiset of reviews in any input order yields the same hash:
// tuples are canonicalized and sorted by user+date+comment before hashing.
// Rating participates in the payload but never in the sort key.
func FromReviews(reviews []models.Review) string {
	tuples := make([]canonicalTuple, 0, len(reviews))
	for _, r := range reviews {
		tuples = append(tuples, canonicalTuple{
			User:    CleanString(r.User),
			Rating:  strings.TrimSpace(r.Rating),
			Comment: CleanString(r.Comment),
			Date:    CleanString(r.Date),
		})
	}

	sort.SliceStable(tuples, func(i, j int) bool {
		ki := tuples[i].User + tuples[i].Date + tuples[i].Comment
		kj := tuples[j].User + tuples[j].Date + tuples[j].Comment
		return ki < kj
	})

	// json.Marshal on a slice of structs is deterministic given fixed field order
	payload, err := json.Marshal(tuples)
	if err != nil {
		// Only reachable with non-UTF8 garbage; hash the raw concatenation instead
		var sb strings.Builder
		for _, t := range tuples {
			sb.WriteString(t.User)
			sb.WriteString(t.Rating)
			sb.WriteString(t.Comment)
			sb.WriteString(t.Date)
		}
		payload = []byte(sb.String())
	}

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
