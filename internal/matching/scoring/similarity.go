package scoring

import (
	"strings"

	"github.com/texttheater/golang-levenshtein/levenshtein"
)

// nameSimilarity scores how closely a bank counterparty name resembles a
// customer display name, normalized to [0,1]. Each customer-name token is
// matched against its best counterpart by edit distance and the per-token
// similarities are averaged, so word order and legal-form suffixes in the
// bank text do not dominate.
func nameSimilarity(counterparty, customerName string) float64 {
	ctokens := strings.Fields(normalizeName(counterparty))
	ntokens := strings.Fields(normalizeName(customerName))
	if len(ctokens) == 0 || len(ntokens) == 0 {
		return 0
	}

	var total float64
	for _, want := range ntokens {
		best := 0.0
		for _, got := range ctokens {
			if sim := tokenSimilarity(want, got); sim > best {
				best = sim
			}
		}
		total += best
	}
	return total / float64(len(ntokens))
}

func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	maxLen := len(ra)
	if len(rb) > maxLen {
		maxLen = len(rb)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.DistanceForStrings(ra, rb, levenshtein.DefaultOptions)
	return 1 - float64(dist)/float64(maxLen)
}

var namePunctuation = strings.NewReplacer(".", "", ",", "", "-", " ", "/", " ", "'", "")

func normalizeName(s string) string {
	return strings.TrimSpace(namePunctuation.Replace(strings.ToUpper(s)))
}

// normalizeReference strips everything but letters and digits so invoice
// numbers survive the formatting bank remittance text applies to them.
func normalizeReference(s string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// lastDigits returns up to n trailing digit characters of a normalized
// reference, used for partial reference credit.
func lastDigits(s string, n int) string {
	digits := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			digits = append(digits, r)
		}
	}
	if len(digits) <= n {
		return string(digits)
	}
	return string(digits[len(digits)-n:])
}
