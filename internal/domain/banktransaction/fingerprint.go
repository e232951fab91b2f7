package banktransaction

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Fingerprint computes the deterministic dedup hash for a transaction.
// It is a function of company, bank account, the exact decimal amount and
// the booking date, plus the best available stable identifier: the
// bank-provided external id when present, otherwise the normalized
// description and counterparty. Re-importing the same feed or file yields
// the same fingerprint and is rejected by the (company_id, fingerprint)
// uniqueness constraint.
func Fingerprint(t *Transaction) string {
	h := sha256.New()
	h.Write([]byte(t.CompanyID.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(t.BankAccountID.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(t.Amount.String()))
	h.Write([]byte{'|'})
	h.Write([]byte(t.BookingDate.Format("2006-01-02")))
	h.Write([]byte{'|'})

	if t.ExternalID != "" {
		h.Write([]byte("ext:"))
		h.Write([]byte(t.ExternalID))
	} else {
		h.Write([]byte("desc:"))
		h.Write([]byte(normalizeText(t.Description)))
		h.Write([]byte{'|'})
		h.Write([]byte(normalizeText(t.CounterpartyName)))
	}

	return hex.EncodeToString(h.Sum(nil))
}

// normalizeText collapses whitespace and case so that cosmetic differences
// between feed deliveries do not defeat deduplication.
func normalizeText(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(s)), " ")
}
