package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/ledgerx/backend/internal/models"
)

// hashContent is the canonical rendering of an entry. Field order is fixed by
// the struct, amounts are rendered as decimal strings and times in UTC, so the
// same entry always hashes to the same digest.
type hashContent struct {
	ID            string `json:"id"`
	AccountID     string `json:"accountId"`
	UserID        string `json:"userId"`
	Type          string `json:"type"`
	Amount        string `json:"amount"`
	Category      string `json:"category"`
	Timestamp     string `json:"timestamp"`
	TransactionID string `json:"transactionId"`
	PrevHash      string `json:"prevHash"`
	IsReversal    bool   `json:"isReversal"`
	OriginalHash  string `json:"originalHash"`
	Token         string `json:"token,omitempty"`
}

// HashEntry returns the hex SHA-256 digest of the entry's content. The Hash
// field itself is not part of the digest. token lets reversals mix in a
// uniqueness value; settlements pass "".
func HashEntry(entry models.LedgerEntry, token string) string {
	content := hashContent{
		ID:            entry.ID,
		AccountID:     entry.AccountID,
		UserID:        entry.UserID,
		Type:          string(entry.Type),
		Amount:        entry.Amount.String(),
		Category:      entry.Category,
		Timestamp:     entry.Timestamp.UTC().Format(time.RFC3339Nano),
		TransactionID: entry.TransactionID,
		PrevHash:      entry.PrevHash,
		IsReversal:    entry.IsReversal,
		OriginalHash:  entry.OriginalHash,
		Token:         token,
	}
	data, _ := json.Marshal(content)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashPair(left, right string) string {
	sum := sha256.Sum256([]byte(left + right))
	return hex.EncodeToString(sum[:])
}

// MerkleRoot folds the hashes pairwise up to a single root. An odd node at
// the end of a level is promoted unchanged. Returns "" for no hashes.
func MerkleRoot(hashes []string) string {
	if len(hashes) == 0 {
		return ""
	}
	level := make([]string, len(hashes))
	copy(level, hashes)

	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashPair(level[i], level[i+1]))
			} else {
				next = append(next, level[i])
			}
		}
		level = next
	}
	return level[0]
}

// VerifyEntries recomputes settlement entry hashes and returns the ids of
// entries whose stored hash does not match. Reversal entries mix in a random
// token and cannot be recomputed, so they are skipped.
func VerifyEntries(entries []models.LedgerEntry) []string {
	var mismatched []string
	for _, e := range entries {
		if e.IsReversal {
			continue
		}
		if HashEntry(e, "") != e.Hash {
			mismatched = append(mismatched, e.ID)
		}
	}
	return mismatched
}
