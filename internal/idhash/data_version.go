package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"prilythic/internal/domain"
)

// DataVersionLength is the number of hex characters kept in a data version.
const DataVersionLength = 12

// ComputeDataVersion computes a short hash of the training rows so two
// reports can be compared for identical training data.
// Formula: SHA256(sorted product|market|date|price lines)
// Row order does not matter.
func ComputeDataVersion(rows []*domain.FeatureRow) string {
	parts := make([]string, len(rows))
	for i, r := range rows {
		parts[i] = fmt.Sprintf("%s|%s|%s|%.6f",
			r.ProductCode, r.MarketID, r.Date.Format(domain.DateLayout), r.Price)
	}
	sort.Strings(parts)

	hash := sha256.Sum256([]byte(strings.Join(parts, "\n")))
	return hex.EncodeToString(hash[:])[:DataVersionLength]
}
