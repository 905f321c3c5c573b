package bundle

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/wardroster/wardroster/internal/types"
)

// DSLSHA256 fingerprints one rule version's DSL text.
func DSLSHA256(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// Hash computes the bundle content hash: sha256 over the sorted canonical
// item lines. Item order and duplicate submissions do not change the hash;
// any change to membership, version, text, type, priority, or enablement
// does.
func Hash(items []types.RuleBundleItem) string {
	lines := make([]string, len(items))
	for i, it := range items {
		lines[i] = fmt.Sprintf("%s|%s|%s|%s|%s|%d|%t",
			it.Layer, it.RuleID, it.RuleVersionID, it.DSLSHA256, it.RuleType, it.Priority, it.Enabled)
	}
	sort.Strings(lines)
	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
