// Package scoring turns an uploaded assessment into per-system health scores.
package scoring

import (
	"crypto/md5" //nolint:gosec // used as a seed, not for security
	"math/big"
	"strings"
)

// CanonicalSystems lists the organizational systems in display order.
var CanonicalSystems = []string{
	"interdependency",
	"orchestration",
	"investigation",
	"interpretation",
	"illustration",
	"inlignment",
}

var legacySystemKeys = map[string]string{
	"dependency":    "interdependency",
	"dependencies":  "interdependency",
	"analysis":      "investigation",
	"research":      "investigation",
	"insights":      "interpretation",
	"reporting":     "illustration",
	"visualization": "illustration",
	"coordination":  "inlignment",
	"strategy":      "inlignment",
	"alignment":     "inlignment",
	"inlign":        "inlignment",
}

// NormalizeSystemKey maps legacy and mixed-case names to a canonical key.
// An empty key defaults to investigation.
func NormalizeSystemKey(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return "investigation"
	}
	if canonical, ok := legacySystemKeys[k]; ok {
		return canonical
	}
	return k
}

// IsCanonical reports whether key names one of the CanonicalSystems.
func IsCanonical(key string) bool {
	for _, s := range CanonicalSystems {
		if s == key {
			return true
		}
	}
	return false
}

// DetectSystems guesses which systems a file name or text refers to. When
// nothing matches, two systems are picked deterministically from the text.
func DetectSystems(nameOrText string) []string {
	lowered := strings.ToLower(nameOrText)

	found := make([]string, 0, 2)
	for _, s := range CanonicalSystems {
		match := strings.Contains(lowered, s)
		switch s {
		case "inlignment":
			match = match || strings.Contains(lowered, "alignment") || strings.Contains(lowered, "inlign")
		case "investigation":
			match = match || strings.Contains(lowered, "investig")
		}
		if match {
			found = append(found, s)
		}
	}
	if len(found) > 0 {
		return found
	}

	h := seedHash(lowered)
	n := big.NewInt(int64(len(CanonicalSystems)))
	idx1 := new(big.Int).Mod(h, n).Int64()
	idx2 := new(big.Int).Mod(new(big.Int).Div(h, big.NewInt(7)), n).Int64()
	if idx2 == idx1 {
		idx2 = (idx2 + 1) % int64(len(CanonicalSystems))
	}
	return []string{CanonicalSystems[idx1], CanonicalSystems[idx2]}
}

// DeterministicMetrics derives stable pseudo-metrics for a tenant and system
// so repeated runs over the same input agree.
func DeterministicMetrics(tenantSeed, systemID string) map[string]int {
	h := seedHash(tenantSeed + "::" + systemID)
	bits := func(shift uint, mod int64) int {
		v := new(big.Int).Rsh(h, shift)
		return int(new(big.Int).Mod(v, big.NewInt(mod)).Int64())
	}
	return map[string]int{
		"throughput":     55 + bits(0, 41),
		"cycle_time":     50 + bits(3, 46),
		"quality":        45 + bits(5, 50),
		"predictability": 40 + bits(7, 55),
	}
}

func seedHash(s string) *big.Int {
	sum := md5.Sum([]byte(s)) //nolint:gosec // deterministic seed only
	return new(big.Int).SetBytes(sum[:])
}
