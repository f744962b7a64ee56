package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxSuggestDistance bounds the edit distance of a "did you mean" hint.
const maxSuggestDistance = 3

// Valid top-level keys (the flattened embedded sections plus the provider
// table) and valid keys inside [provider.<key>]. Sorted so ties in edit
// distance resolve the same way every run.
var (
	globalKeys = slices.Sorted(slices.Values([]string{
		"log_level", "log_format",
		"chunk_size", "temp_dir", "reject_expired_links",
		"connect_timeout", "user_agent",
		"token_db", "listing_cache_ttl",
		"provider",
	}))

	providerKeys = slices.Sorted(slices.Values([]string{
		"driver", "client_id", "client_secret", "redirect_uri", "home", "base_url",
	}))
)

// checkUnknownKeys turns every key the decoder left unused into an error,
// with a suggestion when a known key is close.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	for _, key := range md.Undecoded() {
		if len(key) >= 3 && key[0] == "provider" {
			errs = append(errs, unknownKeyError(
				fmt.Sprintf("unknown key %q in provider [%s]", key[2], key[1]), key[2], providerKeys))

			continue
		}

		// Globals are flat, so "network.user_agent" is matched on its leaf.
		errs = append(errs, unknownKeyError(
			fmt.Sprintf("unknown config key %q", key.String()), key[len(key)-1], globalKeys))
	}

	return errors.Join(errs...)
}

func unknownKeyError(msg, field string, known []string) error {
	if hint := closestMatch(field, known); hint != "" {
		return fmt.Errorf("%s: did you mean %q?", msg, hint)
	}

	return errors.New(msg)
}

// closestMatch returns the first known key with the smallest edit distance to
// field, or "" when none is within maxSuggestDistance.
func closestMatch(field string, known []string) string {
	best, bestDist := "", maxSuggestDistance+1

	for _, k := range known {
		if d := levenshtein(strings.ToLower(field), k); d < bestDist {
			best, bestDist = k, d
		}
	}

	return best
}

// levenshtein is the rune-wise edit distance between a and b, computed with
// two rolling rows.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)

	for j := range prev {
		prev[j] = j
	}

	for i, ca := range ra {
		curr[0] = i + 1

		for j, cb := range rb {
			cost := 1
			if ca == cb {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(rb)]
}
