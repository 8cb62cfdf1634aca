package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys lists the valid keys of every section.
var knownKeys = map[string][]string{
	"graph":         {"base_url", "drive_id", "root_path", "token_path"},
	"image_hosting": {"enabled", "path"},
	"security":      {"admin_keys", "app_secret"},
	"cache":         {"backend", "dir", "ttl"},
	"server":        {"listen", "max_upload_size", "public_url"},
	"logging":       {"log_format", "log_level"},
	"network":       {"connect_timeout", "data_timeout", "user_agent"},
}

// knownSections is the sorted section list for Levenshtein matching.
// Sorted for deterministic suggestions when two candidates have the same
// edit distance.
var knownSections = func() []string {
	keys := make([]string, 0, len(knownKeys))
	for k := range knownKeys {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	undecoded := md.Undecoded()
	if len(undecoded) == 0 {
		return nil
	}

	var errs []error

	// An unknown table is reported once, not once per key inside it.
	reported := make(map[string]bool)

	for _, key := range undecoded {
		section := key[0]
		if _, known := knownKeys[section]; !known {
			if reported[section] {
				continue
			}

			reported[section] = true

			if len(key) == 1 && md.Type(section) != "Hash" {
				errs = append(errs, withSuggestion(
					fmt.Sprintf("unknown config key %q", section), section, knownSections))

				continue
			}

			errs = append(errs, withSuggestion(
				fmt.Sprintf("unknown config section [%s]", section), section, knownSections))

			continue
		}

		errs = append(errs, buildKeyError(key))
	}

	return errors.Join(errs...)
}

// buildKeyError describes an undecoded key inside a known section,
// suggesting the closest known key.
func buildKeyError(key toml.Key) error {
	section, field := key[0], strings.Join(key[1:], ".")
	known := knownKeys[section]

	return withSuggestion(fmt.Sprintf("unknown config key %q in [%s]", field, section), field, known)
}

func withSuggestion(msg, unknown string, known []string) error {
	if suggestion := closestMatch(unknown, known); suggestion != "" {
		return fmt.Errorf("%s, did you mean %q?", msg, suggestion)
	}

	return errors.New(msg)
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings using a
// single rolling row.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
