package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Output formats accepted by -o.
var outputFormats = []string{"table", "json", "yaml"}

// OutputFlags are shared by commands that print structured results.
type OutputFlags struct {
	Format string
	Quiet  bool
}

// AddOutputFlags adds -o and -q to cmd and validates -o as it is set.
func AddOutputFlags(cmd *cobra.Command) *OutputFlags {
	flags := &OutputFlags{}
	cmd.Flags().StringVarP(&flags.Format, "output", "o", "table", "Output format (table|json|yaml)")
	cmd.Flags().BoolVarP(&flags.Quiet, "quiet", "q", false, "Suppress the summary line")

	AddFlagValidation(cmd.Flags(), "output", func(format string) error {
		return ValidateFormatWithSuggestion(format, outputFormats)
	})

	return flags
}

// AddFlagValidation wraps the named flag so that invalid values are
// rejected while the command line is parsed.
func AddFlagValidation(fs *pflag.FlagSet, flagName string, validator func(string) error) {
	flag := fs.Lookup(flagName)
	if flag == nil {
		return
	}

	flag.Value = &validatingValue{
		Value:       flag.Value,
		validator:   validator,
		originalSet: flag.Value.Set,
	}
}

type validatingValue struct {
	pflag.Value
	validator   func(string) error
	originalSet func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}

	return v.originalSet(val)
}

// ValidateFormatWithSuggestion accepts value when it case-insensitively
// equals one of valid, and otherwise suggests the closest candidate.
func ValidateFormatWithSuggestion(value string, valid []string) error {
	for _, v := range valid {
		if strings.EqualFold(value, v) {
			return nil
		}
	}

	msg := fmt.Sprintf("invalid value %q, must be one of: %s", value, strings.Join(valid, ", "))
	if s := closest(strings.ToLower(value), valid); s != "" {
		msg += fmt.Sprintf(" (did you mean %q?)", s)
	}

	return fmt.Errorf("%s", msg)
}

// closest returns the candidate within edit distance 2 of value, or the
// first candidate value is a prefix of.
func closest(value string, candidates []string) string {
	if value == "" {
		return ""
	}
	best, bestDist := "", 3
	for _, c := range candidates {
		if strings.HasPrefix(c, value) {
			return c
		}
		if d := levenshtein(value, c); d < bestDist {
			best, bestDist = c, d
		}
	}

	return best
}

func levenshtein(a, b string) int {
	prev := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(a); i++ {
		cur := make([]int, len(b)+1)
		cur[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev = cur
	}

	return prev[len(b)]
}

// ValidateFileExists accepts an empty name or an existing file.
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil
	}
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}

	return nil
}

// ValidateJSON accepts an empty string or a JSON object.
func ValidateJSON(jsonStr string) error {
	if jsonStr == "" {
		return nil
	}

	var temp map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &temp); err != nil {
		return fmt.Errorf("invalid JSON object: %w", err)
	}

	return nil
}
