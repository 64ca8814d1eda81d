// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package styling reads the crossfade timing from the layout stylesheet so the
// controller and the CSS opacity transition use the same duration.
package styling

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// FadeProperty is the CSS custom property holding the crossfade duration.
const FadeProperty = "--backdrop-fade"

// ErrNoFade is returned when the stylesheet does not declare FadeProperty.
var ErrNoFade = errors.New("stylesheet does not declare " + FadeProperty)

var fadeDecl = regexp.MustCompile(`(?i)` + regexp.QuoteMeta(FadeProperty) + `\s*:\s*([0-9]*\.?[0-9]+)\s*(ms|s)\b`)

// comments returns the [start, end) ranges of CSS comments. An unterminated
// comment runs to the end of css.
func comments(css []byte) [][2]int {
	var out [][2]int
	for i := 0; i < len(css); {
		open := bytes.Index(css[i:], []byte("/*"))
		if open < 0 {
			break
		}
		start := i + open
		end := len(css)
		if closeAt := bytes.Index(css[start+2:], []byte("*/")); closeAt >= 0 {
			end = start + 2 + closeAt + 2
		}
		out = append(out, [2]int{start, end})
		i = end
	}
	return out
}

// declaration locates the first FadeProperty declaration outside comments.
// The result is in FindSubmatchIndex form, or nil.
func declaration(css []byte) []int {
	skip := comments(css)
	for _, loc := range fadeDecl.FindAllSubmatchIndex(css, -1) {
		commented := false
		for _, c := range skip {
			if loc[0] >= c[0] && loc[0] < c[1] {
				commented = true
				break
			}
		}
		if !commented {
			return loc
		}
	}
	return nil
}

// ParseFade returns the first FadeProperty declaration in css that is not
// commented out. Values accept CSS time units: "1.5s" or "1500ms".
func ParseFade(css []byte) (time.Duration, error) {
	loc := declaration(css)
	if loc == nil {
		return 0, ErrNoFade
	}
	m := [][]byte{css[loc[0]:loc[1]], css[loc[2]:loc[3]], css[loc[4]:loc[5]]}
	v, err := strconv.ParseFloat(string(m[1]), 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s value %q: %w", FadeProperty, m[1], err)
	}

	unit := time.Second
	if strings.EqualFold(string(m[2]), "ms") {
		unit = time.Millisecond
	}
	d := time.Duration(v * float64(unit))
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s%s", FadeProperty, m[1], m[2])
	}
	return d, nil
}

// LoadFade reads and parses the stylesheet at path.
func LoadFade(path string) (time.Duration, error) {
	css, err := os.ReadFile(path) // #nosec G304 -- operator supplied stylesheet
	if err != nil {
		return 0, fmt.Errorf("read stylesheet: %w", err)
	}
	return ParseFade(css)
}

// RewriteFade replaces the declaration ParseFade reads with d.
// css without a declaration is returned unchanged.
func RewriteFade(css []byte, d time.Duration) []byte {
	loc := declaration(css)
	if loc == nil {
		return css
	}
	value := strconv.FormatInt(d.Milliseconds(), 10) + "ms"
	out := make([]byte, 0, len(css)+len(value))
	out = append(out, css[:loc[2]]...)
	out = append(out, value...)
	out = append(out, css[loc[5]:]...)
	return out
}
