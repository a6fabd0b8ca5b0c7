// Package solvercfg rewrites directives in the solver's text configuration.
//
// The configuration is a line-oriented KEY= value format where '%' starts a
// comment. Only lines whose key matches an override are touched; every
// other byte of the template is preserved, including line endings.
package solvercfg

import (
	"bytes"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var directiveKey = regexp.MustCompile(`^\s*([A-Za-z0-9_]+)\s*=`)

// Rewrite returns a copy of template with each directive named in overrides
// set to its value. Directives missing from the template are appended at
// the end in sorted order and reported in appended.
func Rewrite(template []byte, overrides map[string]string) (out []byte, appended []string, err error) {
	for k, v := range overrides {
		if !directiveKey.MatchString(k + "=") {
			return nil, nil, fmt.Errorf("invalid directive name %q", k)
		}
		if strings.ContainsAny(v, "\r\n") {
			return nil, nil, fmt.Errorf("directive %s: value must be a single line", k)
		}
	}

	eol := []byte("\n")
	if bytes.Contains(template, []byte("\r\n")) {
		eol = []byte("\r\n")
	}

	seen := make(map[string]bool, len(overrides))
	var buf bytes.Buffer
	buf.Grow(len(template) + 64)

	lines := bytes.SplitAfter(template, []byte("\n"))
	for _, line := range lines {
		if len(line) == 0 {
			continue
		}
		m := directiveKey.FindSubmatch(line)
		if m == nil {
			buf.Write(line)
			continue
		}
		key := string(m[1])
		value, ok := overrides[key]
		if !ok {
			buf.Write(line)
			continue
		}
		seen[key] = true
		buf.WriteString(key + "= " + value)
		buf.Write(lineEnding(line))
	}

	for k := range overrides {
		if !seen[k] {
			appended = append(appended, k)
		}
	}
	sort.Strings(appended)
	if len(appended) > 0 {
		if buf.Len() > 0 && !bytes.HasSuffix(buf.Bytes(), []byte("\n")) {
			buf.Write(eol)
		}
		for _, k := range appended {
			buf.WriteString(k + "= " + overrides[k])
			buf.Write(eol)
		}
	}
	return buf.Bytes(), appended, nil
}

// Directive returns the value of key in a configuration, if present.
// The last occurrence wins, matching how the solver reads the file.
func Directive(cfg []byte, key string) (string, bool) {
	var (
		value string
		found bool
	)
	for _, line := range bytes.Split(cfg, []byte("\n")) {
		m := directiveKey.FindSubmatch(line)
		if m == nil || string(m[1]) != key {
			continue
		}
		value = strings.TrimSpace(string(line[len(m[0]):]))
		found = true
	}
	return value, found
}

func lineEnding(line []byte) []byte {
	switch {
	case bytes.HasSuffix(line, []byte("\r\n")):
		return []byte("\r\n")
	case bytes.HasSuffix(line, []byte("\n")):
		return []byte("\n")
	default:
		return nil
	}
}
