package loader

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Header is the optional YAML block at the top of a template file:
//
//	/*---
//	description: user queries
//	owner: accounts
//	target: sqlite
//	---*/
//
// Unknown fields are rejected; use meta for extensions.
type Header struct {
	Description string         `yaml:"description"`
	Owner       string         `yaml:"owner"`
	Tags        []string       `yaml:"tags"`
	Target      string         `yaml:"target"`          // database type the template is written for
	Escape      *bool          `yaml:"escape_rendered"` // overrides result escaping for this file
	Meta        map[string]any `yaml:"meta"`
}

var headerFields = []string{"description", "owner", "tags", "target", "escape_rendered", "meta"}

// headerPattern matches a /*--- ... ---*/ block at the start of the file.
var headerPattern = regexp.MustCompile(`(?s)^\s*/\*---\s*\n(.*?)\s*---\*/`)

// ExtractHeader parses the header of content, if any, and returns the text with
// the header replaced by as many newlines as it spanned, so block line numbers
// do not move. A file without a header yields a nil Header.
func ExtractHeader(file, content string) (*Header, string, error) {
	loc := headerPattern.FindStringSubmatchIndex(content)
	if loc == nil {
		return nil, content, nil
	}

	block := content[loc[0]:loc[1]]
	line := strings.Count(content[:strings.Index(content, "/*---")], "\n") + 1
	h, err := parseHeaderYAML(content[loc[2]:loc[3]])
	if err != nil {
		switch e := err.(type) {
		case *HeaderError:
			e.File, e.Line = file, line
		case *UnknownFieldError:
			e.File = file
		}
		return nil, "", err
	}

	blank := strings.Repeat("\n", strings.Count(block, "\n"))
	return h, blank + content[loc[1]:], nil
}

func parseHeaderYAML(src string) (*Header, error) {
	var raw map[string]any
	if err := yaml.Unmarshal([]byte(src), &raw); err != nil {
		return nil, &HeaderError{Message: fmt.Sprintf("invalid YAML: %v", err)}
	}
	for field := range raw {
		if !slices.Contains(headerFields, field) {
			return nil, &UnknownFieldError{Field: field}
		}
	}

	h := &Header{}
	if err := yaml.Unmarshal([]byte(src), h); err != nil {
		return nil, &HeaderError{Message: fmt.Sprintf("failed to parse header: %v", err)}
	}
	for _, tag := range h.Tags {
		if strings.TrimSpace(tag) == "" {
			return nil, &HeaderError{Message: "tags must not be empty"}
		}
	}
	return h, nil
}

// HeaderError represents a malformed template header.
type HeaderError struct {
	File    string
	Line    int
	Message string
}

func (e *HeaderError) Error() string {
	if e.File != "" {
		if e.Line > 0 {
			return fmt.Sprintf("%s:%d: %s", e.File, e.Line, e.Message)
		}
		return fmt.Sprintf("%s: %s", e.File, e.Message)
	}
	return e.Message
}

// UnknownFieldError represents an unknown header field.
type UnknownFieldError struct {
	File  string
	Field string
}

func (e *UnknownFieldError) Error() string {
	msg := fmt.Sprintf("unknown field %q in header, use \"meta\" for custom fields", e.Field)
	if e.File != "" {
		return fmt.Sprintf("%s: %s", e.File, msg)
	}
	return msg
}
