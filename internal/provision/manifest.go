// Package provision installs format packs: parse a manifest, resolve each
// requirement against a published index, fetch and verify the artifacts, and
// commit the whole set to a loam document store in one transaction.
//
// The pipeline is all-or-nothing. Any failure before the final commit leaves
// the destination store exactly as it was.
package provision

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/mod/semver"
)

// Requirement is one manifest line: a pack name and a version constraint.
type Requirement struct {
	Name       string
	Constraint Constraint
}

func (r Requirement) String() string {
	return r.Name + "@" + r.Constraint.String()
}

// Constraint is a parsed version constraint.
//
//	latest    any published version, highest wins
//	v1.2.3    exactly that version
//	^v1.2.3   same major, at least v1.2.3
//	~v1.2.3   same major.minor, at least v1.2.3
type Constraint struct {
	Op      string // "", "^", "~" or "latest"
	Version string // canonical semver, empty for latest
}

// Latest matches any published version.
var Latest = Constraint{Op: "latest"}

func (c Constraint) String() string {
	if c.Op == "latest" {
		return "latest"
	}
	return c.Op + c.Version
}

// Matches reports whether version v satisfies the constraint.
func (c Constraint) Matches(v string) bool {
	if !semver.IsValid(v) {
		return false
	}
	switch c.Op {
	case "latest":
		return true
	case "^":
		return semver.Major(v) == semver.Major(c.Version) && semver.Compare(v, c.Version) >= 0
	case "~":
		return semver.MajorMinor(v) == semver.MajorMinor(c.Version) && semver.Compare(v, c.Version) >= 0
	default:
		return semver.Compare(v, c.Version) == 0
	}
}

// ParseConstraint parses a constraint string. The leading "v" on versions is
// optional in manifests and added back here.
func ParseConstraint(s string) (Constraint, error) {
	if s == "" || s == "latest" {
		return Latest, nil
	}

	op := ""
	rest := s
	if strings.HasPrefix(s, "^") || strings.HasPrefix(s, "~") {
		op, rest = s[:1], s[1:]
	}
	if !strings.HasPrefix(rest, "v") {
		rest = "v" + rest
	}
	if !semver.IsValid(rest) {
		return Constraint{}, fmt.Errorf("invalid version constraint %q", s)
	}
	return Constraint{Op: op, Version: semver.Canonical(rest)}, nil
}

// ParseManifest reads requirements from r, one per line in name@constraint
// form. The constraint is optional and defaults to latest. Blank lines and
// lines starting with # are ignored.
func ParseManifest(r io.Reader) ([]Requirement, error) {
	var reqs []Requirement
	seen := make(map[string]int)

	sc := bufio.NewScanner(r)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		name, rawConstraint, _ := strings.Cut(text, "@")
		name = strings.TrimSpace(name)
		if name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("manifest line %d: malformed specifier %q", line, text)
		}
		c, err := ParseConstraint(strings.TrimSpace(rawConstraint))
		if err != nil {
			return nil, fmt.Errorf("manifest line %d: %w", line, err)
		}
		if prev, dup := seen[name]; dup {
			return nil, fmt.Errorf("manifest line %d: pack %q already declared on line %d", line, name, prev)
		}
		seen[name] = line
		reqs = append(reqs, Requirement{Name: name, Constraint: c})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	return reqs, nil
}

// ParseManifestFile reads requirements from the file at path.
func ParseManifestFile(path string) ([]Requirement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()
	return ParseManifest(f)
}
