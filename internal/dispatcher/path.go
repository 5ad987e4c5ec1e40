package dispatcher

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/melosso/portway/internal/catalog"
	"github.com/melosso/portway/internal/odata"
)

// idSuffixRE splits a path segment into its bare name and an optional
// id-suffix, per the grammar in §4.9:
//
//	<endpoint>[<id-suffix>]
//	<id-suffix> ::= "(" <literal> ")"
var idSuffixRE = regexp.MustCompile(`^([A-Za-z][A-Za-z0-9_]*)(?:\((.*)\))?$`)

var (
	integerLiteralRE = regexp.MustCompile(`^-?[0-9]+$`)
	guidLiteralRE    = regexp.MustCompile(`^guid'([0-9a-fA-F-]+)'$`)
	stringLiteralRE  = regexp.MustCompile(`^'(.*)'$`)
)

// ParsedPath is the result of classifying one request path against
// the grammar in §4.9.
type ParsedPath struct {
	Environment string
	Namespace   string
	EndpointRaw string // the bare endpoint name, id-suffix stripped
	IDValue     string // "" when no id-suffix was present
	IDKind      odata.IDLiteralKind
	HasID       bool
	Remainder   string // joined with "/", "" when nothing follows
}

// parseIDSuffix splits segment into its name and, if present, its id
// literal's shape and raw value.
func parseIDSuffix(segment string) (name string, hasID bool, value string, kind odata.IDLiteralKind, err error) {
	m := idSuffixRE.FindStringSubmatch(segment)
	if m == nil {
		return "", false, "", 0, fmt.Errorf("invalid path segment %q", segment)
	}
	name = m[1]
	if m[2] == "" {
		return name, false, "", 0, nil
	}
	literal := m[2]
	switch {
	case integerLiteralRE.MatchString(literal):
		return name, true, literal, odata.IDNumber, nil
	case guidLiteralRE.MatchString(literal):
		return name, true, guidLiteralRE.FindStringSubmatch(literal)[1], odata.IDGUID, nil
	case stringLiteralRE.MatchString(literal):
		return name, true, stringLiteralRE.FindStringSubmatch(literal)[1], odata.IDString, nil
	default:
		return "", false, "", 0, fmt.Errorf("unrecognised id literal %q", literal)
	}
}

// ParsePath classifies rest (the request path with any leading "/api/"
// already stripped by the caller) into environment, namespace, endpoint,
// id-suffix and remainder, resolving the namespace/no-namespace ambiguity
// against snap per the resolution order in §4.9: the two-segment
// (namespace, endpoint) reading is tried first, falling back to the
// one-segment (no namespace) reading when it doesn't resolve.
func ParsePath(rest string, snap *catalog.Snapshot) (*ParsedPath, error) {
	segments := splitPath(rest)
	if len(segments) == 0 {
		return nil, fmt.Errorf("empty path")
	}

	env := segments[0]
	tail := segments[1:]
	if len(tail) == 0 {
		return nil, fmt.Errorf("path names no endpoint")
	}

	// Webhook reading: "webhook" is a reserved namespace name (§3), so it
	// can never collide with a real (namespace, endpoint) pair — it marks
	// the fixed ingestion path documented in §4.10, where the segment that
	// follows the endpoint name is the webhook id rather than a remainder
	// forwarded anywhere.
	if tail[0] == "webhook" && len(tail) >= 2 {
		if _, ok := snap.Lookup("", tail[1]); ok {
			return &ParsedPath{
				Environment: env,
				Namespace:   "",
				EndpointRaw: tail[1],
				Remainder:   strings.Join(tail[2:], "/"),
			}, nil
		}
	}

	// Two-segment reading: tail[0] is a namespace, tail[1] carries the
	// endpoint (+ id-suffix), tail[2:] is the remainder.
	if len(tail) >= 2 {
		name, hasID, idValue, idKind, err := parseIDSuffix(tail[1])
		if err == nil {
			if _, ok := snap.Lookup(tail[0], name); ok {
				return &ParsedPath{
					Environment: env,
					Namespace:   tail[0],
					EndpointRaw: name,
					HasID:       hasID,
					IDValue:     idValue,
					IDKind:      idKind,
					Remainder:   strings.Join(tail[2:], "/"),
				}, nil
			}
		}
	}

	// One-segment reading: tail[0] carries the endpoint (+ id-suffix), no
	// namespace, tail[1:] is the remainder.
	name, hasID, idValue, idKind, err := parseIDSuffix(tail[0])
	if err != nil {
		return nil, err
	}
	return &ParsedPath{
		Environment: env,
		Namespace:   "",
		EndpointRaw: name,
		HasID:       hasID,
		IDValue:     idValue,
		IDKind:      idKind,
		Remainder:   strings.Join(tail[1:], "/"),
	}, nil
}

func splitPath(p string) []string {
	p = strings.Trim(p, "/")
	if p == "" {
		return nil
	}
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
