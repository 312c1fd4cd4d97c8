package routing

import "strings"

// PathPattern matches paths like /a/{id}/b. A parameter may carry a literal
// verb suffix ({field_id}:restore); a bare parameter never matches a value
// containing ':' so verb routes stay distinct from their resource route.
type PathPattern struct {
	raw      string
	segments []patternSegment
}

type patternSegment struct {
	literal string
	param   string
	suffix  string
}

func parsePathPattern(raw string) (PathPattern, bool) {
	if !strings.Contains(raw, "{") {
		return PathPattern{}, false
	}
	if raw == "" || raw[0] != '/' {
		return PathPattern{}, false
	}

	parts := splitPathSegments(raw)
	segments := make([]patternSegment, 0, len(parts))
	for _, s := range parts {
		if s == "" {
			return PathPattern{}, false
		}
		if !strings.Contains(s, "{") && !strings.Contains(s, "}") {
			segments = append(segments, patternSegment{literal: s})
			continue
		}
		seg, ok := parseParamSegment(s)
		if !ok {
			return PathPattern{}, false
		}
		segments = append(segments, seg)
	}
	return PathPattern{raw: raw, segments: segments}, true
}

func parseParamSegment(s string) (patternSegment, bool) {
	if !strings.HasPrefix(s, "{") {
		return patternSegment{}, false
	}
	end := strings.Index(s, "}")
	if end <= 1 {
		return patternSegment{}, false
	}
	name := s[1:end]
	suffix := s[end+1:]
	if strings.ContainsAny(name, "{}") || strings.ContainsAny(suffix, "{}") {
		return patternSegment{}, false
	}
	if suffix != "" && !strings.HasPrefix(suffix, ":") {
		return patternSegment{}, false
	}
	return patternSegment{param: name, suffix: suffix}, true
}

// Match reports whether path fits the pattern and returns the parameter values.
func (p PathPattern) Match(path string) (map[string]string, bool) {
	if p.raw == "" {
		return nil, false
	}
	in := splitPathSegments(path)
	if len(in) != len(p.segments) {
		return nil, false
	}
	params := map[string]string{}
	for i, want := range p.segments {
		got := in[i]
		if got == "" {
			return nil, false
		}
		if want.param == "" {
			if got != want.literal {
				return nil, false
			}
			continue
		}
		if want.suffix == "" {
			if strings.Contains(got, ":") {
				return nil, false
			}
			params[want.param] = got
			continue
		}
		value, ok := strings.CutSuffix(got, want.suffix)
		if !ok || value == "" {
			return nil, false
		}
		params[want.param] = value
	}
	return params, true
}

func splitPathSegments(path string) []string {
	path = strings.TrimSpace(path)
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
