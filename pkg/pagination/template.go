package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
)

var (
	// ErrMissingPathParams indicates the template names placeholders the
	// caller did not supply values for.
	ErrMissingPathParams = errors.New("missing required path parameters")

	// ErrUnknownPathParams indicates the caller supplied values for
	// placeholders the template does not contain.
	ErrUnknownPathParams = errors.New("unknown path parameters")

	// ErrMultipleListParams indicates more than one placeholder was given a
	// list of values. Only one placeholder may fan out.
	ErrMultipleListParams = errors.New("only one path parameter can accept a list of values")

	// ErrInvalidTemplate indicates a malformed endpoint template.
	ErrInvalidTemplate = errors.New("invalid endpoint template")
)

var (
	placeholderRe = regexp.MustCompile(`\{([^}]*)\}`)
	paramNameRe   = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
)

// ExtractPathParams returns the placeholder names of a path template in
// order of appearance, e.g. /hr/workers/{workerId}/jobs/{jobId} yields
// [workerId jobId].
func ExtractPathParams(template string) []string {
	matches := placeholderRe.FindAllStringSubmatch(template, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

// ValidatePathParams checks a parameter set against a template and returns
// the names of required placeholders that are missing.
func ValidatePathParams(template string, params map[string]any) []string {
	var missing []string
	for _, name := range ExtractPathParams(template) {
		if _, ok := params[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// IsValidEndpointPath reports whether a template is well formed: leading
// slash, balanced braces, identifier-shaped placeholder names.
func IsValidEndpointPath(template string) bool {
	if !strings.HasPrefix(template, "/") {
		return false
	}
	if strings.Count(template, "{") != strings.Count(template, "}") {
		return false
	}
	for _, name := range ExtractPathParams(template) {
		if !paramNameRe.MatchString(name) {
			return false
		}
	}
	return true
}

// SubstitutePathParams expands a path template with the given parameter
// values. A value is either a string or a []string; at most one parameter
// may be a list, and the list parameter fans the template out into one
// path per element. Values are URL-escaped. The second return value holds
// the resolved string parameters per path, aligned with the paths.
func SubstitutePathParams(template string, params map[string]any) ([]string, []map[string]string, error) {
	if missing := ValidatePathParams(template, params); len(missing) > 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrMissingPathParams, strings.Join(missing, ", "))
	}

	known := make(map[string]bool)
	for _, name := range ExtractPathParams(template) {
		known[name] = true
	}

	scalars := make(map[string]string)
	var listName string
	var listValues []string
	var unknown []string

	for name, value := range params {
		if !known[name] {
			unknown = append(unknown, name)
			continue
		}
		switch v := value.(type) {
		case []string:
			if listName != "" {
				return nil, nil, ErrMultipleListParams
			}
			listName = name
			listValues = v
		case string:
			scalars[name] = v
		default:
			scalars[name] = fmt.Sprint(v)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPathParams, strings.Join(unknown, ", "))
	}

	if listName == "" {
		return []string{substituteSingle(template, scalars)},
			[]map[string]string{scalars}, nil
	}

	paths := make([]string, 0, len(listValues))
	resolved := make([]map[string]string, 0, len(listValues))
	for _, value := range listValues {
		element := make(map[string]string, len(scalars)+1)
		for k, v := range scalars {
			element[k] = v
		}
		element[listName] = value
		paths = append(paths, substituteSingle(template, element))
		resolved = append(resolved, element)
	}

	return paths, resolved, nil
}

func substituteSingle(template string, params map[string]string) string {
	result := template
	for name, value := range params {
		result = strings.ReplaceAll(result, "{"+name+"}", url.PathEscape(value))
	}
	return result
}
