package dispatch

import "fmt"

// arguments wraps the raw invocation argument map with typed, validating
// accessors.
type arguments map[string]any

func (a arguments) str(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	if s == "" {
		return "", fmt.Errorf("argument %q must not be empty", key)
	}
	return s, nil
}

func (a arguments) strDefault(key, fallback string) (string, error) {
	v, ok := a[key]
	if !ok {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	if s == "" {
		return fallback, nil
	}
	return s, nil
}

// text requires the key to be present but allows an empty value. File
// content may legitimately be empty.
func (a arguments) text(key string) (string, error) {
	v, ok := a[key]
	if !ok {
		return "", fmt.Errorf("missing required argument %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("argument %q must be a string", key)
	}
	return s, nil
}

// num accepts both int and float64: arguments decoded from JSON arrive as
// float64.
func (a arguments) num(key string) (int, error) {
	v, ok := a[key]
	if !ok {
		return 0, fmt.Errorf("missing required argument %q", key)
	}
	switch n := v.(type) {
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case float64:
		if n != float64(int(n)) {
			return 0, fmt.Errorf("argument %q must be an integer", key)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("argument %q must be an integer", key)
	}
}

// params holds the validated arguments for one invocation. Fields not used
// by the invoked tool stay zero.
type params struct {
	repo    string
	path    string
	ref     string
	branch  string
	fromRef string
	content string
	message string
	title   string
	body    string
	head    string
	base    string
	number  int
}

// parseParams validates the raw argument map against the invoked tool's
// schema. All validation failures surface before any downstream check runs.
func parseParams(tool Tool, a arguments) (params, *Error) {
	var (
		p   params
		err error
	)

	fail := func(err error) (params, *Error) {
		return p, newError(KindValidation, StageReceived, err, "%v", err)
	}

	if p.repo, err = a.str("repo"); err != nil {
		return fail(err)
	}

	switch tool {
	case ToolReadFile:
		if p.path, err = a.str("path"); err != nil {
			return fail(err)
		}
		if p.ref, err = a.strDefault("ref", "main"); err != nil {
			return fail(err)
		}

	case ToolListFiles:
		if p.path, err = a.strDefault("path", ""); err != nil {
			return fail(err)
		}
		if p.ref, err = a.strDefault("ref", "main"); err != nil {
			return fail(err)
		}

	case ToolCreateBranch:
		if p.branch, err = a.str("branch"); err != nil {
			return fail(err)
		}
		if p.fromRef, err = a.strDefault("from_ref", "main"); err != nil {
			return fail(err)
		}

	case ToolUpdateFile:
		if p.path, err = a.str("path"); err != nil {
			return fail(err)
		}
		if p.content, err = a.text("content"); err != nil {
			return fail(err)
		}
		if p.message, err = a.str("message"); err != nil {
			return fail(err)
		}
		if p.branch, err = a.str("branch"); err != nil {
			return fail(err)
		}

	case ToolCreatePullRequest:
		if p.title, err = a.str("title"); err != nil {
			return fail(err)
		}
		if p.body, err = a.strDefault("body", ""); err != nil {
			return fail(err)
		}
		if p.head, err = a.str("head"); err != nil {
			return fail(err)
		}
		if p.base, err = a.strDefault("base", "main"); err != nil {
			return fail(err)
		}

	case ToolGetIssue:
		if p.number, err = a.num("number"); err != nil {
			return fail(err)
		}

	case ToolPostComment:
		if p.number, err = a.num("number"); err != nil {
			return fail(err)
		}
		if p.body, err = a.str("body"); err != nil {
			return fail(err)
		}
	}

	return p, nil
}
