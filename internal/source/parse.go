package source

import (
	"fmt"
	"strings"
)

const (
	templatePrefix = "template:"
	githubPrefix   = "github:"
)

// Parse interprets a command-line source argument:
//
//	template:<id>              named template
//	github:<owner>/<repo>      shorthand for https://github.com/<owner>/<repo>
//	https://…, ssh://…, git@…  git repository; "#<ref>" selects a branch or tag
//	anything else              local directory
func Parse(arg string) (Descriptor, error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return Descriptor{}, fmt.Errorf("%w: empty source", ErrInvalidSource)
	}

	switch {
	case strings.HasPrefix(arg, templatePrefix):
		id := strings.TrimPrefix(arg, templatePrefix)
		if id == "" {
			return Descriptor{}, fmt.Errorf("%w: %q has no template id", ErrInvalidSource, arg)
		}
		return Template(id), nil

	case strings.HasPrefix(arg, githubPrefix):
		rest, ref := splitRef(strings.TrimPrefix(arg, githubPrefix))
		if strings.Count(rest, "/") != 1 || strings.HasPrefix(rest, "/") || strings.HasSuffix(rest, "/") {
			return Descriptor{}, fmt.Errorf("%w: %q is not github:<owner>/<repo>", ErrInvalidSource, arg)
		}
		return Git("https://github.com/"+rest, ref), nil

	case isGitURL(arg):
		url, ref := splitRef(arg)
		d := Git(url, ref)
		if d.RepoName() == "" {
			return Descriptor{}, fmt.Errorf("%w: cannot derive repository name from %q", ErrInvalidSource, arg)
		}
		return d, nil
	}

	return Local(arg), nil
}

func isGitURL(s string) bool {
	for _, p := range []string{"https://", "http://", "ssh://", "git://", "git@"} {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func splitRef(s string) (string, string) {
	if i := strings.LastIndex(s, "#"); i >= 0 {
		return s[:i], s[i+1:]
	}
	return s, ""
}
