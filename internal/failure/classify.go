package failure

import (
	"regexp"
	"strings"
)

// rule maps substrings (matched case-insensitively) to a kind.
type rule struct {
	kind     Kind
	triggers []string
	patterns []*regexp.Regexp
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{kind: Missing, triggers: []string{"enoent", "not found", "no such file"}},
	{kind: Permission, triggers: []string{"permission", "eacces", "access is denied"}},
	{
		kind:     Exists,
		triggers: []string{"already exists", "eexist", "already in use"},
		patterns: []*regexp.Regexp{regexp.MustCompile(`destination path .* exists`)},
	},
	{kind: Network, triggers: []string{
		"network", "timeout", "econnrefused", "etimedout", "getaddrinfo",
		"could not resolve host", "connection refused", "connection reset",
		"timed out", "unable to access",
	}},
	{kind: Disk, triggers: []string{"disk", "no space", "enospc"}},
}

// Exit codes conventionally used by shells for "command not found" and
// "command not executable".
const (
	exitNotFound      = 127
	exitNotExecutable = 126
)

// Classify maps a failure message and optional exit code to a Kind. It is
// total: anything unmatched is Unknown.
func Classify(message string, exitCode *int) Kind {
	msg := strings.ToLower(message)
	for _, r := range rules {
		for _, t := range r.triggers {
			if strings.Contains(msg, t) {
				return r.kind
			}
		}
		for _, p := range r.patterns {
			if p.MatchString(msg) {
				return r.kind
			}
		}
	}

	if exitCode != nil {
		switch *exitCode {
		case exitNotFound:
			return Missing
		case exitNotExecutable:
			return Permission
		}
	}
	return Unknown
}

// ClassifyError classifies err by its message. A nil error is Unknown.
func ClassifyError(err error) Kind {
	if err == nil {
		return Unknown
	}
	return Classify(err.Error(), nil)
}
