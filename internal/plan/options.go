package plan

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/agentx-labs/mcpx/internal/analyzer"
)

// Port range the host application assigns to MCP servers.
const (
	MinPort = 3010
	MaxPort = 3099
)

// Options are the user's choices for one installation.
type Options struct {
	// Method overrides the analyzer's recommendation.
	Method analyzer.Method `validate:"omitempty,oneof=npx uv python docker"`
	// InstallPath overrides the default install location.
	InstallPath string
	// Ref selects a branch or tag for git sources.
	Ref string `validate:"omitempty,excludesall= "`
	// Name overrides the server name derived from the source.
	Name string `validate:"omitempty,servername"`
	// Port is the host-config port; 0 lets the reconciler choose.
	Port int `validate:"omitempty,min=3010,max=3099"`
	// Env is written to the server's configuration and container.
	Env map[string]string `validate:"dive,keys,required,excludesall= =,endkeys"`
	// AutoStart is recorded in the registry entry.
	AutoStart bool
	// SkipConfigWrite removes the WriteConfig step.
	SkipConfigWrite bool
	// SkipHostConfig leaves the host application's config untouched.
	SkipHostConfig bool
	// Scripts are extra npm scripts to run after install.
	Scripts []string `validate:"dive,required"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("servername", func(fl validator.FieldLevel) bool {
		return ValidName(fl.Field().String())
	})
	return v
}

// ValidName reports whether name can serve as a directory, container and
// registry name: at most 64 characters, no path separators or spaces, and no
// leading dot (which also rules out "." and "..").
func ValidName(name string) bool {
	return name != "" && len(name) <= 64 &&
		!strings.HasPrefix(name, ".") &&
		!strings.ContainsAny(name, `/\ `)
}

// Validate checks option values and reports every invalid field.
func (o Options) Validate() error {
	err := validate.Struct(o)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("validating options: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid options: %s", strings.Join(msgs, "; "))
}
