package analyzer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/agentx-labs/mcpx/internal/envfile"
)

// packageJSON holds the fields of package.json the analyzer uses.
type packageJSON struct {
	Scripts map[string]string `json:"scripts"`
	Engines map[string]string `json:"engines"`
}

// parsePackageJSON returns the dependencies in declaration order plus the
// scripts and engines sections.
func parsePackageJSON(data []byte) ([]Dependency, packageJSON, error) {
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		return nil, pkg, fmt.Errorf("parsing package.json: %w", err)
	}
	deps, err := orderedObject(data, "dependencies")
	if err != nil {
		return nil, pkg, fmt.Errorf("parsing package.json dependencies: %w", err)
	}
	return deps, pkg, nil
}

// orderedObject walks the top-level JSON object and returns the string
// members of the object under key, in document order.
func orderedObject(data []byte, key string) ([]Dependency, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		name, _ := tok.(string)
		if name != key {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, err
			}
			continue
		}

		isObject, err := expectDelim(dec, '{')
		if err != nil || !isObject {
			return nil, err
		}
		var deps []Dependency
		for dec.More() {
			k, err := dec.Token()
			if err != nil {
				return nil, err
			}
			var v any
			if err := dec.Decode(&v); err != nil {
				return nil, err
			}
			version, _ := v.(string)
			deps = append(deps, Dependency{Name: fmt.Sprint(k), Version: version})
		}
		return deps, nil
	}
	return nil, nil
}

// expectDelim reads the next token and reports whether it is the delimiter
// want. Scalars are consumed and reported as false.
func expectDelim(dec *json.Decoder, want json.Delim) (bool, error) {
	tok, err := dec.Token()
	if err != nil {
		return false, err
	}
	d, ok := tok.(json.Delim)
	if !ok {
		return false, nil
	}
	if d != want {
		return false, fmt.Errorf("expected %q, got %q", want, d)
	}
	return true, nil
}

// requirementName matches the distribution name (with optional extras) at
// the start of a requirement line.
var requirementName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*(\[[^\]]*\])?`)

// parseRequirement splits "name[extras] <spec> ; marker" into name and the
// verbatim version specifier (markers dropped).
func parseRequirement(line string) (Dependency, bool) {
	line = strings.TrimSpace(line)
	name := requirementName.FindString(line)
	if name == "" {
		return Dependency{}, false
	}
	rest := line[len(name):]
	if i := strings.Index(rest, ";"); i >= 0 {
		rest = rest[:i]
	}
	return Dependency{Name: name, Version: strings.TrimSpace(rest)}, true
}

// parseRequirementsTxt reads a pip requirements file. Options (-r, -e,
// --index-url) and comments are skipped.
func parseRequirementsTxt(data []byte) []Dependency {
	var deps []Dependency
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if i := strings.Index(line, " #"); i >= 0 {
			line = line[:i]
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		if d, ok := parseRequirement(line); ok {
			deps = append(deps, d)
		}
	}
	return deps
}

type pyProject struct {
	Project struct {
		Dependencies   []string `toml:"dependencies"`
		RequiresPython string   `toml:"requires-python"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies map[string]any `toml:"dependencies"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// parsePyProject reads PEP 621 dependencies, falling back to Poetry's table.
// It also returns the Python version constraint.
func parsePyProject(data []byte) ([]Dependency, string, error) {
	var p pyProject
	if err := toml.Unmarshal(data, &p); err != nil {
		return nil, "", fmt.Errorf("parsing pyproject.toml: %w", err)
	}

	constraint := p.Project.RequiresPython
	var deps []Dependency
	for _, line := range p.Project.Dependencies {
		if d, ok := parseRequirement(line); ok {
			deps = append(deps, d)
		}
	}
	if len(deps) > 0 {
		return deps, constraint, nil
	}

	poetry := p.Tool.Poetry.Dependencies
	names := make([]string, 0, len(poetry))
	for name := range poetry {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		version := ""
		switch v := poetry[name].(type) {
		case string:
			version = v
		case map[string]any:
			version, _ = v["version"].(string)
		}
		if name == "python" {
			if constraint == "" {
				constraint = version
			}
			continue
		}
		deps = append(deps, Dependency{Name: name, Version: version})
	}
	return deps, constraint, nil
}

var exposeLine = regexp.MustCompile(`(?im)^\s*EXPOSE\s+(\d+)`)

// portFromDockerfile returns the first EXPOSEd port.
func portFromDockerfile(data []byte) int {
	m := exposeLine.FindSubmatch(data)
	if m == nil {
		return 0
	}
	port, _ := strconv.Atoi(string(m[1]))
	return port
}

// portFromEnv returns the PORT value of a dotenv document.
func portFromEnv(data []byte) int {
	entries, err := envfile.Parse(data)
	if err != nil {
		return 0
	}
	v, ok := envfile.Lookup(entries, "PORT")
	if !ok {
		return 0
	}
	port, _ := strconv.Atoi(v)
	return port
}

// portFromConfigJSON returns a top-level numeric "port" member.
func portFromConfigJSON(data []byte) int {
	var cfg struct {
		Port json.Number `json:"port"`
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return 0
	}
	port, err := cfg.Port.Int64()
	if err != nil {
		return 0
	}
	return int(port)
}
