package cli

import (
	"testing"

	"github.com/agentx-labs/mcpx/internal/catalog"
)

func TestMatchesSearchByQuery(t *testing.T) {
	tpl := catalog.Template{
		ID:          "brave-search",
		Name:        "Brave Search",
		Description: "Web and local search through the Brave Search API",
		Repository:  "https://github.com/brave/brave-search-mcp-server",
		Method:      "npx",
	}

	tests := []struct {
		name     string
		query    string
		expected bool
	}{
		{"empty query matches all", "", true},
		{"exact id match", "brave-search", true},
		{"partial id match", "brave", true},
		{"case insensitive name", "BRAVE SEARCH", true},
		{"description match", "local search", true},
		{"repository match", "brave-search-mcp-server", true},
		{"no match", "nonexistent-thing", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesSearch(tpl, tt.query, "")
			if got != tt.expected {
				t.Errorf("matchesSearch(query=%q) = %v, want %v", tt.query, got, tt.expected)
			}
		})
	}
}

func TestMatchesSearchByMethod(t *testing.T) {
	tpl := catalog.Template{ID: "github", Method: "docker"}

	tests := []struct {
		name         string
		methodFilter string
		expected     bool
	}{
		{"no method filter", "", true},
		{"matching method", "docker", true},
		{"matching method case insensitive", "Docker", true},
		{"non-matching method", "npx", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := matchesSearch(tpl, "", tt.methodFilter)
			if got != tt.expected {
				t.Errorf("matchesSearch(method=%q) = %v, want %v", tt.methodFilter, got, tt.expected)
			}
		})
	}
}

func TestMatchesSearchBuiltinCatalog(t *testing.T) {
	var ids []string
	for _, tpl := range catalog.Builtin().List() {
		if matchesSearch(tpl, "modelcontextprotocol", "npx") {
			ids = append(ids, tpl.ID)
		}
	}
	want := []string{"filesystem", "memory"}
	if len(ids) != len(want) || ids[0] != want[0] || ids[1] != want[1] {
		t.Errorf("matches = %v, want %v", ids, want)
	}
}
