package routing

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const DefaultAllowlistPath = "config/routing/allowlist.yaml"

type Allowlist struct {
	Version     int                   `yaml:"version"`
	Entrypoints map[string]Entrypoint `yaml:"entrypoints"`
}

type Entrypoint struct {
	Routes []Route `yaml:"routes"`
}

type Route struct {
	Path       string   `yaml:"path"`
	Methods    []string `yaml:"methods"`
	RouteClass string   `yaml:"route_class"`
}

func ParseAllowlistYAML(b []byte) (Allowlist, error) {
	var a Allowlist
	if err := yaml.Unmarshal(b, &a); err != nil {
		return Allowlist{}, err
	}
	if a.Version != 1 {
		return Allowlist{}, errors.New("allowlist: unsupported version")
	}
	if a.Entrypoints == nil {
		return Allowlist{}, errors.New("allowlist: missing entrypoints")
	}
	for name, ep := range a.Entrypoints {
		for _, r := range ep.Routes {
			for _, m := range r.Methods {
				if !knownMethod(m) {
					return Allowlist{}, fmt.Errorf("allowlist: %s %s: unknown method %q", name, r.Path, m)
				}
			}
		}
	}
	return a, nil
}

// LoadAllowlist reads path, or searches upward from the working directory for
// DefaultAllowlistPath when path is empty.
func LoadAllowlist(path string) (Allowlist, error) {
	if strings.TrimSpace(path) == "" {
		found, err := findUpward(DefaultAllowlistPath)
		if err != nil {
			return Allowlist{}, err
		}
		path = found
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Allowlist{}, err
	}
	return ParseAllowlistYAML(b)
}

// Allows reports whether the entrypoint declares method on path.
func (a Allowlist) Allows(entrypoint string, method string, path string) bool {
	for _, r := range a.Entrypoints[entrypoint].Routes {
		if r.Path != path {
			continue
		}
		for _, m := range r.Methods {
			if strings.EqualFold(m, method) {
				return true
			}
		}
	}
	return false
}

func knownMethod(m string) bool {
	switch strings.ToUpper(strings.TrimSpace(m)) {
	case http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	default:
		return false
	}
}

func findUpward(rel string) (string, error) {
	path := rel
	for range 8 {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		path = filepath.Join("..", path)
	}
	return "", fmt.Errorf("%s not found", rel)
}
