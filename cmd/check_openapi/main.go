// Command check_openapi verifies that api/openapi.yaml documents every route
// the library server registers and the error body it writes.
package main

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultDocPath = "api/openapi.yaml"

type openAPIDoc struct {
	Paths      map[string]map[string]any `yaml:"paths"`
	Components struct {
		Schemas map[string]schema `yaml:"schemas"`
	} `yaml:"components"`
}

type schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *schema           `yaml:"items"`
}

type route struct {
	Path   string
	Method string
}

// serverRoutes mirrors services/library/internal/server routes.
var serverRoutes = []route{
	{"/healthz", "get"},
	{"/auth/register", "post"},
	{"/auth/login", "post"},
	{"/auth/logout", "post"},
	{"/auth/me", "get"},
	{"/auth/me", "patch"},
	{"/password-reset", "post"},
	{"/password-reset/{token}", "post"},
	{"/songs", "get"},
	{"/songs", "post"},
	{"/songs/search", "get"},
	{"/songs/{id}", "get"},
	{"/songs/{id}", "put"},
	{"/songs/{id}", "delete"},
	{"/songs/{id}/download", "get"},
}

// errorBodyFields are the JSON fields of the server's error response.
var errorBodyFields = []string{"code", "error", "requestId"}

func main() {
	path := defaultDocPath
	switch len(os.Args) {
	case 1:
	case 2:
		path = os.Args[1]
	default:
		fmt.Fprintf(os.Stderr, "usage: %s [openapi.yaml]\n", os.Args[0])
		os.Exit(2)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		exitErr(fmt.Errorf("read %s: %w", path, err))
	}
	if err := check(raw); err != nil {
		exitErr(err)
	}
	fmt.Println("OpenAPI consistency check passed.")
}

// check returns every problem found in the document joined into one error.
func check(raw []byte) error {
	var doc openAPIDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse openapi: %w", err)
	}
	var generic any
	if err := yaml.Unmarshal(raw, &generic); err != nil {
		return fmt.Errorf("parse openapi: %w", err)
	}

	var errs []error
	errResp, err := getSchema(doc, "ErrorResponse")
	if err != nil {
		errs = append(errs, err)
	} else if err := validateErrorResponse(errResp); err != nil {
		errs = append(errs, err)
	}
	errs = append(errs, missingRoutes(doc)...)
	errs = append(errs, danglingRefs(doc, generic)...)
	return errors.Join(errs...)
}

func getSchema(doc openAPIDoc, name string) (schema, error) {
	if doc.Components.Schemas == nil {
		return schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	required := makeSet(s.Required)
	for _, field := range []string{"error", "code"} {
		if !required[field] {
			return fmt.Errorf("ErrorResponse.required must include %q", field)
		}
	}
	names := make([]string, 0, len(s.Properties))
	for name, prop := range s.Properties {
		if prop.Type != "string" {
			return fmt.Errorf("ErrorResponse.%s must be string", name)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if strings.Join(names, ",") != strings.Join(errorBodyFields, ",") {
		return fmt.Errorf("ErrorResponse properties mismatch: %v vs %v", names, errorBodyFields)
	}
	return nil
}

func missingRoutes(doc openAPIDoc) []error {
	var errs []error
	for _, r := range serverRoutes {
		item, ok := doc.Paths[r.Path]
		if !ok {
			errs = append(errs, fmt.Errorf("path %s not documented", r.Path))
			continue
		}
		if _, ok := item[r.Method]; !ok {
			errs = append(errs, fmt.Errorf("%s %s not documented", strings.ToUpper(r.Method), r.Path))
		}
	}
	return errs
}

// danglingRefs reports $ref values that point at undefined component schemas.
func danglingRefs(doc openAPIDoc, node any) []error {
	const prefix = "#/components/schemas/"
	seen := make(map[string]bool)
	var errs []error
	var walk func(any)
	walk = func(n any) {
		switch v := n.(type) {
		case map[string]any:
			for key, child := range v {
				if ref, ok := child.(string); ok && key == "$ref" && strings.HasPrefix(ref, prefix) {
					name := strings.TrimPrefix(ref, prefix)
					if _, ok := doc.Components.Schemas[name]; !ok && !seen[name] {
						seen[name] = true
						errs = append(errs, fmt.Errorf("$ref %s points at an undefined schema", ref))
					}
					continue
				}
				walk(child)
			}
		case []any:
			for _, child := range v {
				walk(child)
			}
		}
	}
	walk(node)
	return errs
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out[item] = true
	}
	return out
}

func exitErr(err error) {
	fmt.Fprintln(os.Stderr, err.Error())
	os.Exit(1)
}
