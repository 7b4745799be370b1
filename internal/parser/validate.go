package parser

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"io"
	"os"
)

// maxValidationErrors caps the collected messages; a file failing hundreds
// of times over is malformed enough after the first hundred.
const maxValidationErrors = 100

const xsdNamespace = "http://www.w3.org/2001/XMLSchema"

// schemaRules is the compiled form of an XSD: for each declared element,
// the child elements that must occur at least once. Occurrence cardinality
// beyond required/optional and type facets are not enforced; this matches
// the structural checks regulatory gateways apply before content review.
type schemaRules struct {
	required map[string][]string
}

// loadSchema compiles rules from an XSD file. It is the only path that can
// return an error from validation: an unreadable or unparseable schema.
func loadSchema(path string) (*schemaRules, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read schema file %s: %w", path, err)
	}
	defer f.Close()

	rules := &schemaRules{required: make(map[string][]string)}
	dec := xml.NewDecoder(bufio.NewReader(f))

	// Stack of named element declarations currently open, so nested
	// xs:element declarations attach to their parent.
	var stack []string
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("malformed schema file %s: %w", path, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Space != xsdNamespace || t.Name.Local != "element" {
				continue
			}
			name, minOccurs := "", "1"
			for _, attr := range t.Attr {
				switch attr.Name.Local {
				case "name", "ref":
					if name == "" {
						name = attr.Value
					}
				case "minOccurs":
					minOccurs = attr.Value
				}
			}
			if name == "" {
				continue
			}
			if len(stack) > 0 && minOccurs != "0" {
				parent := stack[len(stack)-1]
				rules.required[parent] = append(rules.required[parent], name)
			}
			stack = append(stack, name)
		case xml.EndElement:
			if t.Name.Space == xsdNamespace && t.Name.Local == "element" && len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}
	return rules, nil
}

// ValidateStream checks the XML stream against the schema at schemaPath.
// The document is consumed token by token and never materialized, so
// arbitrarily large files validate in bounded memory. Validation failures
// are returned as values; the error return is reserved for an unreadable
// schema file.
func ValidateStream(r io.Reader, schemaPath string) (bool, []string, error) {
	rules, err := loadSchema(schemaPath)
	if err != nil {
		return false, nil, err
	}

	dec := xml.NewDecoder(bufio.NewReaderSize(r, 64<<10))
	dec.Strict = true
	dec.Entity = map[string]string{}

	var errs []string
	addErr := func(msg string) {
		if len(errs) < maxValidationErrors {
			errs = append(errs, msg)
		}
	}

	type frame struct {
		name string
		seen map[string]bool
	}
	var stack []frame

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			addErr(fmt.Sprintf("syntax error: %v", err))
			return false, errs, nil
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if len(stack) >= maxElementDepth {
				addErr("element nesting exceeds depth limit")
				return false, errs, nil
			}
			if len(stack) > 0 {
				parent := &stack[len(stack)-1]
				if parent.seen == nil {
					parent.seen = make(map[string]bool)
				}
				parent.seen[t.Name.Local] = true
			}
			stack = append(stack, frame{name: t.Name.Local})
		case xml.EndElement:
			if len(stack) == 0 {
				continue
			}
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			for _, want := range rules.required[top.name] {
				if !top.seen[want] {
					addErr(fmt.Sprintf("element %s: missing required child %s", top.name, want))
				}
			}
		}
	}
	return len(errs) == 0, errs, nil
}
