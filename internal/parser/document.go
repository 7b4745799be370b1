package parser

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"

	"github.com/pharmovig/icsr-ingest/internal/models"
)

const (
	// maxElementDepth bounds nesting inside one case subtree so
	// pathologically deep documents fail fast instead of exhausting the
	// stack or heap.
	maxElementDepth = 100

	// maxCaseTokens bounds the number of XML tokens consumed for one case.
	maxCaseTokens = 1 << 20
)

var (
	errTooDeep      = errors.New("element nesting exceeds depth limit")
	errTooManyNodes = errors.New("element count exceeds token limit")
)

// newCaseDecoder builds a hardened decoder for one case chunk. The empty
// entity map rejects every entity reference that is not one of the five XML
// built-ins, which neutralizes expansion attacks; encoding/xml itself never
// fetches external DTDs or entities.
func newCaseDecoder(data []byte) *xml.Decoder {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	dec.Entity = map[string]string{}
	return dec
}

// decodeDocument converts one case subtree into a generic ordered Document.
// Repeated sibling tags aggregate into lists, non-repeated tags become
// scalars or nested documents; attributes and mixed text around child
// elements are dropped. On error the partially built document is returned
// alongside it, for best-effort diagnostics.
func decodeDocument(data []byte) (*models.Document, error) {
	dec := newCaseDecoder(data)

	var root xml.StartElement
	for {
		tok, err := dec.Token()
		if err != nil {
			return models.NewDocument(), fmt.Errorf("no root element: %w", err)
		}
		if start, ok := tok.(xml.StartElement); ok {
			root = start
			break
		}
	}

	tokens := 0
	value, err := decodeElement(dec, root, 1, &tokens)
	doc, ok := value.(*models.Document)
	if !ok {
		// Root collapsed to a scalar; wrap it so callers always get a
		// document shape.
		doc = models.NewDocument()
		if s, isString := value.(string); isString && s != "" {
			doc.Set(root.Name.Local, s)
		}
	}
	return doc, err
}

// decodeElement consumes everything up to the matching end tag of start and
// returns either a scalar string (leaf element) or a nested *Document.
// Depth is bounded by maxElementDepth, so the recursion cannot grow past a
// fixed stack size.
func decodeElement(dec *xml.Decoder, start xml.StartElement, depth int, tokens *int) (any, error) {
	if depth > maxElementDepth {
		return models.NewDocument(), errTooDeep
	}

	doc := models.NewDocument()
	var text strings.Builder

	for {
		*tokens++
		if *tokens > maxCaseTokens {
			return doc, errTooManyNodes
		}
		tok, err := dec.Token()
		if err != nil {
			return doc, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			child, err := decodeElement(dec, t, depth+1, tokens)
			doc.Set(t.Name.Local, child)
			if err != nil {
				return doc, err
			}
		case xml.CharData:
			text.Write(t)
		case xml.EndElement:
			if doc.Len() == 0 {
				return strings.TrimSpace(text.String()), nil
			}
			return doc, nil
		}
	}
}

// findScalar walks the document depth-first and returns the first scalar
// value stored under name, mirroring how E2B field selection ignores the
// exact nesting level of a tag.
func findScalar(doc *models.Document, name string) string {
	if doc == nil {
		return ""
	}
	if s, ok := doc.Get(name).(string); ok {
		return s
	}
	for _, key := range doc.Keys() {
		switch v := doc.Get(key).(type) {
		case *models.Document:
			if s := findScalar(v, name); s != "" {
				return s
			}
		case []any:
			for _, item := range v {
				if child, ok := item.(*models.Document); ok {
					if s := findScalar(child, name); s != "" {
						return s
					}
				}
			}
		}
	}
	return ""
}

// collectDocs gathers every nested document stored under name, in document
// order, searching the whole subtree.
func collectDocs(doc *models.Document, name string) []*models.Document {
	if doc == nil {
		return nil
	}
	var out []*models.Document
	for _, key := range doc.Keys() {
		value := doc.Get(key)
		if key == name {
			switch v := value.(type) {
			case *models.Document:
				out = append(out, v)
			case []any:
				for _, item := range v {
					if child, ok := item.(*models.Document); ok {
						out = append(out, child)
					}
				}
			}
			continue
		}
		switch v := value.(type) {
		case *models.Document:
			out = append(out, collectDocs(v, name)...)
		case []any:
			for _, item := range v {
				if child, ok := item.(*models.Document); ok {
					out = append(out, collectDocs(child, name)...)
				}
			}
		}
	}
	return out
}
