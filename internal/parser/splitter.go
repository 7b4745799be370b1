package parser

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
)

const (
	// caseElement is the top-level element holding one ICSR.
	caseElement = "safetyreport"

	// maxCaseBytes bounds the raw size of one case subtree. A chunk that
	// grows past this is abandoned and reported, keeping memory O(1) per
	// case even for adversarial inputs.
	maxCaseBytes = 16 << 20
)

var errCaseTooLarge = errors.New("case subtree exceeds size limit")

// Comment and CDATA delimiters, as seen after a '<'.
var (
	commentOpen  = []byte("!--")
	commentClose = []byte("-->")
	cdataOpen    = []byte("![CDATA[")
	cdataClose   = []byte("]]>")
)

// splitter scans a byte stream and isolates each top-level <safetyreport>
// subtree as a raw chunk. It never expands entities and never buffers more
// than one chunk, so a file of any length is processed in bounded memory.
// Scanning is purely lexical: a structurally broken case is handed over as
// an unparseable chunk instead of derailing its siblings.
type splitter struct {
	r        *bufio.Reader
	startTag []byte
	endTag   []byte
	done     bool
}

func newSplitter(r io.Reader) *splitter {
	return &splitter{
		r:        bufio.NewReaderSize(r, 64<<10),
		startTag: []byte("<" + caseElement),
		endTag:   []byte("</" + caseElement),
	}
}

// next returns the raw bytes of the next case subtree, including its start
// and end tags. io.EOF signals a clean end of input.
func (s *splitter) next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	if err := s.seekStart(); err != nil {
		s.done = true
		return nil, err
	}

	var buf bytes.Buffer
	buf.Write(s.startTag)

	// The start tag may carry attributes; copy through its closing '>'.
	// Then copy until the matching end tag, tracking same-name nesting.
	depth := 1
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			s.done = true
			return nil, fmt.Errorf("truncated %s element: %w", caseElement, err)
		}
		buf.WriteByte(b)
		if buf.Len() > maxCaseBytes {
			s.skipToEnd()
			return nil, errCaseTooLarge
		}
		if b != '<' {
			continue
		}

		peeked, err := s.r.Peek(len(s.endTag))
		if err != nil && err != io.EOF {
			s.done = true
			return nil, err
		}
		if marker := sectionClose(peeked); marker != nil {
			// Comment or CDATA section: copy it through whole, so an end
			// tag spelled out inside it never closes the chunk.
			if err := s.copyThroughMarker(&buf, marker); err != nil {
				if err == errCaseTooLarge {
					s.skipToEnd()
					return nil, errCaseTooLarge
				}
				s.done = true
				return nil, err
			}
			continue
		}
		if bytes.HasPrefix(peeked, s.endTag[1:]) && s.boundaryAfter(peeked, len(s.endTag)-1) {
			// "</safetyreport"
			rest := make([]byte, len(s.endTag)-1)
			io.ReadFull(s.r, rest)
			buf.Write(rest)
			if err := s.copyThroughTagClose(&buf); err != nil {
				s.done = true
				return nil, err
			}
			depth--
			if depth == 0 {
				return buf.Bytes(), nil
			}
		} else if bytes.HasPrefix(peeked, s.startTag[1:]) && s.boundaryAfter(peeked, len(s.startTag)-1) {
			// Nested element with the same name; track it so the outer
			// end tag is matched correctly.
			rest := make([]byte, len(s.startTag)-1)
			io.ReadFull(s.r, rest)
			buf.Write(rest)
			depth++
		}
	}
}

// seekStart advances the reader to just past the next case start tag.
func (s *splitter) seekStart() error {
	for {
		if _, err := s.r.ReadBytes('<'); err != nil {
			return io.EOF
		}
		peeked, err := s.r.Peek(len(s.startTag))
		if err != nil && err != io.EOF {
			return io.EOF
		}
		if bytes.HasPrefix(peeked, s.startTag[1:]) && s.boundaryAfter(peeked, len(s.startTag)-1) {
			rest := make([]byte, len(s.startTag)-1)
			if _, err := io.ReadFull(s.r, rest); err != nil {
				return io.EOF
			}
			return nil
		}
	}
}

// boundaryAfter reports whether the byte following the tag name (if any)
// terminates the name, so "<safetyreportid>" is not mistaken for
// "<safetyreport>".
func (s *splitter) boundaryAfter(peeked []byte, nameLen int) bool {
	if len(peeked) <= nameLen {
		return true
	}
	switch peeked[nameLen] {
	case '>', ' ', '\t', '\r', '\n', '/':
		return true
	}
	return false
}

// sectionClose returns the closing marker when the bytes after a '<' open a
// comment or CDATA section, nil otherwise.
func sectionClose(peeked []byte) []byte {
	switch {
	case bytes.HasPrefix(peeked, commentOpen):
		return commentClose
	case bytes.HasPrefix(peeked, cdataOpen):
		return cdataClose
	}
	return nil
}

// copyThroughMarker copies bytes into buf until buf ends with marker.
func (s *splitter) copyThroughMarker(buf *bytes.Buffer, marker []byte) error {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return fmt.Errorf("truncated section before %q: %w", marker, err)
		}
		buf.WriteByte(b)
		if buf.Len() > maxCaseBytes {
			return errCaseTooLarge
		}
		if b == marker[len(marker)-1] && bytes.HasSuffix(buf.Bytes(), marker) {
			return nil
		}
	}
}

// copyThroughTagClose copies bytes up to and including the next '>'.
func (s *splitter) copyThroughTagClose(buf *bytes.Buffer) error {
	for {
		b, err := s.r.ReadByte()
		if err != nil {
			return fmt.Errorf("truncated end tag: %w", err)
		}
		buf.WriteByte(b)
		if b == '>' {
			return nil
		}
	}
}

// skipToEnd discards input until after the next case end tag, resyncing the
// stream after an oversized chunk.
func (s *splitter) skipToEnd() {
	for {
		if _, err := s.r.ReadBytes('<'); err != nil {
			s.done = true
			return
		}
		peeked, err := s.r.Peek(len(s.endTag) - 1)
		if err != nil && err != io.EOF {
			s.done = true
			return
		}
		if bytes.HasPrefix(peeked, s.endTag[1:]) {
			io.CopyN(io.Discard, s.r, int64(len(s.endTag)-1))
			for {
				b, err := s.r.ReadByte()
				if err != nil {
					s.done = true
					return
				}
				if b == '>' {
					return
				}
			}
		}
	}
}
