// Package jsonedit rewrites string values inside a JSON document while
// leaving every other byte of it alone: member names and order, numbers,
// whitespace and escapes of untouched strings.
package jsonedit

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/go-json-experiment/json/jsontext"
)

// ErrInvalid is returned for input that is not exactly one JSON value.
var ErrInvalid = errors.New("jsonedit: invalid JSON")

// Func maps one string value. field is the name of the object member
// holding the value, or "" inside arrays and at the top level. depth is the
// number of enclosing objects and arrays.
type Func func(field string, depth int, value string) (string, error)

type frame struct {
	object     bool
	expectName bool
	name       string
}

type edit struct {
	start, end int
	quoted     []byte
}

// MapStrings applies fn to every string value in data. Values fn returns
// unchanged keep their original encoding.
func MapStrings(data []byte, fn Func) ([]byte, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(data))

	var (
		stack []frame
		edits []edit
	)
	valueDone := func() {
		if n := len(stack); n > 0 && stack[n-1].object {
			stack[n-1].expectName = true
		}
	}

	for started := false; !started || len(stack) > 0; started = true {
		atName := len(stack) > 0 && stack[len(stack)-1].object && stack[len(stack)-1].expectName

		if !atName && dec.PeekKind() == '"' {
			val, err := dec.ReadValue()
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
			}
			end := int(dec.InputOffset())
			start := end - len(val)

			raw, err := jsontext.AppendUnquote(nil, val)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
			}

			field := ""
			if n := len(stack); n > 0 && stack[n-1].object {
				field = stack[n-1].name
			}
			mapped, err := fn(field, len(stack), string(raw))
			if err != nil {
				return nil, err
			}
			if mapped != string(raw) {
				quoted, err := jsontext.AppendQuote(nil, mapped)
				if err != nil {
					return nil, err
				}
				edits = append(edits, edit{start: start, end: end, quoted: quoted})
			}
			valueDone()
			continue
		}

		tok, err := dec.ReadToken()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
		}
		switch tok.Kind() {
		case '{':
			stack = append(stack, frame{object: true, expectName: true})
		case '[':
			stack = append(stack, frame{})
		case '}', ']':
			stack = stack[:len(stack)-1]
			valueDone()
		case '"':
			top := &stack[len(stack)-1]
			top.name = tok.String()
			top.expectName = false
		default:
			valueDone()
		}
	}

	if _, err := dec.ReadToken(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after value", ErrInvalid)
	}

	if len(edits) == 0 {
		return data, nil
	}

	var out bytes.Buffer
	out.Grow(len(data))
	last := 0
	for _, e := range edits {
		out.Write(data[last:e.start])
		out.Write(e.quoted)
		last = e.end
	}
	out.Write(data[last:])
	return out.Bytes(), nil
}
