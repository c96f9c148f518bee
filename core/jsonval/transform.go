package jsonval

import (
	"github.com/fabrictools/rulescan/core/errors"
)

// DefaultMarkerKey is the marker under which a node is wrapped when the
// caller does not choose one. It mirrors the log-node convention of the
// rules documents this tool operates on.
const DefaultMarkerKey = "logCondition"

// Wrap parses doc and returns it wrapped in an object under markerKey:
// {markerKey: <doc>}. Any valid JSON value can be wrapped, including null.
func Wrap(doc []byte, markerKey string) ([]byte, error) {
	if markerKey == "" {
		markerKey = DefaultMarkerKey
	}
	inner, err := Parse(doc)
	if err != nil {
		return nil, err
	}
	wrapped := Object(map[string]*Value{markerKey: inner})
	return EncodeIndent(wrapped)
}

// Unwrap parses doc, which must be an object carrying markerKey, and
// returns the encoding of the value stored under the marker. Wrapping and
// unwrapping round-trip: the result is deep-equal to the original input.
func Unwrap(doc []byte, markerKey string) ([]byte, error) {
	if markerKey == "" {
		markerKey = DefaultMarkerKey
	}
	root, err := Parse(doc)
	if err != nil {
		return nil, err
	}
	if root.Kind() != KindObject {
		return nil, errors.NewValidation("document", "not a wrapped node: root is "+root.Kind().String())
	}
	inner, ok := root.Field(markerKey)
	if !ok {
		return nil, errors.NewNotFound("marker key", markerKey)
	}
	return EncodeIndent(inner)
}
