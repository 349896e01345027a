package tools

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/xeipuuv/gojsonschema"
)

// Validate checks args against schema. Every violated constraint is listed in
// the returned error, which is marked ErrValidation.
func Validate(schema InputSchema, args map[string]any) error {
	doc := schema.Map()

	// Backends advertise whatever draft they were generated with; the
	// constraints we check read the same in all of them.
	delete(doc, "$schema")
	delete(doc, "$id")

	if args == nil {
		args = map[string]any{}
	}

	result, err := gojsonschema.Validate(
		gojsonschema.NewGoLoader(doc),
		gojsonschema.NewGoLoader(args),
	)
	if err != nil {
		return errors.Mark(errors.Wrap(err, "unusable input schema"), ErrValidation)
	}

	if result.Valid() {
		return nil
	}

	violations := make([]string, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		violations = append(violations, desc.String())
	}

	return errors.Mark(errors.Newf("%s", strings.Join(violations, "; ")), ErrValidation)
}
