package eventlog

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

//go:embed schema.cue
var schemaCUE string

var (
	schemaOnce sync.Once
	schemaVal  cue.Value
	schemaErr  error
)

// documentSchema compiles the embedded schema once and returns the
// #Document definition.
func documentSchema() (cue.Value, error) {
	schemaOnce.Do(func() {
		ctx := cuecontext.New()
		compiled := ctx.CompileString(schemaCUE)
		if err := compiled.Err(); err != nil {
			schemaErr = fmt.Errorf("compile document schema: %w", err)
			return
		}
		schemaVal = compiled.LookupPath(cue.ParsePath("#Document"))
		if err := schemaVal.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup document schema: %w", err)
		}
	})
	return schemaVal, schemaErr
}

// validateDocument checks a v4 export document against the embedded
// CUE schema before it is trusted for import. JSON is a subset of CUE,
// so the raw document bytes compile directly.
func validateDocument(data []byte) error {
	schema, err := documentSchema()
	if err != nil {
		return err
	}

	ctx := schema.Context()
	doc := ctx.CompileBytes(data)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	unified := schema.Unify(doc)
	if err := unified.Validate(cue.Final()); err != nil {
		return fmt.Errorf("validate document: %w", err)
	}
	return nil
}
