package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaSource string

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
	// cue values are not safe for concurrent use
	validateMu sync.Mutex
)

func compiledSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		value := schemaCtx.CompileString(schemaSource, cue.Filename("schema.cue"))
		if err := value.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = value.LookupPath(cue.ParsePath("#Config"))
		if err := schemaDef.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup config schema: %w", err)
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// validateDocument checks a raw YAML document against the embedded schema.
// Unknown keys are rejected because the schema definitions are closed.
func validateDocument(filename string, data []byte) error {
	validateMu.Lock()
	defer validateMu.Unlock()
	ctx, def, err := compiledSchema()
	if err != nil {
		return err
	}
	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parse config %s: %w", filename, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("build config %s: %w", filename, err)
	}
	unified := def.Unify(doc)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config %s: %s", filename, cueerrors.Details(err, nil))
	}
	return nil
}
