package source

import (
	_ "embed"
	"errors"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueyaml "cuelang.org/go/encoding/yaml"

	"github.com/roach88/tally/internal/ir"
)

const schemaFilename = "schema.cue"

//go:embed schema.cue
var schemaSource []byte

// eventDefinitions maps each event kind to its schema definition.
var eventDefinitions = map[ir.EventKind]string{
	ir.KindDonation:             "#Donation",
	ir.KindMilestoneProvisioned: "#MilestoneProvisioned",
	ir.KindMilestoneSettled:     "#MilestoneSettled",
	ir.KindFundingClosed:        "#FundingClosed",
}

// schema is a compiled copy of schema.cue bound to one cue.Context.
// cue.Context is not safe for concurrent use, so every Parse call builds
// its own.
type schema struct {
	ctx  *cue.Context
	root cue.Value
}

func compileSchema() (*schema, error) {
	ctx := cuecontext.New()
	root := ctx.CompileBytes(schemaSource, cue.Filename(schemaFilename))
	if err := root.Err(); err != nil {
		return nil, fmt.Errorf("compile embedded schema: %w", err)
	}
	return &schema{ctx: ctx, root: root}, nil
}

func (s *schema) definition(name string) cue.Value {
	return s.root.LookupPath(cue.ParsePath(name))
}

// extract turns YAML bytes into a CUE value that keeps file positions.
func (s *schema) extract(filename string, data []byte) (cue.Value, error) {
	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return cue.Value{}, formatCUEError("yaml", err)
	}
	v := s.ctx.BuildFile(file)
	if err := v.Err(); err != nil {
		return cue.Value{}, formatCUEError("yaml", err)
	}
	return v, nil
}

func (s *schema) check(def string, v cue.Value) error {
	unified := s.definition(def).Unify(v)
	return formatCUEError(def, unified.Validate(cue.Concrete(true)))
}

// checkEvents validates the batch envelope, then each element against the
// definition selected by its kind. Checking per element keeps CUE from
// reporting every branch of a four-way disjunction.
func (s *schema) checkEvents(envelope string, v cue.Value) error {
	if err := s.check(envelope, v); err != nil {
		return err
	}
	events := v.LookupPath(cue.ParsePath("events"))
	if !events.Exists() {
		return nil
	}
	iter, err := events.List()
	if err != nil {
		return formatCUEError("events", err)
	}
	for i := 0; iter.Next(); i++ {
		ev := iter.Value()
		kind, err := ev.LookupPath(cue.ParsePath("kind")).String()
		if err != nil {
			return formatCUEError(fmt.Sprintf("events.%d.kind", i), err)
		}
		def, ok := eventDefinitions[ir.EventKind(kind)]
		if !ok {
			return &SchemaError{
				Field:   fmt.Sprintf("events.%d.kind", i),
				Message: fmt.Sprintf("[%s] unknown event kind %q", ErrUnknownKind, kind),
				Pos:     ev.Pos(),
			}
		}
		if err := s.check(def, ev); err != nil {
			var se *SchemaError
			if errors.As(err, &se) {
				se.Field = fmt.Sprintf("events.%d.%s", i, se.Field)
			}
			return err
		}
	}
	return nil
}
