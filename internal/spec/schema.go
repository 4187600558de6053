package spec

import (
	"embed"
	"fmt"
	"path"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// DefaultSchema is the schema workflow specs are validated against
const DefaultSchema = "yadage/workflow-schema"

//go:embed schemas
var schemaFS embed.FS

// Schemas lists the embedded schema names
func Schemas() []string {
	var names []string
	walkSchemas("schemas", &names)
	sort.Strings(names)
	return names
}

func walkSchemas(dir string, names *[]string) {
	entries, err := schemaFS.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		p := path.Join(dir, e.Name())
		if e.IsDir() {
			walkSchemas(p, names)
			continue
		}
		if strings.HasSuffix(p, ".cue") {
			*names = append(*names, strings.TrimSuffix(strings.TrimPrefix(p, "schemas/"), ".cue"))
		}
	}
}

// validate unifies content with the named CUE schema and requires the
// result to be concrete
func validate(schemaName string, content map[string]interface{}) error {
	src, err := schemaFS.ReadFile(path.Join("schemas", schemaName+".cue"))
	if err != nil {
		return fmt.Errorf("unknown schema %q (available: %s)", schemaName, strings.Join(Schemas(), ", "))
	}

	cctx := cuecontext.New()
	schema := cctx.CompileBytes(src, cue.Filename(schemaName+".cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling schema %s: %w", schemaName, err)
	}

	value := cctx.Encode(content)
	if err := value.Err(); err != nil {
		return fmt.Errorf("encoding document: %w", err)
	}

	if err := schema.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return err
	}
	return nil
}
