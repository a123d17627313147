package catalog

import "github.com/Benny93/dnnmodeler-go/internal/params"

// Resolve combines a schema with user-entered values.
//
// Every schema key is present in the result, filled with its default when the
// user value is absent or empty. Every user key is present too, including keys
// the schema does not know. All values are coerced. A nil schema degenerates to
// coercing the user values as-is.
func Resolve(schema Schema, user map[string]any) map[string]any {
	out := make(map[string]any, len(schema)+len(user))

	for k, v := range user {
		out[k] = params.Coerce(v)
	}

	for name, spec := range schema {
		if !isEmpty(user[name]) {
			continue
		}
		def := spec.Default
		if def == nil {
			def = ""
		}
		out[name] = params.Coerce(def)
	}

	return out
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	s, ok := v.(string)
	return ok && s == ""
}
