package agents

import (
	"context"
	"fmt"
	"strings"
	"text/template"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

// Shared prompt rules for anything patients may read.
const medicalRules = `Rules:
- Never name a drug dosage or recommend starting or stopping a medication.
- Never promise a cure or quote success rates.
- Use plain language a patient understands.
- Always end patient-facing text with a short disclaimer that it does not replace a doctor's advice.`

const jsonOnly = "Respond with a single JSON object and nothing else."

// complete renders tmpl, asks the model and merges the parsed object into a
// copy of input. Parse sentinels inherited from an earlier step are dropped
// first so they cannot mask this step's own result.
func complete(ctx context.Context, env *agent.Env, input core.Data, tmpl *template.Template, vars map[string]any, schema jsonx.Schema) (core.Data, error) {
	msg, err := util.Execute(tmpl, vars)
	if err != nil {
		return nil, fmt.Errorf("render %s prompt: %w", tmpl.Name(), err)
	}
	parsed, err := env.ChatJSON(ctx, msg, schema)
	if err != nil {
		return nil, err
	}
	return merge(input, parsed), nil
}

func merge(input, parsed core.Data) core.Data {
	out := input.Clone()
	delete(out, jsonx.KeyParseError)
	delete(out, jsonx.KeyRawResponse)
	return out.Merge(parsed)
}

func lang(input core.Data) string { return core.NormalizeLang(input.String("lang")) }

func languageName(code string) string {
	if code == core.LangEN {
		return "English"
	}
	return "Turkish"
}

// requireBool fails unless field holds a boolean (or "true"/"false").
func requireBool(output core.Data, field string) error {
	if _, ok := output.Bool(field); !ok {
		return fmt.Errorf("output field %q must be a boolean, got %v", field, output[field])
	}
	return nil
}

// requireOneOf fails unless field is one of allowed.
func requireOneOf(output core.Data, field string, allowed ...string) error {
	v := output.String(field)
	for _, a := range allowed {
		if strings.EqualFold(v, a) {
			return nil
		}
	}
	return fmt.Errorf("output field %q must be one of %v, got %q", field, allowed, v)
}
