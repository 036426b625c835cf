package clinicmesh

import (
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"

	"github.com/burhanettinuludag/clinicmesh/config"
	"github.com/burhanettinuludag/clinicmesh/model"
	"github.com/burhanettinuludag/clinicmesh/model/anthropic"
	"github.com/burhanettinuludag/clinicmesh/model/gemini"
	"github.com/burhanettinuludag/clinicmesh/model/openai"
)

// buildProviders constructs the providers named by the configured chain, in
// chain order. Providers configured but not referenced are not built.
func buildProviders(cfg *config.Config) ([]model.Provider, error) {
	names := cfg.ChainNames()
	out := make([]model.Provider, 0, len(names))
	for _, name := range names {
		p, err := newProvider(name, cfg.LLM.Providers[name])
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func newProvider(name string, pc config.ProviderConfig) (model.Provider, error) {
	switch pc.Kind {
	case config.KindOpenAI:
		return openai.New(func(o *openai.Options) {
			o.Name = name
			o.APIKey = pc.APIKey
			o.BaseURL = pc.BaseURL
			o.CostPer1K = pc.CostPer1K
			if pc.Model != "" {
				o.Model = pc.Model
			}
		})
	case config.KindAnthropic:
		return anthropic.New(func(o *anthropic.Options) {
			o.Name = name
			o.APIKey = pc.APIKey
			o.BaseURL = pc.BaseURL
			o.CostPer1K = pc.CostPer1K
			if pc.Model != "" {
				o.Model = anthropicsdk.Model(pc.Model)
			}
		})
	case config.KindGemini:
		return gemini.New(func(o *gemini.Options) {
			o.Name = name
			o.APIKey = pc.APIKey
			o.BaseURL = pc.BaseURL
			o.CostPer1K = pc.CostPer1K
			if pc.Model != "" {
				o.Model = pc.Model
			}
		})
	case config.KindMock:
		modelID := pc.Model
		if modelID == "" {
			modelID = "mock"
		}
		return model.NewMockProvider(name, modelID).SetDefault(pc.Response), nil
	default:
		return nil, fmt.Errorf("%w: provider %s: unknown kind %q", model.ErrConfig, name, pc.Kind)
	}
}
