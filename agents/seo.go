package agents

import (
	"context"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

var seoConfig = agent.Config{
	Name:         SEO,
	Description:  "Produces search metadata for an article.",
	SystemPrompt: "You are an SEO specialist for health websites. You optimise without keyword stuffing and never make medical claims for ranking.",
	Temperature:  0.3,
	MaxTokens:    1000,
	TaskType:     "seo_optimization",
}

var seoPrompt = util.MustTemplate("seo", `Create search metadata for this article.

Title: {{.title}}
Language: {{.language}}
Article:
{{truncate 4000 .body}}

meta_title must be at most 60 characters, meta_description at most 160.
slug is lower-case ASCII words joined by hyphens.

`+jsonOnly+` Fields:
{"meta_title": "...", "meta_description": "...", "slug": "...", "seo_keywords": ["..."], "seo_score": 0-100}`)

var seoSchema = jsonx.Schema{Fields: []string{"meta_title", "meta_description", "slug"}}

// SEOBehavior derives metadata from "title" and "body".
type SEOBehavior struct{}

// NewSEO returns the seo_agent.
func NewSEO(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(seoConfig, SEOBehavior{}, optFns...)
}

// Execute implements agent.Behavior.
func (SEOBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	body, err := agent.RequireAny(input, "body", "content")
	if err != nil {
		return nil, err
	}
	return complete(ctx, env, input, seoPrompt, map[string]any{
		"title":    input.String("title"),
		"body":     body,
		"language": languageName(lang(input)),
	}, seoSchema)
}

// Validate implements agent.Validator.
func (SEOBehavior) Validate(output core.Data) error {
	return agent.RequireFields(output, "meta_title", "meta_description")
}
