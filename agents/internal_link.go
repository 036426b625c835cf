package agents

import (
	"context"
	"fmt"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

// MaxLinkCandidates caps the documents offered to the model.
const MaxLinkCandidates = 8

var internalLinkConfig = agent.Config{
	Name:         InternalLink,
	Description:  "Suggests links from an article to existing site content.",
	SystemPrompt: "You are an editor building internal links between health articles. You only link where it genuinely helps the reader.",
	Temperature:  0.2,
	MaxTokens:    1000,
	TaskType:     "internal_linking",
}

var internalLinkPrompt = util.MustTemplate("internal_link", `Suggest internal links for this article.

Title: {{.title}}
Article:
{{truncate 3000 .body}}

Existing pages (id: title):
{{range .candidates}}- {{.ID}}: {{.Title}}
{{end}}
Only use ids from the list. Suggest at most 5 links.

`+jsonOnly+` Fields:
{"internal_links": [{"document_id": "...", "anchor_text": "...", "reason": "..."}]}`)

var internalLinkSchema = jsonx.Schema{Fields: []string{"internal_links"}}

// InternalLinkBehavior links "body" to documents found in the content store.
// Suggestions that point outside the retrieved candidates are dropped.
type InternalLinkBehavior struct{}

// NewInternalLink returns the internal_link_agent.
func NewInternalLink(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(internalLinkConfig, InternalLinkBehavior{}, optFns...)
}

type linkCandidate struct {
	ID    string
	Title string
	Type  string
}

// Execute implements agent.Behavior.
func (InternalLinkBehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	body, err := agent.RequireAny(input, "body", "content")
	if err != nil {
		return nil, err
	}
	title := input.String("title")
	language := lang(input)

	candidates, err := linkCandidates(ctx, env, title+" "+body, language)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		env.Logger().Debug("agent.internal_link.no_candidates", "agent", InternalLink)
		return merge(input, core.Data{"internal_links": []any{}}), nil
	}

	out, err := complete(ctx, env, input, internalLinkPrompt, map[string]any{
		"title":      title,
		"body":       body,
		"candidates": candidates,
	}, internalLinkSchema)
	if err != nil {
		return nil, err
	}
	if out.Has(jsonx.KeyParseError) {
		return out, nil
	}
	out["internal_links"] = filterLinks(out["internal_links"], candidates)
	return out, nil
}

func linkCandidates(ctx context.Context, env *agent.Env, text, language string) ([]linkCandidate, error) {
	searcher := env.Content()
	if searcher == nil {
		return nil, nil
	}
	keywords := util.Keywords(text, stopWords, 4)
	if len(keywords) == 0 {
		return nil, nil
	}
	if len(keywords) > 20 {
		keywords = keywords[:20]
	}
	docs, err := searcher.Search(ctx, core.ContentQuery{Keywords: keywords, Limit: MaxLinkCandidates})
	if err != nil {
		return nil, fmt.Errorf("content search: %w", err)
	}
	out := make([]linkCandidate, 0, len(docs))
	for _, d := range docs {
		out = append(out, linkCandidate{ID: d.ID, Title: d.Title.Get(language), Type: d.Type})
	}
	return out, nil
}

func filterLinks(raw any, candidates []linkCandidate) []any {
	known := make(map[string]struct{}, len(candidates))
	for _, c := range candidates {
		known[c.ID] = struct{}{}
	}
	items, _ := raw.([]any)
	out := make([]any, 0, len(items))
	for _, item := range items {
		link, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id := core.Data(link).String("document_id")
		if _, ok := known[id]; !ok {
			continue
		}
		out = append(out, link)
	}
	return out
}
