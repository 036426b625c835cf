package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/burhanettinuludag/clinicmesh/agent"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/internal/jsonx"
	"github.com/burhanettinuludag/clinicmesh/internal/util"
)

// QAMaxSources caps the documents used as grounding.
const QAMaxSources = 3

// Confidence levels reported by qa_agent.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// InsufficientInfo is the canned answer returned when retrieval finds nothing.
var InsufficientInfo = core.Localized{
	TR: "Bu konuda yeterli bilgiye sahip değilim. Lütfen bir sağlık profesyoneline danışın.",
	EN: "I don't have enough information on this topic. Please consult a healthcare professional.",
}

var qaConfig = agent.Config{
	Name:         QA,
	Description:  "Answers patient questions from indexed clinic content.",
	SystemPrompt: "You answer patient questions using only the provided clinic documents. If the documents do not answer the question, say so. You never diagnose and never prescribe.",
	Temperature:  0.3,
	MaxTokens:    1000,
	TaskType:     "question_answering",
}

var qaPrompt = util.MustTemplate("qa", `Answer in {{.language}}.

Question: {{.question}}

Documents:
{{range .docs}}[{{.ID}}] {{.Title}}
{{.Body}}

{{end}}
Base the answer only on the documents. confidence is "high" when they answer the question directly,
"medium" when partially and "low" otherwise. End with a reminder to consult a doctor.

`+jsonOnly+` Fields:
{"answer": "...", "confidence": "high|medium|low"}`)

var qaSchema = jsonx.Schema{Fields: []string{"answer", "confidence"}, BodyField: "answer"}

type qaDoc struct {
	ID    string
	Title string
	Body  string
}

// QABehavior answers "question" from the content store. Without matching
// documents it returns InsufficientInfo without calling the model.
type QABehavior struct{}

// NewQA returns the qa_agent.
func NewQA(optFns ...func(o *agent.Options)) *agent.Agent {
	return agent.New(qaConfig, QABehavior{}, optFns...)
}

// QueryKeywords turns a question into retrieval keywords.
func QueryKeywords(question string) []string {
	return util.Keywords(question, stopWords, 2)
}

// Execute implements agent.Behavior.
func (QABehavior) Execute(ctx context.Context, env *agent.Env, input core.Data) (core.Data, error) {
	question, err := agent.RequireAny(input, "question", "query")
	if err != nil {
		return nil, err
	}
	language := lang(input)

	var docs []core.Document
	if searcher := env.Content(); searcher != nil {
		if kw := QueryKeywords(question); len(kw) > 0 {
			docs, err = searcher.Search(ctx, core.ContentQuery{Keywords: kw, Limit: QAMaxSources})
			if err != nil {
				return nil, fmt.Errorf("content search: %w", err)
			}
		}
	}
	if len(docs) > QAMaxSources {
		docs = docs[:QAMaxSources]
	}
	if len(docs) == 0 {
		env.Logger().Info("agent.qa.no_match", "agent", QA)
		return merge(input, core.Data{
			"answer":     InsufficientInfo.Get(language),
			"sources":    []any{},
			"confidence": ConfidenceLow,
		}), nil
	}

	grounding := make([]qaDoc, 0, len(docs))
	sources := make([]any, 0, len(docs))
	for _, d := range docs {
		title := d.Title.Get(language)
		grounding = append(grounding, qaDoc{ID: d.ID, Title: title, Body: util.Truncate(d.Body.Get(language), 2000)})
		sources = append(sources, map[string]any{"id": d.ID, "title": title, "type": d.Type})
	}

	out, err := complete(ctx, env, input, qaPrompt, map[string]any{
		"language": languageName(language),
		"question": question,
		"docs":     grounding,
	}, qaSchema)
	if err != nil {
		return nil, err
	}
	out["sources"] = sources
	if c := strings.ToLower(out.String("confidence")); c != ConfidenceHigh && c != ConfidenceMedium {
		out["confidence"] = ConfidenceLow
	} else {
		out["confidence"] = c
	}
	return out, nil
}

// Validate implements agent.Validator.
func (QABehavior) Validate(output core.Data) error {
	return agent.RequireFields(output, "answer")
}
