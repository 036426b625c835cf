package agents

import (
	"fmt"

	"github.com/burhanettinuludag/clinicmesh/agent"
)

// Built-in agent names.
const (
	Content      = "content_agent"
	SEO          = "seo_agent"
	Legal        = "legal_agent"
	Translation  = "translation_agent"
	Quality      = "quality_agent"
	UIUX         = "uiux_agent"
	Code         = "code_agent"
	Editorial    = "editorial_agent"
	InternalLink = "internal_link_agent"
	News         = "news_agent"
	Publishing   = "publishing_agent"
	QA           = "qa_agent"
)

// Names returns every built-in agent name in pipeline-friendly order.
func Names() []string {
	return []string{Content, SEO, Legal, Translation, Quality, UIUX, Code, Editorial, InternalLink, News, Publishing, QA}
}

// All builds every built-in agent with the same collaborators.
func All(optFns ...func(o *agent.Options)) []*agent.Agent {
	return []*agent.Agent{
		NewContent(optFns...),
		NewSEO(optFns...),
		NewLegal(optFns...),
		NewTranslation(optFns...),
		NewQuality(optFns...),
		NewUIUX(optFns...),
		NewCode(optFns...),
		NewEditorial(optFns...),
		NewInternalLink(optFns...),
		NewNews(optFns...),
		NewPublishing(optFns...),
		NewQA(optFns...),
	}
}

// RegisterAll registers every built-in agent in reg.
func RegisterAll(reg *agent.Registry, optFns ...func(o *agent.Options)) error {
	for _, a := range All(optFns...) {
		if err := reg.Register(a); err != nil {
			return fmt.Errorf("register %s: %w", a.Name(), err)
		}
	}
	return nil
}
