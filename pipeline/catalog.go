package pipeline

import (
	"fmt"
	"sync"

	"github.com/burhanettinuludag/clinicmesh/agents"
)

// Built-in pipeline names.
const (
	PublishArticle = "publish_article"
	FullContent    = "full_content"
	NewsPipeline   = "news_pipeline"
	ContentReview  = "content_review"
	TranslateOnly  = "translate_only"
	SEOAudit       = "seo_audit"
	AnswerQuestion = "answer_question"
	UIReview       = "ui_review"
	CodeTask       = "code_task"
)

// Builtin returns the built-in pipeline definitions.
func Builtin() []Definition {
	return []Definition{
		{
			Name:          PublishArticle,
			Description:   "Write, optimise, clear legally and translate an article.",
			Steps:         []Step{PlainStep{agents.Content}, PlainStep{agents.SEO}, Gate(agents.Legal), PlainStep{agents.Translation}},
			StopOnFailure: true,
		},
		{
			Name:        FullContent,
			Description: "Complete article production with legal and quality gates, links and translation.",
			Steps: []Step{
				PlainStep{agents.Content}, PlainStep{agents.SEO}, Gate(agents.Legal), Gate(agents.Quality),
				PlainStep{agents.InternalLink}, PlainStep{agents.Translation},
			},
			StopOnFailure: true,
		},
		{
			Name:          NewsPipeline,
			Description:   "Write a news item and take it through legal, editorial and publishing approval.",
			Steps:         []Step{PlainStep{agents.News}, Gate(agents.Legal), Gate(agents.Editorial), Gate(agents.Publishing)},
			StopOnFailure: true,
		},
		{
			Name:        ContentReview,
			Description: "Informational legal, quality and editorial review of existing content.",
			Steps:       Plain(agents.Legal, agents.Quality, agents.Editorial),
		},
		{Name: TranslateOnly, Description: "Translate existing content to English.", Steps: Plain(agents.Translation)},
		{Name: SEOAudit, Description: "Search metadata and internal link suggestions.", Steps: Plain(agents.SEO, agents.InternalLink)},
		{Name: AnswerQuestion, Description: "Answer a patient question from indexed content.", Steps: Plain(agents.QA)},
		{Name: UIReview, Description: "Usability and accessibility review of a screen.", Steps: Plain(agents.UIUX)},
		{Name: CodeTask, Description: "Generate code for a platform task.", Steps: Plain(agents.Code)},
	}
}

// Catalog is a name -> Definition table. It is populated at startup and
// read concurrently afterwards.
type Catalog struct {
	mu    sync.RWMutex
	defs  map[string]Definition
	order []string
}

// NewCatalog builds a catalog from defs. Later definitions replace earlier
// ones with the same name.
func NewCatalog(defs ...Definition) (*Catalog, error) {
	c := &Catalog{defs: make(map[string]Definition)}
	for _, d := range defs {
		if err := c.Add(d); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Default returns a catalog holding the built-in pipelines.
func Default() *Catalog {
	c, err := NewCatalog(Builtin()...)
	if err != nil {
		panic(fmt.Sprintf("built-in pipelines: %v", err))
	}
	return c
}

// Add validates and stores def.
func (c *Catalog) Add(def Definition) error {
	if err := def.Validate(); err != nil {
		return err
	}
	def.Steps = append([]Step(nil), def.Steps...)
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.defs[def.Name]; !exists {
		c.order = append(c.order, def.Name)
	}
	c.defs[def.Name] = def
	return nil
}

// Get returns a copy of the named definition.
func (c *Catalog) Get(name string) (Definition, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.defs[name]
	if ok {
		d.Steps = append([]Step(nil), d.Steps...)
	}
	return d, ok
}

// Names returns pipeline names in insertion order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

// List returns every definition in insertion order.
func (c *Catalog) List() []Definition {
	names := c.Names()
	out := make([]Definition, 0, len(names))
	for _, n := range names {
		if d, ok := c.Get(n); ok {
			out = append(out, d)
		}
	}
	return out
}
