package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/burhanettinuludag/clinicmesh"
	"github.com/burhanettinuludag/clinicmesh/config"
	"github.com/burhanettinuludag/clinicmesh/core"
	"github.com/burhanettinuludag/clinicmesh/engine"
	"github.com/burhanettinuludag/clinicmesh/pipeline"
	"github.com/burhanettinuludag/clinicmesh/runner"
)

// errRunFailed makes the process exit non-zero after the result was printed.
var errRunFailed = errors.New("pipeline run failed")

type cli struct {
	configPath string
	quiet      bool
}

func newRootCommand() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "clinicmesh",
		Short: "Run multi-agent content pipelines for a health platform",
		Long: `clinicmesh chains LLM agents (content, SEO, legal review, translation, QA...)
into pipelines with gatekeeper steps, task tracking and audit logging.

Examples:
  clinicmesh pipelines
  clinicmesh run publish_article --input '{"topic": "migren"}'
  clinicmesh run adhoc --steps seo_agent,internal_link_agent --input '{"body": "..."}'
  clinicmesh ask "Migren ataklarını ne tetikler?" --lang tr
  cat jobs.jsonl | clinicmesh worker`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "path to the YAML configuration")
	root.PersistentFlags().BoolVarP(&c.quiet, "quiet", "q", false, "only log errors")

	root.AddCommand(
		newPipelinesCommand(c),
		newAgentsCommand(c),
		newRunCommand(c),
		newAskCommand(c),
		newWorkerCommand(c),
	)
	return root
}

func (c *cli) open(ctx context.Context) (*clinicmesh.Mesh, error) {
	cfg := config.Default()
	if c.configPath != "" {
		var err error
		if cfg, err = config.Load(c.configPath); err != nil {
			return nil, err
		}
	}
	if c.quiet {
		cfg.Logging.Level = "error"
	}
	return clinicmesh.New(ctx, func(o *clinicmesh.Options) { o.Config = cfg })
}

func newPipelinesCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "pipelines",
		Short: "List the pipeline catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := c.open(cmd.Context())
			if err != nil {
				return err
			}
			defer m.Close(cmd.Context())

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tSTOP ON FAILURE\tSTEPS")
			for _, def := range m.Catalog().List() {
				fmt.Fprintf(w, "%s\t%t\t%s\n", def.Name, def.StopOnFailure, formatSteps(def))
			}
			return w.Flush()
		},
	}
}

// formatSteps marks gatekeeper steps with a trailing '*'.
func formatSteps(def pipeline.Definition) string {
	parts := make([]string, 0, len(def.Steps))
	for _, st := range def.Steps {
		name := st.AgentName()
		if _, gate := st.(pipeline.GatekeeperStep); gate {
			name += "*"
		}
		parts = append(parts, name)
	}
	return strings.Join(parts, " -> ")
}

func newAgentsCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List registered agents and their feature flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer m.Close(ctx)

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tENABLED\tFLAG\tDESCRIPTION")
			for _, name := range m.Registry().List() {
				a, _ := m.Registry().Lookup(name)
				cfg := a.Config()
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\n", name, a.Enabled(ctx), cfg.FlagKey, cfg.Description)
			}
			return w.Flush()
		},
	}
}

func newRunCommand(c *cli) *cobra.Command {
	var (
		input string
		steps []string
		user  string
		async bool
	)
	cmd := &cobra.Command{
		Use:   "run <pipeline>",
		Short: "Run a pipeline and print its result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := parseInput(input)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			m, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer m.Close(ctx)

			if !async {
				res := m.Run(ctx, engine.Request{Pipeline: args[0], Input: data, Steps: steps, TriggeredBy: user})
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				if !res.Success {
					return errRunFailed
				}
				return nil
			}

			if err := m.Start(ctx); err != nil {
				return err
			}
			id, err := m.Submit(ctx, runner.Job{PipelineName: args[0], InputData: data, Steps: steps, TriggeredByID: user})
			if err != nil {
				return err
			}
			st, err := m.Runner().Wait(ctx, id)
			if err != nil {
				return err
			}
			if err := writeJSON(cmd.OutOrStdout(), st); err != nil {
				return err
			}
			if st.State != runner.JobCompleted {
				return errRunFailed
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "{}", "pipeline input as a JSON object")
	cmd.Flags().StringSliceVar(&steps, "steps", nil, "explicit comma separated step list")
	cmd.Flags().StringVar(&user, "user", "", "id of the triggering user")
	cmd.Flags().BoolVar(&async, "async", false, "run through the async worker pool")
	return cmd
}

func newAskCommand(c *cli) *cobra.Command {
	var lang, user string
	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a patient question from indexed content",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			m, err := c.open(ctx)
			if err != nil {
				return err
			}
			defer m.Close(ctx)

			res := m.Ask(ctx, strings.Join(args, " "), lang, user)
			if !res.Success {
				_ = writeJSON(cmd.OutOrStdout(), res)
				return errRunFailed
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Data.String("answer"))
			if conf := res.Data.String("confidence"); conf != "" {
				fmt.Fprintf(out, "\nconfidence: %s\n", conf)
			}
			for _, src := range sourceTitles(res.Data["sources"]) {
				fmt.Fprintf(out, "source: %s\n", src)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&lang, "lang", "l", core.LangTR, "answer language (tr or en)")
	cmd.Flags().StringVar(&user, "user", "", "id of the asking user")
	return cmd
}

func sourceTitles(v any) []string {
	items, _ := v.([]any)
	var out []string
	for _, it := range items {
		switch s := it.(type) {
		case map[string]any:
			if t, ok := s["title"].(string); ok {
				out = append(out, t)
			}
		case core.Data:
			out = append(out, s.String("title"))
		case string:
			out = append(out, s)
		}
	}
	return out
}

func newWorkerCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Start the worker pool and drain JSON job lines from stdin",
		Long: `worker reads one job per line from stdin, for example

  {"pipeline_name": "publish_article", "input_data": {"topic": "migren"}, "triggered_by_id": "42"}

and prints one job status per line once the queue has drained.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			m, err := c.open(ctx)
			if err != nil {
				return err
			}
			if err := m.Start(ctx); err != nil {
				_ = m.Close(ctx)
				return err
			}
			ids, submitErr := submitLines(ctx, m, cmd.InOrStdin())
			if err := m.Close(ctx); err != nil {
				return err
			}

			failed := 0
			enc := json.NewEncoder(cmd.OutOrStdout())
			for _, id := range ids {
				st, err := m.Runner().Status(id)
				if err != nil {
					return err
				}
				if st.State != runner.JobCompleted {
					failed++
				}
				if err := enc.Encode(st); err != nil {
					return err
				}
			}
			if submitErr != nil {
				return submitErr
			}
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d jobs", errRunFailed, failed, len(ids))
			}
			return nil
		},
	}
}

func submitLines(ctx context.Context, m *clinicmesh.Mesh, r io.Reader) ([]string, error) {
	var ids []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		id, err := submitWithBackoff(ctx, m.Runner(), []byte(text))
		if err != nil {
			return ids, fmt.Errorf("line %d: %w", line, err)
		}
		ids = append(ids, id)
	}
	return ids, sc.Err()
}

// submitWithBackoff waits for a free queue slot instead of dropping the job.
func submitWithBackoff(ctx context.Context, r *runner.Runner, payload []byte) (string, error) {
	for {
		id, err := r.SubmitPayload(ctx, payload)
		if !errors.Is(err, runner.ErrQueueFull) {
			return id, err
		}
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

func parseInput(s string) (core.Data, error) {
	data := core.Data{}
	if strings.TrimSpace(s) == "" {
		return data, nil
	}
	if err := json.Unmarshal([]byte(s), &data); err != nil {
		return nil, fmt.Errorf("--input must be a JSON object: %w", err)
	}
	return data, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
