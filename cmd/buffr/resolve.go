package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/p-blackswan/buffr/internal/config"
	"github.com/p-blackswan/buffr/internal/resolver"
)

func resolveCmd() *cobra.Command {
	var (
		projectID string
		promptID  string
		file      string
		run       bool
		showCalls bool
	)

	cmd := &cobra.Command{
		Use:   "resolve [template]",
		Short: "Resolve a prompt template against a project, optionally running it",
		Long: `Resolve fills {{project.x}}, {{lastSession.x}} and {{now.x}} variables and
runs {{tool:name:params}} tokens, then prints the result. The template comes
from the argument, --file ("-" for stdin) or a stored prompt via --prompt.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOffline()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, newLogger(cfg, os.Stderr))
			if err != nil {
				return err
			}
			defer a.Close()

			body, err := templateSource(args, file, cmd.InOrStdin())
			if err != nil {
				return err
			}
			if body == "" && promptID != "" {
				p, err := a.prompts.Get(ctx, promptID)
				if err != nil {
					return err
				}
				body = p.Body
				if projectID == "" && !p.IsGlobal() {
					projectID = p.Scope
				}
			}
			if body == "" {
				return fmt.Errorf("no template: pass one as an argument, --file or --prompt")
			}

			vc := resolver.Context{Now: time.Now()}
			if projectID != "" {
				if vc.Project, err = a.projects.GetProject(ctx, projectID); err != nil {
					return err
				}
				if vc.LastSession, err = a.projects.LatestSession(ctx, projectID); err != nil {
					return err
				}
			}

			res, err := a.resolver.Resolve(ctx, body, vc)
			if err != nil {
				return err
			}
			if showCalls {
				for _, c := range res.Calls {
					status := "ok"
					if !c.OK {
						status = "failed: " + c.Error
					}
					fmt.Fprintf(cmd.ErrOrStderr(), "tool %s (%dms) %s\n", c.Name, c.DurationMs, status)
				}
			}

			out := cmd.OutOrStdout()
			if !run {
				fmt.Fprintln(out, res.Text)
				return nil
			}

			answer, err := a.chain.Run(ctx, res.Text)
			if err != nil {
				return err
			}
			if promptID != "" {
				if _, err := a.prompts.IncrementUsage(ctx, promptID); err != nil {
					return err
				}
			}
			fmt.Fprintln(out, answer.Text)
			for _, act := range answer.SuggestedActions {
				fmt.Fprintf(out, "  -> [%s] %s", act.Kind, act.Label)
				if act.Value != "" {
					fmt.Fprintf(out, ": %s", act.Value)
				}
				fmt.Fprintln(out)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&projectID, "project", "p", "", "Project id for variables and tool defaults")
	cmd.Flags().StringVar(&promptID, "prompt", "", "Stored prompt id to resolve")
	cmd.Flags().StringVarP(&file, "file", "f", "", `Read the template from a file ("-" for stdin)`)
	cmd.Flags().BoolVar(&run, "run", false, "Send the resolved prompt to the LLM")
	cmd.Flags().BoolVar(&showCalls, "calls", false, "Report tool calls on stderr")

	return cmd
}

func templateSource(args []string, file string, stdin io.Reader) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if file == "" {
		return "", nil
	}
	var (
		raw []byte
		err error
	)
	if file == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(file)
	}
	if err != nil {
		return "", fmt.Errorf("reading template: %w", err)
	}
	return strings.TrimRight(string(raw), "\n"), nil
}
