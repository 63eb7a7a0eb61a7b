package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"toolcall/internal/domain"
	"toolcall/internal/journal"
	"toolcall/internal/protocol"
)

func toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the LIST_TOOLS envelope",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadRuntimeConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			reply := rt.dispatcher.Dispatch(cmd.Context(), protocol.Request{Command: protocol.ListTools})
			return printJSON(cmd.OutOrStdout(), reply.Response)
		},
	}
}

func callCmd() *cobra.Command {
	var params, contextValues []string
	cmd := &cobra.Command{
		Use:   "call <tool_id>",
		Short: "Run one CALL_TOOL locally and print the envelope",
		Long: `Runs a single CALL_TOOL against a fresh global context.
Values are parsed as JSON when possible, otherwise taken as strings:

  toolcall call code_generation --param description="auth endpoint"
  toolcall call debugging --context generated_code="def f(): pass"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := parseKeyValues(params)
			if err != nil {
				return fmt.Errorf("--param: %w", err)
			}
			c, err := parseKeyValues(contextValues)
			if err != nil {
				return fmt.Errorf("--context: %w", err)
			}

			cfg, closeLog, err := loadRuntimeConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			rt, err := newRuntime(cfg)
			if err != nil {
				return err
			}
			defer rt.Close()

			reply := rt.dispatcher.Dispatch(cmd.Context(), protocol.Request{
				Command:    protocol.CallTool,
				ToolID:     args[0],
				Parameters: p,
				Context:    domain.Context(c),
			})
			if err := printJSON(cmd.OutOrStdout(), reply.Response); err != nil {
				return err
			}
			if reply.Code != http.StatusOK {
				return fmt.Errorf("call failed with status %d", reply.Code)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "tool parameter as key=value (repeatable)")
	cmd.Flags().StringArrayVar(&contextValues, "context", nil, "client context value as key=value (repeatable)")
	return cmd
}

// parseKeyValues turns key=value pairs into a map. Values that parse as JSON
// keep their JSON type.
func parseKeyValues(pairs []string) (map[string]any, error) {
	out := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("expected key=value, got %q", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		out[key] = v
	}
	return out, nil
}

func historyCmd() *cobra.Command {
	var limit int
	var stats bool
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent tool invocations from the journal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, closeLog, err := loadRuntimeConfig()
			if err != nil {
				return err
			}
			defer closeLog()
			if !cfg.Journal.Enabled {
				logger.Warn("journal is disabled; enable it with: toolcall config set journal.enabled true")
			}

			j, err := journal.NewSQLiteJournal(cfg.Journal.DBPath, logger)
			if err != nil {
				return err
			}
			defer j.Close()

			ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
			defer cancel()

			out := cmd.OutOrStdout()
			if stats {
				counts, err := j.Counts(ctx)
				if err != nil {
					return err
				}
				outcomes := make([]string, 0, len(counts))
				for o := range counts {
					outcomes = append(outcomes, o)
				}
				sort.Strings(outcomes)
				for _, o := range outcomes {
					fmt.Fprintf(out, "%-18s %d\n", o, counts[o])
				}
				return nil
			}

			entries, err := j.Recent(ctx, limit)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tREQUEST\tTOOL\tOUTCOME\tDURATION\tERROR")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
					e.CreatedAt.Format(time.RFC3339), e.RequestID, e.ToolID, e.Outcome, e.Duration, e.Error)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	cmd.Flags().BoolVar(&stats, "stats", false, "show counts per outcome instead of entries")
	return cmd
}
