package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Mido1300/sm/internal/task"
)

func newImportCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file|->",
		Short: "Import tasks from a JSON array",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var in io.Reader = cmd.InOrStdin()
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			res, err := a.store.ImportFrom(in)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "imported %d task(s), rejected %d\n", res.SuccessCount, res.ErrorCount)
			for _, issue := range res.Issues {
				if issue.Field != "" {
					fmt.Fprintf(out, "  record %d %s: %s\n", issue.Index, issue.Field, issue.Reason)
					continue
				}
				fmt.Fprintf(out, "  record %d: %s\n", issue.Index, issue.Reason)
			}
			return nil
		},
	}
}

func newExportCmd(flags *rootFlags) *cobra.Command {
	var (
		output string
		ids    []string
		format string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export tasks as JSON or iCalendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			tasks := a.store.Tasks()
			if len(ids) > 0 {
				tasks = a.store.Export(ids)
			}

			var w io.Writer = cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			switch strings.ToLower(format) {
			case "json", "":
				return task.EncodeExport(w, tasks)
			case "ics":
				cal, err := task.BuildCalendarICS(tasks, time.Now().UTC())
				if err != nil {
					return err
				}
				_, err = io.WriteString(w, cal)
				return err
			default:
				return fmt.Errorf("unknown export format %q (want json or ics)", format)
			}
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().StringSliceVar(&ids, "id", nil, "export only these task ids (repeatable)")
	cmd.Flags().StringVar(&format, "format", "json", "json or ics")
	return cmd
}

func newListCmd(flags *rootFlags) *cobra.Command {
	var (
		c      task.Criteria
		status string
		prio   string
		sortBy string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks through the filter and sort engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			c.Status = task.Status(strings.ToLower(status))
			if prio != "" {
				c.Priority = task.Priority(strings.ToUpper(prio[:1]) + strings.ToLower(prio[1:]))
			}
			c.Sort = task.SortKey(sortBy)
			if c.Status != "" && !c.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			if c.Priority != "" && !c.Priority.Valid() {
				return fmt.Errorf("unknown priority %q", prio)
			}
			if !c.Sort.Valid() {
				return fmt.Errorf("unknown sort key %q", sortBy)
			}

			a, err := flags.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			view := a.store.View(c)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(view)
			}
			return printTasks(cmd.OutOrStdout(), view)
		},
	}
	cmd.Flags().StringVarP(&c.Search, "search", "s", "", "case-insensitive title substring")
	cmd.Flags().StringVar(&status, "status", "", "pending or completed")
	cmd.Flags().StringVar(&prio, "priority", "", "high, medium or low")
	cmd.Flags().StringVar(&c.Category, "category", "", "category label")
	cmd.Flags().StringVar(&sortBy, "sort", string(task.SortDueDate), "dueDate, priority, title or empty for collection order")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func printTasks(w io.Writer, tasks []task.Task) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tPRIORITY\tCATEGORY\tDUE")
	for _, t := range tasks {
		due := "-"
		if t.DueDate != nil {
			due = *t.DueDate
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", t.ID, t.Title, t.Status, t.Priority, t.CategoryLabel(), due)
	}
	return tw.Flush()
}
