package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/aatumaykin/tickd/internal/config"
	"github.com/aatumaykin/tickd/internal/hook"
	"github.com/aatumaykin/tickd/internal/job"
	"github.com/aatumaykin/tickd/internal/logger"
	"github.com/aatumaykin/tickd/internal/schedule"
	"github.com/aatumaykin/tickd/internal/scheduler"
	"github.com/aatumaykin/tickd/internal/store"
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "Manage scheduled jobs",
}

var (
	addName     string
	addCron     string
	addEvery    string
	addAt       string
	addMessage  string
	addTask     string
	addArgs     []string
	addTimezone string
	listOutput  string
)

var jobAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a scheduled job",
	Long: `Add a job with exactly one schedule flag (--cron, --every, or --at)
and one payload flag (--message or --task).`,
	Run: runJobAdd,
}

var jobListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all scheduled jobs",
	Run:   runJobList,
}

var jobRemoveCmd = &cobra.Command{
	Use:   "remove <job-id>",
	Short: "Remove a scheduled job",
	Args:  cobra.ExactArgs(1),
	Run:   runJobRemove,
}

var jobEnableCmd = &cobra.Command{
	Use:   "enable <job-id>",
	Short: "Enable a disabled job",
	Args:  cobra.ExactArgs(1),
	Run:   runJobEnable,
}

var jobDisableCmd = &cobra.Command{
	Use:   "disable <job-id>",
	Short: "Disable a job without removing it",
	Args:  cobra.ExactArgs(1),
	Run:   runJobDisable,
}

func init() {
	jobAddCmd.Flags().StringVar(&addName, "name", "", "human-readable job name")
	jobAddCmd.Flags().StringVar(&addCron, "cron", "", "cron expression schedule (e.g. \"0 9 * * *\")")
	jobAddCmd.Flags().StringVar(&addEvery, "every", "", "fixed interval schedule (e.g. \"30m\")")
	jobAddCmd.Flags().StringVar(&addAt, "at", "", "one-shot schedule, RFC 3339 timestamp")
	jobAddCmd.Flags().StringVar(&addMessage, "message", "", "message payload content")
	jobAddCmd.Flags().StringVar(&addTask, "task", "", "task_run payload task name")
	jobAddCmd.Flags().StringArrayVar(&addArgs, "arg", nil, "task argument as key=value, repeatable")
	jobAddCmd.Flags().StringVar(&addTimezone, "timezone", "", "per-job IANA timezone override")

	jobListCmd.Flags().StringVarP(&listOutput, "output", "o", "table", "output format: table, json, yaml")

	jobCmd.AddCommand(jobAddCmd)
	jobCmd.AddCommand(jobListCmd)
	jobCmd.AddCommand(jobRemoveCmd)
	jobCmd.AddCommand(jobEnableCmd)
	jobCmd.AddCommand(jobDisableCmd)
}

// newService builds a scheduler service for CRUD commands. The dispatch
// loop is never started here; CRUD only needs the store and evaluator.
func newService() *scheduler.Service {
	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	log, err := logger.New(logger.Config{Level: "warn", Format: "text", Output: "stderr"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	storePath, err := cfg.ExpandStorePath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to resolve store path: %v\n", err)
		os.Exit(1)
	}
	st := store.New(storePath, log)
	hooks := hook.NewRegistry(cfg.Scheduler.HookTimeout(), log)

	noop := scheduler.ExecutorFunc(func(ctx context.Context, p job.Payload, jobID string) error {
		return nil
	})

	svc, err := scheduler.New(scheduler.Config{
		DefaultTimezone: cfg.Scheduler.Timezone,
		TickInterval:    cfg.Scheduler.TickInterval(),
		JobTimeout:      cfg.Scheduler.JobTimeout(),
	}, st, hooks, noop, log, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open job store: %v\n", err)
		os.Exit(1)
	}
	return svc
}

// parseScheduleFlags builds a schedule from the add command flags
func parseScheduleFlags() (schedule.Schedule, error) {
	set := 0
	for _, f := range []string{addCron, addEvery, addAt} {
		if f != "" {
			set++
		}
	}
	if set != 1 {
		return schedule.Schedule{}, fmt.Errorf("exactly one of --cron, --every, --at is required")
	}

	switch {
	case addCron != "":
		return schedule.Cron(addCron), nil
	case addEvery != "":
		d, err := time.ParseDuration(addEvery)
		if err != nil {
			return schedule.Schedule{}, fmt.Errorf("invalid --every duration %q: %w", addEvery, err)
		}
		return schedule.Every(d), nil
	default:
		ts, err := time.Parse(time.RFC3339, addAt)
		if err != nil {
			return schedule.Schedule{}, fmt.Errorf("invalid --at timestamp %q (expected RFC 3339): %w", addAt, err)
		}
		return schedule.At(ts.UnixMilli()), nil
	}
}

// parsePayloadFlags builds a payload from the add command flags
func parsePayloadFlags() (job.Payload, error) {
	if (addMessage == "") == (addTask == "") {
		return job.Payload{}, fmt.Errorf("exactly one of --message, --task is required")
	}

	if addMessage != "" {
		return job.Payload{Kind: job.PayloadMessage, Message: addMessage}, nil
	}

	p := job.Payload{Kind: job.PayloadTaskRun, TaskName: addTask}
	for _, arg := range addArgs {
		k, v, found := strings.Cut(arg, "=")
		if !found || k == "" {
			return job.Payload{}, fmt.Errorf("invalid --arg %q (expected key=value)", arg)
		}
		if p.TaskArgs == nil {
			p.TaskArgs = make(map[string]string)
		}
		p.TaskArgs[k] = v
	}
	return p, nil
}

func runJobAdd(cmd *cobra.Command, args []string) {
	sched, err := parseScheduleFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	payload, err := parsePayloadFlags()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	svc := newService()
	j, err := svc.AddJob(addName, sched, payload, addTimezone)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to add job: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("Job added")
	fmt.Printf("  ID:       %s\n", j.ID)
	fmt.Printf("  Name:     %s\n", j.Name)
	fmt.Printf("  Schedule: %s\n", formatSchedule(j.Schedule))
	if j.NextRunAtMs != nil {
		fmt.Printf("  Next run: %s\n", time.UnixMilli(*j.NextRunAtMs).Format(time.RFC3339))
	} else {
		fmt.Printf("  Next run: never\n")
	}
}

func runJobList(cmd *cobra.Command, args []string) {
	svc := newService()
	jobs := svc.ListJobs()

	switch listOutput {
	case "json":
		data, err := json.MarshalIndent(jobs, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	case "yaml":
		data, err := yaml.Marshal(jobs)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(data))
	case "table":
		if len(jobs) == 0 {
			fmt.Println("No jobs found")
			return
		}
		for _, j := range jobs {
			fmt.Printf("ID:       %s\n", j.ID)
			fmt.Printf("Name:     %s\n", j.Name)
			fmt.Printf("Schedule: %s\n", formatSchedule(j.Schedule))
			fmt.Printf("Enabled:  %v\n", j.Enabled)
			fmt.Printf("Status:   %s (runs: %d)\n", j.LastStatus, j.RunCount)
			if j.NextRunAtMs != nil {
				fmt.Printf("Next run: %s\n", time.UnixMilli(*j.NextRunAtMs).Format(time.RFC3339))
			} else {
				fmt.Printf("Next run: never\n")
			}
			fmt.Println("---")
		}
		fmt.Printf("Total: %d\n", len(jobs))
	default:
		fmt.Fprintf(os.Stderr, "error: invalid --output %q (expected: table, json, yaml)\n", listOutput)
		os.Exit(1)
	}
}

func runJobRemove(cmd *cobra.Command, args []string) {
	svc := newService()
	if err := svc.RemoveJob(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Job %s removed\n", args[0])
}

func runJobEnable(cmd *cobra.Command, args []string) {
	svc := newService()
	if err := svc.EnableJob(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Job %s enabled\n", args[0])
}

func runJobDisable(cmd *cobra.Command, args []string) {
	svc := newService()
	if err := svc.DisableJob(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Job %s disabled\n", args[0])
}

// formatSchedule renders a schedule for human output
func formatSchedule(s schedule.Schedule) string {
	switch s.Kind {
	case schedule.KindCron:
		return fmt.Sprintf("cron %q", s.Expr)
	case schedule.KindEvery:
		return fmt.Sprintf("every %s", time.Duration(s.EveryMs)*time.Millisecond)
	case schedule.KindAt:
		return fmt.Sprintf("at %s", time.UnixMilli(s.AtMs).Format(time.RFC3339))
	default:
		return string(s.Kind)
	}
}
