package dispatch

import (
	"log/slog"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/adalundhe/watchkit/core/errs"
	"github.com/adalundhe/watchkit/core/event"
	"github.com/adalundhe/watchkit/core/match"
)

// Dispatcher resolves matched rules against the action table and runs
// the resulting jobs. Jobs run concurrently when maxWorkers > 1; actions
// within a job always run sequentially with the stop-on-failure policy.
type Dispatcher struct {
	actions    map[string]ActionConfig
	repoRoot   string
	maxWorkers int
	log        *slog.Logger
}

// New builds a Dispatcher over an action table. maxWorkers <= 1 selects
// sequential mode.
func New(actions []ActionConfig, repoRoot string, maxWorkers int, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	table := make(map[string]ActionConfig, len(actions))
	for _, a := range actions {
		table[a.Name] = a
	}
	return &Dispatcher{
		actions:    table,
		repoRoot:   repoRoot,
		maxWorkers: maxWorkers,
		log:        log,
	}
}

// Dispatch expands each matched pair into a Job and executes the batch,
// returning every action result in job order. An ActionError aborts the
// cycle and surfaces to the caller.
func (d *Dispatcher) Dispatch(matched []Pair) ([]ActionResult, error) {
	jobs, err := d.buildJobs(matched)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	if d.maxWorkers <= 1 {
		return d.runSequential(jobs)
	}
	return d.runConcurrent(jobs)
}

// DispatchRule runs a single rule's actions for one event batch. This is
// the processor-facing entry point.
func (d *Dispatcher) DispatchRule(rule *match.RuleSpec, events []event.FileEvent) error {
	_, err := d.Dispatch([]Pair{{Rule: rule, Events: events}})
	return err
}

// buildJobs resolves rule action names against the action table. A
// dangling reference here means config validation was bypassed, so it is
// reported rather than skipped.
func (d *Dispatcher) buildJobs(matched []Pair) ([]Job, error) {
	jobs := make([]Job, 0, len(matched))
	for _, pair := range matched {
		if len(pair.Rule.Actions) == 0 {
			continue
		}
		actions := make([]ActionConfig, 0, len(pair.Rule.Actions))
		for _, name := range pair.Rule.Actions {
			action, ok := d.actions[name]
			if !ok {
				return nil, errs.Configf("rule %q references unknown action %q", pair.Rule.Name, name)
			}
			actions = append(actions, action)
		}
		jobs = append(jobs, Job{
			ID:      uuid.NewString(),
			Rule:    pair.Rule,
			Events:  pair.Events,
			Actions: actions,
		})
	}
	return jobs, nil
}

func (d *Dispatcher) runSequential(jobs []Job) ([]ActionResult, error) {
	var results []ActionResult
	for _, job := range jobs {
		jobResults, err := d.runJob(job)
		results = append(results, jobResults...)
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// runConcurrent submits each job to a bounded worker pool and collects
// results after all submitted jobs complete. Jobs finish in any order;
// ordering is only guaranteed within a job.
func (d *Dispatcher) runConcurrent(jobs []Job) ([]ActionResult, error) {
	workers := pool.NewWithResults[[]ActionResult]().
		WithErrors().
		WithMaxGoroutines(d.maxWorkers)

	for _, job := range jobs {
		workers.Go(func() ([]ActionResult, error) {
			return d.runJob(job)
		})
	}

	perJob, err := workers.Wait()
	var results []ActionResult
	for _, jobResults := range perJob {
		results = append(results, jobResults...)
	}
	return results, err
}

// runJob executes one job's actions in declared order, stopping at the
// first non-zero exit unless the rule continues on error. Launch
// failures abort immediately whatever the policy.
func (d *Dispatcher) runJob(job Job) ([]ActionResult, error) {
	d.log.Info("dispatching job",
		"job_id", job.ID, "rule", job.Rule.Name,
		"events", len(job.Events), "actions", len(job.Actions))

	var results []ActionResult
	for _, action := range job.Actions {
		result, err := runCommand(action, job.Events, job.Rule.Name, job.Rule.Watch, d.repoRoot)
		if err != nil {
			return results, err
		}
		results = append(results, result)

		switch {
		case result.ExitCode == 0:
			d.log.Info("action completed",
				"job_id", job.ID, "action", action.Name, "duration_ms", result.DurationMs)
		case result.TimedOut:
			d.log.Warn("action timed out",
				"job_id", job.ID, "action", action.Name, "timeout", action.Timeout)
		default:
			d.log.Warn("action failed",
				"job_id", job.ID, "action", action.Name,
				"exit_code", result.ExitCode, "stderr", result.Stderr)
		}

		if result.ExitCode != 0 && !job.Rule.ContinueOnError {
			d.log.Warn("stopping rule actions after failure",
				"job_id", job.ID, "rule", job.Rule.Name, "action", action.Name)
			break
		}
	}
	return results, nil
}
