package app

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"tickd/internal/config"
	"tickd/internal/scheduler"
)

const maxCapturedOutput = 2048

// buildTask turns one config task declaration into a scheduler task. The
// execute hook runs the declared argv and reports a failing exit status (with
// a tail of the combined output) as the run error.
func buildTask(tc config.TaskConfig) (*scheduler.Task, error) {
	kind, err := taskKind(tc)
	if err != nil {
		return nil, err
	}
	run, err := commandExec(tc)
	if err != nil {
		return nil, err
	}
	return scheduler.NewTask(tc.ID, kind, run, scheduler.Options{
		Disabled: !tc.IsEnabled(),
	})
}

func taskKind(tc config.TaskConfig) (scheduler.Kind, error) {
	switch strings.ToLower(strings.TrimSpace(tc.Kind)) {
	case "periodic":
		every, err := config.ParseDurationField("tasks."+tc.ID+".every", tc.Every)
		if err != nil {
			return scheduler.Kind{}, err
		}
		if every <= 0 {
			return scheduler.Kind{}, fmt.Errorf("tasks.%s: periodic task requires a positive 'every'", tc.ID)
		}
		return scheduler.Periodic(every), nil

	case "daily":
		hour, minute, err := config.ParseAt(tc.At)
		if err != nil {
			return scheduler.Kind{}, fmt.Errorf("tasks.%s.at: %w", tc.ID, err)
		}
		return scheduler.DailyAt(hour, minute), nil

	case "instant":
		return scheduler.Instant(), nil

	default:
		return scheduler.Kind{}, fmt.Errorf("tasks.%s: unknown kind %q (want periodic, daily or instant)", tc.ID, tc.Kind)
	}
}

func commandExec(tc config.TaskConfig) (scheduler.ExecFunc, error) {
	if len(tc.Command) == 0 || strings.TrimSpace(tc.Command[0]) == "" {
		return nil, fmt.Errorf("tasks.%s: command is required", tc.ID)
	}
	timeout, err := config.ParseDurationField("tasks."+tc.ID+".timeout", tc.Timeout)
	if err != nil {
		return nil, err
	}

	argv := append([]string(nil), tc.Command...)
	workdir := tc.WorkDir

	return func(ctx context.Context, _ any) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Dir = workdir

		out, err := cmd.CombinedOutput()
		if err != nil {
			if ctx.Err() != nil {
				return fmt.Errorf("command %s: %w", argv[0], ctx.Err())
			}
			if tail := outputTail(out); tail != "" {
				return fmt.Errorf("command %s: %w: %s", argv[0], err, tail)
			}
			return fmt.Errorf("command %s: %w", argv[0], err)
		}
		return nil
	}, nil
}

// outputTail returns the trailing slice of combined output, trimmed and capped
// so a chatty command cannot flood the run error.
func outputTail(out []byte) string {
	out = bytes.TrimSpace(out)
	if len(out) > maxCapturedOutput {
		out = out[len(out)-maxCapturedOutput:]
	}
	return string(out)
}

// validateTasks rejects duplicate ids and malformed definitions without
// registering anything. Used by the config validator so a bad hot reload is
// refused before commit.
func validateTasks(tasks []config.TaskConfig) error {
	seen := make(map[string]struct{}, len(tasks))
	for _, tc := range tasks {
		if strings.TrimSpace(tc.ID) == "" {
			return fmt.Errorf("tasks: task id is required")
		}
		if _, dup := seen[tc.ID]; dup {
			return fmt.Errorf("tasks.%s: duplicate task id", tc.ID)
		}
		seen[tc.ID] = struct{}{}
		if _, err := buildTask(tc); err != nil {
			return err
		}
	}
	return nil
}
