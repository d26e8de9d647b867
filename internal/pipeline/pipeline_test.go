package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/nao1215/kickscan/internal/model"
)

// mockStep is a test helper that implements the Step interface.
type mockStep struct {
	name      string
	doFunc    func(ctx context.Context, run *model.Run) error
	callCount int
}

// Do implements Step.Do.
func (m *mockStep) Do(ctx context.Context, run *model.Run) error {
	m.callCount++
	if m.doFunc != nil {
		return m.doFunc(ctx, run)
	}
	return nil
}

// Name implements Step.Name.
func (m *mockStep) Name() string {
	return m.name
}

func newTestRun() *model.Run {
	return model.NewRun(model.ProjectRef{CreatorID: "acme", ProjectID: "widget"})
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

// TestPipelineNew tests the Pipeline constructor.
func TestPipelineNew(t *testing.T) {
	t.Parallel()

	t.Run("creates pipeline with default settings", func(t *testing.T) {
		t.Parallel()

		p := New()
		if p == nil {
			t.Fatal("expected non-nil pipeline")
		}
		if p.StepCount() != 0 {
			t.Errorf("expected 0 steps, got %d", p.StepCount())
		}
		if p.logger == nil {
			t.Error("expected default logger")
		}
	})
}

// TestPipelineAddStep tests adding steps to the pipeline.
func TestPipelineAddStep(t *testing.T) {
	t.Parallel()

	t.Run("adds single step", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddStep(&mockStep{name: "test-step"})
		if p.StepCount() != 1 {
			t.Errorf("expected 1 step, got %d", p.StepCount())
		}
	})

	t.Run("adds multiple steps with AddSteps", func(t *testing.T) {
		t.Parallel()

		p := New()
		p.AddSteps(&mockStep{name: "a"}, &mockStep{name: "b"}, &mockStep{name: "c"})
		if p.StepCount() != 3 {
			t.Errorf("expected 3 steps, got %d", p.StepCount())
		}
	})
}

// TestPipelineExecute tests step execution, failures and cancellation.
func TestPipelineExecute(t *testing.T) {
	t.Parallel()

	t.Run("runs steps in order", func(t *testing.T) {
		t.Parallel()

		var order []string
		record := func(name string) *mockStep {
			return &mockStep{name: name, doFunc: func(context.Context, *model.Run) error {
				order = append(order, name)
				return nil
			}}
		}

		p := New(WithLogger(discardLogger()))
		p.AddSteps(record("first"), record("second"), record("third"))

		run := newTestRun()
		if err := p.Execute(context.Background(), run); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Join(order, ",") != "first,second,third" {
			t.Errorf("expected first,second,third, got %v", order)
		}
		if len(run.CompletedSteps) != 3 {
			t.Errorf("expected 3 completed steps, got %v", run.CompletedSteps)
		}
	})

	t.Run("stops at first failure", func(t *testing.T) {
		t.Parallel()

		errBoom := errors.New("boom")
		failing := &mockStep{name: "failing", doFunc: func(context.Context, *model.Run) error { return errBoom }}
		after := &mockStep{name: "after"}

		p := New(WithLogger(discardLogger()))
		p.AddSteps(&mockStep{name: "ok"}, failing, after)

		run := newTestRun()
		err := p.Execute(context.Background(), run)
		if !errors.Is(err, errBoom) {
			t.Fatalf("expected errBoom, got %v", err)
		}
		if after.callCount != 0 {
			t.Errorf("expected step after failure not to run, ran %d times", after.callCount)
		}
		if run.Error != "boom" {
			t.Errorf("expected run error to be recorded, got %q", run.Error)
		}
		if len(run.CompletedSteps) != 1 || run.CompletedSteps[0] != "ok" {
			t.Errorf("expected only [ok] completed, got %v", run.CompletedSteps)
		}
	})

	t.Run("cancelled context stops before the next step", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		first := &mockStep{name: "first", doFunc: func(context.Context, *model.Run) error {
			cancel()
			return nil
		}}
		second := &mockStep{name: "second"}

		p := New(WithLogger(discardLogger()))
		p.AddSteps(first, second)

		err := p.Execute(ctx, newTestRun())
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if second.callCount != 0 {
			t.Errorf("expected second step not to run, ran %d times", second.callCount)
		}
	})

	t.Run("empty pipeline succeeds", func(t *testing.T) {
		t.Parallel()

		if err := New().Execute(context.Background(), newTestRun()); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})
}

// TestPipelineStepNames tests step name listing.
func TestPipelineStepNames(t *testing.T) {
	t.Parallel()

	p := New()
	p.AddSteps(&mockStep{name: "backers"}, &mockStep{name: "resolve"})

	names := p.StepNames()
	if len(names) != 2 || names[0] != "backers" || names[1] != "resolve" {
		t.Errorf("expected [backers resolve], got %v", names)
	}
}

// TestPipelineWithLogger tests that the custom logger receives step events.
func TestPipelineWithLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	p := New(WithLogger(logger))
	p.AddStep(&mockStep{name: "logged-step"})
	if err := p.Execute(context.Background(), newTestRun()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "executing step") || !strings.Contains(output, "logged-step") {
		t.Errorf("expected step log in output, got: %s", output)
	}
	if !strings.Contains(output, "acme/widget") {
		t.Errorf("expected target in output, got: %s", output)
	}
}
