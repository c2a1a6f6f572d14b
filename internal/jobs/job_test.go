package jobs_test

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/nixpig/buildhook/internal/jobs"
)

func testOptions() jobs.Options {
	return jobs.Options{
		Command:     "echo",
		LogCapacity: 64 * 1024,
	}
}

func startTestJob(t *testing.T, name string, extraArgs []string, opts jobs.Options) *jobs.Job {
	t.Helper()

	job, err := jobs.StartJob(name, extraArgs, opts)
	if err != nil {
		t.Fatalf("expected not to receive error: got '%v'", err)
	}

	if job.ID() == "" {
		t.Errorf("expected job to be allocated an id")
	}

	return job
}

func TestJob(t *testing.T) {
	t.Run("Test run to completion", func(t *testing.T) {
		job := startTestJob(t, "hello+world", nil, testOptions())

		if job.Name() != "hello+world" {
			t.Errorf("expected job name: got '%s', want 'hello+world'", job.Name())
		}

		<-job.Done()

		if job.State() != jobs.JobStateExited {
			t.Errorf("expected state: got '%s', want '%s'", job.State(), jobs.JobStateExited)
		}

		if job.IsRunning() {
			t.Errorf("expected job not to be running")
		}

		if job.ExitCode() != 0 {
			t.Errorf("expected exit code: got '%d', want '0'", job.ExitCode())
		}
	})

	t.Run("Test derived argument list", func(t *testing.T) {
		job := startTestJob(t, "live+da-cc", []string{"verbose"}, testOptions())

		<-job.Done()

		want := []string{"verbose", "live", "da-cc"}
		got := job.Args()

		if len(got) != len(want) {
			t.Fatalf("expected args length: got '%d', want '%d'", len(got), len(want))
		}

		for i := range want {
			if got[i] != want[i] {
				t.Errorf("expected arg %d: got '%s', want '%s'", i, got[i], want[i])
			}
		}
	})

	t.Run("Test output captured in emission order", func(t *testing.T) {
		job := startTestJob(t, "hello+world", nil, testOptions())

		sub := job.SubscribeOutput()
		defer sub.Close()

		got, err := io.ReadAll(sub)
		if err != nil {
			t.Errorf("expected read not to return error: got '%v'", err)
		}

		if string(got) != "hello world\n" {
			t.Errorf("expected output: got '%s', want 'hello world\\n'", got)
		}
	})

	t.Run("Test invalid name", func(t *testing.T) {
		if _, err := jobs.StartJob("not_valid", nil, testOptions()); !errors.Is(err, jobs.ErrInvalidName) {
			t.Errorf("expected error to be ErrInvalidName: got '%v'", err)
		}

		if _, err := jobs.StartJob("", nil, testOptions()); !errors.Is(err, jobs.ErrInvalidName) {
			t.Errorf("expected error to be ErrInvalidName: got '%v'", err)
		}
	})

	t.Run("Test invalid extra argument", func(t *testing.T) {
		_, err := jobs.StartJob("build", []string{"--force"}, testOptions())
		if !errors.Is(err, jobs.ErrInvalidArguments) {
			t.Errorf("expected error to be ErrInvalidArguments: got '%v'", err)
		}
	})

	t.Run("Test spawn failure", func(t *testing.T) {
		opts := testOptions()
		opts.Command = "no-such-build-command-exists"

		_, err := jobs.StartJob("build", nil, opts)
		if !errors.Is(err, jobs.ErrSpawnFailed) {
			t.Errorf("expected error to be ErrSpawnFailed: got '%v'", err)
		}
	})

	t.Run("Test exit code of failed run", func(t *testing.T) {
		opts := testOptions()
		opts.Command = "false"

		job := startTestJob(t, "build", nil, opts)

		<-job.Done()

		if job.ExitCode() != 1 {
			t.Errorf("expected exit code: got '%d', want '1'", job.ExitCode())
		}
	})

	t.Run("Test execution timeout kills process", func(t *testing.T) {
		opts := testOptions()
		opts.Command = "sleep"
		opts.Timeout = 100 * time.Millisecond

		job := startTestJob(t, "30", nil, opts)

		select {
		case <-job.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("expected job to exit after timeout")
		}

		if job.State() != jobs.JobStateExited {
			t.Errorf("expected state: got '%s', want '%s'", job.State(), jobs.JobStateExited)
		}
	})

	t.Run("Test kill long-running process", func(t *testing.T) {
		opts := testOptions()
		opts.Command = "sleep"

		job := startTestJob(t, "30", nil, opts)

		if !job.IsRunning() {
			t.Errorf("expected job to be running")
		}

		job.Kill()

		select {
		case <-job.Done():
		case <-time.After(5 * time.Second):
			t.Fatalf("expected job to exit after kill")
		}

		if job.ExitCode() != -1 {
			t.Errorf("expected exit code: got '%d', want '-1'", job.ExitCode())
		}
	})

	t.Run("Test log frozen once exited", func(t *testing.T) {
		job := startTestJob(t, "hello", nil, testOptions())

		<-job.Done()

		first := readAllOutput(t, job)
		second := readAllOutput(t, job)

		if first != second {
			t.Errorf(
				"expected repeated replays to be identical: got '%s' and '%s'",
				first,
				second,
			)
		}
	})
}

func readAllOutput(t *testing.T, job *jobs.Job) string {
	t.Helper()

	sub := job.SubscribeOutput()
	defer sub.Close()

	got, err := io.ReadAll(sub)
	if err != nil {
		t.Fatalf("expected read not to return error: got '%v'", err)
	}

	return string(got)
}
