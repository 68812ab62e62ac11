package orchestrator

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/klauspost/compress/gzip"

	"github.com/codeready-toolchain/batchctl/internal/runconfig"
	"github.com/codeready-toolchain/batchctl/internal/telemetry"
)

// runRunScopeSteps executes every run-scope step in pipeline order once
// every chunk is terminal (§4.3 "Common epilogue"). Each completed step is
// recorded in the manifest before the next begins, so a crash mid-epilogue
// resumes without re-running a step that already finished.
func (o *Orchestrator) runRunScopeSteps(ctx context.Context) error {
	for _, step := range o.Config.Steps.RunSteps() {
		if o.Manifest.HasCompletedRunStep(step.Name) {
			continue
		}

		if err := o.runScript(ctx, step.Script, nil, ""); err != nil {
			return fmt.Errorf("orchestrator: run-scope step %q: %w", step.Name, err)
		}

		o.Manifest.MarkRunStepCompleted(step.Name)
		if err := o.save(); err != nil {
			return fmt.Errorf("orchestrator: saving manifest after run-scope step %q: %w", step.Name, err)
		}
		o.RunLog.Log(telemetry.TagStep, "run-scope step completed", "step", step.Name)
	}
	return nil
}

// runPostProcess executes the pipeline's post-processing steps in order:
// arbitrary scripts and the built-in gzip compression step (§4.3, §6.1
// post_process).
func (o *Orchestrator) runPostProcess(ctx context.Context) error {
	for _, step := range o.Config.PostProcess {
		if o.Manifest.HasCompletedRunStep(postProcessStepKey(step.Name)) {
			continue
		}

		var err error
		if step.IsGzip() {
			err = o.runGzipStep(step)
		} else {
			err = o.runScript(ctx, step.Script, step.Args, step.Output)
		}
		if err != nil {
			return fmt.Errorf("orchestrator: post-process step %q: %w", step.Name, err)
		}

		o.Manifest.MarkRunStepCompleted(postProcessStepKey(step.Name))
		if err := o.save(); err != nil {
			return fmt.Errorf("orchestrator: saving manifest after post-process step %q: %w", step.Name, err)
		}
		o.RunLog.Log(telemetry.TagStep, "post-process step completed", "step", step.Name)
	}
	return nil
}

// postProcessStepKey namespaces post-process step names in the manifest's
// shared completed-steps list so a run-scope step and a post-process step
// sharing a name don't alias each other's completion record.
func postProcessStepKey(name string) string {
	return "postprocess:" + name
}

// runScript runs an arbitrary pipeline-configured script (run-scope step or
// post-process script step) as a child process rooted at the run
// directory. stdout is captured to outputPath when set, otherwise discarded;
// stderr is always captured for the error message.
func (o *Orchestrator) runScript(ctx context.Context, script string, args []string, outputPath string) error {
	if script == "" {
		return fmt.Errorf("no script configured")
	}

	cmd := exec.CommandContext(ctx, script, args...)
	cmd.Dir = o.Run.Dir
	cmd.Env = append(os.Environ(), "BATCHCTL_RUN_DIR="+o.Run.Dir)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if outputPath != "" {
		f, err := os.Create(filepath.Join(o.Run.Dir, outputPath))
		if err != nil {
			return fmt.Errorf("creating output file %s: %w", outputPath, err)
		}
		defer f.Close()
		cmd.Stdout = f
	}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, stderr.String())
	}
	return nil
}

// runGzipStep compresses every configured file in place, removing the
// original unless keep_originals is set (§6.1 post_process gzip step).
func (o *Orchestrator) runGzipStep(step runconfig.PostProcessStep) error {
	for _, rel := range step.Files {
		path := filepath.Join(o.Run.Dir, rel)
		if err := gzipFile(path); err != nil {
			return fmt.Errorf("compressing %s: %w", rel, err)
		}
		if !step.KeepOriginals {
			if err := os.Remove(path); err != nil {
				return fmt.Errorf("removing original %s after compression: %w", rel, err)
			}
		}
	}
	return nil
}

func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	defer out.Close()

	gw := gzip.NewWriter(out)
	if _, err := io.Copy(gw, in); err != nil {
		gw.Close()
		return err
	}
	return gw.Close()
}
