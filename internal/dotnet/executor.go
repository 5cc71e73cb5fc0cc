package dotnet

import (
	"context"
	"path"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/michaelbrown/dotbox/internal/sandbox"
)

const (
	snippetDir     = "/workspace/Snippet"
	snippetProject = snippetDir + "/Snippet.csproj"
	snippetSource  = snippetDir + "/Program.cs"

	// DefaultBuildTimeout bounds a restore and build of a small project.
	DefaultBuildTimeout = 2 * time.Minute
)

// Phase names the step a snippet run stopped at.
type Phase string

const (
	PhaseBuild Phase = "build"
	PhaseRun   Phase = "run"
)

// SnippetResult is the outcome of RunSnippet. A failed build or a
// non-zero exit is a result, not an error.
type SnippetResult struct {
	Success     bool     `json:"success"`
	Phase       Phase    `json:"phase"`
	Stdout      string   `json:"stdout"`
	Stderr      string   `json:"stderr"`
	ExitCode    int      `json:"exit_code"`
	BuildErrors []string `json:"build_errors"`
	ProjectID   string   `json:"project_id"`
}

// BuildResult is the outcome of a project build.
type BuildResult struct {
	Success  bool     `json:"success"`
	Output   string   `json:"output"`
	ExitCode int      `json:"exit_code"`
	Errors   []string `json:"build_errors"`
}

// Executor orchestrates build and run steps on top of a sandbox manager.
type Executor struct {
	mgr          *sandbox.Manager
	versions     Versions
	log          zerolog.Logger
	buildTimeout time.Duration
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithVersions sets the package version resolver used for snippets.
func WithVersions(v Versions) ExecutorOption {
	return func(e *Executor) { e.versions = v }
}

// WithExecutorLogger sets the executor logger.
func WithExecutorLogger(l zerolog.Logger) ExecutorOption {
	return func(e *Executor) { e.log = l.With().Str("component", "executor").Logger() }
}

// WithBuildTimeout bounds each build step.
func WithBuildTimeout(d time.Duration) ExecutorOption {
	return func(e *Executor) { e.buildTimeout = d }
}

// NewExecutor creates an executor over mgr.
func NewExecutor(mgr *sandbox.Manager, opts ...ExecutorOption) *Executor {
	e := &Executor{
		mgr:          mgr,
		log:          zerolog.Nop(),
		buildTimeout: DefaultBuildTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Build runs "dotnet build" on a project path inside sandbox id. A
// non-positive timeout falls back to the executor's build timeout.
func (e *Executor) Build(ctx context.Context, id, projectPath string, timeout time.Duration) (BuildResult, error) {
	if timeout <= 0 {
		timeout = e.buildTimeout
	}
	res, err := e.mgr.Execute(ctx, id, []string{"dotnet", "build", sandbox.ResolvePath(projectPath)}, timeout)
	if err != nil {
		return BuildResult{}, err
	}
	if res.ExitCode == 0 {
		return BuildResult{Success: true, Output: res.Stdout, Errors: []string{}}, nil
	}
	errs := ParseBuildErrors(res.Stderr)
	if errs == nil {
		errs = []string{}
	}
	return BuildResult{Output: res.Stderr, ExitCode: res.ExitCode, Errors: errs}, nil
}

// Run executes "dotnet run" for a project path inside sandbox id.
func (e *Executor) Run(ctx context.Context, id, projectPath string, timeout time.Duration) (sandbox.ExecResult, error) {
	return e.mgr.Execute(ctx, id, []string{"dotnet", "run", "--project", sandbox.ResolvePath(projectPath)}, timeout)
}

// RunSnippet compiles and runs a single C# source file in a throwaway
// sandbox. The sandbox is removed on every exit path, including
// cancellation of ctx. Errors are returned only for failures of the
// sandbox layer itself.
func (e *Executor) RunSnippet(ctx context.Context, code string, version sandbox.Version, packages []string, timeout time.Duration) (*SnippetResult, error) {
	version, err := sandbox.ParseVersion(string(version))
	if err != nil {
		return nil, err
	}
	csproj, err := GenerateCsproj(ctx, version, packages, e.versions)
	if err != nil {
		return nil, err
	}

	projectID := "snippet-" + uuid.NewString()[:8]
	log := e.log.With().Str("project_id", projectID).Logger()

	id, err := e.mgr.Create(ctx, version, projectID, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		outcome := e.mgr.Stop(context.WithoutCancel(ctx), id)
		log.Debug().Str("outcome", outcome.String()).Msg("snippet sandbox torn down")
	}()

	if err := e.mgr.WriteFile(ctx, id, snippetProject, []byte(csproj)); err != nil {
		return nil, err
	}
	if err := e.mgr.WriteFile(ctx, id, snippetSource, []byte(code)); err != nil {
		return nil, err
	}

	build, err := e.Build(ctx, id, path.Dir(snippetProject), timeout)
	if err != nil {
		return nil, err
	}
	if !build.Success {
		log.Debug().Int("errors", len(build.Errors)).Msg("snippet build failed")
		return &SnippetResult{
			Phase:       PhaseBuild,
			Stderr:      build.Output,
			ExitCode:    1,
			BuildErrors: build.Errors,
			ProjectID:   projectID,
		}, nil
	}

	run, err := e.Run(ctx, id, snippetProject, timeout)
	if err != nil {
		return nil, err
	}
	return &SnippetResult{
		Success:     run.ExitCode == 0,
		Phase:       PhaseRun,
		Stdout:      run.Stdout,
		Stderr:      run.Stderr,
		ExitCode:    run.ExitCode,
		BuildErrors: []string{},
		ProjectID:   projectID,
	}, nil
}
