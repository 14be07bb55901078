package engine

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/MimeLyc/contextual-meta-translator/internal/config"
	"github.com/MimeLyc/contextual-meta-translator/internal/langset"
	"github.com/MimeLyc/contextual-meta-translator/pkg/log"
)

// waitDelay bounds how long Run waits for the engine's output pipes after the
// context kills the process.
const waitDelay = 2 * time.Second

// CLITranslator runs the engine as an external process.
//
// Arguments may contain the placeholders {config}, {input}, {output} and
// {workspace}; they are replaced with the workspace paths of the current
// invocation. The credential is passed through the environment variable named
// by APIKeyEnv, never on the command line.
type CLITranslator struct {
	command   string
	args      []string
	apiKey    string
	apiKeyEnv string
}

func NewCLITranslator(cfg config.EngineConfig) *CLITranslator {
	return &CLITranslator{
		command:   cfg.Command,
		args:      cfg.Args,
		apiKey:    cfg.APIKey,
		apiKeyEnv: cfg.APIKeyEnv,
	}
}

func (t *CLITranslator) Invoke(ctx context.Context, ws *Workspace, source string, targets langset.Set) error {
	cmdPath, err := exec.LookPath(t.command)
	if err != nil {
		return &EngineError{Kind: FailureUnknown, ExitCode: -1, Message: "engine executable not found: " + t.command, Cause: err}
	}

	cmd := exec.CommandContext(ctx, cmdPath, t.expandArgs(ws, source)...)
	cmd.Dir = ws.Dir()
	cmd.Env = t.environ()
	cmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Debug("Running %s for %s -> %s", t.command, source, targets)
	err = cmd.Run()
	if err == nil {
		return nil
	}

	exitCode := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		exitCode = exitErr.ExitCode()
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = errors.Join(ctxErr, err)
	}
	output := strings.TrimSpace(stderr.String() + "\n" + stdout.String())
	log.Debug("Engine exited with %d: %s", exitCode, output)
	return Classify(exitCode, output, err)
}

func (t *CLITranslator) expandArgs(ws *Workspace, source string) []string {
	r := strings.NewReplacer(
		"{config}", ws.ConfigPath(),
		"{input}", ws.InputPath(source),
		"{output}", ws.OutputDir(),
		"{workspace}", ws.Dir(),
	)
	ret := make([]string, 0, len(t.args))
	for _, arg := range t.args {
		ret = append(ret, r.Replace(arg))
	}
	return ret
}

func (t *CLITranslator) environ() []string {
	env := os.Environ()
	if t.apiKeyEnv != "" && t.apiKey != "" {
		env = append(env, t.apiKeyEnv+"="+t.apiKey)
	}
	return env
}
