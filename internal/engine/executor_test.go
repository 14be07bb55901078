package engine

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MimeLyc/contextual-meta-translator/internal/langset"
	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
)

func sampleContent() metadata.Content {
	return metadata.Normalize(metadata.Snapshot{
		Title:       "Fresh bread daily",
		Description: "Neighbourhood bakery since 1982",
		OGTitle:     "Fresh bread",
		SourceHost:  "bakery.example",
	})
}

// fakeEngine writes "<title> [lang]" for every target not listed in skip.
type fakeEngine struct {
	calls   atomic.Int32
	skip    map[string]bool
	garbage map[string]bool
	lastDir string
	lastCfg JobConfig
}

func (f *fakeEngine) Invoke(_ context.Context, ws *Workspace, source string, targets langset.Set) error {
	f.calls.Add(1)
	f.lastDir = ws.Dir()

	cfg, err := ReadJobConfig(ws)
	if err != nil {
		return err
	}
	f.lastCfg = cfg

	data, err := os.ReadFile(ws.InputPath(source))
	if err != nil {
		return err
	}
	var in metadata.Content
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	for _, lang := range targets.Codes() {
		if f.skip[lang] {
			continue
		}
		if f.garbage[lang] {
			if err := os.WriteFile(ws.OutputPath(lang), []byte("{not json"), 0o600); err != nil {
				return err
			}
			continue
		}
		out := in
		out.Metadata.Title = in.Metadata.Title + " [" + lang + "]"
		out.SourceHost = "rewritten-by-engine"
		payload, _ := json.Marshal(out)
		if err := os.WriteFile(ws.OutputPath(lang), payload, 0o600); err != nil {
			return err
		}
	}
	return nil
}

func TestExecutor_TranslatesAllMissingInOneCall(t *testing.T) {
	root := t.TempDir()
	engine := &fakeEngine{}
	executor := NewExecutor(engine, WithWorkspaceRoot(root))

	result, err := executor.Execute(context.Background(), sampleContent(), "en", langset.New("fr", "es"))
	require.NoError(t, err)

	assert.Equal(t, int32(1), engine.calls.Load())
	require.Len(t, result, 2)
	assert.Equal(t, "Fresh bread daily [es]", result["es"].Metadata.Title)
	assert.Equal(t, "Fresh bread daily [fr]", result["fr"].Metadata.Title)
	assert.Equal(t, "bakery.example", result["fr"].SourceHost)
	assert.False(t, result["es"].Failed())

	assert.Equal(t, JobConfig{
		SourceLang: "en",
		Languages:  []string{"es", "fr"},
		Input:      engine.lastCfg.Input,
		OutputDir:  engine.lastCfg.OutputDir,
		Format:     "json",
	}, engine.lastCfg)
	assert.NoDirExists(t, engine.lastDir)
}

func TestExecutor_PerLanguageFailuresAreIsolated(t *testing.T) {
	root := t.TempDir()
	engine := &fakeEngine{
		skip:    map[string]bool{"de": true},
		garbage: map[string]bool{"it": true},
	}
	executor := NewExecutor(engine, WithWorkspaceRoot(root))

	result, err := executor.Execute(context.Background(), sampleContent(), "en", langset.New("de", "es", "it"))
	require.NoError(t, err)

	require.Len(t, result, 3)
	assert.False(t, result["es"].Failed())
	assert.True(t, result["de"].Failed())
	assert.Contains(t, result["de"].Error, "no output for de")
	assert.True(t, result["it"].Failed())
	assert.Contains(t, result["it"].Error, "unparsable output for it")
	assert.NoDirExists(t, engine.lastDir)
}

func TestExecutor_ProcessFailureMarksEveryLanguage(t *testing.T) {
	root := t.TempDir()
	var dir string
	engine := TranslatorFunc(func(_ context.Context, ws *Workspace, _ string, _ langset.Set) error {
		dir = ws.Dir()
		return Classify(1, "Error: 401 Unauthorized", errors.New("exit status 1"))
	})
	executor := NewExecutor(engine, WithWorkspaceRoot(root))

	result, err := executor.Execute(context.Background(), sampleContent(), "en", langset.New("es", "fr"))
	require.Error(t, err)

	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, FailureAuth, engErr.Kind)

	require.Len(t, result, 2)
	assert.Equal(t, engErr.Error(), result["es"].Error)
	assert.Equal(t, result["es"].Error, result["fr"].Error)
	assert.NoDirExists(t, dir)
}

func TestExecutor_UnclassifiedErrorIsWrapped(t *testing.T) {
	engine := TranslatorFunc(func(context.Context, *Workspace, string, langset.Set) error {
		return errors.New("segmentation fault")
	})
	executor := NewExecutor(engine, WithWorkspaceRoot(t.TempDir()))

	_, err := executor.Execute(context.Background(), sampleContent(), "en", langset.New("es"))
	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, FailureUnknown, engErr.Kind)
}

func TestExecutor_CancelledContextClassifiesAsNetwork(t *testing.T) {
	engine := TranslatorFunc(func(ctx context.Context, _ *Workspace, _ string, _ langset.Set) error {
		<-ctx.Done()
		return ctx.Err()
	})
	executor := NewExecutor(engine, WithWorkspaceRoot(t.TempDir()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := executor.Execute(ctx, sampleContent(), "en", langset.New("es"))

	var engErr *EngineError
	require.ErrorAs(t, err, &engErr)
	assert.Equal(t, FailureNetwork, engErr.Kind)
}

func TestExecutor_WorkspaceRemovedOnPanic(t *testing.T) {
	root := t.TempDir()
	var dir string
	engine := TranslatorFunc(func(_ context.Context, ws *Workspace, _ string, _ langset.Set) error {
		dir = ws.Dir()
		panic("engine adapter bug")
	})
	executor := NewExecutor(engine, WithWorkspaceRoot(root))

	assert.Panics(t, func() {
		_, _ = executor.Execute(context.Background(), sampleContent(), "en", langset.New("es"))
	})
	require.NotEmpty(t, dir)
	assert.NoDirExists(t, dir)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExecutor_EmptyMissingSkipsEngine(t *testing.T) {
	engine := &fakeEngine{}
	executor := NewExecutor(engine, WithWorkspaceRoot(t.TempDir()))

	result, err := executor.Execute(context.Background(), sampleContent(), "en", langset.Set{})
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, int32(0), engine.calls.Load())
}
