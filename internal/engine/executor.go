package engine

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/MimeLyc/contextual-meta-translator/internal/langset"
	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
	"github.com/MimeLyc/contextual-meta-translator/internal/telemetry"
	"github.com/MimeLyc/contextual-meta-translator/pkg/log"
)

// Executor runs one batch: stage a workspace, invoke the engine once for all
// missing languages, read back each language. The workspace is removed on
// every exit path, panics included.
type Executor struct {
	translator    Translator
	workspaceRoot string
	logger        *log.Logger
}

type ExecutorOption func(*Executor)

// WithWorkspaceRoot sets the parent directory for workspaces.
func WithWorkspaceRoot(root string) ExecutorOption {
	return func(e *Executor) {
		e.workspaceRoot = root
	}
}

func NewExecutor(translator Translator, opts ...ExecutorOption) *Executor {
	e := &Executor{
		translator: translator,
		logger:     log.GetLogger().With("engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute translates content into every language of missing with a single
// engine invocation.
//
// A language whose output is absent or unparsable gets an error marker; the
// others are unaffected and err is nil. When the invocation itself fails,
// every language carries the same marker and err is the *EngineError.
func (e *Executor) Execute(
	ctx context.Context,
	content metadata.Content,
	source string,
	missing langset.Set,
) (result map[string]metadata.Translation, err error) {
	result = make(map[string]metadata.Translation, missing.Len())
	if missing.IsEmpty() {
		return result, nil
	}

	ctx, span := telemetry.Tracer().Start(ctx, "engine.invoke")
	span.SetAttributes(
		attribute.String("translate.source", source),
		attribute.StringSlice("translate.targets", missing.Codes()),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	ws, err := Acquire(e.workspaceRoot)
	if err != nil {
		return e.failAll(missing, &EngineError{Kind: FailureUnknown, ExitCode: -1, Message: err.Error(), Cause: err})
	}
	defer func() {
		if rerr := ws.Release(); rerr != nil {
			e.logger.Warn("Failed to remove workspace %s: %v", ws.Dir(), rerr)
		}
	}()

	if err := stage(ws, content, source, missing); err != nil {
		return e.failAll(missing, &EngineError{Kind: FailureUnknown, ExitCode: -1, Message: err.Error(), Cause: err})
	}

	e.logger.Info("Invoking engine: %s -> [%s]", source, missing)
	if err := e.translator.Invoke(ctx, ws, source, missing); err != nil {
		var engErr *EngineError
		if !errors.As(err, &engErr) {
			engErr = Classify(-1, "", err)
		}
		e.logger.Error("Engine invocation failed for [%s]: %v", missing, engErr)
		return e.failAll(missing, engErr)
	}

	failed := 0
	for _, lang := range missing.Codes() {
		translated, herr := harvest(ws, lang)
		if herr != nil {
			e.logger.Warn("Language %s failed: %v", lang, herr)
			result[lang] = metadata.Failed(herr.Error())
			failed++
			continue
		}
		// the host tag is observability data, not something to translate
		translated.SourceHost = content.SourceHost
		result[lang] = metadata.Translation{Content: translated}
	}
	span.SetAttributes(attribute.Int("translate.failed_languages", failed))
	e.logger.Info("Engine finished: %d/%d languages translated", missing.Len()-failed, missing.Len())
	return result, nil
}

func (e *Executor) failAll(missing langset.Set, engErr *EngineError) (map[string]metadata.Translation, error) {
	result := make(map[string]metadata.Translation, missing.Len())
	marker := engErr.Error()
	for _, lang := range missing.Codes() {
		result[lang] = metadata.Failed(marker)
	}
	return result, fmt.Errorf("execute batch: %w", engErr)
}
