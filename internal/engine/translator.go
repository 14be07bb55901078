package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/MimeLyc/contextual-meta-translator/internal/langset"
	"github.com/MimeLyc/contextual-meta-translator/internal/metadata"
)

// Translator invokes an external engine once for a staged workspace. On
// success the engine has written one file per target at ws.OutputPath(lang);
// languages it could not translate are simply missing. A returned error is a
// process-level failure, ideally an *EngineError.
type Translator interface {
	Invoke(ctx context.Context, ws *Workspace, source string, targets langset.Set) error
}

// TranslatorFunc adapts a plain function to Translator.
type TranslatorFunc func(ctx context.Context, ws *Workspace, source string, targets langset.Set) error

func (f TranslatorFunc) Invoke(ctx context.Context, ws *Workspace, source string, targets langset.Set) error {
	return f(ctx, ws, source, targets)
}

// JobConfig is the config.yaml handed to the engine.
type JobConfig struct {
	SourceLang string   `yaml:"source_lang"`
	Languages  []string `yaml:"languages"`
	Input      string   `yaml:"input"`
	OutputDir  string   `yaml:"output_dir"`
	Format     string   `yaml:"format"`
}

// ReadJobConfig loads the config.yaml staged in ws.
func ReadJobConfig(ws *Workspace) (JobConfig, error) {
	var cfg JobConfig
	data, err := os.ReadFile(ws.ConfigPath())
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse job config: %w", err)
	}
	return cfg, nil
}

// stage writes the source content and the job config into ws.
func stage(ws *Workspace, content metadata.Content, source string, targets langset.Set) error {
	input, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return fmt.Errorf("encode input: %w", err)
	}
	if err := os.WriteFile(ws.InputPath(source), input, 0o600); err != nil {
		return fmt.Errorf("write input: %w", err)
	}

	cfg, err := yaml.Marshal(JobConfig{
		SourceLang: source,
		Languages:  targets.Codes(),
		Input:      ws.InputPath(source),
		OutputDir:  ws.OutputDir(),
		Format:     "json",
	})
	if err != nil {
		return fmt.Errorf("encode job config: %w", err)
	}
	if err := os.WriteFile(ws.ConfigPath(), cfg, 0o600); err != nil {
		return fmt.Errorf("write job config: %w", err)
	}
	return nil
}

// harvest reads one language's output file.
func harvest(ws *Workspace, lang string) (metadata.Content, error) {
	var content metadata.Content
	data, err := os.ReadFile(ws.OutputPath(lang))
	if err != nil {
		if os.IsNotExist(err) {
			return content, fmt.Errorf("engine produced no output for %s", lang)
		}
		return content, fmt.Errorf("read output for %s: %w", lang, err)
	}
	if err := json.Unmarshal(data, &content); err != nil {
		return content, fmt.Errorf("unparsable output for %s: %w", lang, err)
	}
	return content, nil
}
