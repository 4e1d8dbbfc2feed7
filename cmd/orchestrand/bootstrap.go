package main

import (
	"log/slog"

	"jobforge/internal/collab/drapto"
	"jobforge/internal/config"
	"jobforge/internal/stage"
	"jobforge/internal/stages/ingest"
	"jobforge/internal/stages/lyrics"
	"jobforge/internal/stages/packaging"
	"jobforge/internal/stages/stemsep"
	"jobforge/internal/storage"
)

// buildHandlers constructs one stage.Handler per name in cfg.Pipeline.Stages,
// wiring each stage's default external collaborator. A pipeline stage name
// with no matching case here is a configuration error caught by
// core.New's "no handler registered" check.
func buildHandlers(cfg *config.Config, layout *storage.Layout, logger *slog.Logger) map[string]stage.Handler {
	handlers := make(map[string]stage.Handler, len(cfg.Pipeline.Stages))
	prevStageName := ""
	for _, sc := range cfg.Pipeline.Stages {
		switch sc.Name {
		case ingest.Name:
			handlers[sc.Name] = ingest.New(drapto.NewCLI(), logger)
		case stemsep.Name:
			handlers[sc.Name] = stemsep.New(stemsep.StubSeparator{}, prevStageName, logger)
		case lyrics.Name:
			handlers[sc.Name] = lyrics.New(lyrics.StubExtractor{}, prevStageName, logger)
		case packaging.Name:
			handlers[sc.Name] = packaging.New(layout, logger)
		}
		prevStageName = sc.Name
	}
	return handlers
}
