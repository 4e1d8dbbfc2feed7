package main

import (
	"strings"
	"sync"

	"jobforge/internal/collab/drapto"
	"jobforge/internal/config"
	"jobforge/internal/core"
	"jobforge/internal/stage"
	"jobforge/internal/stages/ingest"
	"jobforge/internal/stages/lyrics"
	"jobforge/internal/stages/packaging"
	"jobforge/internal/stages/stemsep"
	"jobforge/internal/storage"
)

// commandContext lazily wires a core.Context from the on-disk configuration,
// shared across every cobra command in this process.
type commandContext struct {
	configFlag *string

	once    sync.Once
	core    *core.Context
	coreErr error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensure() (*core.Context, error) {
	c.once.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.coreErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.coreErr = err
			return
		}

		layout := storage.New(cfg.Storage.Root)
		handlers := buildHandlers(cfg, layout)
		c.core, c.coreErr = core.New(cfg, nil, handlers)
	})
	return c.core, c.coreErr
}

// buildHandlers wires the same stage handlers orchestrand runs, since
// orchestractl's createJob writes directly into the shared storage root and
// needs a fully wired dispatcher to enqueue against, even though only
// orchestrand's dispatcher loop is ever actually started.
func buildHandlers(cfg *config.Config, layout *storage.Layout) map[string]stage.Handler {
	handlers := make(map[string]stage.Handler, len(cfg.Pipeline.Stages))
	prevStageName := ""
	for _, sc := range cfg.Pipeline.Stages {
		switch sc.Name {
		case ingest.Name:
			handlers[sc.Name] = ingest.New(drapto.NewCLI(), nil)
		case stemsep.Name:
			handlers[sc.Name] = stemsep.New(stemsep.StubSeparator{}, prevStageName, nil)
		case lyrics.Name:
			handlers[sc.Name] = lyrics.New(lyrics.StubExtractor{}, prevStageName, nil)
		case packaging.Name:
			handlers[sc.Name] = packaging.New(layout, nil)
		}
		prevStageName = sc.Name
	}
	return handlers
}
