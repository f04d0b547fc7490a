package main

import (
	"errors"
	"log/slog"

	"github.com/jackzampolin/pdfocr/internal/config"
	"github.com/jackzampolin/pdfocr/internal/parse"
	"github.com/jackzampolin/pdfocr/internal/raster"
	"github.com/jackzampolin/pdfocr/internal/recognize"
	"github.com/jackzampolin/pdfocr/internal/svcctx"
)

// pipeline is the rasterizer, engine and parser built from one config.
type pipeline struct {
	rasterizer *raster.Poppler
	engine     *recognize.Lazy
	parser     *parse.Parser
}

// newPipeline checks both dependencies and, if they are present, wires a parser.
// The engine itself is built on the first page.
func newPipeline(svc *svcctx.Services, cfg *config.Config) (*pipeline, error) {
	logger := svc.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pc := cfg.PopplerConfig(svc.Home.ScratchPath())
	pc.Logger = logger
	rasterizer := raster.NewPoppler(pc)

	rc := cfg.RecognizeConfig()
	rc.Logger = logger

	if err := checkDependencies(rasterizer, rc); err != nil {
		return nil, err
	}

	engine := recognize.NewLazyFromConfig(rc)
	return &pipeline{
		rasterizer: rasterizer,
		engine:     engine,
		parser:     parse.New(rasterizer, engine, logger),
	}, nil
}

// Close releases the engine if it was built.
func (p *pipeline) Close() error {
	return p.engine.Close()
}

// checkDependencies runs both checks and reports every failure.
func checkDependencies(r raster.Rasterizer, rc recognize.Config) error {
	return errors.Join(r.Check(), recognize.Check(rc))
}
