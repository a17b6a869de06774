package container

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go-product-describer/internal/config"
	"go-product-describer/internal/describer"
	"go-product-describer/internal/factory"
	"go-product-describer/internal/logger"
	"go-product-describer/internal/observer"
	"go-product-describer/internal/repository"
	"go-product-describer/internal/storage"
	"go-product-describer/internal/transport"
	"go-product-describer/internal/workflow"
	"go-product-describer/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config    *config.Config
	describer describer.Describer
	events    *observer.EventPublisher
	metrics   *observer.MetricsObserver
	sessions  *repository.MemorySessionRepository
	handler   http.Handler
}

// NewContainer builds the dependency graph from cfg
func NewContainer(cfg *config.Config) (*Container, error) {
	return NewContainerWithDescriber(cfg, describer.NewClient(cfg.ServiceURL, cfg.ServicePath, cfg.GenerationTimeout))
}

// NewContainerWithDescriber builds the graph around a given description backend
func NewContainerWithDescriber(cfg *config.Config, d describer.Describer) (*Container, error) {
	events := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	events.Subscribe(observer.NewLoggingObserver(logger.Logger))
	events.Subscribe(metrics)

	sessions := repository.NewMemorySessionRepository(cfg.SessionTTL, func(id string) *workflow.Controller {
		return workflow.NewController(id, d, events)
	})

	httpSource := storage.NewHTTPImageFetcher(cfg.ImageFetchTimeout, cfg.MaxRequestBodySize)
	var sources factory.SourceFactory
	if cfg.AzureEnabled() {
		azureSource, err := storage.NewAzureBlobSource(cfg.AzureAccountName, cfg.AzureAccountKey, cfg.MaxRequestBodySize)
		if err != nil {
			return nil, fmt.Errorf("failed to configure azure import: %w", err)
		}
		sources = factory.NewSourceFactory(httpSource, azureSource)
	} else {
		sources = factory.NewSourceFactory(httpSource, nil)
	}
	importer := factory.NewImporter(validation.NewURLValidatorWithOptions([]string{"http", "https"}, cfg.ImportAllowedHosts), sources)

	handler := transport.NewHandler(transport.Deps{
		Config:   cfg,
		Sessions: sessions,
		Importer: importer,
		Metrics:  metrics,
	})

	return &Container{
		config:    cfg,
		describer: d,
		events:    events,
		metrics:   metrics,
		sessions:  sessions,
		handler:   handler,
	}, nil
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// StartBackground runs the session janitor until ctx is done
func (c *Container) StartBackground(ctx context.Context) {
	interval := c.config.SessionTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	go c.sessions.RunJanitor(ctx, interval)
}

// Close waits for pending event notifications
func (c *Container) Close() {
	c.events.Wait()
}
