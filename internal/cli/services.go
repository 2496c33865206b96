package cli

import (
	"context"
	"log/slog"

	"github.com/agentx-labs/mcpx/internal/catalog"
	"github.com/agentx-labs/mcpx/internal/events"
	"github.com/agentx-labs/mcpx/internal/executor"
	"github.com/agentx-labs/mcpx/internal/install"
	"github.com/agentx-labs/mcpx/internal/source"
)

// newBus returns the event bus for one command. Log events are mirrored to
// slog only at debug level; otherwise the progress printer shows them.
func newBus() *events.Bus {
	if settings.LogLevel == "debug" {
		return events.NewBus(slog.Default())
	}
	return events.NewBus(nil)
}

func loadCatalog(ctx context.Context) *catalog.Catalog {
	return catalog.Load(ctx, hostSvc, settings.TemplatesPath)
}

// newInstallation assembles the pipeline from the resolved settings.
func newInstallation(ctx context.Context, bus *events.Bus) (*install.Installation, error) {
	return install.New(hostSvc,
		install.WithBus(bus),
		install.WithLogger(slog.Default()),
		install.WithCatalog(loadCatalog(ctx)),
		install.WithInstallRoot(settings.InstallRoot),
		install.WithRegistryPath(settings.RegistryPath),
		install.WithHostConfigPath(settings.HostConfigPath),
		install.WithExecutorOptions(
			executor.WithPacing(settings.Pacing),
			executor.WithTimeouts(executor.Timeouts{
				Command: settings.CloneTimeout,
				Config:  settings.ConfigTimeout,
			}),
		),
	)
}

func parseSource(arg string) (source.Descriptor, error) {
	d, err := source.Parse(arg)
	if err != nil {
		return source.Descriptor{}, err
	}
	if d.Kind == source.KindLocal {
		abs, err := absPath(d.Path)
		if err != nil {
			return source.Descriptor{}, err
		}
		d.Path = abs
	}
	return d, nil
}
