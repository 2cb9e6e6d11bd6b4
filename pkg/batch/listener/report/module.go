package report

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
)

// Module registers the run report listener. It needs a storage.StorageConnectionResolver, see
// storage.Module and local.Module.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewRunReportListener,
		fx.As(new(port.RunListener)),
		fx.ResultTags(`group:"runListeners"`),
	)),
)
