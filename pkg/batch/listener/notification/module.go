package notification

import (
	"go.uber.org/fx"

	port "github.com/tigerroll/ledgerbatch/pkg/batch/core/application/port"
	"github.com/tigerroll/ledgerbatch/pkg/batch/core/ports"
)

// Module provides the log notifier and the listener that drives it.
var Module = fx.Options(
	// 1. Provides a concrete implementation of Notifier.
	fx.Provide(fx.Annotate(
		NewLogNotifier,
		fx.As(new(ports.Notifier)),
	)),

	// 2. Registers the listener with the run coordinator's listener group.
	fx.Provide(fx.Annotate(
		NewNotificationRunListener,
		fx.As(new(port.RunListener)),
		fx.ResultTags(`group:"runListeners"`),
	)),
)
