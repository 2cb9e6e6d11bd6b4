package local

import (
	"go.uber.org/fx"

	"github.com/tigerroll/ledgerbatch/pkg/batch/adapter/storage"
)

// Module provides the local storage provider to the storage_providers group.
var Module = fx.Options(
	fx.Provide(fx.Annotate(
		NewLocalProvider,
		fx.As(new(storage.StorageProvider)),
		fx.ResultTags(`group:"storage_providers"`),
	)),
)
