package posting

import (
	"github.com/farmbooks/farmbooks/internal/config"
	"github.com/farmbooks/farmbooks/internal/posting/service"
	"go.uber.org/fx"
)

var Module = fx.Module("posting.service",
	fx.Provide(func(cfg config.Config) service.Config {
		return service.Config{LockTTL: cfg.PostingLockTTL}
	}),
	fx.Provide(service.NewService),
)
