package event

import (
	"github.com/farmbooks/farmbooks/internal/event/repository"
	"github.com/farmbooks/farmbooks/internal/event/service"
	"go.uber.org/fx"
)

var Module = fx.Module("event.service",
	fx.Provide(repository.New),
	fx.Provide(service.NewService),
)
