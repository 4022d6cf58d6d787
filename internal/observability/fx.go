package observability

import (
	"github.com/farmbooks/farmbooks/internal/observability/metrics"
	"go.uber.org/fx"
)

var Module = fx.Module("observability",
	fx.Provide(metrics.New),
)
