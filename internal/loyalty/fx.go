package loyalty

import (
	"github.com/countercore/tally/internal/loyalty/repository"
	"github.com/countercore/tally/internal/loyalty/service"
	"go.uber.org/fx"
)

var Module = fx.Module("loyalty.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
