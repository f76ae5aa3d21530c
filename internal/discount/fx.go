package discount

import (
	"github.com/countercore/tally/internal/discount/repository"
	"github.com/countercore/tally/internal/discount/service"
	"go.uber.org/fx"
)

var Module = fx.Module("discount.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
