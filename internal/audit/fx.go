package audit

import (
	"github.com/countercore/tally/internal/audit/repository"
	"github.com/countercore/tally/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
