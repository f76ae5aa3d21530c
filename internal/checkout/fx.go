package checkout

import (
	"github.com/countercore/tally/internal/checkout/domain"
	"github.com/countercore/tally/internal/checkout/service"
	invoicedomain "github.com/countercore/tally/internal/invoice/domain"
	"go.uber.org/fx"
)

var Module = fx.Module("checkout.service",
	fx.Provide(func(svc invoicedomain.Service) domain.Submitter { return svc }),
	fx.Provide(service.New),
)
