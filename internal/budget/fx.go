package budget

import (
	"github.com/hormisur/backoffice/internal/budget/repository"
	"github.com/hormisur/backoffice/internal/budget/service"
	"go.uber.org/fx"
)

var Module = fx.Module("budget.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
