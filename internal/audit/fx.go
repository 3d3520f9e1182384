package audit

import (
	"github.com/hormisur/backoffice/internal/audit/repository"
	"github.com/hormisur/backoffice/internal/audit/service"
	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
