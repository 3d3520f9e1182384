package user

import (
	"github.com/hormisur/backoffice/internal/user/repository"
	"github.com/hormisur/backoffice/internal/user/service"
	"go.uber.org/fx"
)

var Module = fx.Module("user.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
