package app

import "meld/internal/domain"

type App struct {
	IDs      domain.IdentityService
	Packages domain.KeyPackageService
	Groups   domain.GroupService
	Messages domain.MessageService
}

func New(ids domain.IdentityService, packages domain.KeyPackageService, groups domain.GroupService, messages domain.MessageService) *App {
	return &App{
		IDs:      ids,
		Packages: packages,
		Groups:   groups,
		Messages: messages,
	}
}
