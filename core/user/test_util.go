package user

import (
	"github.com/trezcool/simplemooc/core"
)

type serviceMock struct {
	service
}

// NewServiceMock returns a Service whose password reset emails are sent synchronously.
func NewServiceMock(repo Repository, mailSvc core.EmailService, conf *core.Config) Service {
	return &serviceMock{
		service: service{
			repo:    repo,
			mailSvc: mailSvc,
			conf:    conf,
		},
	}
}
