package main

import (
	"time"

	"github.com/pkg/errors"

	echoapi "github.com/trezcool/schoolvax/apps/api/echo"
)

// issueToken prints a signed API token for the coordinator `subject`.
func (cli *commandLine) issueToken(subject, name string, isAdmin bool, expires time.Duration) error {
	conf := *cli.conf
	conf.Server.JWTExpirationDelta = expires

	token, err := echoapi.GenerateToken(echoapi.NewClaims(subject, name, isAdmin, &conf), &conf)
	if err != nil {
		return errors.Wrap(err, "generating token")
	}
	cli.printf("%s\n", token)
	return nil
}
