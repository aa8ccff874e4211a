package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-web/core"
	"github.com/trezcool/masomo-web/core/navigation"
	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/core/user"
)

// whoami logs in, restores a session from the token as the web server does, then logs out.
func (cli *commandLine) whoami(email, pwd string) error {
	ctx := context.Background()
	res, err := cli.auth.Login(ctx, core.CleanString(email, true /* lower */), pwd)
	if err != nil {
		return err
	}
	defer func() {
		if err := cli.auth.Logout(ctx, res.Token); err != nil {
			fmt.Fprintf(cli.out, "warning: could not revoke the token: %v\n", err)
		}
	}()

	var meErr error
	provider := session.NewProvider(nil)
	provider.Resolve(ctx, func(ctx context.Context) (*user.User, error) {
		usr, err := cli.auth.Me(ctx, res.Token)
		if err != nil {
			meErr = err
			return nil, err
		}
		return &usr, nil
	})
	if meErr != nil {
		return errors.Wrap(meErr, "restoring session")
	}
	snap := provider.Snapshot()
	if !snap.Authenticated() {
		return user.ErrTokenRejected
	}

	usr := snap.User
	menu := make([]string, 0)
	for _, rd := range cli.gate.Registry().MenuFor(usr.Role) {
		menu = append(menu, rd.Label)
	}
	fmt.Fprintf(cli.out, "user:    %s <%s> (%s)\n", usr.Name, usr.Email, usr.ID)
	fmt.Fprintf(cli.out, "role:    %s\n", usr.Role.Label())
	fmt.Fprintf(cli.out, "landing: %s\n", navigation.LandingFor(usr.Role))
	fmt.Fprintf(cli.out, "menu:    %s\n", strings.Join(menu, ", "))
	return nil
}

// revoke deletes every stored credential of `userID`.
func (cli *commandLine) revoke(userID string) error {
	n, err := cli.creds.DeleteByUser(context.Background(), userID)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d session(s) revoked\n", n)
	return nil
}
