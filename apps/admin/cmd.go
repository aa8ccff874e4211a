package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"syscall"

	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/trezcool/masomo-web/core/gate"
	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/core/user"
	"github.com/trezcool/masomo-web/services/classes"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("migrations need the postgres credential store")
)

type authenticator interface {
	Login(ctx context.Context, email, password string) (classes.LoginResult, error)
	Me(ctx context.Context, token string) (user.User, error)
	Logout(ctx context.Context, token string) error
}

type commandLine struct {
	gate  *gate.Gate
	auth  authenticator
	creds session.CredentialStore
	db    *sqlx.DB // nil unless the postgres store is used
	out   io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  routes [-role ROLE]               - list the portal routes, or the navigation of a role")
	fmt.Fprintln(cli.out, "  check -role ROLE -path PATH       - tell what the gate does with a user of ROLE on PATH")
	fmt.Fprintln(cli.out, "  whoami -email EMAIL               - log in to the classes API and show the resulting session")
	fmt.Fprintln(cli.out, "  revoke -user USER_ID              - log a user out of every browser session")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS...]         - run a goose command on the credentials database")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	routesCmd := flag.NewFlagSet("routes", flag.ContinueOnError)
	routesRole := routesCmd.String("role", "", "Only list the routes of this role: admin, teacher or student.")

	checkCmd := flag.NewFlagSet("check", flag.ContinueOnError)
	checkRole := checkCmd.String("role", "", "The role of the user. Leave empty for an anonymous visitor.")
	checkPath := checkCmd.String("path", "", "The route, as registered (e.g. /teacher/classes/:id).")

	whoamiCmd := flag.NewFlagSet("whoami", flag.ContinueOnError)
	whoamiEmail := whoamiCmd.String("email", "", "The user's email. The password will be prompted next.")

	revokeCmd := flag.NewFlagSet("revoke", flag.ContinueOnError)
	revokeUser := revokeCmd.String("user", "", "The user ID.")

	for _, fs := range []*flag.FlagSet{routesCmd, checkCmd, whoamiCmd, revokeCmd} {
		fs.SetOutput(cli.out)
	}

	switch args[1] {
	case "routes":
		if err := routesCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		return cli.listRoutes(*routesRole)

	case "check":
		if err := checkCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *checkPath == "" {
			checkCmd.Usage()
			return errHelp
		}
		return cli.checkRoute(*checkRole, *checkPath)

	case "whoami":
		if err := whoamiCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *whoamiEmail == "" {
			whoamiCmd.Usage()
			return errHelp
		}
		fmt.Fprint(cli.out, "Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Fprintln(cli.out)
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			whoamiCmd.Usage()
			return errHelp
		}
		return cli.whoami(*whoamiEmail, string(pwd))

	case "revoke":
		if err := revokeCmd.Parse(args[2:]); err != nil {
			return errHelp
		}
		if *revokeUser == "" {
			revokeCmd.Usage()
			return errHelp
		}
		return cli.revoke(*revokeUser)

	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	default:
		cli.printUsage()
		return errHelp
	}
}
