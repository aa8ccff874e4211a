package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/trezcool/masomo-web/core/gate"
	"github.com/trezcool/masomo-web/core/navigation"
	"github.com/trezcool/masomo-web/core/session"
	"github.com/trezcool/masomo-web/core/user"
)

// listRoutes prints every registered route, or only the navigation of `roleName`.
func (cli *commandLine) listRoutes(roleName string) error {
	reg := cli.gate.Registry()
	routes := reg.Routes()
	if roleName != "" {
		role, err := user.ParseRole(roleName)
		if err != nil {
			return err
		}
		routes = reg.NavigationFor(role)
		fmt.Fprintf(cli.out, "landing: %s\n", navigation.LandingFor(role))
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "PATH\tLABEL\tROLES\tMENU")
	for _, rd := range routes {
		roles := make([]string, len(rd.AllowedRoles))
		for i, r := range rd.AllowedRoles {
			roles[i] = r.String()
		}
		menu := "yes"
		if rd.Meta.Hidden {
			menu = "no"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", rd.Path, rd.Label, strings.Join(roles, ","), menu)
	}
	return w.Flush()
}

// checkRoute evaluates the gate for a resolved session of `roleName` on `path`.
func (cli *commandLine) checkRoute(roleName, path string) error {
	snap := session.Session{}
	if roleName != "" {
		role, err := user.ParseRole(roleName)
		if err != nil {
			return err
		}
		snap.User = &user.User{ID: "cli", Name: "cli", Role: role}
	}

	nav := gate.NewOnceNavigator(gate.NavigatorFunc(func(gate.Redirect) {}))
	d := cli.gate.Guard(snap, path, gate.AnyRole(), nav)

	fmt.Fprintf(cli.out, "%s\n", d.State)
	if r, ok := nav.Redirected(); ok {
		fmt.Fprintf(cli.out, "redirect: %s", r.Path)
		if r.Intent != nil {
			fmt.Fprintf(cli.out, " (then %s)", r.Intent.Path)
		}
		fmt.Fprintln(cli.out)
	}
	if !cli.gate.Registry().IsRegistered(path) {
		fmt.Fprintln(cli.out, "warning: path is not registered")
	}
	return nil
}
