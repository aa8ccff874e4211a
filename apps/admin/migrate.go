package main

import (
	"github.com/trezcool/masomo-web/storage/database"
)

var gooseRunFunc = database.Migrate // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoSQL
	}
	return gooseRunFunc(cli.db, args[0], args[1:]...)
}
