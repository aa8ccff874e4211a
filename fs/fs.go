// Package appfs embeds the files the apps need at runtime.
package appfs

import "embed"

//go:embed all:templates migrations
var FS embed.FS

const (
	EmailTemplatesDir = "templates/email"
	PageTemplatesDir  = "templates/pages"
	MigrationsDir     = "migrations"
)
