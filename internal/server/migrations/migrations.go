// Package migrations embeds the goose SQL migrations establishing the
// onboarding schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
