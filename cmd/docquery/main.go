// Package main is the entry point for the docquery service.
package main

import (
	"github.com/kart-io/docquery/cmd/docquery/app"
)

func main() {
	app.NewApp().Run()
}
