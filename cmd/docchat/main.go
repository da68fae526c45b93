// Package main is the entry point for the DocChat Service.
package main

import (
	_ "go.uber.org/automaxprocs/maxprocs"

	"github.com/kart-io/docchat/internal/docchat"
)

func main() {
	docchat.NewApp().Run()
}
