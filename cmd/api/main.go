package main

import (
	"go.uber.org/fx"

	"github.com/chopdirect/chopdirect/internal/app"
)

func main() {
	fx.New(app.Module).Run()
}
