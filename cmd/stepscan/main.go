package main

import (
	"context"
	"os"

	"github.com/vinceanalytics/stepscan/internal/cmd"
	"github.com/vinceanalytics/stepscan/internal/must"
)

func main() {
	must.One(cmd.App().Run(context.Background(), os.Args))("stepscan failed")
}
