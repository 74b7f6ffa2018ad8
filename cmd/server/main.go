// Command server runs the driver onboarding API.
package main

import (
	"context"
	"log"

	"github.com/haulhq/driveronboard/internal/server"
	"github.com/haulhq/driveronboard/internal/server/config"
)

func main() {
	ctx := context.Background()

	app, err := server.NewApp(ctx, config.LoadConfig())
	if err != nil {
		log.Fatalf("driveronboard: %v", err)
	}

	app.Run(ctx)
}
