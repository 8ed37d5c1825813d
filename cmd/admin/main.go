package main

import (
	"log"

	"github.com/kataras/iris/v12"

	"github.com/Alihan26/YeDeli/internal/config"
	"github.com/Alihan26/YeDeli/internal/logger"
	"github.com/Alihan26/YeDeli/internal/server"
)

func main() {
	logger.InitLogger()

	cfg, err := config.LoadConfig("./config")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	app := iris.New()
	server.RegisterAdminRoutes(app, cfg)

	addr := cfg.AdminServer.Addr()
	log.Printf("admin server listening on %s", addr)
	if err := app.Run(iris.Addr(addr)); err != nil {
		log.Fatalf("failed to run admin server: %v", err)
	}
}
