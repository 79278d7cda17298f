package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/broker"
	"github.com/formrelay/squarelink/internal/pkg/cache"
	"github.com/formrelay/squarelink/internal/pkg/credentials"
	"github.com/formrelay/squarelink/internal/pkg/database"
	"github.com/formrelay/squarelink/internal/pkg/env"
	"github.com/formrelay/squarelink/internal/pkg/router"
	"github.com/formrelay/squarelink/internal/pkg/secrets"
	"github.com/formrelay/squarelink/internal/pkg/sweeper"
)

func main() {
	app := NewApplication()

	sweep := newSweepManager()
	sweep.Start()

	// Shut the sweeper down cleanly before the server exits.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		sweep.Stop()
		_ = app.Shutdown()
	}()

	err := app.Listen(fmt.Sprintf("%s:%s", env.GetEnv("APP_HOST", "localhost"), env.GetEnv("APP_PORT", "4000")))
	log.Fatal(err)
}

func NewApplication() *fiber.App {
	env.SetupEnvFile()
	database.SetupDatabase()
	cache.SetupCache()

	// init fiber app
	app := fiber.New(fiber.Config{
		AppName: "squarelink",
	})

	// recovery and logging
	app.Use(recover.New(), logger.New())

	// ROUTER
	router.InstallRouter(app)

	return app
}

func newSweepManager() *sweeper.Manager {
	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()

	box := secrets.NewBox(repos.Setting)
	store := credentials.NewStore(repos.Setting, box, nil)
	manager := credentials.NewManager(store, repos.Setting, broker.NewClientFromEnv())

	return sweeper.NewManager(sweeper.NewSweeper(
		manager, repos.Setting, repos.Transaction, repos.Refund, nil,
	))
}
