package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/formrelay/squarelink/app/controllers"
	"github.com/formrelay/squarelink/app/repository"
	"github.com/formrelay/squarelink/internal/pkg/broker"
	"github.com/formrelay/squarelink/internal/pkg/credentials"
	"github.com/formrelay/squarelink/internal/pkg/database"
	"github.com/formrelay/squarelink/internal/pkg/payments"
	"github.com/formrelay/squarelink/internal/pkg/secrets"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Initialize the repository factory and the service graph the
	// controllers dispatch into.
	repository.InitializeFactory(database.GetDB())
	repos := repository.GetGlobalFactory().GetRepositories()

	box := secrets.NewBox(repos.Setting)
	store := credentials.NewStore(repos.Setting, box, nil)
	brokerClient := broker.NewClientFromEnv()
	manager := credentials.NewManager(store, repos.Setting, brokerClient)
	sessions := payments.NewSessionFactory(manager, repos.Setting, nil)
	orchestrator := payments.NewOrchestrator(sessions, repos.Transaction, repos.Refund)

	controllers.InitializePaymentController(orchestrator, repos.Setting)
	controllers.InitializeOAuthController(store, manager, brokerClient, repos.Setting, sessions)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	})
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
