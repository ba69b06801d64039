package public

import (
	"github.com/gofiber/fiber/v2"

	"github.com/pedrolicio/instagram-carousel-generator/internal/app"
	"github.com/pedrolicio/instagram-carousel-generator/internal/executor"
)

// Register wires up the image generation routes. /api/imagem is kept as an
// alias of /api/imagen.
func Register(router fiber.Router, container *app.Container, exec *executor.Executor) {
	handler := &imagenHandler{container: container, executor: exec}
	group := router.Group("/api")
	group.Post("/imagen", handler.generate)
	group.Post("/imagem", handler.generate)
	group.Get("/imagen/chain", handler.chain)
}
