package http

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"paxth/internal/artifacts"
	"paxth/internal/bootstrap"
)

func runtimeFrom(c *fiber.Ctx) *bootstrap.App {
	return c.Locals("runtime").(*bootstrap.App)
}

func registryFrom(c *fiber.Ctx) *runRegistry {
	return c.Locals("runs").(*runRegistry)
}

func loggerFrom(c *fiber.Ctx) *slog.Logger {
	if l, ok := c.Locals("logger").(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

func listCategoriesHandler(c *fiber.Ctx) error {
	rt := runtimeFrom(c)
	return c.JSON(fiber.Map{
		"success":     true,
		"categories":  rt.Catalog.ListCategories(),
		"passthrough": rt.Catalog.Passthrough(),
	})
}

func getCategoryHandler(c *fiber.Ctx) error {
	rt := runtimeFrom(c)
	name := c.Params("name")
	cat, err := rt.Catalog.Category(name)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false,
			Code:    "CATEGORY_NOT_FOUND",
			Error:   err.Error(),
		})
	}
	return c.JSON(CategoryResponse{
		Name:                 cat.Name,
		Attributes:           rt.Catalog.Attributes(name),
		ExtractionAttributes: rt.Catalog.ExtractionAttributes(name),
		FormattingRules:      rt.Catalog.FormattingRules(name),
	})
}

func listArtifactsHandler(c *fiber.Ctx) error {
	rt := runtimeFrom(c)
	if rt.Artifacts == nil {
		return c.JSON(fiber.Map{"success": true, "artifacts": []string{}})
	}
	names, err := rt.Artifacts.List(c.UserContext())
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "ARTIFACTS_UNAVAILABLE",
			Error:   err.Error(),
		})
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(fiber.Map{"success": true, "artifacts": names})
}

func getArtifactHandler(c *fiber.Ctx) error {
	rt := runtimeFrom(c)
	name := c.Params("name")
	if rt.Artifacts == nil {
		return artifactNotFound(c, name)
	}
	content, err := rt.Artifacts.Get(c.UserContext(), name)
	switch {
	case errors.Is(err, artifacts.ErrNotFound):
		return artifactNotFound(c, name)
	case err != nil:
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   err.Error(),
		})
	}
	if c.Query("raw") == "true" {
		c.Type("md")
		return c.Send(content)
	}
	return c.JSON(ArtifactResponse{Name: name, Content: string(content)})
}

func artifactNotFound(c *fiber.Ctx, name string) error {
	return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
		Success: false,
		Code:    "ARTIFACT_NOT_FOUND",
		Error:   "No saved file named " + name,
	})
}
