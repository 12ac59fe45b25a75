package utils

import (
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestSendErrorKeepsSentinelClean(t *testing.T) {
	app := fiber.New()
	app.Get("/boom", func(c *fiber.Ctx) error {
		return SendError(c, errors.New("disk on fire"))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/boom", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", resp.StatusCode)
	}

	if ErrInternalServerError.Details != "" {
		t.Fatalf("shared sentinel mutated: Details = %q", ErrInternalServerError.Details)
	}
}

func TestSendErrorPassesCustomErrorThrough(t *testing.T) {
	app := fiber.New()
	app.Get("/missing", func(c *fiber.Ctx) error {
		return SendError(c, NewError(fiber.StatusNotFound, "Collection not found."))
	})

	resp, err := app.Test(httptest.NewRequest("GET", "/missing", nil), -1)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}
