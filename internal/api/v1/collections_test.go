package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/mnuddindev/koishi/internal/auth"
	"github.com/mnuddindev/koishi/internal/config"
	"github.com/mnuddindev/koishi/internal/events"
	"github.com/mnuddindev/koishi/internal/models"
	"github.com/mnuddindev/koishi/internal/models/user"
	"github.com/mnuddindev/koishi/pkg/logger"
	"github.com/mnuddindev/koishi/pkg/notify"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type noopNotifier struct{}

func (noopNotifier) SendEmail(context.Context, notify.EmailConnector, string, string) error {
	return nil
}
func (noopNotifier) SendTelegram(context.Context, notify.TelegramConnector, string) error {
	return nil
}

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(models.RegisterModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	log, err := logger.NewLogger(context.Background(), logger.WithOutputDir(t.TempDir()))
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	t.Cleanup(log.Close)

	auth.Init("test-secret")

	DB = db
	Redis = nil
	Logger = log
	Notifier = noopNotifier{}
	Bus = events.NewBus(db, Notifier, nil)
	t.Cleanup(Bus.Close)
	Cfg = &config.Config{WebURL: "http://localhost:3000"}

	app := fiber.New()
	Setup(app)
	return app
}

func newTestUser(t *testing.T, email string) (*user.User, string) {
	t.Helper()
	u, err := user.NewUser(context.Background(), nil, DB, "Test User", email, "secret123")
	if err != nil {
		t.Fatalf("NewUser: %v", err)
	}
	if err := DB.Model(u).Update("status", user.StatusVerified).Error; err != nil {
		t.Fatalf("verify user: %v", err)
	}
	u.Status = user.StatusVerified
	token, err := auth.GenerateToken(u.ID, u.Email, u.IsAdmin)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}
	return u, token
}

type apiResponse struct {
	Success bool                   `json:"status"`
	Message string                 `json:"message"`
	Data    map[string]interface{} `json:"data"`
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, body interface{}) (*http.Response, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("x-auth-token", token)
	}
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	var parsed apiResponse
	json.NewDecoder(resp.Body).Decode(&parsed)
	resp.Body.Close()
	return resp, parsed
}

func createTestCollection(t *testing.T, app *fiber.App, token string) string {
	t.Helper()
	resp, parsed := doJSON(t, app, "POST", "/api/v1/collections", token, fiber.Map{
		"title": "Garden",
		"columns": []fiber.Map{
			{"column_name": "temperature", "data_type": "number", "unit": "C"},
		},
	})
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("create collection: status %d", resp.StatusCode)
	}
	id, _ := parsed.Data["id"].(string)
	if id == "" {
		t.Fatal("create collection: no id in response")
	}
	return id
}

func TestTwoPhaseDelete(t *testing.T) {
	app := newTestApp(t)
	_, token := newTestUser(t, "owner@example.com")

	id := createTestCollection(t, app, token)
	path := "/api/v1/collections/" + id

	// phase one: no token, nothing is deleted yet
	resp, parsed := doJSON(t, app, "DELETE", path, token, nil)
	if resp.StatusCode != fiber.StatusAccepted {
		t.Fatalf("phase one: status %d, want 202", resp.StatusCode)
	}
	confirm, _ := parsed.Data["token"].(string)
	if confirm == "" {
		t.Fatal("phase one: no confirmation token")
	}

	resp, _ = doJSON(t, app, "GET", path, token, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("collection should survive phase one, got %d", resp.StatusCode)
	}

	// phase two: present the token
	resp, _ = doJSON(t, app, "DELETE", path, token, fiber.Map{"token": confirm})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("phase two: status %d, want 200", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, "GET", path, token, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("collection should be gone, got %d", resp.StatusCode)
	}

	// the token is single use
	resp, _ = doJSON(t, app, "DELETE", path, token, fiber.Map{"token": confirm})
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("replayed delete: status %d, want 404", resp.StatusCode)
	}
}

func TestDeleteRequiresOwnership(t *testing.T) {
	app := newTestApp(t)
	_, ownerToken := newTestUser(t, "owner@example.com")
	_, otherToken := newTestUser(t, "other@example.com")

	id := createTestCollection(t, app, ownerToken)

	resp, _ := doJSON(t, app, "DELETE", "/api/v1/collections/"+id, otherToken, nil)
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("non-owner delete: status %d, want 404", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	app := newTestApp(t)

	resp, _ := doJSON(t, app, "GET", "/api/v1/collections", "", nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("missing token: status %d, want 401", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, "GET", "/api/v1/collections", "garbage", nil)
	if resp.StatusCode != fiber.StatusUnauthorized {
		t.Fatalf("bad token: status %d, want 401", resp.StatusCode)
	}
}

func TestShareInviteFlow(t *testing.T) {
	app := newTestApp(t)
	_, ownerToken := newTestUser(t, "owner@example.com")
	_, guestToken := newTestUser(t, "guest@example.com")

	id := createTestCollection(t, app, ownerToken)

	resp, _ := doJSON(t, app, "POST", "/api/v1/collections/"+id+"/share", ownerToken, fiber.Map{
		"email": "guest@example.com",
		"role":  "view",
	})
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("share: status %d", resp.StatusCode)
	}

	// the grant is live before the invite is accepted
	resp, _ = doJSON(t, app, "GET", "/api/v1/collections/"+id, guestToken, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("guest read after share: status %d", resp.StatusCode)
	}

	// but the collection only enters the guest's list on accept
	req := httptest.NewRequest("GET", "/api/v1/invites", nil)
	req.Header.Set("x-auth-token", guestToken)
	invResp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("list invites: %v", err)
	}
	var invites struct {
		Data []struct {
			Token string `json:"token"`
		} `json:"data"`
	}
	json.NewDecoder(invResp.Body).Decode(&invites)
	invResp.Body.Close()
	if len(invites.Data) != 1 {
		t.Fatalf("expected 1 invite, got %d", len(invites.Data))
	}

	resp, _ = doJSON(t, app, "POST", fmt.Sprintf("/api/v1/invites/%s/accept", invites.Data[0].Token), guestToken, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("accept invite: status %d", resp.StatusCode)
	}

	resp, parsed := doJSON(t, app, "GET", "/api/v1/collections", guestToken, nil)
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("list collections: status %d", resp.StatusCode)
	}
	_ = parsed

	// a view share cannot write rows
	resp, _ = doJSON(t, app, "POST", "/api/v1/collections/"+id+"/data", guestToken, fiber.Map{
		"row": []fiber.Map{{"column": "temperature", "data": "21"}},
	})
	if resp.StatusCode != fiber.StatusForbidden {
		t.Fatalf("viewer row write: status %d, want 403", resp.StatusCode)
	}
}
