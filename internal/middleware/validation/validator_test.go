package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newApp() *fiber.App {
	app := fiber.New()
	app.Use("/api", Middleware(Config{MaxUtteranceLength: 20}))
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusNoContent) }
	app.Post("/api/v1/ask", ok)
	app.Post("/api/v1/knowledge", ok)
	app.Post("/api/v1/feedback", ok)
	app.Get("/api/v1/history", ok)
	return app
}

func post(t *testing.T, app *fiber.App, path, body string) int {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestAskBody(t *testing.T) {
	app := newApp()

	cases := []struct {
		name string
		body string
		want int
	}{
		{"valid", `{"utterance":"who are you"}`, fiber.StatusNoContent},
		{"devanagari within cap", `{"utterance":"आप कौन हैं"}`, fiber.StatusNoContent},
		{"malayalam within cap", `{"utterance":"നിങ്ങൾ ആരാണ്"}`, fiber.StatusNoContent},
		{"missing", `{}`, fiber.StatusBadRequest},
		{"blank", `{"utterance":"   "}`, fiber.StatusBadRequest},
		{"not a string", `{"utterance":42}`, fiber.StatusBadRequest},
		{"too long", `{"utterance":"` + strings.Repeat("a", 21) + `"}`, fiber.StatusBadRequest},
		{"script tag", `{"utterance":"<script>alert(1)</script>"}`, fiber.StatusBadRequest},
		{"event handler", `{"utterance":"<img onerror=x>"}`, fiber.StatusBadRequest},
		{"malformed", `{"utterance":`, fiber.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, post(t, app, "/api/v1/ask", tc.body))
		})
	}
}

func TestLengthCountsRunes(t *testing.T) {
	app := newApp()

	// 20 Devanagari letters are 60 bytes but within a 20 rune cap.
	assert.Equal(t, fiber.StatusNoContent, post(t, app, "/api/v1/ask", `{"utterance":"`+strings.Repeat("क", 20)+`"}`))
	assert.Equal(t, fiber.StatusBadRequest, post(t, app, "/api/v1/ask", `{"utterance":"`+strings.Repeat("क", 21)+`"}`))
}

func TestKnowledgeAndFeedbackBodies(t *testing.T) {
	app := newApp()

	assert.Equal(t, fiber.StatusNoContent, post(t, app, "/api/v1/knowledge", `{"question":"What is maya?","answer":"An appearance."}`))
	assert.Equal(t, fiber.StatusBadRequest, post(t, app, "/api/v1/knowledge", `{"question":"What is maya?"}`))
	assert.Equal(t, fiber.StatusBadRequest, post(t, app, "/api/v1/knowledge", `{"question":"q","answer":"<iframe src=x>"}`))

	assert.Equal(t, fiber.StatusNoContent, post(t, app, "/api/v1/feedback", `{"interaction_id":"abc","helpful":true}`))
	assert.Equal(t, fiber.StatusBadRequest, post(t, app, "/api/v1/feedback", `{"helpful":true}`))
	assert.Equal(t, fiber.StatusBadRequest, post(t, app, "/api/v1/feedback", `{"interaction_id":"`+strings.Repeat("x", 65)+`"}`))
}

func TestContentTypeAndMethods(t *testing.T) {
	app := newApp()

	req := httptest.NewRequest("POST", "/api/v1/ask", strings.NewReader("utterance=hi"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnsupportedMediaType, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/v1/history", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
}
