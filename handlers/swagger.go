package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers the OpenAPI description of the JSON endpoints.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerHTML))
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.Data(http.StatusOK, "application/json", []byte(swaggerJSON))
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Seguralta portal API</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "seguralta-portal", "version": "v0.1.0" },
  "components": {
    "securitySchemes": {
      "bearer": { "type": "http", "scheme": "bearer", "bearerFormat": "JWT" },
      "session": { "type": "apiKey", "in": "cookie", "name": "__session" }
    }
  },
  "paths": {
    "/auth/session": {
      "post": {
        "summary": "Exchange an identity provider token for the session cookie",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"token":{"type":"string"}}}}}},
        "responses": { "200": { "description": "cookie set" }, "401": { "description": "invalid or revoked token" } }
      }
    },
    "/auth/logout": {
      "post": { "summary": "Revoke the session token and clear the cookie", "responses": { "200": { "description": "logged out" }, "303": { "description": "browser redirect home" } } }
    },
    "/onboarding": {
      "post": {
        "summary": "Complete onboarding for the session user",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"name":{"type":"string"},"phone":{"type":"string"},"cpf":{"type":"string"}}}}}},
        "responses": { "200": { "description": "completed; client must reload its session" }, "401": { "description": "not signed in" }, "409": { "description": "submission already in flight" }, "422": { "description": "invalid fields" }, "502": { "description": "identity provider or store failure" } }
      }
    },
    "/onboarding/validate": {
      "post": { "summary": "Validate a single field on blur", "parameters": [{"name":"field","in":"query","required":true,"schema":{"type":"string","enum":["name","phone","cpf"]}}], "responses": { "200": { "description": "field state" }, "400": { "description": "unknown field" } } }
    },
    "/api/users/current": {
      "get": { "summary": "Stored record of the session subject", "security": [{"session": []}, {"bearer": []}], "responses": { "200": { "description": "user or null" }, "401": { "description": "missing, invalid or revoked session" } } }
    },
    "/api/users/needs-onboarding": {
      "get": { "summary": "Whether the stored record is missing or incomplete", "security": [{"session": []}, {"bearer": []}], "responses": { "200": { "description": "flag" }, "401": { "description": "missing, invalid or revoked session" } } }
    },
    "/api/users/complete-onboarding": {
      "post": { "summary": "Patch the stored record with onboarding fields (mutation token)", "security": [{"bearer": []}], "responses": { "200": { "description": "record id" }, "401": { "description": "missing token" }, "404": { "description": "no stored record" } } }
    },
    "/webhooks/identity": {
      "post": { "summary": "Identity provider user events (svix signed)", "responses": { "200": { "description": "processed or ignored" }, "401": { "description": "bad signature" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "text exposition" } } } }
  }
}`
