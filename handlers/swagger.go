package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the gateway.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg gin.IRoutes) {
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
    <title>ats-gateway Swagger</title>
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
  "info": { "title": "ats-gateway", "version": "v0.1.0" },
  "paths": {
    "/auth/login": {
      "get": { "summary": "Start interactive login", "responses": { "302": { "description": "redirect to the identity provider, or to the success URL when already logged in" } } }
    },
    "/auth/callback": {
      "get": {
        "summary": "Complete interactive login",
        "parameters": [
          { "name": "code", "in": "query", "required": true, "schema": { "type": "string" } },
          { "name": "state", "in": "query", "required": true, "schema": { "type": "string" } }
        ],
        "responses": { "302": { "description": "logged in" }, "400": { "description": "missing_code or invalid_state" }, "500": { "description": "login_failed" } }
      }
    },
    "/auth/logout": {
      "post": { "summary": "Destroy the session and clear its cookie", "responses": { "200": { "description": "logged out" } } }
    },
    "/auth/me": {
      "get": { "summary": "Current principal", "responses": { "200": { "description": "user" }, "401": { "description": "unauthorized" } } }
    },
    "/files": {
      "get": {
        "summary": "Stream a stored file (session)",
        "parameters": [ { "name": "key", "in": "query", "required": true, "schema": { "type": "string" } } ],
        "responses": { "200": { "description": "file body" }, "400": { "description": "missing_key or bad_path" }, "404": { "description": "not_found" }, "500": { "description": "read_failed" } }
      }
    },
    "/files/sign": {
      "get": {
        "summary": "Issue a signed capability URL (session)",
        "parameters": [
          { "name": "key", "in": "query", "schema": { "type": "string" } },
          { "name": "url", "in": "query", "schema": { "type": "string" } },
          { "name": "ttl", "in": "query", "schema": { "type": "integer" } }
        ],
        "responses": { "200": { "description": "{ok,url,key}" }, "400": { "description": "missing_key or sign_failed" } }
      }
    },
    "/files-signed": {
      "get": {
        "summary": "Stream a file through a signed URL",
        "parameters": [
          { "name": "key", "in": "query", "required": true, "schema": { "type": "string" } },
          { "name": "exp", "in": "query", "required": true, "schema": { "type": "integer" } },
          { "name": "sig", "in": "query", "required": true, "schema": { "type": "string" } }
        ],
        "responses": { "200": { "description": "file body" }, "401": { "description": "unauthorized" } }
      }
    },
    "/{tenant}/api/ats/applications/{id}/attachments": {
      "post": {
        "summary": "Upload an application attachment (session or service bearer)",
        "requestBody": { "content": { "multipart/form-data": { "schema": { "type": "object", "properties": { "file": { "type": "string", "format": "binary" } } } } } },
        "responses": { "201": { "description": "{ok,key,url}" }, "401": { "description": "unauthorized or invalid_token" }, "403": { "description": "forbidden" } }
      }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "not ready" } } } },
    "/metrics": { "get": { "summary": "Prometheus metrics", "responses": { "200": { "description": "metrics" } } } }
  }
}`
