// Package docs registers the OpenAPI description of the academy API with
// swag so the server can serve it under /api/swagger.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "{{.Title}}",
        "description": "{{.Description}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/auth/register": {"post": {"tags": ["auth"], "summary": "Register a free student account", "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/Credentials"}}], "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/Session"}}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}, "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}},
        "/auth/login": {"post": {"tags": ["auth"], "summary": "Exchange credentials for a JWT", "parameters": [{"in": "body", "name": "body", "required": true, "schema": {"$ref": "#/definitions/Credentials"}}], "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/Session"}}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}},
        "/auth/me": {"get": {"tags": ["auth"], "summary": "Current profile with effective tier", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}},
        "/ws/ticket": {"post": {"tags": ["chat"], "summary": "Issue a single-use chat socket ticket", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/protocols": {"get": {"tags": ["content"], "summary": "List protocols, redacted per item", "parameters": [{"in": "query", "name": "category", "type": "string"}, {"in": "query", "name": "limit", "type": "integer"}, {"in": "query", "name": "offset", "type": "integer"}], "responses": {"200": {"description": "OK"}}}},
        "/protocols/{slug}": {"get": {"tags": ["content"], "summary": "Protocol with access_info; denied reads are previews", "parameters": [{"in": "path", "name": "slug", "type": "string", "required": true}], "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}},
        "/quizzes/{id}": {"get": {"tags": ["content"], "summary": "Sampled quiz questions without answers", "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/quizzes/{id}/submit": {"post": {"tags": ["content"], "summary": "Grade quiz answers", "security": [{"BearerAuth": []}], "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}], "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}},
        "/resources/{slug}": {"get": {"tags": ["content"], "summary": "Study resource with access_info", "parameters": [{"in": "path", "name": "slug", "type": "string", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/assistant/ask": {"post": {"tags": ["assistant"], "summary": "Ask the assistant, consuming daily quota", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "429": {"description": "Too Many Requests", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}},
        "/conversations": {"get": {"tags": ["chat"], "summary": "Conversations of the caller", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}, "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}},
        "/conversations/private": {"post": {"tags": ["chat"], "summary": "Create or get a private conversation", "security": [{"BearerAuth": []}], "responses": {"200": {"description": "OK"}}}},
        "/conversations/group": {"post": {"tags": ["chat"], "summary": "Create a group with at least two members besides the creator", "security": [{"BearerAuth": []}], "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}},
        "/conversations/{id}/messages": {
            "get": {"tags": ["chat"], "summary": "Page of messages, oldest first within the page", "security": [{"BearerAuth": []}], "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}, {"in": "query", "name": "page", "type": "integer"}, {"in": "query", "name": "limit", "type": "integer"}], "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["chat"], "summary": "Send a message", "security": [{"BearerAuth": []}], "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}], "responses": {"201": {"description": "Created"}}}
        },
        "/conversations/{id}/read": {"post": {"tags": ["chat"], "summary": "Mark messages read; an empty list means all unread", "security": [{"BearerAuth": []}], "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}], "responses": {"200": {"description": "OK"}}}},
        "/conversations/{id}": {"delete": {"tags": ["chat"], "summary": "Delete a conversation and its history", "security": [{"BearerAuth": []}], "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}], "responses": {"204": {"description": "No Content"}, "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}},
        "/admin/users/{id}/access": {"put": {"tags": ["admin"], "summary": "Update a user's tier and subscription", "security": [{"BearerAuth": []}], "parameters": [{"in": "path", "name": "id", "type": "integer", "required": true}], "responses": {"200": {"description": "OK"}}}}
    },
    "definitions": {
        "Credentials": {"type": "object", "properties": {"username": {"type": "string"}, "email": {"type": "string"}, "password": {"type": "string"}, "language": {"type": "string", "enum": ["ru", "ro"]}}},
        "Session": {"type": "object", "properties": {"token": {"type": "string"}, "expires_at": {"type": "string", "format": "date-time"}, "user": {"type": "object"}}},
        "ErrorResponse": {"type": "object", "properties": {"error": {"type": "string"}, "code": {"type": "string"}, "details": {"type": "string"}}}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api",
	Schemes:          []string{},
	Title:            "Massage Academy API",
	Description:      "Tiered course content and real-time chat for massage students.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
