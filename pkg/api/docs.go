package api

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {"tags": ["health"], "summary": "Health check", "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/images": {
            "get": {"tags": ["images"], "summary": "List active images", "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}}
        },
        "/images/{name}": {
            "get": {"tags": ["images"], "summary": "Describe an active image", "security": [{"ApiKeyAuth": []}],
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}},
            "put": {"tags": ["images"], "summary": "Insert an image", "security": [{"ApiKeyAuth": []}],
                "consumes": ["application/octet-stream"],
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "string", "format": "binary"}}],
                "responses": {"201": {"description": "Created"}, "400": {"description": "Bad Request"},
                    "409": {"description": "Conflict"}, "413": {"description": "Request Entity Too Large"}}},
            "delete": {"tags": ["images"], "summary": "Delete an image", "security": [{"ApiKeyAuth": []}],
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/images/{name}/history": {
            "get": {"tags": ["images"], "summary": "List every entry recorded under a name", "security": [{"ApiKeyAuth": []}],
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}}
        },
        "/images/{name}/pgm": {
            "get": {"tags": ["images"], "summary": "Download an image as PGM", "security": [{"ApiKeyAuth": []}],
                "produces": ["image/x-portable-graymap"],
                "parameters": [{"type": "string", "name": "name", "in": "path", "required": true},
                    {"type": "string", "name": "transform", "in": "query", "enum": ["none", "negate", "threshold"]},
                    {"type": "integer", "name": "threshold", "in": "query", "minimum": 0, "maximum": 255}],
                "responses": {"200": {"description": "OK"}, "400": {"description": "Bad Request"}, "404": {"description": "Not Found"}}}
        },
        "/compact": {
            "post": {"tags": ["maintenance"], "summary": "Compact the data log", "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}, "500": {"description": "Internal Server Error"}}}
        },
        "/stats": {
            "get": {"tags": ["maintenance"], "summary": "Get store statistics", "security": [{"ApiKeyAuth": []}],
                "responses": {"200": {"description": "OK"}}}
        }
    },
    "securityDefinitions": {
        "ApiKeyAuth": {"type": "apiKey", "name": "X-API-Key", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "pgmstore REST API",
	Description:      "Named storage, export and compaction of binary PGM images.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
