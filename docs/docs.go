// Package docs registers the OpenAPI document served under /swagger.
package docs

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
        "/v1/session": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Validate session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.sessionResponse"}},
                    "401": {"description": "Unauthorized"}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Initialize session",
                "parameters": [{
                    "description": "Credentials",
                    "name": "body",
                    "in": "body",
                    "required": true,
                    "schema": {"$ref": "#/definitions/handler.loginRequest"}
                }],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/handler.loginResponse"}},
                    "400": {"description": "Bad Request"},
                    "401": {"description": "Unauthorized"},
                    "403": {"description": "Forbidden"}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["session"],
                "summary": "Terminate session",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/v1/session/refresh": {
            "post": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["session"],
                "summary": "Refresh session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handler.refreshResponse"}},
                    "401": {"description": "Unauthorized"}
                }
            }
        },
        "/v1/session/data/{key}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "tags": ["session"],
                "summary": "Retrieve transient data",
                "parameters": [{"type": "string", "description": "Data key", "name": "key", "in": "path", "required": true}],
                "responses": {"200": {"description": "OK"}, "404": {"description": "Not Found"}}
            },
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["session"],
                "summary": "Store transient data",
                "parameters": [{"type": "string", "description": "Data key", "name": "key", "in": "path", "required": true}],
                "responses": {
                    "204": {"description": "No Content"},
                    "400": {"description": "Bad Request"},
                    "413": {"description": "Request Entity Too Large"},
                    "503": {"description": "Service Unavailable"}
                }
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["session"],
                "summary": "Delete transient data",
                "parameters": [{"type": "string", "description": "Data key", "name": "key", "in": "path", "required": true}],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/v1/session/navigation": {
            "post": {
                "security": [{"BearerAuth": []}],
                "tags": ["session"],
                "summary": "Record navigation",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/v1/session/error": {
            "put": {
                "security": [{"BearerAuth": []}],
                "tags": ["session"],
                "summary": "Set error context",
                "responses": {"204": {"description": "No Content"}}
            },
            "delete": {
                "security": [{"BearerAuth": []}],
                "tags": ["session"],
                "summary": "Clear error context",
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/v1/access/{kind}/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["access"],
                "summary": "Check resource access",
                "parameters": [
                    {"type": "string", "description": "Resource kind, e.g. account or card", "name": "kind", "in": "path", "required": true},
                    {"type": "string", "description": "Resource id", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"200": {"description": "OK"}, "401": {"description": "Unauthorized"}}
            }
        },
        "/v1/admin/sessions/{id}": {
            "get": {
                "security": [{"BearerAuth": []}],
                "produces": ["application/json"],
                "tags": ["admin"],
                "summary": "Inspect session",
                "parameters": [{"type": "string", "description": "Session id", "name": "id", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK"},
                    "403": {"description": "Forbidden"},
                    "404": {"description": "Not Found"}
                }
            }
        }
    },
    "definitions": {
        "handler.loginRequest": {
            "type": "object",
            "required": ["password", "user_id"],
            "properties": {
                "password": {"type": "string", "maxLength": 72},
                "user_id": {"type": "string", "maxLength": 8}
            }
        },
        "handler.principalResponse": {
            "type": "object",
            "properties": {
                "first_name": {"type": "string"},
                "id": {"type": "string"},
                "last_name": {"type": "string"},
                "role": {"type": "string"}
            }
        },
        "handler.clientPolicyResponse": {
            "type": "object",
            "properties": {
                "check_interval_seconds": {"type": "integer"},
                "refresh_threshold_seconds": {"type": "integer"},
                "warning_threshold_seconds": {"type": "integer"}
            }
        },
        "handler.loginResponse": {
            "type": "object",
            "properties": {
                "client": {"$ref": "#/definitions/handler.clientPolicyResponse"},
                "degraded": {"type": "boolean"},
                "expires_at": {"type": "string"},
                "expires_in": {"type": "integer"},
                "session_id": {"type": "string"},
                "token": {"type": "string"},
                "token_type": {"type": "string"},
                "user": {"$ref": "#/definitions/handler.principalResponse"}
            }
        },
        "handler.refreshResponse": {
            "type": "object",
            "properties": {
                "degraded": {"type": "boolean"},
                "expires_at": {"type": "string"},
                "expires_in": {"type": "integer"},
                "rotated": {"type": "boolean"},
                "session_id": {"type": "string"},
                "token": {"type": "string"},
                "token_type": {"type": "string"}
            }
        },
        "handler.sessionResponse": {
            "type": "object",
            "properties": {
                "expires_at": {"type": "string"},
                "last_activity_at": {"type": "string"},
                "remaining_seconds": {"type": "integer"},
                "role": {"type": "string"},
                "session_id": {"type": "string"},
                "state_available": {"type": "boolean"},
                "subject": {"type": "string"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "CardDemo auth gateway",
	Description:      "Authentication and session lifecycle for CardDemo.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
