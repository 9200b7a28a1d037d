// Package docs registers the OpenAPI 2.0 document of the HTTP API with swag,
// so the Swagger UI mounted at /swagger/index.html can serve it. Keep it in
// sync with the godoc annotations in internal/http/handlers.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/records": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Records"],
                "summary": "List records of a type",
                "operationId": "listRecords",
                "parameters": [
                    {"type": "string", "description": "Type tag", "name": "type", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListRecordsResponse"}},
                    "400": {"description": "Missing type", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["Records"],
                "summary": "Remove every record",
                "operationId": "clearRecords",
                "responses": {
                    "204": {"description": "No Content"},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/records/{id}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Records"],
                "summary": "Read a record",
                "operationId": "getRecord",
                "parameters": [
                    {"type": "string", "description": "Record ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.StoredRecord"}},
                    "404": {"description": "Not found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Records"],
                "summary": "Store a record",
                "operationId": "putRecord",
                "parameters": [
                    {"type": "string", "description": "Record ID", "name": "id", "in": "path", "required": true},
                    {"description": "Record", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.PutRecordRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.StoredRecord"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "delete": {
                "tags": ["Records"],
                "summary": "Remove a record",
                "operationId": "deleteRecord",
                "parameters": [
                    {"type": "string", "description": "Record ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "503": {"description": "Storage unavailable", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Records"],
                "summary": "Record counts",
                "operationId": "recordStats",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StatsResponse"}}
                }
            }
        },
        "/queue": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Queue"],
                "summary": "List queued actions",
                "operationId": "listActions",
                "parameters": [
                    {"type": "string", "description": "Return 304 if ETag matches", "name": "If-None-Match", "in": "header"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListActionsResponse"}, "headers": {"ETag": {"type": "string"}}},
                    "304": {"description": "Not Modified"}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Queue"],
                "summary": "Queue a deferred action",
                "operationId": "enqueueAction",
                "parameters": [
                    {"type": "string", "description": "Key for safe retries", "name": "Idempotency-Key", "in": "header"},
                    {"type": "string", "description": "Client identity", "name": "X-Client-ID", "in": "header"},
                    {"description": "Action", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.EnqueueActionRequest"}}
                ],
                "responses": {
                    "200": {"description": "Replayed", "schema": {"$ref": "#/definitions/domain.QueuedAction"}, "headers": {"Idempotency-Replayed": {"type": "string"}}},
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.QueuedAction"}},
                    "400": {"description": "Bad request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Same key still in progress", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/queue/{id}": {
            "delete": {
                "tags": ["Queue"],
                "summary": "Remove a queued action",
                "operationId": "deleteAction",
                "parameters": [
                    {"type": "string", "description": "Action ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {"204": {"description": "No Content"}}
            }
        },
        "/status": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Status"],
                "summary": "Connectivity status",
                "operationId": "getStatus",
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StatusResponse"}}}
            },
            "put": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Status"],
                "summary": "Report connectivity",
                "operationId": "setStatus",
                "parameters": [
                    {"description": "Observed state", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.SetStatusRequest"}}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.StatusResponse"}}}
            }
        },
        "/push": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Push"],
                "summary": "Deliver a push message",
                "operationId": "deliverPush",
                "responses": {"201": {"description": "Created", "schema": {"$ref": "#/definitions/edge.Notification"}}}
            }
        },
        "/notifications": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Push"],
                "summary": "Shown notifications",
                "operationId": "listNotifications",
                "parameters": [
                    {"maximum": 100, "minimum": 1, "type": "integer", "default": 20, "name": "limit", "in": "query"}
                ],
                "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.ListNotificationsResponse"}}}
            }
        }
    },
    "definitions": {
        "domain.StoredRecord": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "type": {"type": "string"},
                "payload": {"type": "object"},
                "timestamp": {"type": "integer"},
                "seq": {"type": "integer"}
            }
        },
        "domain.ActionPayload": {
            "type": "object",
            "properties": {
                "action_type": {"type": "string"},
                "data": {"type": "object"}
            }
        },
        "domain.QueuedAction": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "action_1739952000000_k3j9x0a1b"},
                "payload": {"$ref": "#/definitions/domain.ActionPayload"},
                "timestamp": {"type": "integer"},
                "seq": {"type": "integer"}
            }
        },
        "edge.Notification": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "title": {"type": "string"},
                "body": {"type": "string"},
                "shown_at": {"type": "string"},
                "closed": {"type": "boolean"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "request_id": {"type": "string"},
                "code": {"type": "string", "example": "not_found"},
                "message": {"type": "string"}
            }
        },
        "handlers.PutRecordRequest": {
            "type": "object",
            "required": ["type"],
            "properties": {
                "type": {"type": "string", "example": "mess_profile_cache"},
                "payload": {"type": "object"},
                "timestamp": {"type": "integer"}
            }
        },
        "handlers.EnqueueActionRequest": {
            "type": "object",
            "required": ["action_type"],
            "properties": {
                "action_type": {"type": "string", "example": "create_checkin"},
                "data": {"type": "object"}
            }
        },
        "handlers.ListRecordsResponse": {
            "type": "object",
            "properties": {
                "type": {"type": "string"},
                "count": {"type": "integer"},
                "records": {"type": "array", "items": {"$ref": "#/definitions/domain.StoredRecord"}}
            }
        },
        "handlers.ListActionsResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "actions": {"type": "array", "items": {"$ref": "#/definitions/domain.QueuedAction"}}
            }
        },
        "handlers.ListNotificationsResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"},
                "notifications": {"type": "array", "items": {"$ref": "#/definitions/edge.Notification"}}
            }
        },
        "handlers.StatsResponse": {
            "type": "object",
            "properties": {
                "total": {"type": "integer"},
                "by_type": {"type": "array", "items": {"type": "object", "properties": {"type": {"type": "string"}, "count": {"type": "integer"}}}}
            }
        },
        "handlers.StatusResponse": {
            "type": "object",
            "properties": {
                "online": {"type": "boolean"},
                "since": {"type": "string"},
                "edge_state": {"type": "string", "example": "activated"},
                "cache_name": {"type": "string", "example": "mess-app-v3"}
            }
        },
        "handlers.SetStatusRequest": {
            "type": "object",
            "required": ["online"],
            "properties": {"online": {"type": "boolean"}}
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "mess-offline API",
	Description:      "Local record store, deferred action queue and edge cache status.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
