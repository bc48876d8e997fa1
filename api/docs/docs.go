// Package docs holds the OpenAPI description served under /docs.
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
    "securityDefinitions": {
        "BearerAuth": {
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    },
    "paths": {
        "/api/v1/reservations": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reservations"],
                "summary": "List reservations",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"type": "integer", "name": "skip", "in": "query"},
                    {"type": "integer", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/Reservation"}}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/Error"}},
                    "503": {"description": "Service Unavailable", "schema": {"$ref": "#/definitions/Error"}}
                }
            },
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["reservations"],
                "summary": "Create a reservation",
                "security": [{"BearerAuth": []}],
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/CreateReservationRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/Reservation"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/Error"}},
                    "404": {"description": "Flight or passenger not found", "schema": {"$ref": "#/definitions/Error"}},
                    "409": {"description": "Duplicate reservation or seat conflict", "schema": {"$ref": "#/definitions/Error"}},
                    "503": {"description": "Peer service unavailable", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/v1/reservations/{code}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["reservations"],
                "summary": "Get a reservation with passenger and flight details",
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "code", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Reservation"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/Error"}}
                }
            },
            "delete": {
                "produces": ["application/json"],
                "tags": ["reservations"],
                "summary": "Cancel a reservation",
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "code", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Reservation"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/Error"}},
                    "409": {"description": "Invalid status transition", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/v1/reservations/{code}/cancel": {
            "post": {
                "produces": ["application/json"],
                "tags": ["reservations"],
                "summary": "Cancel a reservation",
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "code", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Reservation"}},
                    "409": {"description": "Invalid status transition", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/v1/reservations/{code}/check-in": {
            "post": {
                "produces": ["application/json"],
                "tags": ["reservations"],
                "summary": "Check in a confirmed reservation",
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "code", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Reservation"}},
                    "409": {"description": "Invalid status transition", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/v1/reservations/{code}/no-show": {
            "post": {
                "produces": ["application/json"],
                "tags": ["reservations"],
                "summary": "Mark a reservation as no-show",
                "security": [{"BearerAuth": []}],
                "parameters": [{"type": "string", "name": "code", "in": "path", "required": true}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/Reservation"}},
                    "409": {"description": "Invalid status transition", "schema": {"$ref": "#/definitions/Error"}}
                }
            }
        },
        "/api/v1/circuit-breaker/stats": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Circuit breaker statistics",
                "security": [{"BearerAuth": []}],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/BreakerReport"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["system"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Database unreachable"}
                }
            }
        }
    },
    "definitions": {
        "CreateReservationRequest": {
            "type": "object",
            "required": ["passenger_identification", "flight_number"],
            "properties": {
                "passenger_identification": {"type": "string"},
                "flight_number": {"type": "string"},
                "seat_number": {"type": "string", "example": "12C"}
            }
        },
        "Reservation": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "format": "uuid"},
                "reservation_code": {"type": "string", "example": "K7Q2ZD"},
                "passenger_identification": {"type": "string"},
                "flight_number": {"type": "string"},
                "seat_number": {"type": "string"},
                "status": {"type": "string", "enum": ["PENDING", "CONFIRMED", "CHECKED_IN", "CANCELLED", "NO_SHOW"]},
                "created_at": {"type": "string", "format": "date-time"},
                "updated_at": {"type": "string", "format": "date-time"},
                "checked_in_at": {"type": "string", "format": "date-time"},
                "passenger_info": {"type": "object"},
                "flight_info": {"type": "object"},
                "warnings": {"type": "array", "items": {"type": "string"}}
            }
        },
        "BreakerStats": {
            "type": "object",
            "properties": {
                "state": {"type": "string", "enum": ["closed", "open", "half_open"]},
                "failure_count": {"type": "integer"},
                "success_count": {"type": "integer"},
                "total_requests": {"type": "integer"},
                "uptime_percentage": {"type": "number"}
            }
        },
        "BreakerReport": {
            "type": "object",
            "properties": {
                "database_circuit_breaker": {"$ref": "#/definitions/BreakerStats"},
                "http_circuit_breaker": {"$ref": "#/definitions/BreakerStats"},
                "http_circuit_breakers": {"type": "object", "additionalProperties": {"$ref": "#/definitions/BreakerStats"}},
                "timestamp": {"type": "string", "format": "date-time"}
            }
        },
        "Error": {
            "type": "object",
            "properties": {
                "error": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Airline back-office reservation API",
	Description:      "Reservation saga, check-in and circuit breaker statistics.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
