// Package docs registers the OpenAPI description of the checkout service.
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
    "securityDefinitions": {
        "FormToken": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "paths": {
        "/api/health": {
            "get": {"summary": "Liveness", "responses": {"200": {"description": "ok"}}}
        },
        "/api/forms": {
            "post": {
                "summary": "Open a checkout form",
                "responses": {"201": {"description": "form id, token and initial view", "schema": {"$ref": "#/definitions/CreateFormResponse"}}}
            }
        },
        "/api/forms/{id}": {
            "get": {
                "summary": "Latest view of a form",
                "security": [{"FormToken": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"200": {"description": "view", "schema": {"$ref": "#/definitions/View"}}, "404": {"description": "unknown form"}}
            },
            "delete": {
                "summary": "Close a form",
                "security": [{"FormToken": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"204": {"description": "closed"}, "409": {"description": "submission in flight"}}
            }
        },
        "/api/forms/{id}/category": {
            "post": {
                "summary": "Select the report category",
                "security": [{"FormToken": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"category": {"type": "string", "enum": ["individual", "couple"]}}}}
                ],
                "responses": {"200": {"description": "view", "schema": {"$ref": "#/definitions/View"}}}
            }
        },
        "/api/forms/{id}/subtype": {
            "post": {
                "summary": "Select the individual report tier",
                "security": [{"FormToken": []}],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "body", "in": "body", "required": true, "schema": {"type": "object", "properties": {"subtype": {"type": "string", "enum": ["basic", "premium"]}}}}
                ],
                "responses": {"200": {"description": "view", "schema": {"$ref": "#/definitions/View"}}, "400": {"description": "not an individual report"}}
            }
        },
        "/api/forms/{id}/submit": {
            "post": {
                "summary": "Submit the form and open the checkout",
                "consumes": ["multipart/form-data"],
                "security": [{"FormToken": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {
                    "200": {"description": "checkout options", "schema": {"$ref": "#/definitions/SubmitResponse"}},
                    "409": {"description": "submission in flight"},
                    "422": {"description": "submission failed, view carries the message", "schema": {"$ref": "#/definitions/SubmitResponse"}}
                }
            }
        },
        "/api/forms/{id}/payment": {
            "post": {
                "summary": "Relay the checkout success callback",
                "security": [{"FormToken": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"202": {"description": "report generation started"}}
            }
        },
        "/api/forms/{id}/payment-failed": {
            "post": {
                "summary": "Relay the checkout failure callback",
                "security": [{"FormToken": []}],
                "parameters": [{"name": "id", "in": "path", "required": true, "type": "string"}],
                "responses": {"202": {"description": "failure recorded"}}
            }
        },
        "/events/forms/{id}": {
            "get": {
                "summary": "Server-sent view updates",
                "produces": ["text/event-stream"],
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"},
                    {"name": "token", "in": "query", "required": true, "type": "string"}
                ],
                "responses": {"200": {"description": "event stream"}}
            }
        }
    },
    "definitions": {
        "View": {
            "type": "object",
            "properties": {
                "category": {"type": "string"},
                "subtype": {"type": "string"},
                "visible_group": {"type": "string"},
                "hidden_group": {"type": "string"},
                "subtype_visible": {"type": "boolean"},
                "required_fields": {"type": "array", "items": {"type": "string"}},
                "not_required_fields": {"type": "array", "items": {"type": "string"}},
                "payment_amount": {"type": "integer"},
                "payment_amount_text": {"type": "string"},
                "submit_enabled": {"type": "boolean"},
                "loading": {"type": "boolean"},
                "loading_message": {"type": "string"},
                "error_visible": {"type": "boolean"},
                "error_message": {"type": "string"},
                "notice": {"type": "string"},
                "redirect_url": {"type": "string"},
                "submission_state": {"type": "string"},
                "reset_count": {"type": "integer"}
            }
        },
        "CreateFormResponse": {
            "type": "object",
            "properties": {
                "form_id": {"type": "string"},
                "token": {"type": "string"},
                "view": {"$ref": "#/definitions/View"}
            }
        },
        "SubmitResponse": {
            "type": "object",
            "properties": {
                "checkout": {"type": "object"},
                "error_kind": {"type": "string"},
                "view": {"$ref": "#/definitions/View"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Report Checkout API",
	Description:      "Drives the palm reading report checkout form: selection, submission, payment relay.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
