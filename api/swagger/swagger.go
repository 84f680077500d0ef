package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "ProjHub API",
        "description": "Academic project change-request approval workflow",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Auth", "description": "Authentication and session management"},
        {"name": "Requests", "description": "Student change-request workflow"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Authenticate with email and password",
                "responses": {
                    "200": {"description": "Token pair issued"},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Auth"],
                "summary": "Exchange a refresh token for a new token pair",
                "responses": {
                    "200": {"description": "Token pair issued"},
                    "401": {"description": "Refresh token expired or revoked"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Auth"],
                "summary": "Revoke the caller's refresh token",
                "responses": {
                    "204": {"description": "Revoked"}
                }
            }
        },
        "/requests": {
            "post": {
                "tags": ["Requests"],
                "summary": "Submit a change request",
                "responses": {
                    "201": {"description": "Request created in PENDING status"},
                    "400": {"description": "Empty reason or unknown type"}
                }
            },
            "get": {
                "tags": ["Requests"],
                "summary": "List change requests visible to the caller",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/requests/{id}": {
            "get": {
                "tags": ["Requests"],
                "summary": "Get change request detail",
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Unknown request id"}
                }
            }
        },
        "/requests/{id}/supervisor-decision": {
            "post": {
                "tags": ["Requests"],
                "summary": "Record a supervisor decision",
                "responses": {
                    "200": {"description": "Decision recorded"},
                    "409": {"description": "Decision not legal in current status"}
                }
            }
        },
        "/requests/{id}/committee-decision": {
            "post": {
                "tags": ["Requests"],
                "summary": "Record a committee decision",
                "responses": {
                    "200": {"description": "Decision recorded"},
                    "409": {"description": "Decision not legal in current status"}
                }
            }
        },
        "/requests/{id}/review": {
            "post": {
                "tags": ["Requests"],
                "summary": "Record a decision without naming the stage (legacy)",
                "responses": {
                    "200": {"description": "Decision recorded"},
                    "409": {"description": "No review stage is open"}
                }
            }
        },
        "/requests/{id}/cancel": {
            "post": {
                "tags": ["Requests"],
                "summary": "Cancel a pending request",
                "responses": {
                    "204": {"description": "Cancelled"},
                    "403": {"description": "Request belongs to another student"},
                    "409": {"description": "Request already decided"}
                }
            }
        },
        "/requests/queue/supervisor": {
            "get": {
                "tags": ["Requests"],
                "summary": "Requests awaiting the caller's supervisor review",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/requests/queue/committee": {
            "get": {
                "tags": ["Requests"],
                "summary": "Requests awaiting committee review",
                "responses": {
                    "200": {"description": "OK"}
                }
            }
        },
        "/requests/export": {
            "get": {
                "tags": ["Requests"],
                "summary": "Download request history as CSV or PDF",
                "responses": {
                    "200": {"description": "Document stream"},
                    "400": {"description": "Unsupported format"}
                }
            }
        }
    },
    "definitions": {
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
