package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "UCE Proposal API",
        "description": "University community-extension proposal and approval workflow service",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Authentication", "description": "Login, token refresh and session management"},
        {"name": "Proposals", "description": "Proposal submission and lifecycle"},
        {"name": "Approvals", "description": "Approval-chain decisions and worklists"},
        {"name": "Activities", "description": "Activities created from approved proposals"},
        {"name": "Reference", "description": "Lookup data for proposal forms"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Authenticate user",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials"}
                }
            }
        },
        "/auth/refresh": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Refresh access token",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Expired or revoked token"}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "tags": ["Authentication"],
                "summary": "Logout current session",
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/auth/me": {
            "get": {
                "tags": ["Authentication"],
                "summary": "Get current user",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/proposals": {
            "get": {
                "tags": ["Proposals"],
                "summary": "List proposals",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "department_id", "in": "query", "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            },
            "post": {
                "tags": ["Proposals"],
                "summary": "Submit a proposal",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitProposalRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Only department accounts submit proposals"}
                }
            }
        },
        "/proposals/{id}": {
            "get": {
                "tags": ["Proposals"],
                "summary": "Get proposal detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/proposals/{id}/approve": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Approve the current step",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Not the proposal's current step"},
                    "409": {"description": "Step already resolved"}
                }
            }
        },
        "/proposals/{id}/return": {
            "post": {
                "tags": ["Approvals"],
                "summary": "Return the proposal to its submitter",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/DecisionRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "400": {"description": "Comment is required"},
                    "403": {"description": "Not the proposal's current step"}
                }
            }
        },
        "/proposals/{id}/resubmit": {
            "post": {
                "tags": ["Proposals"],
                "summary": "Resubmit a returned proposal",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"},
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/SubmitProposalRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "412": {"description": "Only returned proposals can be resubmitted"}
                }
            }
        },
        "/approvals/worklist": {
            "get": {
                "tags": ["Approvals"],
                "summary": "Proposals awaiting the caller's decision",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Role has no approval worklist"}
                }
            }
        },
        "/activities": {
            "get": {
                "tags": ["Activities"],
                "summary": "List activities",
                "parameters": [
                    {"name": "status", "in": "query", "type": "string"},
                    {"name": "department_id", "in": "query", "type": "integer"},
                    {"name": "page", "in": "query", "type": "integer"},
                    {"name": "page_size", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/activities/{id}": {
            "get": {
                "tags": ["Activities"],
                "summary": "Get activity detail",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/departments": {
            "get": {
                "tags": ["Reference"],
                "summary": "List departments",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/partner-communities": {
            "get": {
                "tags": ["Reference"],
                "summary": "List partner communities",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/banner-programs": {
            "get": {
                "tags": ["Reference"],
                "summary": "List banner programs",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "required": ["email", "password"],
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "SubmitProposalRequest": {
            "type": "object",
            "required": ["title", "description", "target_date", "department_id"],
            "properties": {
                "title": {"type": "string"},
                "description": {"type": "string"},
                "target_date": {"type": "string", "format": "date-time"},
                "budget": {"type": "number"},
                "venue": {"type": "string"},
                "target_beneficiaries": {"type": "string"},
                "target_area": {"type": "string"},
                "department_id": {"type": "integer"},
                "partner_community_id": {"type": "integer"},
                "banner_program_id": {"type": "integer"}
            }
        },
        "DecisionRequest": {
            "type": "object",
            "properties": {
                "comment": {"type": "string"}
            }
        },
        "Pagination": {
            "type": "object",
            "properties": {
                "page": {"type": "integer"},
                "page_size": {"type": "integer"},
                "total_count": {"type": "integer"}
            }
        },
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
                "pagination": {"$ref": "#/definitions/Pagination"},
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
