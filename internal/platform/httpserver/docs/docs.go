// Package docs registers the swagger document served under /swagger/.
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
        "/v1/voting/sessions": {
            "post": {
                "description": "Opens a new commit-reveal session under a fresh handle. The commit window closes duration_seconds after creation.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["commit-reveal-voting"],
                "summary": "Start a voting session",
                "parameters": [
                    {"type": "string", "description": "Idempotency key", "name": "Idempotency-Key", "in": "header", "required": true},
                    {"type": "string", "description": "Caller identity used for metering", "name": "X-Voter-Id", "in": "header"},
                    {"description": "Session definition", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.StartVotingRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.SessionResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/voting/sessions/{session_id}": {
            "get": {
                "description": "Returns the derived phase, counters, tally and, once every vote is revealed, the winner.",
                "produces": ["application/json"],
                "tags": ["commit-reveal-voting"],
                "summary": "Get session status",
                "parameters": [
                    {"type": "string", "description": "Session handle", "name": "session_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/voting/sessions/{session_id}/commits": {
            "get": {
                "description": "Returns every commitment of the session in commit order with its status.",
                "produces": ["application/json"],
                "tags": ["commit-reveal-voting"],
                "summary": "List commitments",
                "parameters": [
                    {"type": "string", "description": "Session handle", "name": "session_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.CommitmentsResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Submits keccak256(choice digit || secret) while the commit window is open.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["commit-reveal-voting"],
                "summary": "Commit a vote",
                "parameters": [
                    {"type": "string", "description": "Session handle", "name": "session_id", "in": "path", "required": true},
                    {"type": "string", "description": "Caller identity used for metering", "name": "X-Voter-Id", "in": "header"},
                    {"description": "Commitment", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.CommitRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.CommitResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/voting/sessions/{session_id}/commits/{commit_hash}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["commit-reveal-voting"],
                "summary": "Get commitment status",
                "parameters": [
                    {"type": "string", "description": "Session handle", "name": "session_id", "in": "path", "required": true},
                    {"type": "string", "description": "0x-prefixed commitment", "name": "commit_hash", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.CommitmentItem"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/voting/sessions/{session_id}/reveals": {
            "post": {
                "description": "Discloses the choice and secret behind an earlier commitment once the commit window has closed.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["commit-reveal-voting"],
                "summary": "Reveal a vote",
                "parameters": [
                    {"type": "string", "description": "Session handle", "name": "session_id", "in": "path", "required": true},
                    {"type": "string", "description": "Caller identity used for metering", "name": "X-Voter-Id", "in": "header"},
                    {"description": "Plaintext vote", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.RevealRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.RevealResponse"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/v1/voting/sessions/{session_id}/winner": {
            "get": {
                "description": "Returns the label with the strictly greater tally. Ties fail with 409.",
                "produces": ["application/json"],
                "tags": ["commit-reveal-voting"],
                "summary": "Get the winning choice",
                "parameters": [
                    {"type": "string", "description": "Session handle", "name": "session_id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.WinnerResponse"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "http.ErrorResponse": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"}
            }
        },
        "http.StartVotingRequest": {
            "type": "object",
            "properties": {
                "question": {"type": "string"},
                "choice_1_label": {"type": "string"},
                "choice_2_label": {"type": "string"},
                "duration_seconds": {"type": "integer"},
                "supersedes": {"type": "string"}
            }
        },
        "http.TallyResponse": {
            "type": "object",
            "properties": {
                "choice_1": {"type": "integer"},
                "choice_2": {"type": "integer"}
            }
        },
        "http.SessionResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "question": {"type": "string"},
                "choice_1_label": {"type": "string"},
                "choice_2_label": {"type": "string"},
                "commit_deadline": {"type": "string"},
                "supersedes": {"type": "string"},
                "tally": {"$ref": "#/definitions/http.TallyResponse"},
                "votes_cast": {"type": "integer"},
                "votes_revealed": {"type": "integer"},
                "replayed": {"type": "boolean"}
            }
        },
        "http.StatusResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "question": {"type": "string"},
                "choice_1_label": {"type": "string"},
                "choice_2_label": {"type": "string"},
                "commit_deadline": {"type": "string"},
                "supersedes": {"type": "string"},
                "tally": {"$ref": "#/definitions/http.TallyResponse"},
                "votes_cast": {"type": "integer"},
                "votes_revealed": {"type": "integer"},
                "phase": {"type": "string"},
                "time_remaining_seconds": {"type": "integer"},
                "winner": {"type": "string"},
                "tied": {"type": "boolean"}
            }
        },
        "http.CommitRequest": {
            "type": "object",
            "properties": {
                "commit_hash": {"type": "string"}
            }
        },
        "http.CommitResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "commit_hash": {"type": "string"},
                "position": {"type": "integer"},
                "status": {"type": "string"},
                "votes_cast": {"type": "integer"}
            }
        },
        "http.RevealRequest": {
            "type": "object",
            "properties": {
                "choice": {"type": "integer"},
                "secret": {"type": "string"}
            }
        },
        "http.RevealResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "commit_hash": {"type": "string"},
                "choice": {"type": "integer"},
                "choice_label": {"type": "string"},
                "tally": {"$ref": "#/definitions/http.TallyResponse"},
                "votes_revealed": {"type": "integer"},
                "votes_cast": {"type": "integer"},
                "completed": {"type": "boolean"}
            }
        },
        "http.CommitmentItem": {
            "type": "object",
            "properties": {
                "commit_hash": {"type": "string"},
                "position": {"type": "integer"},
                "status": {"type": "string"},
                "choice": {"type": "integer"},
                "committed_at": {"type": "string"},
                "revealed_at": {"type": "string"}
            }
        },
        "http.CommitmentsResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "items": {"type": "array", "items": {"$ref": "#/definitions/http.CommitmentItem"}}
            }
        },
        "http.WinnerResponse": {
            "type": "object",
            "properties": {
                "session_id": {"type": "string"},
                "choice": {"type": "integer"},
                "label": {"type": "string"},
                "tally": {"$ref": "#/definitions/http.TallyResponse"}
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
	Title:            "Commit-Reveal Voting API",
	Description:      "Two-choice commit-reveal voting sessions.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
