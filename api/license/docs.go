// Package license holds the OpenAPI document served under /swagger/.
//
// It mirrors the annotations in internal/license/http. Regenerate with:
//
//	swag init -g router.go -d internal/license/http,pkg/licensesdk,pkg/httpx -o api/license --outputTypes go
package license

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "AussieBroadWAN Team",
            "url": "https://github.com/aussiebroadwan/licensor"
        },
        "license": {
            "name": "MIT",
            "url": "https://opensource.org/licenses/MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/create-license": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Licenses"
                ],
                "summary": "Create License",
                "description": "Creates a license for a player and issues its token and refresh token.",
                "parameters": [
                    {
                        "description": "request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/licensesdk.CreateLicenseRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.CreateLicenseResponse"
                        }
                    },
                    "400": {
                        "description": "invalid request",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "rate limit exceeded",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "internal error",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "missing or invalid admin token",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "license already exists for the pair",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/validate-license": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Licenses"
                ],
                "summary": "Validate License",
                "description": "Returns the credentials currently stored for a license key and player.",
                "parameters": [
                    {
                        "description": "request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/licensesdk.ValidateLicenseRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.ValidateLicenseResponse"
                        }
                    },
                    "400": {
                        "description": "invalid request",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "rate limit exceeded",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "internal error",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/validate-token": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Licenses"
                ],
                "summary": "Validate Token",
                "description": "Verifies a license token, re-issuing it through the refresh token when it no longer verifies.",
                "parameters": [
                    {
                        "description": "request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/licensesdk.ValidateTokenRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.ValidateTokenResponse"
                        }
                    },
                    "400": {
                        "description": "invalid request",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "rate limit exceeded",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "internal error",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/refresh-token": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Licenses"
                ],
                "summary": "Refresh Token",
                "description": "Re-issues the token of the license holding the refresh token.",
                "parameters": [
                    {
                        "description": "request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/licensesdk.RefreshTokenRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.RefreshTokenResponse"
                        }
                    },
                    "400": {
                        "description": "invalid request",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "rate limit exceeded",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "internal error",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/update-license": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Licenses"
                ],
                "summary": "Update License",
                "description": "Changes the key and/or expiration date of a license and rotates its credentials.",
                "parameters": [
                    {
                        "description": "request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/licensesdk.UpdateLicenseRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.UpdateLicenseResponse"
                        }
                    },
                    "400": {
                        "description": "invalid request",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "rate limit exceeded",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "internal error",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "missing or invalid admin token",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "409": {
                        "description": "new key already in use by the player",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/delete-license": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Licenses"
                ],
                "summary": "Delete License",
                "description": "Removes the license for a key and player.",
                "parameters": [
                    {
                        "description": "request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/licensesdk.DeleteLicenseRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.DeleteLicenseResponse"
                        }
                    },
                    "400": {
                        "description": "invalid request",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "rate limit exceeded",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "internal error",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "401": {
                        "description": "missing or invalid admin token",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    }
                },
                "security": [
                    {
                        "BearerAuth": []
                    }
                ]
            }
        },
        "/get-trial": {
            "post": {
                "consumes": [
                    "application/json"
                ],
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Trials"
                ],
                "summary": "Get Trial License",
                "description": "Issues a trial license for a player, at most one per player.",
                "parameters": [
                    {
                        "description": "request body",
                        "name": "request",
                        "in": "body",
                        "required": true,
                        "schema": {
                            "$ref": "#/definitions/licensesdk.TrialRequest"
                        }
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.TrialResponse"
                        }
                    },
                    "400": {
                        "description": "missing playerId",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.TrialResponse"
                        }
                    },
                    "429": {
                        "description": "rate limit exceeded",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "internal error",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/list-licenses": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Licenses"
                ],
                "summary": "List Licenses",
                "description": "Dumps every stored license including live tokens and refresh tokens.",
                "security": [
                    {
                        "BearerAuth": []
                    }
                ],
                "responses": {
                    "200": {
                        "description": "OK",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.ListLicensesResponse"
                        }
                    },
                    "401": {
                        "description": "missing or invalid admin token",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "429": {
                        "description": "rate limit exceeded",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    },
                    "500": {
                        "description": "internal error",
                        "schema": {
                            "$ref": "#/definitions/httpx.ErrorResponse"
                        }
                    }
                }
            }
        },
        "/livez": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Health"
                ],
                "summary": "Health Check Endpoint",
                "responses": {
                    "200": {
                        "description": "status, uptime, version",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.HealthResponse"
                        }
                    }
                }
            }
        },
        "/readyz": {
            "get": {
                "produces": [
                    "application/json"
                ],
                "tags": [
                    "Health"
                ],
                "summary": "Readiness Check Endpoint",
                "responses": {
                    "200": {
                        "description": "ready",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.HealthResponse"
                        }
                    },
                    "503": {
                        "description": "not ready",
                        "schema": {
                            "$ref": "#/definitions/licensesdk.HealthResponse"
                        }
                    }
                }
            }
        }
    },
    "definitions": {
        "httpx.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {
                    "type": "string"
                },
                "error_description": {
                    "type": "string"
                }
            }
        },
        "licensesdk.CreateLicenseRequest": {
            "type": "object",
            "properties": {
                "playerId": {
                    "type": "string"
                },
                "licenseKey": {
                    "type": "string"
                },
                "expirationDate": {
                    "type": "string"
                }
            },
            "required": [
                "expirationDate",
                "licenseKey",
                "playerId"
            ]
        },
        "licensesdk.CreateLicenseResponse": {
            "type": "object",
            "properties": {
                "message": {
                    "type": "string"
                },
                "token": {
                    "type": "string"
                },
                "refreshToken": {
                    "type": "string"
                },
                "expirationDate": {
                    "type": "string"
                }
            }
        },
        "licensesdk.ValidateLicenseRequest": {
            "type": "object",
            "properties": {
                "licenseKey": {
                    "type": "string"
                },
                "playerId": {
                    "type": "string"
                }
            },
            "required": [
                "licenseKey",
                "playerId"
            ]
        },
        "licensesdk.ValidateLicenseResponse": {
            "type": "object",
            "properties": {
                "valid": {
                    "type": "boolean"
                },
                "token": {
                    "type": "string"
                },
                "refreshToken": {
                    "type": "string"
                },
                "expirationDate": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                }
            }
        },
        "licensesdk.ValidateTokenRequest": {
            "type": "object",
            "properties": {
                "token": {
                    "type": "string"
                },
                "refreshToken": {
                    "type": "string"
                },
                "playerId": {
                    "type": "string"
                }
            },
            "required": [
                "playerId"
            ]
        },
        "licensesdk.ValidateTokenResponse": {
            "type": "object",
            "properties": {
                "valid": {
                    "type": "boolean"
                },
                "expired": {
                    "type": "boolean"
                },
                "newToken": {
                    "type": "string"
                },
                "playerId": {
                    "type": "string"
                },
                "supportDevs": {
                    "type": "string"
                },
                "announcement": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                }
            }
        },
        "licensesdk.RefreshTokenRequest": {
            "type": "object",
            "properties": {
                "refreshToken": {
                    "type": "string"
                }
            }
        },
        "licensesdk.RefreshTokenResponse": {
            "type": "object",
            "properties": {
                "valid": {
                    "type": "boolean"
                },
                "token": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                }
            }
        },
        "licensesdk.UpdateLicenseRequest": {
            "type": "object",
            "properties": {
                "playerId": {
                    "type": "string"
                },
                "licenseKey": {
                    "type": "string"
                },
                "newLicenseKey": {
                    "type": "string"
                },
                "newExpirationDate": {
                    "type": "string"
                }
            },
            "required": [
                "licenseKey",
                "playerId"
            ]
        },
        "licensesdk.UpdateLicenseResponse": {
            "type": "object",
            "properties": {
                "message": {
                    "type": "string"
                },
                "newToken": {
                    "type": "string"
                },
                "newRefreshToken": {
                    "type": "string"
                },
                "newExpirationDate": {
                    "type": "string"
                }
            }
        },
        "licensesdk.DeleteLicenseRequest": {
            "type": "object",
            "properties": {
                "licenseKey": {
                    "type": "string"
                },
                "playerId": {
                    "type": "string"
                }
            },
            "required": [
                "licenseKey",
                "playerId"
            ]
        },
        "licensesdk.DeleteLicenseResponse": {
            "type": "object",
            "properties": {
                "message": {
                    "type": "string"
                }
            }
        },
        "licensesdk.TrialRequest": {
            "type": "object",
            "properties": {
                "playerId": {
                    "type": "string"
                }
            }
        },
        "licensesdk.TrialResponse": {
            "type": "object",
            "properties": {
                "success": {
                    "type": "boolean"
                },
                "trialKey": {
                    "type": "string"
                },
                "token": {
                    "type": "string"
                },
                "expirationDate": {
                    "type": "string"
                },
                "message": {
                    "type": "string"
                }
            }
        },
        "licensesdk.License": {
            "type": "object",
            "properties": {
                "id": {
                    "type": "string"
                },
                "licenseKey": {
                    "type": "string"
                },
                "playerId": {
                    "type": "string"
                },
                "token": {
                    "type": "string"
                },
                "refreshToken": {
                    "type": "string"
                },
                "expirationDate": {
                    "type": "string"
                },
                "createdAt": {
                    "type": "string"
                },
                "updatedAt": {
                    "type": "string"
                }
            }
        },
        "licensesdk.ListLicensesResponse": {
            "type": "object",
            "properties": {
                "count": {
                    "type": "integer"
                },
                "licenses": {
                    "type": "array",
                    "items": {
                        "$ref": "#/definitions/licensesdk.License"
                    }
                }
            }
        },
        "licensesdk.HealthChecks": {
            "type": "object",
            "properties": {
                "store": {
                    "type": "string"
                },
                "signer": {
                    "type": "string"
                }
            }
        },
        "licensesdk.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {
                    "type": "string"
                },
                "uptime": {
                    "type": "string"
                },
                "version": {
                    "type": "string"
                },
                "checks": {
                    "$ref": "#/definitions/licensesdk.HealthChecks"
                }
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Operator token. Format: \"Bearer {ADMIN_TOKEN}\".",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "0.1.0",
	Host:             "localhost:3000",
	BasePath:         "/",
	Schemes:          []string{"http", "https"},
	Title:            "Licensor License Service API",
	Description:      "Issues and validates license credentials for game clients.\n\nTokens are HS256 JWTs carrying licenseKey and playerId, expiring at the license expiration date.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
