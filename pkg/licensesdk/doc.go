/*
Package licensesdk is a client for the license credential service.

A Client wraps one service base URL:

	client := licensesdk.NewClient("https://licenses.example.com")

	// Public endpoints used by game clients.
	trial, err := client.GetTrial(ctx, playerID)
	res, err := client.ValidateToken(ctx, licensesdk.ValidateTokenRequest{
		Token:        token,
		RefreshToken: refreshToken,
		PlayerID:     playerID,
	})

	// Operator endpoints need the admin token when the server has one.
	client.AdminToken = os.Getenv("ADMIN_TOKEN")
	created, err := client.CreateLicense(ctx, playerID, key, expiry)

# Negative answers

Most lookups that find nothing are not HTTP errors. The server answers 200
with valid:false (or success:false for trials) and a message, and the SDK
returns those responses as values. Compare Message against the Msg
constants to tell them apart.

Transport failures, authentication failures, rate limiting and malformed
requests are returned as *APIError.

# Request and response types

The request and response structs in this package are the ones the server
decodes and encodes, so field names and JSON tags match the wire format.
*/
package licensesdk
