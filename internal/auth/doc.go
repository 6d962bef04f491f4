// Package auth issues and verifies the bearer tokens that guard the
// HTTP and WebSocket surface.
//
// The bridge has a single API client (typically a wall panel or a home
// automation hub) identified by a configured client id and secret. The
// secret may be stored as an Argon2id PHC string so the configuration file
// never holds it in clear text:
//
//	hash, _ := auth.HashSecret("panel-secret")
//	// security.jwt.client_secret: "$argon2id$v=19$m=65536,t=3,p=1$..."
//
// Access tokens are HS256 JWTs carrying the client id as subject. They are
// validated by signature, issuer and expiry only; there is no refresh flow.
package auth
