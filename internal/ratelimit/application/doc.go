// Package application contains the use cases (application rules) for rate
// limiting and concurrency control.
//
// It depends only on the domain package and knows nothing about net/http.
// GatewayService.AllowRequest checks global, per-IP, and per-endpoint
// scopes in order and returns a single Decision.
package application
