// Package adapter contains implementations of interfaces defined in app.
// The auth backend client and the Redis security stores live here.
package adapter

import "go.opentelemetry.io/otel"

var tracer = otel.Tracer("edge/adapter")
