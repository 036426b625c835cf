// Package testutil contains helper builders used across tests to reduce
// boilerplate when wiring agents, flags and scripted LLM clients. They are
// not intended for production usage.
package testutil
