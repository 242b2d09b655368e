// Package ports defines the driven-side interfaces of the routing core:
// state and memory persistence, the model client, tool invocation, data
// access and the observability event sink. Adapters under pkg/adapters
// implement them.
package ports
