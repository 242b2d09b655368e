// Package domain contains the core types of the routing core: workflow
// stages, the versioned session state record, classifier decisions,
// argument resolutions, tool calls and the structured event kinds.
//
// The package has no dependencies on adapters or infrastructure; every
// other package imports it.
package domain
