// Package schema defines typed argument schemas for catalog tools and the
// validation applied to every argument resolution before it is accepted.
// A resolution that fails validation is discarded whole; partially valid
// arguments never reach a tool.
package schema
