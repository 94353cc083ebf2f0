// Package ports defines the contracts between the engine core and the
// host application it plugs into. The host document is an opaque
// capability surface: the engine never assumes anything about its
// rendering, persistence, or UI, only the narrow interface here.
package ports
