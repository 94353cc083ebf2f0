// Package domain contains the core types shared across the engine:
// commands, validation results, element references, and the sentinel
// errors adapters branch on.
//
// The package has no dependencies on other datum packages so that every
// layer (framework, gateway, bridge, adapters) can speak the same
// vocabulary without import cycles.
package domain
