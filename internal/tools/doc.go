// Package tools runs host commands for interface setup and lifecycle hooks.
package tools
