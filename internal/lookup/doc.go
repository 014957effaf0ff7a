// Package lookup contains the shared types and interfaces for the reverse address lookup pipeline.
package lookup
