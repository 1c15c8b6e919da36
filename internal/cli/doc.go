// Package cli implements the nsocmd command-line interface.
//
//	nsocmd [flags] <command>   run an NSO CLI (or shell) command
//	nsocmd batch <plan.yaml>   run a plan of commands in order
//	nsocmd version             print build information
//	nsocmd completion <shell>  generate shell completion
//
// Settings resolve in the order flags, environment (NSO_CNT, NSOCMD_*),
// config file (.nsocmd.yaml), defaults. Each invocation gets a run ID that
// tags log lines and JSON events.
//
// A command that doesn't succeed is followed by the on-fail command, which
// defaults to "show al:alarms" for NSO CLI commands. The process exits 0
// only when the main command succeeded.
package cli
