// Package ui renders engine events for people and for machines.
//
// TextReporter prints the classic banner blocks around command output:
//
//	>>> Executing: docker exec 'ncs-test' bash -lc ...
//	=== 0s elapsed - Failed command, start output =============
//	...
//	=== 0s elapsed - Failed command, end output ===============
//	>>> 0s elapsed - Failed command, retrying after every 5 second sleep...
//	>>> No more output until result changes
//
// JSONReporter writes one JSON object per event, for CI tooling.
//
// Colors come from lipgloss. ConfigureColors picks a color profile from
// the --color mode and whether output is a terminal; DisableColors forces
// plain text.
package ui
