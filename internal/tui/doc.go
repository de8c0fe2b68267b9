// Package tui renders harness progress as an interactive terminal view.
//
// The view is a Bubble Tea program. Harness events arrive through a
// Reporter that forwards them as messages, and log entries arrive on the
// channel returned by logging.InitForTUI. Quitting the view cancels the
// run; the in-flight test still tears down and the report is still
// written.
package tui
