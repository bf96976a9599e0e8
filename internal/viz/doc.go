// Package viz provides the live terminal view of an admission-control run.
//
// The view is a Bubble Tea program that acts as the driver's timer source:
// every tick interval it calls [sim.Driver.Tick] and redraws six
// asciigraph charts (R, Ym, E, I_processed, P, Y).
//
// # Key Bindings
//
//	Enter   - Start (Idle), restart (Completed), confirm an edit
//	Space   - Pause/Resume
//	R       - Reset to Idle
//	1-4     - Add Step / RFI / EMI / Drift at the current index
//	Tab     - Cycle parameters (Idle only)
//	Up/Down - Adjust the selected parameter (Idle only)
//	E       - Type a value for the selected parameter (Idle only)
//	T       - Cycle color themes
//	?       - Show help overlay
//	Q       - Quit
package viz
