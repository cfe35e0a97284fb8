// Package debugger drives execution on the target through the device agent.
//
// The agent has no way to report that the target stopped. After a continue
// the controller polls get_registers at a fixed interval; the agent answers
// NO_BREAKPOINT while the target runs and returns the context once it sits
// on a breakpoint:
//
//	Detached --Attach--> Attached --Continue/Step--> Running --poll--> Stopped
//	    ^                                              ^                  |
//	    |                                              +------------------+
//	    +------------------------- Detach -------------------------------+
//
// Step is emulated with a temporary breakpoint at pc+4, which assumes 32-bit
// ARM instructions.
//
// Polling has no upper bound. The context passed to Continue and Step is the
// only way to stop waiting.
package debugger
