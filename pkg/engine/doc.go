// Package engine executes browser workflow scenarios and produces a verdict for each.
//
// # Overview
//
// A Scenario is an ordered list of Steps (navigate, wait, click, fill, assert)
// followed by one expected Outcome. Engine.Run executes a scenario once:
//
//	session := AcquireSession(...)   // browser + isolated context + first page
//	defer session.Release()          // on every exit path, panics included
//	for each step:
//	    settle the current page      // best effort, never fails
//	    resolve target, act          // bounded by the step timeout
//	    on ErrLocatorNotFound or ErrActionTimeout: run the step's alternate once
//	evaluate the expected outcome    // Pass, Fail(reason) or Error(cause)
//
// # Verdicts
//
// Pass means the expected outcome was observed. Fail means the workflow ran but
// the application did not show the expected outcome in time. Error means the
// engine could not execute the workflow: session setup failed, a step failed
// with no working alternate, the scenario budget ran out, or a fault was recovered.
//
// # Timing
//
// Every wait is bounded. Step timeouts default to Config values and are clamped
// to the scenario budget, which is enforced with a context deadline. Before each
// action the engine pauses for Config.SettleDelay to let in-flight UI transitions
// finish; this is a tuning knob, not a correctness requirement, and may be zero.
//
// # Current page
//
// The current page is the most recently opened page of the session's context.
// It is re-read before each step and after every navigate and click, so popups and
// new tabs become the interaction target as soon as they open. Frames and element
// handles are never cached across steps.
package engine
