// Package sniper watches a limited reward on a backed project and switches
// the pledge to it as soon as a slot frees up.
//
// The Sniper is a small state machine driven by the page the site serves for
// the pledge management URL:
//
//	LoggedOut       login page served; log in again
//	AwaitingTarget  reward is sold out; wait one interval and poll again
//	Armed           reward is available; submit the pledge change
//	Done            reward is the selected one; stop
//
// Before polling starts the reward is verified once: it must exist, its
// description must start with the expected text, and the current pledge must
// cover the reward minimum.
package sniper
