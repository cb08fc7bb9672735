package engine

import "github.com/mezonai/ockham/types"

// handleTimeout is the LocalTimeout handler (spec.md §4.4): if the fired
// view is still current, cast a dummy Notarize vote unless this node has
// already cast one for the view, then let the pacemaker re-arm.
func (e *Engine) handleTimeout(view types.View) {
	if !e.pm.OnTimeout(view) {
		return // stale: the pacemaker already advanced past this view
	}
	e.timedOut[view] = true

	// A node that already notarized a real block for this view still
	// joins the dummy certificate if that real vote never reached
	// quorum (e.g. an equivocating leader split the vote); only a vote
	// already cast for DummyHash itself is skipped as redundant.
	if hash, voted := e.votedNotarize[view]; !voted || !hash.IsDummy() {
		e.castVote(view, types.DummyHash, types.Notarize)
	}
}
