// Package pipeline runs a scrape as a sequence of steps.
//
// A scrape is: list the target's backers, resolve every backer's profile,
// write the snapshot, aggregate, and store the run in the history database.
// Each stage is a Step that reads what earlier steps left in the model.Run
// and adds its own output. Rerunning aggregation on a saved snapshot is the
// same pipeline with the first three steps replaced by LoadSnapshotStep.
package pipeline
