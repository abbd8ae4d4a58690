// Package reading holds the reading-session domain logic: resume-point
// tracking, daily activity aggregation, and the read-aloud machinery.
//
// Tracker and Aggregator are used by the application layer behind the
// HTTP API. Sequencer and Sampler are driven directly by an embedding
// document viewer: the viewer owns the speech engine and the render
// surface, so no server endpoint sits in front of them.
package reading
