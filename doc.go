// Package tev provides process-wide, category-tagged trace events.
//
// Application code emits structured events (begin, end, instant, and count)
// tagged with one or more categories, through a [Tracing] facade. Emitting is
// designed to be essentially free when nobody cares: every emit first probes a
// lock-free enablement table, and bails out before doing any other work unless
// at least one of the event's categories is enabled.
//
// A category becomes enabled in one of two ways. Recording means the category
// is captured unconditionally, typically to a buffer or file, via the
// [Recorder] passed to the facade. The usual recorder is an [Agent], which
// owns a background goroutine that batches and flushes captured events without
// ever blocking the emitting code. Listening means at least one in-process
// [Listener] is subscribed to the category through the facade's [Emitter],
// which invokes each matching listener exactly once per event, no matter how
// many of its categories match.
//
// Categories are plain strings and are never pre-declared: they exist from
// the moment a listener subscribes to them or an event names them. The set of
// categories attached to a single emit or subscription is treated as a
// logical OR.
//
// Package tevstore provides per-category ring-buffer retention and a
// JSON-lines writer for captured events, and package tevweb exposes an HTTP
// surface for operator enablement and server-sent-event streaming.
package tev
