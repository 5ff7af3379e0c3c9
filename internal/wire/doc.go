// Package wire defines the HTTP/JSON contract shared by the coordinator and
// worker processes: the node registration payload, the job submission and
// status shapes, and the artifact envelope returned by result retrieval.
//
// Everything in this package is a pure data shape plus the small HTTP helper
// functions both sides use to speak JSON over net/http. Nothing here holds
// state; state lives in internal/coordinator and internal/worker.
package wire
