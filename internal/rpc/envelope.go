package rpc

// Envelope is the single wire message gRPC carries for every daemon
// operation: Op names the operation, Payload is the msgpack-encoded
// operation-specific request or response. Collapsing every C6 operation
// onto one generic RPC method (rather than hand-writing a grpc.MethodDesc
// per operation the way the teacher's internal/cluster/forward.go does for
// its proto-backed services) is licensed directly by spec.md's framing of
// the transport as an abstract request/response channel.
type Envelope struct {
	Op      string
	Status  Status
	Payload []byte
}
