package rpc

// Status is the outcome code every daemon operation returns alongside its
// payload, per spec.md §7.
type Status int

const (
	OK Status = iota
	NotFound
	AlreadyExists
	StorageFault
	TransportFault
	NotSupported
	InvalidArgument
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case NotFound:
		return "NotFound"
	case AlreadyExists:
		return "AlreadyExists"
	case StorageFault:
		return "StorageFault"
	case TransportFault:
		return "TransportFault"
	case NotSupported:
		return "NotSupported"
	case InvalidArgument:
		return "InvalidArgument"
	default:
		return "Unknown"
	}
}
