package command

// Status classifies how an invocation ended.
type Status int

const (
	StatusOK Status = iota
	// StatusDenied: the permission check failed.
	StatusDenied
	// StatusUsage: the argument count check failed.
	StatusUsage
	// StatusFailed: the handler ran and reported an error.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusDenied:
		return "denied"
	case StatusUsage:
		return "usage"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Field is a labelled value shown in a reply.
type Field struct {
	Name  string
	Value string
}

// Reply is what a command hands back for presentation.
type Reply struct {
	Command     string
	Status      Status
	Title       string
	Message     string
	Fields      []Field
	Identifiers []string
	Err         error
	// LeaveGuild asks the transport to leave the guild once the reply is sent.
	LeaveGuild bool
}

// OK builds a successful reply.
func OK(title, message string) Reply {
	return Reply{Status: StatusOK, Title: title, Message: message}
}

// Failed builds a reply for an error raised by the handler.
func Failed(title string, err error) Reply {
	return Reply{Status: StatusFailed, Title: title, Message: err.Error(), Err: err}
}
