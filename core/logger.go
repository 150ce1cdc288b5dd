package core

// Logger is any service that can log app events.
// args may contain errors, maps of extras, or the identity of the caller.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}

// Identity is the caller attached to a log entry.
type Identity struct {
	ID   string
	Name string
}
