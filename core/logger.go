package core

// Logger is any service that can log & report app events.
// args may contain errors, maps of extras and at most one user.User (the logged in User).
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	Fatal(msg string, args ...interface{})
}
