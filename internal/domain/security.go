package domain

type SecurityAction string

const (
	ActionAllow SecurityAction = "allow"
	ActionBlock SecurityAction = "block"
)

// CommandPolicy decides whether a local command may run.
type CommandPolicy interface {
	Check(command string) (SecurityAction, string)
}
