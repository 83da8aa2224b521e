package domain

import "strings"

// GlobalCommand short-circuits normal routing. Commands are recognized at
// every turn regardless of phase, before any node is selected.
type GlobalCommand string

const (
	CommandRestart GlobalCommand = "restart"
	CommandGoBack  GlobalCommand = "go_back"
	CommandHelp    GlobalCommand = "help"
	CommandDebug   GlobalCommand = "debug"
)

// ParseGlobalCommand recognizes the command vocabulary in a user message.
// "go back" with a space is accepted as the canonical spoken form.
func ParseGlobalCommand(input string) (GlobalCommand, bool) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "restart":
		return CommandRestart, true
	case "go_back", "go back":
		return CommandGoBack, true
	case "help":
		return CommandHelp, true
	case "debug":
		return CommandDebug, true
	}
	return "", false
}
