package model

import (
	"strings"

	"telegram-ai-storyteller/internal/domain"
)

// CommandKind enumerates the closed set of bot commands.
type CommandKind string

const (
	CmdHelp         CommandKind = "help"
	CmdListPrompts  CommandKind = "listprompts"
	CmdRefresh      CommandKind = "refresh"
	CmdAddChat      CommandKind = "addchat"
	CmdRemoveChat   CommandKind = "removechat"
	CmdAsk          CommandKind = "ask"
	CmdNewPrompt    CommandKind = "newprompt"
	CmdAddToPrompt  CommandKind = "addtoprompt"
	CmdSavePrompt   CommandKind = "saveprompt"
	CmdLoadPrompt   CommandKind = "loadprompt"
	CmdDeletePrompt CommandKind = "deleteprompt"
)

// Command is one parsed slash-command with its argument (empty when the
// command takes none). Parsing is the only way to construct a valid Command,
// so arity and membership are checked in a single place.
type Command struct {
	Kind CommandKind
	Arg  string
}

type commandDef struct {
	needsArg  bool
	ownerOnly bool
}

var commandDefs = map[CommandKind]commandDef{
	CmdHelp:         {},
	CmdListPrompts:  {},
	CmdRefresh:      {ownerOnly: true},
	CmdAddChat:      {ownerOnly: true},
	CmdRemoveChat:   {ownerOnly: true},
	CmdAsk:          {needsArg: true},
	CmdNewPrompt:    {needsArg: true},
	CmdAddToPrompt:  {needsArg: true},
	CmdSavePrompt:   {needsArg: true},
	CmdLoadPrompt:   {needsArg: true},
	CmdDeletePrompt: {needsArg: true},
}

// IsCommand reports whether a message body should go through the command
// interpreter instead of the dialogue pipeline.
func IsCommand(text string) bool {
	return strings.HasPrefix(strings.TrimSpace(text), "/")
}

// ParseCommand turns raw message text into a Command. The first
// whitespace-delimited token (case-insensitive, leading slash stripped) is
// the command name; the remaining tokens rejoined with single spaces form
// the argument.
func ParseCommand(text string) (Command, error) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		return Command{}, domain.ErrUnknownCommand
	}
	name := strings.ToLower(strings.TrimPrefix(fields[0], "/"))
	kind := CommandKind(name)
	def, ok := commandDefs[kind]
	if !ok {
		return Command{}, domain.ErrUnknownCommand
	}
	arg := strings.Join(fields[1:], " ")
	if def.needsArg && arg == "" {
		return Command{}, domain.ErrMissingArgument
	}
	return Command{Kind: kind, Arg: arg}, nil
}

// OwnerOnly reports whether the command is restricted to the bot owner.
func (c Command) OwnerOnly() bool {
	return commandDefs[c.Kind].ownerOnly
}
