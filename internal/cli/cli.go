package cli

import (
	"errors"
	"fmt"
	"strings"
)

type Command string

const (
	CommandRun     Command = "run"
	CommandReplay  Command = "replay"
	CommandTrigger Command = "trigger"
	CommandStatus  Command = "status"
	CommandStop    Command = "stop"
	CommandMacros  Command = "macros"
	CommandDevices Command = "devices"
	CommandDoctor  Command = "doctor"
	CommandVersion Command = "version"
	CommandHelp    Command = "help"
)

// validCommands maps each command to the name of its required argument.
var validCommands = map[Command]string{
	CommandRun:     "",
	CommandReplay:  "PATH",
	CommandTrigger: "NAME",
	CommandStatus:  "",
	CommandStop:    "",
	CommandMacros:  "",
	CommandDevices: "",
	CommandDoctor:  "",
	CommandVersion: "",
	CommandHelp:    "",
}

type Parsed struct {
	Command    Command
	Arg        string
	ConfigPath string
	Paced      bool
	ShowHelp   bool
}

func Parse(args []string) (Parsed, error) {
	parsed := Parsed{Command: CommandHelp, ShowHelp: true}

	for i := 0; i < len(args); i++ {
		arg := args[i]

		switch arg {
		case "-h", "--help":
			parsed.ShowHelp = true
			parsed.Command = CommandHelp
		case "--version":
			parsed.ShowHelp = false
			parsed.Command = CommandVersion
		case "--paced":
			parsed.Paced = true
		case "--config":
			i++
			if i >= len(args) {
				return Parsed{}, errors.New("--config requires a path")
			}
			parsed.ConfigPath = args[i]
		default:
			if strings.HasPrefix(arg, "-") {
				return Parsed{}, fmt.Errorf("unknown flag: %s", arg)
			}

			cmd := Command(arg)
			argName, ok := validCommands[cmd]
			if !ok {
				return Parsed{}, fmt.Errorf("unknown command: %s", arg)
			}

			parsed.Command = cmd
			parsed.ShowHelp = cmd == CommandHelp
			rest := args[i+1:]
			if argName != "" {
				if len(rest) == 0 || strings.TrimSpace(rest[0]) == "" {
					return Parsed{}, fmt.Errorf("command %q requires %s", arg, argName)
				}
				parsed.Arg = rest[0]
				rest = rest[1:]
			}
			if len(rest) != 0 {
				return Parsed{}, fmt.Errorf("unexpected arguments after command %q", arg)
			}
			if parsed.Paced && cmd != CommandReplay {
				return Parsed{}, errors.New("--paced only applies to replay")
			}
			return parsed, nil
		}
	}

	if parsed.Paced {
		return Parsed{}, errors.New("--paced only applies to replay")
	}
	return parsed, nil
}

func HelpText(binaryName string) string {
	return fmt.Sprintf(`Usage:
  %[1]s [--config PATH] <command> [ARG]

Commands:
  run            Listen on the microphone and play recognized combos
  replay PATH    Run the pipeline over a 16-bit PCM WAV file
  trigger NAME   Queue a combo on the running instance
  status         Print state, facing, and counters of the running instance
  stop           Stop the running instance
  macros         List the command table with expanded tokens
  devices        List available input devices
  doctor         Run configuration and environment checks
  version        Print version information
  help           Show this help

Flags:
  --config PATH   Config file path (default: $XDG_CONFIG_HOME/kombo/config.jsonc)
  --paced         Replay at real time instead of as fast as possible
  -h, --help      Show help
  --version       Show version
`, binaryName)
}
