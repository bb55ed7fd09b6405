package playback

import "github.com/rendis/archflow/pkg/schema"

// CommandName identifies an external playback command.
type CommandName string

const (
	CmdPlay        CommandName = "play"
	CmdPause       CommandName = "pause"
	CmdToggle      CommandName = "toggle"
	CmdStepForward CommandName = "step_forward"
	CmdStepBack    CommandName = "step_back"
	CmdGoTo        CommandName = "goto"
	CmdAdvance     CommandName = "advance"
	CmdReset       CommandName = "reset"
	CmdSpeed       CommandName = "speed"
)

// Command is a playback command as received from a remote surface.
type Command struct {
	Name  CommandName `json:"command"`
	Step  int         `json:"step,omitempty"`
	Speed float64     `json:"speed,omitempty"`
}

// ValidCommandStates lists the states from which each command has an effect.
// A command issued from any other state is accepted and ignored.
var ValidCommandStates = map[CommandName][]schema.PlaybackStatus{
	CmdPlay:        {schema.PlaybackIdle, schema.PlaybackStepped, schema.PlaybackFinished},
	CmdPause:       {schema.PlaybackPlaying},
	CmdToggle:      {schema.PlaybackStepped, schema.PlaybackPlaying, schema.PlaybackFinished},
	CmdStepForward: {schema.PlaybackIdle, schema.PlaybackStepped, schema.PlaybackPlaying},
	CmdStepBack:    {schema.PlaybackStepped, schema.PlaybackPlaying, schema.PlaybackFinished},
	CmdGoTo:        {schema.PlaybackIdle, schema.PlaybackStepped, schema.PlaybackPlaying, schema.PlaybackFinished},
	CmdAdvance:     {schema.PlaybackIdle, schema.PlaybackStepped, schema.PlaybackPlaying, schema.PlaybackFinished},
	CmdReset:       {schema.PlaybackIdle, schema.PlaybackStepped, schema.PlaybackPlaying, schema.PlaybackFinished},
	CmdSpeed:       {schema.PlaybackIdle, schema.PlaybackStepped, schema.PlaybackPlaying, schema.PlaybackFinished},
}

// Allowed reports whether cmd has an effect in status.
func Allowed(cmd CommandName, status schema.PlaybackStatus) bool {
	for _, s := range ValidCommandStates[cmd] {
		if s == status {
			return true
		}
	}
	return false
}

// Apply executes a command. Unknown commands fail with VALIDATION_ERROR;
// commands that have no effect in the current state are ignored.
func (c *Controller) Apply(cmd Command) error {
	if _, ok := ValidCommandStates[cmd.Name]; !ok {
		return schema.NewErrorf(schema.ErrCodeValidation, "unknown playback command %q", cmd.Name)
	}
	if c.Closed() {
		return schema.NewError(schema.ErrCodeSessionClosed, "playback controller is closed")
	}
	if !Allowed(cmd.Name, c.State()) {
		c.logger.Debug("playback command ignored", "command", cmd.Name, "status", c.State())
		return nil
	}

	switch cmd.Name {
	case CmdPlay:
		return c.Play()
	case CmdPause:
		return c.Pause()
	case CmdToggle:
		return c.Toggle()
	case CmdStepForward:
		return c.StepForward()
	case CmdStepBack:
		return c.StepBack()
	case CmdGoTo:
		return c.GoToStep(cmd.Step)
	case CmdAdvance:
		return c.AdvanceStep()
	case CmdReset:
		return c.Reset()
	default:
		return c.SetSpeed(cmd.Speed)
	}
}
