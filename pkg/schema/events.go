package schema

// Event type constants for the playback event log and live frames.
const (
	EventPlaybackStarted  = "playback_started"
	EventPlaybackPaused   = "playback_paused"
	EventPlaybackStep     = "playback_step"
	EventPlaybackFinished = "playback_finished"
	EventPlaybackReset    = "playback_reset"
	EventScenarioChanged  = "scenario_changed"
	EventModeChanged      = "mode_changed"
	EventSpeedChanged     = "speed_changed"
	EventFrame            = "frame"
	EventSessionClosed    = "session_closed"
)

// PlaybackStatus is the derived state of a playback controller.
type PlaybackStatus string

const (
	PlaybackIdle     PlaybackStatus = "idle"
	PlaybackStepped  PlaybackStatus = "stepped"
	PlaybackPlaying  PlaybackStatus = "playing"
	PlaybackFinished PlaybackStatus = "finished"
)

// AnimationMode selects how the flow animator schedules particles.
type AnimationMode string

const (
	ModeAmbient AnimationMode = "ambient"
	ModeGuided  AnimationMode = "guided"
	ModeStatic  AnimationMode = "static"
)
