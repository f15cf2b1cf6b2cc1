package config

// Default returns the canonical runtime configuration used when no file is present.
func Default() Config {
	return Config{
		Audio: AudioConfig{
			Input:      "default",
			Fallback:   "default",
			SampleRate: 16000,
			FrameMS:    20,
		},
		VAD: VADConfig{
			Backend:          "energy",
			SpeechThreshold:  0.015,
			SilenceThreshold: 0.008,
		},
		Segment: SegmentConfig{
			MaxSilenceFrames: 3,
			PreRollFrames:    3,
			MaxUtteranceMS:   10000,
		},
		Queues: QueueConfig{
			UtteranceCapacity: 100,
			UtterancePolicy:   "drop_oldest",
			TriggerCapacity:   10,
			TriggerPolicy:     "block",
		},
		Recognizer: RecognizerConfig{
			Backend:       "http",
			Endpoint:      "http://127.0.0.1:8090/recognize",
			GRPCMethod:    "/kombo.recognizer.v1.Recognizer/Recognize",
			Language:      "en",
			TimeoutMS:     2000,
			MinConfidence: 0,
			WordSeparator: "_",
		},
		Macros: MacroConfig{
			Path:      "macros.yaml",
			BeatMS:    17,
			FrameRate: 60,
			MaxDepth:  8,
			Facing:    "left",
			LeftKey:   "left",
			RightKey:  "right",
		},
		Actuator: ActuatorConfig{
			Backend:   "uinput",
			SettleMS:  500,
			TimeoutMS: 200,
		},
		Log:   LogConfig{Level: "info"},
		Cues:  CueConfig{},
		Debug: DebugConfig{},
	}
}
