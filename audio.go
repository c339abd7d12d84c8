package main

import (
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/generators"
	"github.com/gopxl/beep/speaker"
)

const audioSampleRate = beep.SampleRate(44100)

// audioCue plays short tones keyed to simulation state. Entirely
// optional; a failed speaker init just disables it.
type audioCue struct {
	enabled bool
	muted   bool
}

func initAudio() *audioCue {
	a := &audioCue{}
	if err := speaker.Init(audioSampleRate, audioSampleRate.N(time.Second/10)); err == nil {
		a.enabled = true
	}
	return a
}

// toggle flips the mute state and returns the new audible state.
func (a *audioCue) toggle() bool {
	a.muted = !a.muted
	return a.enabled && !a.muted
}

// pulse emits a brief sine tone whose pitch tracks the mean flock speed.
func (a *audioCue) pulse(meanSpeed, maxSpeed float32) {
	if !a.enabled || a.muted {
		return
	}

	freq := 220 + 660*float64(meanSpeed/maxSpeed)
	sine, err := generators.SineTone(audioSampleRate, freq)
	if err != nil {
		return
	}
	speaker.Play(beep.Take(audioSampleRate.N(80*time.Millisecond), sine))
}

func (a *audioCue) close() {
	if a.enabled {
		speaker.Close()
	}
}
