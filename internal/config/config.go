package config

import "sync"

// RenderSettings holds the settings the viewer changes while running.
type RenderSettings struct {
	mu           sync.RWMutex
	renderScale  float32 // fraction of the window traced per axis
	fpsLimit     int     // 0 = unlimited
	blendEnabled bool
	showLOD      bool
}

var globalRenderSettings = &RenderSettings{
	renderScale:  0.5,
	fpsLimit:     0,
	blendEnabled: true,
}

// GetRenderScale returns the traced resolution as a fraction of the window
func GetRenderScale() float32 {
	globalRenderSettings.mu.RLock()
	defer globalRenderSettings.mu.RUnlock()
	return globalRenderSettings.renderScale
}

// SetRenderScale sets the traced resolution fraction
func SetRenderScale(scale float32) {
	globalRenderSettings.mu.Lock()
	defer globalRenderSettings.mu.Unlock()

	// Clamp to reasonable values
	if scale < 0.125 {
		scale = 0.125
	}
	if scale > 1 {
		scale = 1
	}

	globalRenderSettings.renderScale = scale
}

// GetFPSLimit returns the frame cap, 0 when unlimited
func GetFPSLimit() int {
	globalRenderSettings.mu.RLock()
	defer globalRenderSettings.mu.RUnlock()
	return globalRenderSettings.fpsLimit
}

// SetFPSLimit sets the frame cap. Values below 30 other than 0 are raised to 30.
func SetFPSLimit(limit int) {
	globalRenderSettings.mu.Lock()
	defer globalRenderSettings.mu.Unlock()

	if limit < 0 {
		limit = 0
	}
	if limit > 0 && limit < 30 {
		limit = 30
	}
	if limit > 1000 {
		limit = 1000
	}

	globalRenderSettings.fpsLimit = limit
}

// GetBlendEnabled reports whether LOD transitions are dithered
func GetBlendEnabled() bool {
	globalRenderSettings.mu.RLock()
	defer globalRenderSettings.mu.RUnlock()
	return globalRenderSettings.blendEnabled
}

// SetBlendEnabled toggles LOD transition dithering
func SetBlendEnabled(enabled bool) {
	globalRenderSettings.mu.Lock()
	defer globalRenderSettings.mu.Unlock()
	globalRenderSettings.blendEnabled = enabled
}

// GetShowLOD reports whether hits are tinted by level
func GetShowLOD() bool {
	globalRenderSettings.mu.RLock()
	defer globalRenderSettings.mu.RUnlock()
	return globalRenderSettings.showLOD
}

// SetShowLOD toggles the level tint
func SetShowLOD(enabled bool) {
	globalRenderSettings.mu.Lock()
	defer globalRenderSettings.mu.Unlock()
	globalRenderSettings.showLOD = enabled
}
