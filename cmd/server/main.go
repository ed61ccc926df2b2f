package main

import (
	_ "github.com/eleven-am/live-vision/docs"
	"github.com/eleven-am/live-vision/internal/bootstrap"
)

// @title Live Vision API
// @version 1.0.0
// @description Opens camera sessions, throttles frames to a detection and description backend and serves the resulting overlay

// @BasePath /api/v1

func main() {
	bootstrap.Run()
}
