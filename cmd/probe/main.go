package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/eleven-am/live-vision/internal/camera"
	"github.com/eleven-am/live-vision/internal/overlay"
	"github.com/eleven-am/live-vision/internal/vision"
)

func main() {
	image := flag.String("image", os.Getenv("STILL_IMAGE_PATH"), "image to analyze")
	out := flag.String("out", "overlay.png", "where to write the overlay")
	model := flag.String("model", os.Getenv("VISION_MODEL"), "model id")
	preload := flag.Bool("preload", true, "warm the model first")
	flag.Parse()

	baseURL := os.Getenv("VISION_API_BASE")
	if baseURL == "" {
		baseURL = "http://localhost:8080/api/v1"
	}

	ctx := context.Background()
	client := vision.NewClient(vision.Config{BaseURL: baseURL, Model: *model}, nil)

	if *preload {
		resp, err := client.Preload(ctx, *model)
		if err != nil {
			log.Println("preload:", err)
		} else {
			fmt.Println("Preload:", resp.Status, resp.Message)
		}
	}

	stream, err := camera.NewStillSource(*image, nil).Acquire(ctx, camera.DefaultConstraints())
	if err != nil {
		log.Fatal("acquire:", err)
	}
	defer stream.Stop()

	frame, err := vision.NewCapturer(vision.CapturerConfig{}).Capture(stream, "probe")
	if err != nil {
		log.Fatal("capture:", err)
	}

	start := time.Now()
	res, err := client.Analyze(ctx, vision.AnalysisRequest{Frame: frame, SubmittedAt: start})
	if err != nil {
		log.Fatal("analyze:", err)
	}

	fmt.Println("Description:", res.Description)
	fmt.Println("Detections:", res.DetectionCount)
	for _, d := range res.Detections {
		fmt.Println("  ", overlay.Label(d))
	}
	fmt.Printf("Latency: yolo %.0fms llava %.0fms total %.0fms (client %s)\n",
		res.Latency.YOLO, res.Latency.LLaVA, res.Latency.Total, time.Since(start).Round(time.Millisecond))

	videoW, videoH := stream.Dimensions()
	r := overlay.NewRenderer()
	if _, err := r.Render(videoW, videoH, res.FrameWidth, res.FrameHeight, res.Detections); err != nil {
		log.Fatal("render:", err)
	}
	data, err := r.PNG()
	if err != nil {
		log.Fatal("encode:", err)
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatal("write:", err)
	}
	fmt.Println("Overlay:", *out)
}
