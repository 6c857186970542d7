package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/e-dream-ai/gpu-container-wan22/executor"
	"github.com/e-dream-ai/gpu-container-wan22/worker"
)

// Manual smoke run against a locally installed Wan2.2 runtime. Needs a
// GPU box with /opt/wan22 and the TI2V-5B weights in place.
func main() {
	generator, err := executor.NewExecGenerator(executor.Config{})
	if err != nil {
		fmt.Printf("Error creating generator: %v\n", err)
		return
	}

	w := worker.New(generator, nil)
	frames, steps := 24, 4
	result, err := w.Process(context.Background(), worker.GenerationRequest{
		Prompt:    "A red fox running through a snowy forest at dawn",
		NumFrames: &frames,
		Steps:     &steps,
	})
	if err != nil {
		fmt.Printf("Error running generation: %v\n", err)
		return
	}

	out, _ := json.MarshalIndent(result, "", "  ")
	fmt.Println(string(out))
}
