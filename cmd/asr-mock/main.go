// Command asr-mock is a stand-in transcription endpoint for local
// development. It accepts the service's multipart WAV uploads and returns a
// canned segment whose duration matches the submitted audio, so the full
// pipeline can be exercised without a speech model.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"
)

type segment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type result struct {
	Segments            []segment `json:"segments"`
	Language            string    `json:"language"`
	LanguageProbability float64   `json:"language_probability"`
	Duration            float64   `json:"duration"`
}

func main() {
	addr := flag.String("addr", "127.0.0.1:8090", "Listen address")
	text := flag.String("text", "This is a mock transcription.", "Text returned for every request")
	delay := flag.Duration("delay", 200*time.Millisecond, "Artificial processing delay")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	http.HandleFunc("/transcribe", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, fmt.Sprintf("missing audio file: %v", err), http.StatusBadRequest)
			return
		}
		defer file.Close()

		size, err := io.Copy(io.Discard, file)
		if err != nil {
			http.Error(w, fmt.Sprintf("failed to read audio: %v", err), http.StatusInternalServerError)
			return
		}

		// 16-bit mono at 16kHz, minus the 44-byte WAV header
		duration := float64(size-44) / (16000 * 2)
		if duration < 0 {
			duration = 0
		}

		time.Sleep(*delay)

		resp := result{
			Segments: []segment{
				{Text: *text, Start: 0, End: duration},
			},
			Language:            r.FormValue("language"),
			LanguageProbability: 0.99,
			Duration:            duration,
		}

		logger.Info("Transcription request served",
			"bytes", size,
			"duration", duration,
			"vad_filter", r.FormValue("vad_filter"),
			"request_id", r.FormValue("request_id"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	})

	logger.Info("Mock transcription server listening", "addr", *addr)
	if err := http.ListenAndServe(*addr, nil); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
