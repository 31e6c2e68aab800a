// Command practice is a terminal front end for voice interview practice.
// It starts a session against the interview service, joins the audio room,
// streams microphone audio into speech recognition, and narrates questions.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/client"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/session"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/stt"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/synth"
	"github.com/nbdundareddi/InterviewPrep-Bolt/internal/transport"
)

// pcmFrameBytes is one 20ms frame of 16kHz mono 16-bit PCM.
const pcmFrameBytes = 640

// stubFrameSource emits silent audio frames on capture cadence. Real device
// capture needs a platform audio stack this CLI does not ship; the rest of
// the pipeline (publish, tee into recognition) is exercised as-is.
type stubFrameSource struct {
	stop chan struct{}
}

func (s *stubFrameSource) Start(ctx context.Context) (<-chan []byte, error) {
	s.stop = make(chan struct{})
	out := make(chan []byte)
	go func() {
		defer close(out)
		ticker := time.NewTicker(20 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				select {
				case out <- make([]byte, pcmFrameBytes):
				case <-s.stop:
					return
				case <-ctx.Done():
					return
				}
			case <-s.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *stubFrameSource) Stop() error {
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func main() {
	logger := log.New(os.Stderr, "", log.LstdFlags)

	serverURL := getenv("INTERVIEW_SERVER_URL", "http://localhost:8080")

	recognizer := stt.NewDeepgramRecognizer(stt.DeepgramConfig{
		APIKey:   os.Getenv("DEEPGRAM_API_KEY"),
		Language: getenv("INTERVIEW_LANGUAGE", "en-US"),
	}, logger)

	var engine synth.Engine
	if el := synth.NewElevenLabsEngine(synth.ElevenLabsConfig{
		APIKey: os.Getenv("ELEVENLABS_API_KEY"),
		Sink:   synth.DiscardSink{},
	}, logger); el != nil {
		engine = el
	}
	speaker := synth.NewSpeaker(engine, logger)

	// Published microphone frames are teed into the recognizer.
	room := transport.NewLiveKitRoom(&stubFrameSource{}, func(frame []byte) {
		_ = recognizer.Feed(context.Background(), frame)
	}, logger)

	coord := session.NewCoordinator(session.Config{
		Service:   client.New(serverURL, logger),
		Transport: room,
		Input:     recognizer,
		Output:    speaker,
		Language:  getenv("INTERVIEW_LANGUAGE", "en-US"),
		Logger:    logger,
	})
	defer coord.Close()

	fmt.Println("interview practice (commands: start <role> | mic | submit | pause | resume | status | end | quit)")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		cmd, arg, _ := strings.Cut(line, " ")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		switch cmd {
		case "start":
			if arg == "" {
				fmt.Println("usage: start <role>")
				break
			}
			if err := coord.Start(ctx, session.StartConfig{Role: arg}); err != nil {
				fmt.Printf("start failed: %v\n", err)
				break
			}
			printStatus(coord)
		case "mic":
			if err := coord.ToggleMicrophone(ctx); err != nil {
				fmt.Printf("microphone: %v\n", err)
			}
		case "submit":
			if err := coord.SubmitResponse(ctx); err != nil {
				fmt.Printf("submit failed (transcript kept): %v\n", err)
				break
			}
			printStatus(coord)
		case "pause":
			if err := coord.Pause(ctx); err != nil {
				fmt.Printf("pause: %v\n", err)
			}
		case "resume":
			if err := coord.Resume(ctx); err != nil {
				fmt.Printf("resume: %v\n", err)
			}
		case "status":
			printStatus(coord)
		case "end":
			if err := coord.End(ctx); err != nil {
				fmt.Printf("end: %v\n", err)
			}
			printStatus(coord)
		case "quit", "exit":
			cancel()
			return
		default:
			fmt.Printf("unknown command %q\n", cmd)
		}
		cancel()

		if coord.Snapshot().State == session.StateEnded {
			fmt.Println("session ended")
			return
		}
	}
}

func printStatus(coord *session.Coordinator) {
	snap := coord.Snapshot()
	fmt.Printf("state=%s conn=%s elapsed=%s mic=%v speaking=%v\n",
		snap.State, snap.ConnectionStatus, snap.Elapsed.Round(time.Second), snap.MicActive, snap.Speaking)
	if snap.CurrentQuestion != "" {
		fmt.Printf("question %d/%d: %s\n", snap.Answered+1, snap.Total, snap.CurrentQuestion)
	}
	if snap.Transcript != "" {
		fmt.Printf("transcript: %s\n", snap.Transcript)
	}
	if snap.ErrMsg != "" {
		fmt.Printf("error: %s\n", snap.ErrMsg)
	}
}
