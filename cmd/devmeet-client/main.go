// Command devmeet-client is a small test client that streams an audio
// file to the backend over WebSocket and prints the transcriptions it
// receives back. Useful for exercising the full pipeline without a
// desktop frontend.
package main

import (
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/patdiletx/DevMeet/internal/protocol"
)

func main() {
	var (
		serverURL = flag.String("server", "ws://localhost:3001/ws", "WebSocket URL of the backend")
		audioPath = flag.String("audio", "", "Path to the audio file to stream")
		title     = flag.String("title", "Test meeting", "Meeting title")
		chunkSize = flag.Int("chunk-size", 64*1024, "Bytes per audio chunk")
		interval  = flag.Duration("interval", 2*time.Second, "Delay between chunks")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	if *audioPath == "" {
		log.Fatal().Msg("-audio is required")
	}
	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *audioPath).Msg("Failed to read audio file")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatal().Err(err).Str("url", *serverURL).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("url", *serverURL).Msg("Connected")

	sessionID := make(chan string, 1)
	done := make(chan struct{})

	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				log.Info().Err(err).Msg("Connection closed")
				return
			}
			env, err := protocol.ParseEnvelope(raw)
			if err != nil {
				log.Warn().Err(err).Msg("Unparseable message from server")
				continue
			}
			switch env.Type {
			case protocol.TypeMeetingStarted:
				var msg protocol.MeetingStarted
				if err := json.Unmarshal(env.Data, &msg); err != nil {
					log.Error().Err(err).Msg("Malformed meeting_started")
					return
				}
				log.Info().Str("sessionId", msg.SessionID).Msg("Meeting started")
				sessionID <- msg.SessionID
			case protocol.TypeTranscription:
				var msg protocol.Transcription
				if err := json.Unmarshal(env.Data, &msg); err != nil {
					continue
				}
				speaker := msg.Speaker
				if speaker == "" {
					speaker = "?"
				}
				fmt.Printf("[%s] %s: %s (confidence %.2f)\n", msg.Timestamp, speaker, msg.Content, msg.Confidence)
			case protocol.TypeMeetingEnded:
				var msg protocol.MeetingEnded
				_ = json.Unmarshal(env.Data, &msg)
				log.Info().Int64("durationSeconds", msg.DurationSeconds).Msg("Meeting ended")
				return
			case protocol.TypeError:
				log.Warn().RawJSON("error", env.Data).Msg("Server error")
			}
		}
	}()

	send := func(msgType string, payload interface{}) {
		raw, err := protocol.Marshal(msgType, payload)
		if err != nil {
			log.Fatal().Err(err).Str("type", msgType).Msg("Failed to marshal")
		}
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			log.Fatal().Err(err).Str("type", msgType).Msg("Failed to send")
		}
	}

	send(protocol.TypeStartMeeting, protocol.StartMeeting{Title: *title})

	var sid string
	select {
	case sid = <-sessionID:
	case <-time.After(10 * time.Second):
		log.Fatal().Msg("Timed out waiting for meeting_started")
	case <-done:
		os.Exit(1)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, syscall.SIGINT, syscall.SIGTERM)

	sequence := 0
stream:
	for offset := 0; offset < len(audio); offset += *chunkSize {
		end := offset + *chunkSize
		if end > len(audio) {
			end = len(audio)
		}
		sequence++
		send(protocol.TypeAudioChunk, protocol.AudioChunk{
			SessionID: sid,
			Chunk:     base64.StdEncoding.EncodeToString(audio[offset:end]),
			Sequence:  sequence,
		})
		log.Info().Int("sequence", sequence).Int("bytes", end-offset).Msg("Chunk sent")

		select {
		case <-time.After(*interval):
		case <-interrupt:
			log.Info().Msg("Interrupted, ending meeting")
			break stream
		case <-done:
			os.Exit(1)
		}
	}

	send(protocol.TypeEndMeeting, protocol.EndMeeting{SessionID: sid})

	// Wait for the backend to drain the queue and confirm the end.
	select {
	case <-done:
	case <-time.After(2 * time.Minute):
		log.Warn().Msg("Timed out waiting for meeting_ended")
	}
}
