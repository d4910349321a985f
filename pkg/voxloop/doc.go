// Package voxloop provides a Go SDK for duplex real-time voice over a
// hand-rolled RFC 6455 WebSocket client.
//
// # Overview
//
// The Voxloop SDK provides a complete solution for:
//   - A minimal client-side WebSocket implementation (masking, control
//     frames, closing handshake) over TCP or TLS
//   - Push-to-talk microphone streaming as base64 PCM control messages
//   - Immediate chunk-by-chunk playback of synthesized response audio
//   - A cooperative duplex loop with bounded response timeouts and
//     automatic reconnection
//   - Audio device management via PortAudio
//   - Structured logging with Zerolog
//
// # Quick Start
//
//	config := voxloop.NewConfig()
//	audioConfig := voxloop.NewAudioConfig()
//	client := voxloop.NewRealtimeClient(config, audioConfig, nil)
//
//	// Add handlers
//	client.AddErrorHandler(voxloop.CreateErrorLoggingHandler("Main"))
//	client.AddEventHandler(voxloop.CreateTranscriptHandler(func(text string, final bool) {
//		if final {
//			fmt.Println(text)
//		}
//	}))
//
//	// Hold the trigger to talk
//	trigger := voxloop.NewManualTrigger()
//	client.SetTrigger(trigger)
//
//	if err := client.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Configuration
//
// Config carries client-level settings and is populated from VOXLOOP_*
// environment variables (a .env file is honored); AudioConfig carries the
// capture and playback parameters; SessionOptions describes the audio
// formats and turn-detection policy sent to the endpoint. A TOML Profile
// can layer on top of all three.
//
// The API key is read from VOXLOOP_API_KEY at dial time and never stored
// in any struct. Deployments that front the endpoint with a gateway can
// use token auth instead (TokenManager, GenerateGatewayToken).
//
// # Concurrency
//
// Each connection has a single-writer discipline: every frame is written
// atomically under one mutex, so capture appends and session control
// messages never interleave on the wire. The orchestrator's receive loop
// is the connection's only reader.
package voxloop
