// Package stt captures the candidate's spoken response as text.
//
// A Recognizer accumulates a transcript across one listening interval:
// interim results are held back, final results are appended. The transcript
// survives StopListening so the coordinator can submit it, and is cleared
// only by ResetTranscript.
package stt

// Result is one streaming recognition result.
type Result struct {
	Text       string  // the transcribed text
	Confidence float64 // confidence score (0-1)
	IsFinal    bool    // whether this segment is final or interim
}
